package rest

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/byxorna/stageboard/pkg/runtime"
	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// TokenFromFile reads a cached oauth2 token. Relative names resolve in the
// runtime directory.
func TokenFromFile(file string) (*oauth2.Token, error) {
	path, err := runtime.Resolve(file)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("unable to decode token file %s: %w", path, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token file %s has no access token", path)
	}
	return tok, nil
}

// SaveToken caches a token for later runs
func SaveToken(file string, tok *oauth2.Token) error {
	path, err := runtime.Resolve(file)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// httpClient returns a client sending the bearer token, if any. A literal
// token wins over a token file.
func httpClient(ctx context.Context, opts Options) (*http.Client, error) {
	if opts.HTTPClient != nil {
		return opts.HTTPClient, nil
	}

	var tok *oauth2.Token
	switch {
	case opts.Token != "":
		tok = &oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}
	case opts.TokenFile != "":
		t, err := TokenFromFile(opts.TokenFile)
		if err != nil {
			return nil, err
		}
		tok = t
	}

	if tok == nil {
		return &http.Client{}, nil
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)), nil
}
