// Package rest is a Collection backed by a JSON HTTP API:
//
//	GET   {base}/{collection}?stage=&page=&limit=&search=&where=&<field>=
//	GET   {base}/{collection}/counts?search=&where=&<field>=
//	PATCH {base}/{collection}/{id}/status   {"status": ..., <metadata>}
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/logger"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// reserved query parameters; filter fields with these names are dropped
var reserved = map[string]bool{
	"stage": true, "page": true, "limit": true, "search": true, "where": true,
}

type Options struct {
	BaseURL    string        `validate:"required,url"`
	Collection string        `validate:"required"`
	Token      string        `validate:"-"`
	TokenFile  string        `validate:"-"`
	Timeout    time.Duration `validate:"gte=0"`

	HTTPClient *http.Client       `validate:"-"`
	Logger     *zap.SugaredLogger `validate:"-"`
}

type Client struct {
	base       string
	collection string
	http       *http.Client
	log        *zap.SugaredLogger
}

var _ db.Collection = (*Client)(nil)
var _ db.Counter = (*Client)(nil)

func New(ctx context.Context, opts Options) (*Client, error) {
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid rest options: %w", err)
	}
	hc, err := httpClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}
	c := Client{
		base:       strings.TrimRight(opts.BaseURL, "/"),
		collection: strings.Trim(opts.Collection, "/"),
		http:       hc,
		log:        opts.Logger,
	}
	if c.log == nil {
		c.log = logger.For(logger.ComponentREST)
	}
	c.log = c.log.With("collection", c.collection)
	return &c, nil
}

// StatusError is a non-2xx answer. It unwraps to the db sentinel matching
// the status code, if any.
type StatusError struct {
	Code   int
	Method string
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return db.ErrNoEntryFound
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return db.ErrInvalidTransition
	}
	return nil
}

func (c *Client) List(ctx context.Context, req db.ListRequest) (*db.ListResponse, error) {
	q := filterQuery(req.Filter)
	q.Set("stage", string(req.Stage))
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("limit", strconv.Itoa(req.Limit))

	body, err := c.do(ctx, http.MethodGet, c.collection, q, nil)
	if err != nil {
		return nil, err
	}

	// some backends answer with a bare array
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		var data []*v1.Entity
		if err := json.Unmarshal(trimmed, &data); err != nil {
			return nil, fmt.Errorf("unable to decode %s page %d: %w", req.Stage, req.Page, err)
		}
		return &db.ListResponse{Data: data}, nil
	}

	var resp db.ListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unable to decode %s page %d: %w", req.Stage, req.Page, err)
	}
	return &resp, nil
}

func (c *Client) Counts(ctx context.Context, filter v1.Filter) (map[v1.Stage]int, error) {
	body, err := c.do(ctx, http.MethodGet, c.collection+"/counts", filterQuery(filter), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Counts map[v1.Stage]int `json:"counts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unable to decode counts: %w", err)
	}
	return resp.Counts, nil
}

func (c *Client) Transition(ctx context.Context, req db.TransitionRequest) (*db.TransitionResponse, error) {
	payload := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		payload[k] = v
	}
	payload["status"] = req.Status

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("unable to encode transition of %s: %w", req.ID, err)
	}
	path := c.collection + "/" + url.PathEscape(string(req.ID)) + "/status"
	body, err := c.do(ctx, http.MethodPatch, path, nil, encoded)
	if err != nil {
		return nil, err
	}
	return decodeTransition(body)
}

// decodeTransition accepts either the updated entity or an envelope with
// the entity under data next to fresh counts
func decodeTransition(body []byte) (*db.TransitionResponse, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &db.TransitionResponse{}, nil
	}

	var envelope struct {
		Data   json.RawMessage  `json:"data"`
		Counts map[v1.Stage]int `json:"counts"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unable to decode transition response: %w", err)
	}

	raw := []byte(envelope.Data)
	if len(raw) == 0 || string(raw) == "null" {
		if envelope.Counts != nil {
			return &db.TransitionResponse{Counts: envelope.Counts}, nil
		}
		raw = body
	}
	var e v1.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("unable to decode transitioned entity: %w", err)
	}
	return &db.TransitionResponse{Entity: &e, Counts: envelope.Counts}, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, payload []byte) ([]byte, error) {
	u := c.base + "/" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var r io.Reader
	if payload != nil {
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response of %s %s: %w", method, u, err)
	}
	c.log.Debugw("request done", "method", method, "url", u, "code", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Method: method, URL: u, Body: errorMessage(body)}
	}
	return body, nil
}

// errorMessage pulls a message out of an error body, or returns the body
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return strings.TrimSpace(string(body))
}

func filterQuery(f v1.Filter) url.Values {
	q := url.Values{}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Set("search", s)
	}
	if w := strings.TrimSpace(f.Where); w != "" {
		q.Set("where", w)
	}
	for k, v := range f.Fields {
		if v == "" || reserved[k] {
			continue
		}
		q.Set(k, v)
	}
	return q
}

// ParseFilter is the inverse of the query encoding used by the client
func ParseFilter(q url.Values) v1.Filter {
	f := v1.Filter{Search: q.Get("search"), Where: q.Get("where")}
	for k, vs := range q {
		if reserved[k] || len(vs) == 0 || vs[0] == "" {
			continue
		}
		if f.Fields == nil {
			f.Fields = map[string]string{}
		}
		f.Fields[k] = vs[0]
	}
	return f
}
