package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/byxorna/stageboard/pkg/db"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	"github.com/h2non/gock"
	"github.com/kylelemons/godebug/pretty"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	testBase = "http://backend.test/api"
	testKind = "freelance-applications"
)

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	opts.BaseURL = testBase
	opts.Collection = testKind
	opts.Logger = zap.NewNop().Sugar()
	c, err := New(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestList(t *testing.T) {
	defer gock.Off()
	gock.New(testBase).
		Get("/"+testKind).
		MatchParam("stage", "pending").
		MatchParam("page", "2").
		MatchParam("limit", "10").
		MatchParam("search", "rahul").
		MatchParam("city", "Pune").
		MatchHeader("Authorization", "^Bearer s3cret$").
		Reply(200).
		JSON(map[string]any{
			"data": []map[string]any{
				{"_id": "a1", "status": "pending", "fullName": "Rahul K", "createdAt": "2024-03-01T09:00:00Z"},
				{"_id": 42, "status": "pending", "fullName": "Asha", "createdAt": 1709283600000},
			},
			"counts":  map[string]int{"pending": 12, "shortlisted": 3},
			"hasMore": true,
		})

	c := newClient(t, Options{Token: "s3cret"})
	resp, err := c.List(context.Background(), db.ListRequest{
		Stage:  "pending",
		Page:   2,
		Limit:  10,
		Filter: v1.Filter{Search: " rahul ", Fields: map[string]string{"city": "Pune", "page": "ignored"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 || resp.Data[0].ID != "a1" || resp.Data[1].ID != "42" {
		t.Fatalf("unexpected data %+v", resp.Data)
	}
	if resp.Data[0].Payload["fullName"] != "Rahul K" || resp.Data[0].Stage != "pending" {
		t.Errorf("unexpected entity %+v", resp.Data[0])
	}
	if !resp.Data[1].Created.Equal(time.UnixMilli(1709283600000)) {
		t.Errorf("epoch millis not decoded: %s", resp.Data[1].Created)
	}
	if diff := pretty.Compare(resp.Counts, map[v1.Stage]int{"pending": 12, "shortlisted": 3}); diff != "" {
		t.Errorf("counts (-got +want):\n%s", diff)
	}
	if resp.HasMore == nil || !*resp.HasMore {
		t.Errorf("hasMore not decoded")
	}
	if !gock.IsDone() {
		t.Errorf("request did not match the expected query")
	}
}

func TestListBareArray(t *testing.T) {
	defer gock.Off()
	gock.New(testBase).
		Get("/" + testKind).
		Reply(200).
		BodyString(`[{"id":"a1","status":"rejected"}]`)

	c := newClient(t, Options{})
	resp, err := c.List(context.Background(), db.ListRequest{Stage: "rejected", Page: 1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Counts != nil || resp.HasMore != nil {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCounts(t *testing.T) {
	defer gock.Off()
	gock.New(testBase).
		Get("/"+testKind+"/counts").
		MatchParam("where", "cgpa > 8").
		Reply(200).
		JSON(map[string]any{"counts": map[string]int{"pending": 4, "rejected": 1}})

	c := newClient(t, Options{})
	counts, err := c.Counts(context.Background(), v1.Filter{Where: "cgpa > 8"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(counts, map[v1.Stage]int{"pending": 4, "rejected": 1}); diff != "" {
		t.Errorf("counts (-got +want):\n%s", diff)
	}
}

func TestTransition(t *testing.T) {
	defer gock.Off()
	gock.New(testBase).
		Patch("/" + testKind + "/a1/status").
		MatchType("json").
		JSON(map[string]any{"status": "shortlisted", "note": "strong"}).
		Reply(200).
		JSON(map[string]any{
			"data":   map[string]any{"id": "a1", "status": "shortlisted", "note": "strong"},
			"counts": map[string]int{"pending": 2, "shortlisted": 1},
		})
	gock.New(testBase).
		Patch("/" + testKind + "/a2/status").
		Reply(200).
		JSON(map[string]any{"id": "a2", "status": "rejected"})

	c := newClient(t, Options{})
	resp, err := c.Transition(context.Background(), db.TransitionRequest{ID: "a1", Status: "shortlisted", Metadata: map[string]any{"note": "strong"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Entity == nil || resp.Entity.Stage != "shortlisted" || resp.Counts["shortlisted"] != 1 {
		t.Errorf("unexpected envelope response %+v", resp)
	}

	resp, err = c.Transition(context.Background(), db.TransitionRequest{ID: "a2", Status: "rejected"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Entity == nil || resp.Entity.ID != "a2" || resp.Entity.Stage != "rejected" || resp.Counts != nil {
		t.Errorf("unexpected bare response %+v", resp)
	}
	if !gock.IsDone() {
		t.Errorf("pending mocks left")
	}
}

func TestStatusErrors(t *testing.T) {
	defer gock.Off()
	gock.New(testBase).
		Patch("/" + testKind + "/a1/status").
		Reply(409).
		JSON(map[string]any{"error": "already shortlisted"})
	gock.New(testBase).
		Patch("/" + testKind + "/nope/status").
		Reply(404)
	gock.New(testBase).
		Get("/" + testKind).
		Reply(503).
		BodyString("maintenance")

	c := newClient(t, Options{})
	ctx := context.Background()

	_, err := c.Transition(ctx, db.TransitionRequest{ID: "a1", Status: "shortlisted"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusConflict || se.Body != "already shortlisted" {
		t.Errorf("expected a 409 status error, got %v", err)
	}
	if !errors.Is(err, db.ErrInvalidTransition) {
		t.Errorf("409 must unwrap to ErrInvalidTransition")
	}

	_, err = c.Transition(ctx, db.TransitionRequest{ID: "nope", Status: "shortlisted"})
	if !errors.Is(err, db.ErrNoEntryFound) {
		t.Errorf("expected not found, got %v", err)
	}

	_, err = c.List(ctx, db.ListRequest{Stage: "pending", Page: 1, Limit: 10})
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable || se.Body != "maintenance" {
		t.Errorf("expected a 503 status error, got %v", err)
	}
}

func TestTokenFile(t *testing.T) {
	defer gock.Off()
	path := filepath.Join(t.TempDir(), "token.json")
	if err := SaveToken(path, &oauth2.Token{AccessToken: "cached", TokenType: "Bearer"}); err != nil {
		t.Fatal(err)
	}
	gock.New(testBase).
		Get("/"+testKind+"/counts").
		MatchHeader("Authorization", "^Bearer cached$").
		Reply(200).
		JSON(map[string]any{"counts": map[string]int{}})

	c := newClient(t, Options{TokenFile: path})
	if _, err := c.Counts(context.Background(), v1.Filter{}); err != nil {
		t.Fatal(err)
	}
	if !gock.IsDone() {
		t.Errorf("token not sent")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(context.Background(), Options{BaseURL: "not a url", Collection: testKind}); err == nil {
		t.Errorf("expected invalid base url to be rejected")
	}
	if _, err := New(context.Background(), Options{BaseURL: testBase}); err == nil {
		t.Errorf("expected missing collection to be rejected")
	}
}

func TestParseFilterRoundTrip(t *testing.T) {
	f := v1.Filter{Search: "rahul", Where: "cgpa > 8", Fields: map[string]string{"city": "Pune"}}
	q, err := url.ParseQuery(filterQuery(f).Encode() + "&stage=pending&page=1")
	if err != nil {
		t.Fatal(err)
	}
	if got := ParseFilter(q); !got.Equal(f) {
		t.Errorf("expected %s, got %s", f.Key(), got.Key())
	}
}
