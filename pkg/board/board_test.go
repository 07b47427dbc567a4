package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/db/memory"
	"github.com/byxorna/stageboard/pkg/stage"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kylelemons/godebug/pretty"
	"go.uber.org/zap"
)

var (
	epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

// scripted wraps a collection, recording requests and failing on demand
type scripted struct {
	db.Collection

	mu             sync.Mutex
	lists          []db.ListRequest
	transitions    []db.TransitionRequest
	failList       func(db.ListRequest) error
	failTransition error
}

func (s *scripted) List(ctx context.Context, req db.ListRequest) (*db.ListResponse, error) {
	s.mu.Lock()
	s.lists = append(s.lists, req)
	fail := s.failList
	s.mu.Unlock()
	if fail != nil {
		if err := fail(req); err != nil {
			return nil, err
		}
	}
	return s.Collection.List(ctx, req)
}

func (s *scripted) Transition(ctx context.Context, req db.TransitionRequest) (*db.TransitionResponse, error) {
	s.mu.Lock()
	s.transitions = append(s.transitions, req)
	fail := s.failTransition
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return s.Collection.Transition(ctx, req)
}

func (s *scripted) Counts(ctx context.Context, filter v1.Filter) (map[v1.Stage]int, error) {
	return s.Collection.(db.Counter).Counts(ctx, filter)
}

func (s *scripted) listCalls() []db.ListRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.ListRequest(nil), s.lists...)
}

func (s *scripted) transitionCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transitions)
}

// seed builds entities named <prefix>-NN in stage, newest last
func seed(stageName v1.Stage, prefix string, n int) []*v1.Entity {
	out := make([]*v1.Entity, n)
	for i := range out {
		out[i] = &v1.Entity{
			ID:      v1.ID(fmt.Sprintf("%s-%02d", prefix, i)),
			Stage:   stageName,
			Created: epoch.Add(time.Duration(i) * time.Minute),
			Payload: map[string]any{"name": fmt.Sprintf("%s %d", prefix, i)},
		}
	}
	return out
}

type harness struct {
	t    *testing.T
	b    *Board
	coll *scripted
	mem  *memory.Collection
}

func newHarness(t *testing.T, kind string, pageSize int, entities ...*v1.Entity) *harness {
	t.Helper()
	return newHarnessWith(t, kind, Options{PageSize: pageSize, Debounce: 10 * time.Millisecond}, entities...)
}

func newHarnessWith(t *testing.T, kind string, opts Options, entities ...*v1.Entity) *harness {
	t.Helper()
	reg, err := stage.NewBuiltin(kind)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := memory.New(reg, entities...)
	if err != nil {
		t.Fatal(err)
	}
	coll := &scripted{Collection: mem}

	opts.Registry = reg
	opts.Collection = coll
	opts.Logger = zap.NewNop().Sugar()
	b, err := New(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return &harness{t: t, b: b, coll: coll, mem: mem}
}

// drain runs cmd and every command that results from feeding its messages
// back into the board, returning the messages the board emitted for its
// caller (errors, confirmations).
func (h *harness) drain(cmd tea.Cmd) []tea.Msg {
	var out []tea.Msg
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case ErrMsg, TransitionConfirmedMsg:
			out = append(out, msg)
		default:
			queue = append(queue, h.b.Update(msg))
		}
	}
	return out
}

func (h *harness) activate(s v1.Stage) []tea.Msg {
	h.t.Helper()
	cmd, err := h.b.Activate(s)
	if err != nil {
		h.t.Fatal(err)
	}
	return h.drain(cmd)
}

func (h *harness) ids(s v1.Stage) []string {
	es := h.b.Entities(s)
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = string(e.ID)
	}
	return out
}

// collect runs a command to completion without feeding the board
func collect(cmd tea.Cmd) []tea.Msg {
	var out []tea.Msg
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			out = append(out, msg)
		}
	}
	return out
}

func TestPaginationScenario(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 25)...)

	h.activate("pending")
	expected := []struct {
		length  int
		hasMore bool
	}{{10, true}, {20, true}, {25, false}}

	for i, exp := range expected {
		if i > 0 {
			h.drain(h.b.LoadNextPage("pending"))
		}
		st := h.b.View("pending")
		if st.Len != exp.length || st.HasMore != exp.hasMore {
			t.Errorf("after load %d: got len=%d hasMore=%v, expected len=%d hasMore=%v", i+1, st.Len, st.HasMore, exp.length, exp.hasMore)
		}
		if st.Loading {
			t.Errorf("after load %d: still loading", i+1)
		}
	}

	// an exhausted view never fetches again until reset
	if cmd := h.b.LoadNextPage("pending"); cmd != nil {
		t.Fatalf("expected no fetch once hasMore is false")
	}
	if n := len(h.coll.listCalls()); n != 3 {
		t.Errorf("expected 3 list calls, got %d", n)
	}

	h.drain(h.b.Reload("pending"))
	st := h.b.View("pending")
	if st.Len != 10 || !st.HasMore || st.Page != 2 {
		t.Errorf("after reload expected a fresh first page, got %+v", st)
	}
}

func TestHasMoreIgnoresServerWhenPageIsShort(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 4)...)
	h.activate("pending")

	// a later response claiming more must not reopen an exhausted view
	v := h.b.views["pending"]
	yes := true
	h.b.Update(pageLoadedMsg{
		kind: h.b.kind, stage: "pending", gen: v.gen,
		req:  db.ListRequest{Stage: "pending", Page: 2, Limit: 10},
		resp: &db.ListResponse{HasMore: &yes},
	})
	if h.b.View("pending").HasMore {
		t.Fatalf("hasMore must stay false after a short page")
	}
}

func TestLoadNextPageIsSerialized(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 25)...)

	first, err := h.b.Activate("pending")
	if err != nil {
		t.Fatal(err)
	}
	if first == nil {
		t.Fatal("expected the first page to be requested")
	}
	if cmd := h.b.LoadNextPage("pending"); cmd != nil {
		t.Fatal("a second fetch was issued while the first was in flight")
	}
	if st := h.b.View("pending"); !st.Loading || st.Status != v1.StatusSynchronizing {
		t.Errorf("expected loading state, got %+v", st)
	}
	h.drain(first)
	if h.b.View("pending").Loading {
		t.Errorf("loading not cleared")
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 25)...)
	h.activate("pending")

	// request page 2, then switch filter before it lands
	stale := collect(h.b.LoadNextPage("pending"))
	h.drain(h.b.ApplyFilter(v1.Filter{Search: "app 2"}))
	after := h.ids("pending")

	for _, msg := range stale {
		if cmd := h.b.Update(msg); cmd != nil {
			t.Errorf("stale response produced a command")
		}
	}
	if diff := pretty.Compare(h.ids("pending"), after); diff != "" {
		t.Errorf("stale page mutated the post-reset cache (-got +want):\n%s", diff)
	}
	if h.b.View("pending").Loading {
		t.Errorf("stale page must not touch the new cursor")
	}
}

func TestOutOfOrderResponsesAcrossResets(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 25)...)
	h.activate("pending")

	first := collect(h.b.ApplyFilter(v1.Filter{Search: "app 1"}))
	second := collect(h.b.ApplyFilter(v1.Filter{Search: "app 2"}))

	// the newer response arrives first
	for _, msg := range second {
		h.b.Update(msg)
	}
	want := h.ids("pending")
	for _, msg := range first {
		h.b.Update(msg)
	}
	if diff := pretty.Compare(h.ids("pending"), want); diff != "" {
		t.Errorf("older response overwrote newer state (-got +want):\n%s", diff)
	}
	if len(want) == 0 {
		t.Errorf("expected matches for the newer filter")
	}
}

func TestFetchErrorLeavesCacheIntact(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 25)...)
	h.activate("pending")
	before := h.ids("pending")

	boom := errors.New("gateway timeout")
	h.coll.failList = func(req db.ListRequest) error {
		if req.Page == 2 {
			return boom
		}
		return nil
	}

	out := h.drain(h.b.LoadNextPage("pending"))
	if len(out) != 1 {
		t.Fatalf("expected one surfaced error, got %v", out)
	}
	errMsg, ok := out[0].(ErrMsg)
	if !ok {
		t.Fatalf("expected ErrMsg, got %T", out[0])
	}
	var fetchErr *FetchError
	if !errors.As(errMsg.Err, &fetchErr) || !errors.Is(errMsg.Err, boom) || !IsRetryable(errMsg.Err) {
		t.Errorf("expected retryable FetchError wrapping the cause, got %v", errMsg.Err)
	}

	st := h.b.View("pending")
	if st.Loading || st.Status != v1.StatusError || !st.HasMore || st.Page != 2 {
		t.Errorf("unexpected state after failure %+v", st)
	}
	if diff := pretty.Compare(h.ids("pending"), before); diff != "" {
		t.Errorf("failed fetch corrupted the cache (-got +want):\n%s", diff)
	}

	// retrying is up to the caller
	h.coll.failList = nil
	h.drain(h.b.LoadNextPage("pending"))
	if st := h.b.View("pending"); st.Len != 20 || st.Status != v1.StatusOK || st.Err != nil {
		t.Errorf("retry did not recover: %+v", st)
	}
}

func TestMergeDeduplicatesAndFollowsRemoteMoves(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 3)...)
	h.activate("pending")
	h.activate("shortlisted")

	// someone else shortlisted app-01
	if _, err := h.mem.Transition(context.Background(), db.TransitionRequest{ID: "app-01", Status: "shortlisted"}); err != nil {
		t.Fatal(err)
	}
	h.drain(h.b.Reload("shortlisted"))

	if diff := pretty.Compare(h.ids("pending"), []string{"app-02", "app-00"}); diff != "" {
		t.Errorf("pending (-got +want):\n%s", diff)
	}
	if diff := pretty.Compare(h.ids("shortlisted"), []string{"app-01"}); diff != "" {
		t.Errorf("shortlisted (-got +want):\n%s", diff)
	}

	// reloading the same page twice never duplicates
	h.drain(h.b.Reload("pending"))
	h.drain(h.b.Reload("pending"))
	if diff := pretty.Compare(h.ids("pending"), []string{"app-02", "app-00"}); diff != "" {
		t.Errorf("pending after reloads (-got +want):\n%s", diff)
	}
}

func TestActivateRejectsUnknownStage(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10)
	_, err := h.b.Activate("hired")
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", err)
	}
	// callers matching on the registry's error see the same failure
	if !errors.Is(err, stage.ErrUnknownStage) {
		t.Errorf("expected stage.ErrUnknownStage, got %v", err)
	}
}

func TestInitLoadsInitialStageAndCounts(t *testing.T) {
	entities := append(seed("pending", "app", 3), seed("shortlisted", "short", 2)...)
	h := newHarness(t, stage.KindFreelanceApplications, 10, entities...)

	h.drain(h.b.Init())
	if h.b.Active() != "pending" {
		t.Errorf("expected pending to be active, got %s", h.b.Active())
	}
	if h.b.Count("shortlisted") != 2 || h.b.Count("pending") != 3 || h.b.Count("rejected") != 0 {
		t.Errorf("unexpected counts pending=%d shortlisted=%d rejected=%d",
			h.b.Count("pending"), h.b.Count("shortlisted"), h.b.Count("rejected"))
	}
	// shortlisted was never activated so nothing was listed for it
	for _, req := range h.coll.listCalls() {
		if req.Stage != "pending" {
			t.Errorf("unexpected listing of %s", req.Stage)
		}
	}
}

func TestMessagesForOtherKindsAreIgnored(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 3)...)
	h.activate("pending")
	before := h.b.View("pending")

	h.b.Update(pageLoadedMsg{kind: "other", stage: "pending", gen: before.Generation})
	h.b.Update(FilterSettledMsg{Kind: "other"})
	if diff := pretty.Compare(h.b.View("pending"), before); diff != "" {
		t.Errorf("foreign messages changed state (-got +want):\n%s", diff)
	}
}
