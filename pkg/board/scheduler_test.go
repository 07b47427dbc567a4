package board

import (
	"testing"
	"time"

	"github.com/byxorna/stageboard/pkg/stage"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	tea "github.com/charmbracelet/bubbletea"
)

func TestSchedulerKeepsOnlyLastCall(t *testing.T) {
	s := NewScheduler("k", 20*time.Millisecond)
	defer s.Stop()

	var cmds []tea.Cmd
	for _, q := range []string{"r", "ra", "rah", "rahu", "rahul"} {
		cmds = append(cmds, s.Schedule(v1.Filter{Search: q}))
	}

	var settled []FilterSettledMsg
	for _, cmd := range cmds {
		if msg := cmd(); msg != nil {
			settled = append(settled, msg.(FilterSettledMsg))
		}
	}
	if len(settled) != 1 {
		t.Fatalf("expected exactly one settled filter, got %d", len(settled))
	}
	if settled[0].Filter.Search != "rahul" || settled[0].Kind != "k" {
		t.Errorf("expected the last filter, got %+v", settled[0])
	}
	if !s.Current(settled[0]) {
		t.Errorf("the last message must be current")
	}
}

func TestSchedulerStop(t *testing.T) {
	s := NewScheduler("k", time.Hour)
	cmd := s.Schedule(v1.Filter{Search: "x"})
	s.Stop()
	if msg := cmd(); msg != nil {
		t.Errorf("a stopped window must not settle, got %v", msg)
	}
	// stopping twice is fine
	s.Stop()
}

func TestSchedulerStopRetiresDeliveredWindow(t *testing.T) {
	s := NewScheduler("k", time.Millisecond)
	settled, ok := s.Schedule(v1.Filter{Search: "x"})().(FilterSettledMsg)
	if !ok {
		t.Fatal("window did not settle")
	}
	if !s.Current(settled) {
		t.Fatal("the last window must be current")
	}
	s.Stop()
	if s.Current(settled) {
		t.Errorf("a window delivered before Stop must be stale")
	}
}

func TestApplyFilterDropsAlreadySettledWindow(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 5)...)
	h.activate("pending")

	// the debounce fires but its message is still queued
	late := h.b.SetFilter(v1.Filter{Search: "app 1"})()
	if late == nil {
		t.Fatal("window did not settle")
	}
	h.drain(h.b.ApplyFilter(v1.Filter{}))

	if cmd := h.b.Update(late); cmd != nil {
		t.Errorf("late settle produced a command")
	}
	if h.b.Filter().Search != "" {
		t.Errorf("late settle overrode the explicit filter: %+v", h.b.Filter())
	}
	if n := len(h.ids("pending")); n != 5 {
		t.Errorf("expected the unfiltered view, got %d entities", n)
	}
}

func TestSchedulerDefaultDelay(t *testing.T) {
	if s := NewScheduler("k", 0); s.delay != DefaultDebounce {
		t.Errorf("expected default debounce, got %s", s.delay)
	}
}

func TestSetFilterIssuesOneFetch(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 25)...)
	h.activate("pending")
	initial := len(h.coll.listCalls())

	var cmds []tea.Cmd
	for _, q := range []string{"a", "ap", "app", "app ", "app 1"} {
		cmds = append(cmds, h.b.SetFilter(v1.Filter{Search: q}))
	}
	for _, cmd := range cmds {
		h.drain(cmd)
	}

	calls := h.coll.listCalls()[initial:]
	if len(calls) != 1 {
		t.Fatalf("expected one fetch after the burst, got %d", len(calls))
	}
	if calls[0].Filter.Search != "app 1" || calls[0].Page != 1 {
		t.Errorf("fetch used stale parameters: %+v", calls[0])
	}
	if h.b.Filter().Search != "app 1" {
		t.Errorf("board filter not applied: %+v", h.b.Filter())
	}
}

func TestApplyFilterCancelsDebounce(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 5)...)
	h.activate("pending")

	pending := h.b.SetFilter(v1.Filter{Search: "app 1"})
	h.drain(h.b.ApplyFilter(v1.Filter{Search: "app 3"}))
	h.drain(pending)

	if h.b.Filter().Search != "app 3" {
		t.Errorf("debounced filter overrode an explicit one: %+v", h.b.Filter())
	}

	// a settled message from a superseded window is dropped
	if cmd := h.b.Update(FilterSettledMsg{Kind: h.b.Kind(), Filter: v1.Filter{Search: "zzz"}}); cmd != nil {
		t.Errorf("stale settle produced a command")
	}
	if h.b.Filter().Search != "app 3" {
		t.Errorf("stale settle applied: %+v", h.b.Filter())
	}
}

func TestFilterIsCopied(t *testing.T) {
	h := newHarness(t, stage.KindFreelanceApplications, 10, seed("pending", "app", 5)...)
	fields := map[string]string{"name": "app 1"}
	h.drain(h.b.ApplyFilter(v1.Filter{Fields: fields}))
	fields["name"] = "app 2"
	if h.b.Filter().Fields["name"] != "app 1" {
		t.Errorf("board filter aliases the caller's map")
	}
}
