package board

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Subscription is a cancellable handle on a visibility observation
type Subscription interface {
	Cancel()
}

// Visibility is a source of visibility changes for sentinel markers. Like
// an intersection observer, Observe must report the current state right
// away when the marker is already visible.
type Visibility interface {
	Observe(marker string, fn func(visible bool)) Subscription
}

// Trigger keeps exactly one subscription on the sentinel of the active view
// and turns its visibility into SentinelVisibleMsg.
type Trigger struct {
	kind   string
	vis    Visibility
	send   func(tea.Msg)
	marker string
	sub    Subscription
}

func NewTrigger(kind string, vis Visibility, send func(tea.Msg)) *Trigger {
	return &Trigger{kind: kind, vis: vis, send: send}
}

// Sync re-subscribes when the sentinel marker changed, e.g. after a page
// appended a new last item or the active stage switched
func (t *Trigger) Sync(marker string) {
	if t == nil || t.vis == nil {
		return
	}
	if t.sub != nil && marker == t.marker {
		return
	}
	t.Stop()
	t.marker = marker
	kind, send := t.kind, t.send
	t.sub = t.vis.Observe(marker, func(visible bool) {
		if visible && send != nil {
			send(SentinelVisibleMsg{Kind: kind, Marker: marker})
		}
	})
}

// Marker is the sentinel currently observed
func (t *Trigger) Marker() string {
	if t == nil {
		return ""
	}
	return t.marker
}

// Stop cancels the current subscription
func (t *Trigger) Stop() {
	if t == nil || t.sub == nil {
		return
	}
	t.sub.Cancel()
	t.sub = nil
	t.marker = ""
}

// Viewport is an in-process Visibility fed by whoever renders the list: it
// is told which markers are on screen and notifies their observers.
type Viewport struct {
	mu      sync.Mutex
	visible map[string]bool
	subs    map[*viewportSub]struct{}
}

type viewportSub struct {
	v      *Viewport
	marker string
	fn     func(bool)
}

func (s *viewportSub) Cancel() {
	s.v.mu.Lock()
	defer s.v.mu.Unlock()
	delete(s.v.subs, s)
}

func NewViewport() *Viewport {
	return &Viewport{visible: map[string]bool{}, subs: map[*viewportSub]struct{}{}}
}

func (v *Viewport) Observe(marker string, fn func(bool)) Subscription {
	v.mu.Lock()
	s := &viewportSub{v: v, marker: marker, fn: fn}
	v.subs[s] = struct{}{}
	visible := v.visible[marker]
	v.mu.Unlock()

	if visible {
		fn(true)
	}
	return s
}

// SetVisible replaces the set of markers on screen and notifies observers
// of markers whose visibility changed
func (v *Viewport) SetVisible(markers ...string) {
	next := make(map[string]bool, len(markers))
	for _, m := range markers {
		next[m] = true
	}

	v.mu.Lock()
	var notify []func()
	for s := range v.subs {
		was, is := v.visible[s.marker], next[s.marker]
		if was != is {
			fn, visible := s.fn, is
			notify = append(notify, func() { fn(visible) })
		}
	}
	v.visible = next
	v.mu.Unlock()

	for _, n := range notify {
		n()
	}
}

// Subscribers is the number of live observations
func (v *Viewport) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}
