package board

import (
	"context"

	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/metrics"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	tea "github.com/charmbracelet/bubbletea"
)

// View is the paginated controller of one stage under the board's current
// filter context. Its members live in the board's keyed store; the view
// only owns the cursor.
type View struct {
	b     *Board
	stage v1.Stage

	page    int
	hasMore bool
	loading bool
	gen     uint64
	loaded  bool
	status  v1.SyncStatus
	err     error
}

// ViewState is a read-only copy of a view's cursor
type ViewState struct {
	Stage      v1.Stage
	Page       int
	HasMore    bool
	Loading    bool
	Loaded     bool
	Generation uint64
	Status     v1.SyncStatus
	Err        error
	Len        int
}

func newView(b *Board, stage v1.Stage) *View {
	v := View{b: b, stage: stage}
	v.Reset()
	return &v
}

func (v *View) Stage() v1.Stage { return v.stage }

// Reset clears the cache and cursor. Every reset bumps the generation so
// responses to requests made before it are dropped on arrival.
func (v *View) Reset() {
	v.b.store.dropStage(v.stage)
	v.page = 1
	v.hasMore = true
	v.loading = false
	v.loaded = false
	v.gen++
	v.status = v1.StatusUninitialized
	v.err = nil
}

// LoadNextPage returns the command fetching the next page, or nil when a
// fetch is already in flight or the stage is exhausted.
func (v *View) LoadNextPage() tea.Cmd {
	if v.loading || !v.hasMore {
		return nil
	}
	v.loading = true
	v.status = v1.StatusSynchronizing

	req := db.ListRequest{
		Stage:  v.stage,
		Page:   v.page,
		Limit:  v.b.limit,
		Filter: v.b.filter,
	}
	msg := pageLoadedMsg{kind: v.b.kind, stage: v.stage, gen: v.gen, req: req}
	v.b.log.Debugw("loading page", "stage", v.stage, "page", req.Page, "gen", v.gen)

	// only immutable values are captured; the command runs off the loop
	ctx, collection, timeout := v.b.ctx, v.b.collection, v.b.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		msg.resp, msg.err = collection.List(ctx, req)
		return msg
	}
}

func (v *View) handlePage(msg pageLoadedMsg) error {
	if msg.gen != v.gen {
		v.b.log.Debugw("discarding stale page", "stage", v.stage, "page", msg.req.Page, "gen", msg.gen, "current", v.gen)
		metrics.StaleDiscarded(v.b.kind, "page")
		return nil
	}

	v.loading = false
	if msg.err != nil {
		metrics.PageFetched(v.b.kind, string(v.stage), metrics.ResultError)
		v.status = v1.StatusError
		v.err = &FetchError{Kind: v.b.kind, Stage: v.stage, Page: msg.req.Page, Err: msg.err}
		v.b.log.Warnw("page load failed", "stage", v.stage, "page", msg.req.Page, "error", msg.err)
		return v.err
	}
	metrics.PageFetched(v.b.kind, string(v.stage), metrics.ResultOK)

	resp := msg.resp
	if resp == nil {
		resp = &db.ListResponse{}
	}
	for _, e := range resp.Data {
		if e == nil || e.ID == "" {
			continue
		}
		v.merge(e)
	}

	v.hasMore = len(resp.Data) >= msg.req.Limit && (resp.HasMore == nil || *resp.HasMore)
	v.page++
	v.loaded = true
	v.status = v1.StatusOK
	v.err = nil

	// the generation check above already rejected pages from an older filter
	if resp.Counts != nil {
		v.b.counts.Observe(v.b.counts.Epoch(), resp.Counts)
	}
	return nil
}

func (v *View) merge(e *v1.Entity) {
	if pm, pending := v.b.pending[e.ID]; pending {
		// the optimistic placement wins until the move is settled. Keep the
		// listed copy and its slot so an undone move can land here.
		v.b.store.high++
		pm.listed = &placement{entity: e, stage: v.stage, rank: v.b.store.high}
		pm.listedGen = v.gen
		return
	}
	if p, ok := v.b.store.get(e.ID); ok {
		if p.stage == v.stage {
			e.Stage = v.stage
			p.entity = e
			return
		}
		// the listing is authoritative; it moved since we last saw it
		v.b.log.Debugw("entity moved remotely", "id", e.ID, "from", p.stage, "to", v.stage)
		v.b.store.remove(e.ID)
	}
	v.b.store.appendTo(v.stage, e)
}

func (v *View) State() ViewState {
	return ViewState{
		Stage:      v.stage,
		Page:       v.page,
		HasMore:    v.hasMore,
		Loading:    v.loading,
		Loaded:     v.loaded,
		Generation: v.gen,
		Status:     v.status,
		Err:        v.err,
		Len:        v.b.store.count(v.stage),
	}
}

// marker identifies the sentinel of this view: its last loaded member
func (v *View) marker() string {
	m := v.b.store.members(v.stage)
	if len(m) == 0 {
		return string(v.stage) + ":"
	}
	return string(v.stage) + ":" + string(m[len(m)-1].entity.ID)
}
