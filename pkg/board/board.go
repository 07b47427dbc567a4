// Package board keeps several paginated, filterable stage views of one
// entity kind in sync with the server and moves entities between them
// optimistically.
//
// A Board is driven the bubbletea way: every mutation happens inside Update
// or one of the exported methods, all of which must be called from the same
// goroutine (the program's event loop). Network calls are returned as
// tea.Cmd and come back as messages fed to Update. Responses may arrive in
// any order; generation tokens decide which ones still apply.
package board

import (
	"context"
	"fmt"
	"time"

	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/logger"
	"github.com/byxorna/stageboard/pkg/metrics"
	"github.com/byxorna/stageboard/pkg/stage"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	DefaultPageSize = 10
	DefaultTimeout  = 15 * time.Second
)

// Options configure a Board. Visibility and Send are optional; without them
// there is no infinite scroll and pages are loaded explicitly. Send is
// called from inside Update and must not block on the event loop.
type Options struct {
	Registry   *stage.Registry    `validate:"required"`
	Collection db.Collection      `validate:"required"`
	PageSize   int                `validate:"gte=0"`
	Debounce   time.Duration      `validate:"gte=0"`
	Timeout    time.Duration      `validate:"gte=0"`
	Visibility Visibility         `validate:"-"`
	Send       func(tea.Msg)      `validate:"-"`
	Logger     *zap.SugaredLogger `validate:"-"`
}

// Board is the state container for one entity kind
type Board struct {
	kind       string
	registry   *stage.Registry
	collection db.Collection
	log        *zap.SugaredLogger
	ctx        context.Context
	limit      int
	timeout    time.Duration

	filter v1.Filter
	epoch  uint64

	store   *store
	views   map[v1.Stage]*View
	active  v1.Stage
	pending map[v1.ID]*PendingMutation
	counts  *Counts

	scheduler *Scheduler
	trigger   *Trigger

	err error
}

func New(ctx context.Context, opts Options) (*Board, error) {
	validate := validator.New()
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid board options: %w", err)
	}

	kind := opts.Registry.Kind()
	b := Board{
		kind:       kind,
		registry:   opts.Registry,
		collection: opts.Collection,
		log:        opts.Logger,
		ctx:        ctx,
		limit:      opts.PageSize,
		timeout:    opts.Timeout,
		store:      newStore(),
		views:      map[v1.Stage]*View{},
		pending:    map[v1.ID]*PendingMutation{},
		counts:     NewCounts(),
		scheduler:  NewScheduler(kind, opts.Debounce),
	}
	if b.log == nil {
		b.log = logger.For(logger.ComponentBoard)
	}
	b.log = b.log.With("kind", kind)
	if b.limit == 0 {
		b.limit = DefaultPageSize
	}
	if b.timeout == 0 {
		b.timeout = DefaultTimeout
	}
	if opts.Visibility != nil {
		b.trigger = NewTrigger(kind, opts.Visibility, opts.Send)
	}
	return &b, nil
}

func (b *Board) Kind() string              { return b.kind }
func (b *Board) Registry() *stage.Registry { return b.registry }
func (b *Board) Filter() v1.Filter         { return b.filter }
func (b *Board) Active() v1.Stage          { return b.active }

// Err is the last error surfaced by the board, if any
func (b *Board) Err() error { return b.err }

// Init activates the first stage and fetches counts
func (b *Board) Init() tea.Cmd {
	cmd, err := b.Activate(b.registry.Initial())
	if err != nil {
		return errCmd(b.kind, err)
	}
	return tea.Batch(cmd, b.refreshCounts())
}

// Activate makes stage the one the user is looking at, creating its view on
// first use and loading its first page if nothing is cached.
func (b *Board) Activate(s v1.Stage) (tea.Cmd, error) {
	if !b.registry.Has(s) {
		return nil, fmt.Errorf("%s %s: %w", b.kind, s, ErrUnknownStage)
	}
	b.active = s
	v := b.view(s)

	var cmd tea.Cmd
	if !v.loaded {
		cmd = v.LoadNextPage()
	}
	b.syncTrigger()
	return cmd, nil
}

// view returns the view of s, creating it lazily
func (b *Board) view(s v1.Stage) *View {
	v, ok := b.views[s]
	if !ok {
		v = newView(b, s)
		b.views[s] = v
	}
	return v
}

// SetFilter debounces a filter change; only the last change within the
// window is applied
func (b *Board) SetFilter(f v1.Filter) tea.Cmd {
	return b.scheduler.Schedule(cloneFilter(f))
}

// ApplyFilter switches the filter context right away: every view is reset,
// counts are invalidated, the active stage is reloaded and counts are
// refreshed for all stages.
func (b *Board) ApplyFilter(f v1.Filter) tea.Cmd {
	b.scheduler.Stop()
	return b.applyFilter(cloneFilter(f))
}

func (b *Board) applyFilter(f v1.Filter) tea.Cmd {
	b.log.Debugw("applying filter", "filter", f.Key())
	b.filter = f
	b.epoch++
	b.store.clear()
	for _, v := range b.views {
		v.Reset()
	}
	b.counts.Invalidate()

	var cmds []tea.Cmd
	if b.active != "" {
		cmds = append(cmds, b.view(b.active).LoadNextPage())
	}
	cmds = append(cmds, b.refreshCounts())
	b.syncTrigger()
	return tea.Batch(cmds...)
}

// LoadNextPage loads the next page of stage, if it has one and is idle
func (b *Board) LoadNextPage(s v1.Stage) tea.Cmd {
	if !b.registry.Has(s) {
		return nil
	}
	return b.view(s).LoadNextPage()
}

// Reload resets a single stage and fetches its first page again
func (b *Board) Reload(s v1.Stage) tea.Cmd {
	if !b.registry.Has(s) {
		return nil
	}
	v := b.view(s)
	v.Reset()
	b.syncTrigger()
	return tea.Batch(v.LoadNextPage(), b.refreshCounts())
}

// Entities returns the loaded members of stage in display order
func (b *Board) Entities(s v1.Stage) []*v1.Entity {
	m := b.store.members(s)
	out := make([]*v1.Entity, len(m))
	for i, p := range m {
		out[i] = p.entity
	}
	return out
}

// Locate returns the stage an entity is cached under
func (b *Board) Locate(id v1.ID) (v1.Stage, bool) {
	p, ok := b.store.get(id)
	if !ok {
		return "", false
	}
	return p.stage, true
}

// View returns a copy of the cursor state of stage
func (b *Board) View(s v1.Stage) ViewState {
	if v, ok := b.views[s]; ok {
		return v.State()
	}
	return ViewState{Stage: s, Page: 1, HasMore: true, Status: v1.StatusUninitialized}
}

// Count is the number to display for stage
func (b *Board) Count(s v1.Stage) int {
	return b.counts.Get(s, b.store.count(s))
}

// Actions lists the stages an entity may be moved to from where it is now.
// Entities with a move in flight offer nothing.
func (b *Board) Actions(id v1.ID) []v1.Stage {
	if b.Pending(id) {
		return nil
	}
	p, ok := b.store.get(id)
	if !ok {
		return nil
	}
	return b.registry.NextStages(p.stage)
}

func (b *Board) Pending(id v1.ID) bool {
	_, ok := b.pending[id]
	return ok
}

// Close stops the debounce timer and the scroll subscription
func (b *Board) Close() {
	b.scheduler.Stop()
	b.trigger.Stop()
}

// Update handles the board's own messages. Messages for other kinds and
// unrelated messages are ignored.
func (b *Board) Update(msg tea.Msg) tea.Cmd {
	var (
		cmd tea.Cmd
		err error
	)

	switch msg := msg.(type) {
	case pageLoadedMsg:
		if msg.kind != b.kind {
			return nil
		}
		v, ok := b.views[msg.stage]
		if !ok {
			return nil
		}
		err = v.handlePage(msg)
		if msg.stage == b.active {
			b.syncTrigger()
		}

	case countsLoadedMsg:
		if msg.kind != b.kind {
			return nil
		}
		if msg.err != nil {
			// counts fall back to cache sizes; not worth bothering the user
			b.log.Warnw("count refresh failed", "error", msg.err)
			return nil
		}
		if !b.counts.Observe(msg.epoch, msg.counts) {
			metrics.StaleDiscarded(b.kind, "counts")
		}

	case FilterSettledMsg:
		if msg.Kind != b.kind {
			return nil
		}
		if !b.scheduler.Current(msg) {
			metrics.StaleDiscarded(b.kind, "filter")
			return nil
		}
		cmd = b.applyFilter(msg.Filter)

	case SentinelVisibleMsg:
		if msg.Kind != b.kind || b.trigger == nil || msg.Marker != b.trigger.Marker() {
			return nil
		}
		cmd = b.view(b.active).LoadNextPage()

	case transitionDoneMsg:
		if msg.kind != b.kind {
			return nil
		}
		cmd, err = b.handleTransition(msg)
		b.syncTrigger()
	}

	if err != nil {
		b.err = err
		return tea.Batch(cmd, errCmd(b.kind, err))
	}
	return cmd
}

func (b *Board) refreshCounts() tea.Cmd {
	counter, ok := b.collection.(db.Counter)
	if !ok {
		return nil
	}
	msg := countsLoadedMsg{kind: b.kind, epoch: b.counts.Epoch()}
	ctx, filter, timeout := b.ctx, b.filter, b.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		msg.counts, msg.err = counter.Counts(ctx, filter)
		return msg
	}
}

func (b *Board) syncTrigger() {
	if b.trigger == nil || b.active == "" {
		return
	}
	b.trigger.Sync(b.view(b.active).marker())
}

func cloneFilter(f v1.Filter) v1.Filter {
	out := v1.Filter{Search: f.Search, Where: f.Where}
	if len(f.Fields) > 0 {
		out.Fields = make(map[string]string, len(f.Fields))
		for k, v := range f.Fields {
			out.Fields[k] = v
		}
	}
	return out
}
