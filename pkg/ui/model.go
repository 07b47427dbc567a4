// Package ui is the terminal front end of a board: one tab per stage, an
// infinitely scrolling list of the active stage, a filter input and number
// keys to move the selected entity along the stage graph.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/byxorna/stageboard/pkg/board"
	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/logger"
	"github.com/byxorna/stageboard/pkg/stage"
	"github.com/byxorna/stageboard/pkg/text"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	// lines taken by everything but the list
	chromeHeight = 10
	defaultRows  = 10
)

var (
	statusMessageTimeout = time.Second * 3

	dividerBar = DimBrightGrayFg(" │ ")
	focusBar   = FuchsiaFg("│ ")
)

type statusMessageType int

const (
	normalStatusMessage statusMessageType = iota
	subtleStatusMessage
	errorStatusMessage
)

type statusMessage struct {
	status  statusMessageType
	message string
}

func (s statusMessage) String() string {
	switch s.status {
	case subtleStatusMessage:
		return DimGreenFg(s.message)
	case errorStatusMessage:
		return RedFg(text.EmojiFailed + " " + s.message)
	default:
		return GreenFg(text.EmojiMoved + " " + s.message)
	}
}

type statusMessageTimeoutMsg int

// sender hands messages to the running program. Board calls it from inside
// Update, so delivery happens on its own goroutine.
type sender struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func (s *sender) attach(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = func(msg tea.Msg) { go p.Send(msg) }
}

func (s *sender) Send(msg tea.Msg) {
	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

type Options struct {
	Registry   *stage.Registry    `validate:"required"`
	Collection db.Collection      `validate:"required"`
	PageSize   int                `validate:"gte=0"`
	Debounce   time.Duration      `validate:"gte=0"`
	Timeout    time.Duration      `validate:"gte=0"`
	Logger     *zap.SugaredLogger `validate:"-"`
}

type Model struct {
	board *board.Board
	vp    *board.Viewport
	send  *sender
	log   *zap.SugaredLogger

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	filter  textinput.Model
	pages   paginator.Model

	filtering bool
	cursor    int
	offset    int
	width     int
	height    int

	statusMessage     statusMessage
	showStatusMessage bool
	statusSeq         int

	quitting bool
}

func New(ctx context.Context, opts Options) (Model, error) {
	if err := validator.New().Struct(opts); err != nil {
		return Model{}, fmt.Errorf("invalid ui options: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = logger.For(logger.ComponentUI)
	}

	vp := board.NewViewport()
	s := &sender{}
	b, err := board.New(ctx, board.Options{
		Registry:   opts.Registry,
		Collection: opts.Collection,
		PageSize:   opts.PageSize,
		Debounce:   opts.Debounce,
		Timeout:    opts.Timeout,
		Visibility: vp,
		Send:       s.Send,
	})
	if err != nil {
		return Model{}, err
	}

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8E8E8E", Dark: "#747373"})

	ti := textinput.New()
	ti.Prompt = "Find: "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"})
	ti.Placeholder = "text or field=value"
	ti.CharLimit = 128
	ti.Cursor.SetMode(cursor.CursorStatic)

	pages := paginator.New()
	pages.Type = paginator.Dots
	pages.ActiveDot = GreenFg("•")
	pages.InactiveDot = DimBrightGrayFg("•")

	return Model{
		board:   b,
		vp:      vp,
		send:    s,
		log:     log.With("kind", b.Kind()),
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		filter:  ti,
		pages:   pages,
	}, nil
}

// Run starts the program and blocks until the user quits
func Run(m Model, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(m, opts...)
	m.send.attach(p)
	defer m.board.Close()
	_, err := p.Run()
	return err
}

func (m Model) Board() *board.Board { return m.board }

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.board.Init(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		_, rightGap, _, leftGap := AppStyle.GetPadding()
		m.width = msg.Width - leftGap - rightGap
		m.height = msg.Height
		m.help.Width = m.width

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) && (!m.filtering || msg.String() == "ctrl+c") {
			m.quitting = true
			m.board.Close()
			return m, tea.Quit
		}
		if m.filtering {
			cmds = append(cmds, m.handleFilterKey(msg))
		} else {
			cmds = append(cmds, m.handleKey(msg))
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case statusMessageTimeoutMsg:
		if int(msg) == m.statusSeq {
			m.showStatusMessage = false
		}

	case board.ErrMsg:
		s := msg.Err.Error()
		var fe *board.FetchError
		if errors.As(msg.Err, &fe) {
			s += " (r to retry)"
		}
		m.log.Warnw("board error", "error", msg.Err)
		cmds = append(cmds, m.newStatusMessage(statusMessage{errorStatusMessage, s}))

	case board.TransitionConfirmedMsg:
		reg := m.board.Registry()
		cmds = append(cmds, m.newStatusMessage(statusMessage{
			normalStatusMessage,
			fmt.Sprintf("Moved %s to %s", m.title(msg.ID), reg.Label(msg.To)),
		}))

	default:
		cmds = append(cmds, m.board.Update(msg))
	}

	m.clampCursor()
	m.syncViewport()
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		return m.filter.Focus()

	case key.Matches(msg, m.keys.Clear):
		if m.board.Filter().IsZero() {
			return nil
		}
		m.filter.Reset()
		m.cursor, m.offset = 0, 0
		return m.board.ApplyFilter(v1.Filter{})

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		m.cursor++

	case key.Matches(msg, m.keys.NextStage):
		return m.switchStage(1)

	case key.Matches(msg, m.keys.PrevStage):
		return m.switchStage(-1)

	case key.Matches(msg, m.keys.Reload):
		m.cursor, m.offset = 0, 0
		return m.board.Reload(m.board.Active())

	case key.Matches(msg, m.keys.More):
		return m.board.LoadNextPage(m.board.Active())

	case key.Matches(msg, m.keys.Move):
		return m.move(int(msg.Runes[0] - '1'))
	}
	return nil
}

func (m *Model) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Apply):
		m.filtering = false
		m.filter.Blur()
		f := parseQuery(m.filter.Value())
		if f.Equal(m.board.Filter()) {
			return nil
		}
		m.cursor, m.offset = 0, 0
		return m.board.ApplyFilter(f)

	case key.Matches(msg, m.keys.Clear):
		m.filtering = false
		m.filter.Blur()
		m.filter.Reset()
		m.cursor, m.offset = 0, 0
		return m.board.ApplyFilter(v1.Filter{})
	}

	before := m.filter.Value()
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() == before {
		return cmd
	}
	m.cursor, m.offset = 0, 0
	return tea.Batch(cmd, m.board.SetFilter(parseQuery(m.filter.Value())))
}

func (m *Model) switchStage(delta int) tea.Cmd {
	stages := m.board.Registry().Stages()
	i := 0
	for j, s := range stages {
		if s == m.board.Active() {
			i = j
			break
		}
	}
	next := stages[(i+delta+len(stages))%len(stages)]
	cmd, err := m.board.Activate(next)
	if err != nil {
		return m.newStatusMessage(statusMessage{errorStatusMessage, err.Error()})
	}
	m.cursor, m.offset = 0, 0
	return cmd
}

// move sends the selected entity to its n-th allowed next stage
func (m *Model) move(n int) tea.Cmd {
	e := m.selected()
	if e == nil {
		return nil
	}
	if m.board.Pending(e.ID) {
		return m.newStatusMessage(statusMessage{subtleStatusMessage, fmt.Sprintf("%s is still moving", e.Title())})
	}
	actions := m.board.Actions(e.ID)
	if n < 0 || n >= len(actions) {
		return m.newStatusMessage(statusMessage{subtleStatusMessage, fmt.Sprintf("No action %d for %s", n+1, e.Title())})
	}
	to := actions[n]
	cmd, err := m.board.Transition(e.ID, m.board.Active(), to, nil)
	if err != nil {
		return m.newStatusMessage(statusMessage{errorStatusMessage, err.Error()})
	}
	return tea.Batch(cmd, m.newStatusMessage(statusMessage{
		subtleStatusMessage,
		fmt.Sprintf("Moving %s to %s…", e.Title(), m.board.Registry().Label(to)),
	}))
}

func (m *Model) newStatusMessage(sm statusMessage) tea.Cmd {
	m.statusSeq++
	m.statusMessage = sm
	m.showStatusMessage = true
	seq := m.statusSeq
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg(seq)
	})
}

func (m Model) rows() int {
	if m.height == 0 {
		return defaultRows
	}
	if r := m.height - chromeHeight; r > 0 {
		return r
	}
	return 1
}

func (m *Model) clampCursor() {
	n := len(m.board.Entities(m.board.Active()))
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	rows := m.rows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	if m.offset > 0 && m.offset+rows > n {
		m.offset = max(0, n-rows)
	}
}

// syncViewport reports the rows on screen, so reaching the last loaded row
// pulls in the next page
func (m *Model) syncViewport() {
	active := m.board.Active()
	if active == "" {
		return
	}
	entities := m.board.Entities(active)
	rows := m.rows()

	m.pages.PerPage = rows
	m.pages.SetTotalPages(len(entities))
	m.pages.Page = m.cursor / rows

	if len(entities) == 0 {
		m.vp.SetVisible(string(active) + ":")
		return
	}
	end := min(m.offset+rows, len(entities))
	markers := make([]string, 0, end-m.offset)
	for _, e := range entities[m.offset:end] {
		markers = append(markers, string(active)+":"+string(e.ID))
	}
	m.vp.SetVisible(markers...)
}

func (m Model) selected() *v1.Entity {
	entities := m.board.Entities(m.board.Active())
	if m.cursor < 0 || m.cursor >= len(entities) {
		return nil
	}
	return entities[m.cursor]
}

func (m Model) title(id v1.ID) string {
	s, ok := m.board.Locate(id)
	if !ok {
		return id.String()
	}
	for _, e := range m.board.Entities(s) {
		if e.ID == id {
			return e.Title()
		}
	}
	return id.String()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	sections := []string{
		m.headerView(),
		"",
		m.filterView(),
		"",
		m.listView(),
		"",
		m.footerView(),
		m.actionsView(),
	}
	if m.showStatusMessage {
		sections = append(sections, m.statusMessage.String())
	} else {
		sections = append(sections, "")
	}
	sections = append(sections, m.help.View(m.keys))
	return AppStyle.Render(strings.Join(sections, "\n"))
}

func (m Model) headerView() string {
	reg := m.board.Registry()
	tabs := make([]string, 0, len(reg.Stages()))
	for _, s := range reg.Stages() {
		tab := fmt.Sprintf("%s %s", reg.Label(s), humanize.Comma(int64(m.board.Count(s))))
		if s == m.board.Active() {
			tabs = append(tabs, SelectedTabColor(tab))
		} else {
			tabs = append(tabs, TabColor(tab))
		}
	}
	return strings.Join(tabs, dividerBar)
}

func (m Model) filterView() string {
	if m.filtering {
		return m.filter.View()
	}
	if f := m.board.Filter(); !f.IsZero() {
		return GrayFg("Find: ") + NormalFg(m.filter.Value()) + DimNormalFg("  (esc to clear)")
	}
	return DimNormalFg("/ to filter")
}

func (m Model) listView() string {
	entities := m.board.Entities(m.board.Active())
	rows := m.rows()
	if len(entities) == 0 {
		msg := "Nothing here."
		if !m.board.Filter().IsZero() {
			msg = text.EmojiNoResults + " Nothing matches the filter."
		}
		lines := []string{GrayFg(msg)}
		return strings.Join(pad(lines, rows), "\n")
	}

	end := min(m.offset+rows, len(entities))
	lines := make([]string, 0, rows)
	for i := m.offset; i < end; i++ {
		lines = append(lines, m.itemView(entities[i], i == m.cursor))
	}
	return strings.Join(pad(lines, rows), "\n")
}

func (m Model) itemView(e *v1.Entity, focused bool) string {
	width := uint(max(m.width-4, 20))
	title := text.TruncateWithTail(e.Title(), width/2, text.Ellipsis)
	var updated string
	if t := e.Updated(); !t.IsZero() {
		updated = text.RelativeTime(t, time.Now())
	}

	if m.board.Pending(e.ID) {
		line := fmt.Sprintf("%s  %s moving", title, text.EmojiMoving)
		return "  " + ItemPending(text.TruncateWithTail(line, width, text.Ellipsis))
	}
	var line string
	if focused {
		line = focusBar + ItemPrimaryFocused(title) + "  " + ItemSecondaryFocused(updated)
	} else {
		line = "  " + ItemPrimaryUnfocused(title) + "  " + ItemSecondaryUnfocused(updated)
	}
	if tags := entityTags(e); len(tags) > 0 {
		line += "  " + text.ColoredTags(tags, " ")
	}
	return text.TruncateWithTail(line, width, text.Ellipsis)
}

func entityTags(e *v1.Entity) []string {
	for _, k := range []string{"skills", "tags"} {
		if v, ok := e.Payload[k]; ok {
			return text.Tags(v)
		}
	}
	return nil
}

func (m Model) footerView() string {
	state := m.board.View(m.board.Active())
	var s string
	switch {
	case state.Loading:
		s = m.spinner.View() + GrayFg(" Loading…")
	case state.Err != nil:
		s = RedFg("Could not load more") + DimNormalFg(" (r to retry)")
	case state.Loaded && !state.HasMore:
		s = DimNormalFg(fmt.Sprintf("All %s loaded", humanize.Comma(int64(state.Len))))
	default:
		s = DimNormalFg(fmt.Sprintf("%s loaded, scroll for more", humanize.Comma(int64(state.Len))))
	}
	if m.pages.TotalPages > 1 {
		s = m.pages.View() + "  " + s
	}
	return s
}

func (m Model) actionsView() string {
	e := m.selected()
	if e == nil {
		return ""
	}
	reg := m.board.Registry()
	actions := m.board.Actions(e.ID)
	if len(actions) == 0 {
		return ""
	}
	parts := make([]string, len(actions))
	for i, s := range actions {
		parts[i] = BrightGrayFg(fmt.Sprintf("%d", i+1)) + " " + DimNormalFg(reg.Label(s))
	}
	return strings.Join(parts, dividerBar)
}

func pad(lines []string, n int) []string {
	for len(lines) < n {
		lines = append(lines, "")
	}
	return lines
}

// parseQuery splits filter input into free text and field=value terms
func parseQuery(q string) v1.Filter {
	var (
		f     v1.Filter
		words []string
	)
	for _, w := range strings.Fields(q) {
		if k, v, ok := strings.Cut(w, "="); ok && k != "" {
			if f.Fields == nil {
				f.Fields = map[string]string{}
			}
			f.Fields[k] = v
			continue
		}
		words = append(words, w)
	}
	f.Search = strings.Join(words, " ")
	return f
}
