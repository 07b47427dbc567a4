package board

import (
	"github.com/byxorna/stageboard/pkg/db"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

// pageLoadedMsg is the continuation of a page listing
type pageLoadedMsg struct {
	kind  string
	stage v1.Stage
	gen   uint64
	req   db.ListRequest
	resp  *db.ListResponse
	err   error
}

// countsLoadedMsg is the continuation of a count refresh
type countsLoadedMsg struct {
	kind   string
	epoch  uint64
	counts map[v1.Stage]int
	err    error
}

// transitionDoneMsg is the continuation of a stage move request
type transitionDoneMsg struct {
	kind      string
	id        v1.ID
	requestID uuid.UUID
	resp      *db.TransitionResponse
	err       error
}

// FilterSettledMsg is emitted when the debounce window of the last filter
// change expires without another change
type FilterSettledMsg struct {
	Kind   string
	Filter v1.Filter
	seq    uint64
}

// SentinelVisibleMsg reports that the marker behind the last loaded item of
// a view became visible
type SentinelVisibleMsg struct {
	Kind   string
	Marker string
}

// ErrMsg surfaces an error the user should see
type ErrMsg struct {
	Kind string
	Err  error
}

func (e ErrMsg) Error() string { return e.Err.Error() }

// TransitionConfirmedMsg is emitted once the server accepted a move
type TransitionConfirmedMsg struct {
	Kind     string
	ID       v1.ID
	From, To v1.Stage
}

func errCmd(kind string, err error) tea.Cmd {
	return func() tea.Msg { return ErrMsg{Kind: kind, Err: err} }
}

func msgCmd(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}
