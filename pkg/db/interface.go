package db

import (
	"context"
	"fmt"

	v1 "github.com/byxorna/stageboard/pkg/types/v1"
)

var (
	ErrNoEntryFound       = fmt.Errorf("no entry found")
	ErrInvalidTransition  = fmt.Errorf("transition not allowed")
	ErrStageNotRecognized = fmt.Errorf("stage not recognized")
)

// ListRequest asks for one page of a stage under a filter context. Pages
// are 1-indexed.
type ListRequest struct {
	Stage  v1.Stage
	Page   int
	Limit  int
	Filter v1.Filter
}

// ListResponse is one page of entities. Counts and HasMore are optional; a
// nil HasMore means the caller infers it from the page length.
type ListResponse struct {
	Data    []*v1.Entity     `json:"data"`
	Counts  map[v1.Stage]int `json:"counts,omitempty"`
	HasMore *bool            `json:"hasMore,omitempty"`
}

type TransitionRequest struct {
	ID       v1.ID
	Status   v1.Stage
	Metadata map[string]any
}

// TransitionResponse carries the updated entity and, when the backend knows
// them, fresh per-stage counts.
type TransitionResponse struct {
	Entity *v1.Entity
	Counts map[v1.Stage]int
}

// Collection is the interface any backend satisfies to serve a staged
// collection of one entity kind
type Collection interface {
	List(context.Context, ListRequest) (*ListResponse, error)
	Transition(context.Context, TransitionRequest) (*TransitionResponse, error)
}

// Counter is implemented by collections that can report per-stage counts
// without listing a page
type Counter interface {
	Counts(context.Context, v1.Filter) (map[v1.Stage]int, error)
}
