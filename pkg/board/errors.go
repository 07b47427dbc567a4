package board

import (
	"errors"
	"fmt"

	"github.com/byxorna/stageboard/pkg/stage"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
)

var (
	// ErrTransitionPending rejects a second move of an entity whose previous
	// move has not been confirmed or rolled back yet
	ErrTransitionPending = errors.New("a transition is already pending for this entity")
	// ErrEntityNotLoaded is returned when a transition names an entity that is
	// not in any loaded view
	ErrEntityNotLoaded = errors.New("entity is not loaded in any view")
	ErrUnknownStage    = stage.ErrUnknownStage
)

// Retryable is implemented by errors the caller may act on by re-invoking
// the operation that failed
type Retryable interface {
	Retryable() bool
}

// FetchError is a failed page listing. The view's cache is untouched.
type FetchError struct {
	Kind  string
	Stage v1.Stage
	Page  int
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("unable to load page %d of %s %s: %v", e.Page, e.Kind, e.Stage, e.Err)
}
func (e *FetchError) Unwrap() error   { return e.Err }
func (e *FetchError) Retryable() bool { return true }

// TransitionError is a failed stage move. By the time it is surfaced the
// optimistic move has been rolled back.
type TransitionError struct {
	ID       v1.ID
	From, To v1.Stage
	Err      error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("unable to move %s from %s to %s: %v", e.ID, e.From, e.To, e.Err)
}
func (e *TransitionError) Unwrap() error   { return e.Err }
func (e *TransitionError) Retryable() bool { return true }

// InvalidTransitionError means the caller asked for a move the stage
// registry does not allow. No request was made.
type InvalidTransitionError struct {
	ID       v1.ID
	From, To v1.Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.ID, e.From, e.To)
}

// IsRetryable reports whether err (or anything it wraps) is retryable
func IsRetryable(err error) bool {
	var r Retryable
	return errors.As(err, &r) && r.Retryable()
}
