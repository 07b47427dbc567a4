// Package stage describes the legal stages of an entity kind and the
// transitions allowed between them.
package stage

import (
	"errors"
	"fmt"

	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	"github.com/looplab/fsm"
)

// Ordering is how an entity is placed into a stage's loaded list when it is
// moved there locally.
type Ordering string

const (
	// OrderPrepend places moved entities first (most recent first)
	OrderPrepend Ordering = "prepend"
	// OrderAppend places moved entities last, once the list is fully loaded
	OrderAppend Ordering = "append"
)

var (
	ErrUnknownStage = errors.New("unknown stage")
)

// Definition declares one stage and the stages it may move to directly
type Definition struct {
	Name     v1.Stage
	Label    string
	Next     []v1.Stage
	Ordering Ordering
}

// Registry is the static stage graph for one entity kind. It is immutable
// after New and safe for concurrent use.
type Registry struct {
	kind     string
	defs     []Definition
	index    map[v1.Stage]int
	machines map[v1.Stage]*fsm.FSM
}

func New(kind string, defs ...Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("kind %s declares no stages", kind)
	}

	r := Registry{
		kind:     kind,
		defs:     make([]Definition, len(defs)),
		index:    make(map[v1.Stage]int, len(defs)),
		machines: make(map[v1.Stage]*fsm.FSM, len(defs)),
	}

	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("kind %s: stage %d has no name", kind, i)
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, fmt.Errorf("kind %s: stage %s declared twice", kind, d.Name)
		}
		if d.Ordering == "" {
			d.Ordering = OrderPrepend
		}
		if d.Ordering != OrderPrepend && d.Ordering != OrderAppend {
			return nil, fmt.Errorf("kind %s: stage %s has unknown ordering %q", kind, d.Name, d.Ordering)
		}
		d.Next = append([]v1.Stage(nil), d.Next...)
		r.index[d.Name] = i
		r.defs[i] = d
	}

	// one event per target stage, reachable from every stage that lists it
	sources := map[v1.Stage][]string{}
	for _, d := range r.defs {
		seen := map[v1.Stage]bool{}
		for _, n := range d.Next {
			if _, ok := r.index[n]; !ok {
				return nil, fmt.Errorf("kind %s: stage %s moves to undeclared stage %s: %w", kind, d.Name, n, ErrUnknownStage)
			}
			if seen[n] {
				return nil, fmt.Errorf("kind %s: stage %s lists %s twice", kind, d.Name, n)
			}
			seen[n] = true
			sources[n] = append(sources[n], string(d.Name))
		}
	}

	events := fsm.Events{}
	for _, d := range r.defs {
		if src, ok := sources[d.Name]; ok {
			events = append(events, fsm.EventDesc{Name: string(d.Name), Src: src, Dst: string(d.Name)})
		}
	}

	for _, d := range r.defs {
		r.machines[d.Name] = fsm.NewFSM(string(d.Name), events, fsm.Callbacks{})
	}

	return &r, nil
}

func (r *Registry) Kind() string { return r.kind }

// Stages returns every stage in declaration order
func (r *Registry) Stages() []v1.Stage {
	out := make([]v1.Stage, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.Name
	}
	return out
}

// Initial is the first declared stage
func (r *Registry) Initial() v1.Stage { return r.defs[0].Name }

func (r *Registry) Has(s v1.Stage) bool {
	_, ok := r.index[s]
	return ok
}

func (r *Registry) Definition(s v1.Stage) (Definition, bool) {
	i, ok := r.index[s]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

func (r *Registry) Label(s v1.Stage) string {
	if d, ok := r.Definition(s); ok && d.Label != "" {
		return d.Label
	}
	return string(s)
}

func (r *Registry) Ordering(s v1.Stage) Ordering {
	if d, ok := r.Definition(s); ok {
		return d.Ordering
	}
	return OrderPrepend
}

// IsTransitionAllowed reports whether target is directly reachable from s
func (r *Registry) IsTransitionAllowed(s, target v1.Stage) bool {
	m, ok := r.machines[s]
	if !ok || !r.Has(target) {
		return false
	}
	return m.Can(string(target))
}

// NextStages lists the stages reachable from s, in declaration order
func (r *Registry) NextStages(s v1.Stage) []v1.Stage {
	d, ok := r.Definition(s)
	if !ok {
		return nil
	}
	out := make([]v1.Stage, 0, len(d.Next))
	for _, n := range d.Next {
		if r.IsTransitionAllowed(s, n) {
			out = append(out, n)
		}
	}
	return out
}

// Sources lists every stage target can be reached from
func (r *Registry) Sources(target v1.Stage) []v1.Stage {
	var out []v1.Stage
	for _, d := range r.defs {
		if r.IsTransitionAllowed(d.Name, target) {
			out = append(out, d.Name)
		}
	}
	return out
}

// IsTerminal is true for stages with no outgoing transitions
func (r *Registry) IsTerminal(s v1.Stage) bool {
	return r.Has(s) && len(r.NextStages(s)) == 0
}
