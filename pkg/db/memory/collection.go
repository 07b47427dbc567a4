// Package memory is an in-memory staged collection. It is the reference
// backend behind the server and the fixture loader, and is handy in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/stage"
	"github.com/byxorna/stageboard/pkg/text"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tiendc/go-deepcopy"
)

var (
	ErrBadRequest = fmt.Errorf("bad request")
)

type Collection struct {
	sync.RWMutex

	registry *stage.Registry
	entities map[v1.ID]*v1.Entity
	programs map[string]*vm.Program

	// Now is the clock used to stamp modifications
	Now func() time.Time
}

var _ db.Collection = (*Collection)(nil)
var _ db.Counter = (*Collection)(nil)

func New(registry *stage.Registry, entities ...*v1.Entity) (*Collection, error) {
	c := Collection{
		registry: registry,
		entities: map[v1.ID]*v1.Entity{},
		programs: map[string]*vm.Program{},
		Now:      time.Now,
	}
	if err := c.Replace(entities); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Collection) Registry() *stage.Registry { return c.registry }

// Replace swaps the whole collection contents
func (c *Collection) Replace(entities []*v1.Entity) error {
	next := make(map[v1.ID]*v1.Entity, len(entities))
	for _, e := range entities {
		if err := c.check(e); err != nil {
			return err
		}
		if _, dup := next[e.ID]; dup {
			return fmt.Errorf("duplicate entity %s", e.ID)
		}
		next[e.ID] = e
	}

	c.Lock()
	defer c.Unlock()
	c.entities = next
	return nil
}

// Put inserts or replaces one entity
func (c *Collection) Put(e *v1.Entity) error {
	if err := c.check(e); err != nil {
		return err
	}
	c.Lock()
	defer c.Unlock()
	c.entities[e.ID] = e
	return nil
}

func (c *Collection) Get(id v1.ID) (*v1.Entity, error) {
	c.RLock()
	defer c.RUnlock()
	e, ok := c.entities[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, db.ErrNoEntryFound)
	}
	return clone(e)
}

// All returns copies of every entity, in no particular order
func (c *Collection) All() []*v1.Entity {
	c.RLock()
	defer c.RUnlock()
	out := make([]*v1.Entity, 0, len(c.entities))
	for _, e := range c.entities {
		if x, err := clone(e); err == nil {
			out = append(out, x)
		}
	}
	return out
}

func (c *Collection) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.entities)
}

func (c *Collection) check(e *v1.Entity) error {
	if e == nil {
		return fmt.Errorf("nil entity")
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entity %s: %w", e.ID, err)
	}
	if !c.registry.Has(e.Stage) {
		return fmt.Errorf("entity %s has stage %s: %w", e.ID, e.Stage, db.ErrStageNotRecognized)
	}
	return nil
}

func (c *Collection) List(ctx context.Context, req db.ListRequest) (*db.ListResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.registry.Has(req.Stage) {
		return nil, fmt.Errorf("%s: %w", req.Stage, db.ErrStageNotRecognized)
	}
	if req.Page < 1 || req.Limit < 1 {
		return nil, fmt.Errorf("page and limit must be positive: %w", ErrBadRequest)
	}

	c.Lock()
	defer c.Unlock()

	matching, err := c.matching(req.Filter)
	if err != nil {
		return nil, err
	}

	counts := map[v1.Stage]int{}
	for _, s := range c.registry.Stages() {
		counts[s] = 0
	}
	var inStage []*v1.Entity
	for _, e := range matching {
		counts[e.Stage]++
		if e.Stage == req.Stage {
			inStage = append(inStage, e)
		}
	}

	start := (req.Page - 1) * req.Limit
	end := start + req.Limit
	if start > len(inStage) {
		start = len(inStage)
	}
	if end > len(inStage) {
		end = len(inStage)
	}

	data := make([]*v1.Entity, 0, end-start)
	for _, e := range inStage[start:end] {
		x, err := clone(e)
		if err != nil {
			return nil, err
		}
		data = append(data, x)
	}
	hasMore := end < len(inStage)

	return &db.ListResponse{Data: data, Counts: counts, HasMore: &hasMore}, nil
}

func (c *Collection) Counts(ctx context.Context, filter v1.Filter) (map[v1.Stage]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.Lock()
	defer c.Unlock()

	matching, err := c.matching(filter)
	if err != nil {
		return nil, err
	}
	counts := map[v1.Stage]int{}
	for _, s := range c.registry.Stages() {
		counts[s] = 0
	}
	for _, e := range matching {
		counts[e.Stage]++
	}
	return counts, nil
}

func (c *Collection) Transition(ctx context.Context, req db.TransitionRequest) (*db.TransitionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.Lock()
	defer c.Unlock()

	e, ok := c.entities[req.ID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", req.ID, db.ErrNoEntryFound)
	}
	if !c.registry.IsTransitionAllowed(e.Stage, req.Status) {
		return nil, fmt.Errorf("%s cannot move from %s to %s: %w", req.ID, e.Stage, req.Status, db.ErrInvalidTransition)
	}

	now := c.Now()
	e.Stage = req.Status
	e.Modified = &now
	if len(req.Metadata) > 0 && e.Payload == nil {
		e.Payload = map[string]any{}
	}
	for k, v := range req.Metadata {
		e.Payload[k] = v
	}

	x, err := clone(e)
	if err != nil {
		return nil, err
	}
	return &db.TransitionResponse{Entity: x}, nil
}

// matching returns the entities selected by filter, most recently updated
// first. Callers hold the lock.
func (c *Collection) matching(filter v1.Filter) ([]*v1.Entity, error) {
	var program *vm.Program
	if where := strings.TrimSpace(filter.Where); where != "" {
		p, err := c.compile(where)
		if err != nil {
			return nil, err
		}
		program = p
	}

	all := make([]*v1.Entity, 0, len(c.entities))
	for _, e := range c.entities {
		if !matchesFields(e, filter.Fields) {
			continue
		}
		if program != nil {
			ok, err := evaluate(program, e)
			if err != nil {
				return nil, fmt.Errorf("evaluating %q on %s: %w", filter.Where, e.ID, err)
			}
			if !ok {
				continue
			}
		}
		all = append(all, e)
	}
	sort.Sort(v1.ByUpdated(all))

	if strings.TrimSpace(filter.Search) == "" {
		return all, nil
	}

	haystacks := make([]string, len(all))
	for i, e := range all {
		haystacks[i] = e.FilterValue()
	}
	idx := text.Match(filter.Search, haystacks)
	out := make([]*v1.Entity, len(idx))
	for i, j := range idx {
		out[i] = all[j]
	}
	return out, nil
}

func (c *Collection) compile(where string) (*vm.Program, error) {
	if p, ok := c.programs[where]; ok {
		return p, nil
	}
	p, err := expr.Compile(where, expr.Env(map[string]any{}), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid where expression %q: %v: %w", where, err, ErrBadRequest)
	}
	c.programs[where] = p
	return p, nil
}

func evaluate(p *vm.Program, e *v1.Entity) (bool, error) {
	env := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		env[k] = v
	}
	env["id"] = string(e.ID)
	env["status"] = string(e.Stage)
	env["created"] = e.Created
	out, err := expr.Run(p, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

func matchesFields(e *v1.Entity, fields map[string]string) bool {
	for k, want := range fields {
		if want == "" {
			continue
		}
		var got string
		switch k {
		case "id":
			got = string(e.ID)
		case "status":
			got = string(e.Stage)
		default:
			v, ok := e.Payload[k]
			if !ok {
				return false
			}
			got = fmt.Sprint(v)
		}
		if !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

func clone(e *v1.Entity) (*v1.Entity, error) {
	x := v1.Entity{ID: e.ID, Stage: e.Stage, Created: e.Created}
	if e.Modified != nil {
		m := *e.Modified
		x.Modified = &m
	}
	if e.Payload != nil {
		if err := deepcopy.Copy(&x.Payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("unable to copy %s: %w", e.ID, err)
		}
	}
	return &x, nil
}
