package v1

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ID identifies an entity within a collection
type ID string

func (id ID) String() string { return string(id) }

// Stage is a named state in an entity's lifecycle
type Stage string

func (s Stage) String() string { return string(s) }

type SyncStatus string

const (
	StatusUninitialized SyncStatus = "uninitialized"
	StatusOK            SyncStatus = "ok"
	StatusSynchronizing SyncStatus = "synchronizing"
	StatusError         SyncStatus = "error"
)

// Entity is a single record in a staged collection. Everything but the id,
// stage and timestamps is carried opaquely in Payload.
type Entity struct {
	ID       ID             `yaml:"id" validate:"required"`
	Stage    Stage          `yaml:"status" validate:"required"`
	Created  time.Time      `yaml:"created,omitempty" validate:""`
	Modified *time.Time     `yaml:"modified,omitempty" validate:""`
	Payload  map[string]any `yaml:"payload,omitempty,flow" validate:""`
}

func (e *Entity) Validate() error {
	validate := validator.New()
	return validate.Struct(*e)
}

// Updated returns the modification time, falling back to creation time
func (e *Entity) Updated() time.Time {
	if e.Modified != nil {
		return *e.Modified
	}
	return e.Created
}

// Title is a best effort human label for the entity
func (e *Entity) Title() string {
	for _, k := range []string{"title", "name", "fullName", "institutionName", "email"} {
		if v, ok := e.Payload[k]; ok {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return e.ID.String()
}

// FilterValue is the text that search filters are matched against
func (e *Entity) FilterValue() string {
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := strings.Builder{}
	b.WriteString(e.ID.String())
	for _, k := range keys {
		if s, ok := e.Payload[k].(string); ok {
			b.WriteByte(' ')
			b.WriteString(s)
		}
	}
	return b.String()
}

// Filter is the search text plus structured filters selecting a subset of a
// collection. Two filters with the same Key select the same cached pages.
type Filter struct {
	Search string            `yaml:"search,omitempty"`
	Fields map[string]string `yaml:"fields,omitempty"`
	Where  string            `yaml:"where,omitempty"`
}

func (f Filter) Key() string {
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := strings.Builder{}
	fmt.Fprintf(&b, "q=%q", strings.TrimSpace(f.Search))
	for _, k := range keys {
		fmt.Fprintf(&b, "&%s=%q", k, f.Fields[k])
	}
	if w := strings.TrimSpace(f.Where); w != "" {
		fmt.Fprintf(&b, "&where=%q", w)
	}
	return b.String()
}

func (f Filter) Equal(o Filter) bool { return f.Key() == o.Key() }

func (f Filter) IsZero() bool { return f.Equal(Filter{}) }

type ByUpdated []*Entity

func (p ByUpdated) Len() int      { return len(p) }
func (p ByUpdated) Swap(i, j int) { p[i], p[j] = p[j], p[i] }
func (p ByUpdated) Less(i, j int) bool {
	ti, tj := p[i].Updated(), p[j].Updated()
	if ti.Equal(tj) {
		return p[i].ID < p[j].ID
	}
	// most recent first
	return ti.After(tj)
}
