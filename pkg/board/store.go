package board

import (
	"sort"

	v1 "github.com/byxorna/stageboard/pkg/types/v1"
)

// placement is where an entity currently sits locally. Rank orders members
// within a stage; it is only ever compared between entries of one stage.
type placement struct {
	entity *v1.Entity
	stage  v1.Stage
	rank   int64
}

// store is the single keyed cache behind every view of a board. Because an
// id maps to exactly one placement, an entity can never be in two views.
type store struct {
	entries map[v1.ID]*placement
	// ranks grow downward for prepends and upward for appends
	low, high int64
}

func newStore() *store {
	return &store{entries: map[v1.ID]*placement{}}
}

func (s *store) get(id v1.ID) (*placement, bool) {
	p, ok := s.entries[id]
	return p, ok
}

func (s *store) appendTo(stage v1.Stage, e *v1.Entity) {
	s.high++
	s.put(e, stage, s.high)
}

func (s *store) prependTo(stage v1.Stage, e *v1.Entity) {
	s.low--
	s.put(e, stage, s.low)
}

func (s *store) put(e *v1.Entity, stage v1.Stage, rank int64) {
	e.Stage = stage
	s.entries[e.ID] = &placement{entity: e, stage: stage, rank: rank}
}

func (s *store) remove(id v1.ID) {
	delete(s.entries, id)
}

// dropStage removes every member of stage
func (s *store) dropStage(stage v1.Stage) {
	for id, p := range s.entries {
		if p.stage == stage {
			delete(s.entries, id)
		}
	}
}

func (s *store) clear() {
	s.entries = map[v1.ID]*placement{}
	s.low, s.high = 0, 0
}

// members derives a stage's ordered list from the keyed map
func (s *store) members(stage v1.Stage) []*placement {
	out := []*placement{}
	for _, p := range s.entries {
		if p.stage == stage {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rank < out[j].rank })
	return out
}

func (s *store) count(stage v1.Stage) int {
	n := 0
	for _, p := range s.entries {
		if p.stage == stage {
			n++
		}
	}
	return n
}
