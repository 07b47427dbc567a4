package board

import (
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
)

// Counts reconciles authoritative per-stage totals from the server with
// optimistic adjustments made by local moves. Authoritative numbers are only
// valid for the filter epoch they were fetched under.
type Counts struct {
	epoch         uint64
	version       uint64
	authoritative map[v1.Stage]int
	delta         map[v1.Stage]int
}

func NewCounts() *Counts {
	return &Counts{authoritative: map[v1.Stage]int{}, delta: map[v1.Stage]int{}}
}

// Epoch identifies the filter context the counts belong to
func (c *Counts) Epoch() uint64 { return c.epoch }

// Version changes whenever authoritative counts are observed
func (c *Counts) Version() uint64 { return c.version }

// Invalidate forgets everything; called on a filter context switch
func (c *Counts) Invalidate() {
	c.epoch++
	c.version++
	c.authoritative = map[v1.Stage]int{}
	c.delta = map[v1.Stage]int{}
}

// Observe records authoritative counts fetched under epoch. Counts from an
// older epoch are dropped. Observed stages lose their optimistic delta.
func (c *Counts) Observe(epoch uint64, counts map[v1.Stage]int) bool {
	if epoch != c.epoch {
		return false
	}
	for s, n := range counts {
		c.authoritative[s] = n
		delete(c.delta, s)
	}
	c.version++
	return true
}

// Shift moves one unit from one stage to another ahead of confirmation
func (c *Counts) Shift(from, to v1.Stage) {
	c.delta[from]--
	c.delta[to]++
}

// Known reports whether an authoritative count exists for stage
func (c *Counts) Known(stage v1.Stage) bool {
	_, ok := c.authoritative[stage]
	return ok
}

// Get returns the count to display for stage. loaded is the number of
// locally cached members, used until the server has reported a count.
func (c *Counts) Get(stage v1.Stage, loaded int) int {
	n, ok := c.authoritative[stage]
	if !ok {
		return loaded
	}
	n += c.delta[stage]
	if n < 0 {
		return 0
	}
	return n
}
