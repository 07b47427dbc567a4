package board

import (
	"context"
	"fmt"
	"time"

	"github.com/byxorna/stageboard/pkg/db"
	"github.com/byxorna/stageboard/pkg/metrics"
	"github.com/byxorna/stageboard/pkg/stage"
	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"
)

// PendingMutation is an applied but unconfirmed stage move
type PendingMutation struct {
	ID        v1.ID
	From, To  v1.Stage
	RequestID uuid.UUID
	Started   time.Time

	before        placement
	sourceGen     uint64
	filterEpoch   uint64
	countsEpoch   uint64
	countsVersion uint64

	// listed is the server's copy seen by a view reloaded while the move
	// was in flight, ranked where that listing put it
	listed    *placement
	listedGen uint64
}

// Transition optimistically moves entity id to stage to and returns the
// command confirming the move with the server. from is advisory: the entity
// is moved from wherever it currently is, so a stale caller cannot corrupt
// another view.
func (b *Board) Transition(id v1.ID, from, to v1.Stage, metadata map[string]any) (tea.Cmd, error) {
	if _, ok := b.pending[id]; ok {
		metrics.TransitionRejected(b.kind, "pending")
		return nil, fmt.Errorf("%s: %w", id, ErrTransitionPending)
	}

	p, ok := b.store.get(id)
	if !ok {
		metrics.TransitionRejected(b.kind, "not_loaded")
		return nil, fmt.Errorf("%s: %w", id, ErrEntityNotLoaded)
	}
	actual := p.stage
	if from != "" && from != actual {
		b.log.Debugw("caller stage is stale", "id", id, "claimed", from, "actual", actual)
	}
	if !b.registry.IsTransitionAllowed(actual, to) {
		metrics.TransitionRejected(b.kind, "invalid")
		return nil, &InvalidTransitionError{ID: id, From: actual, To: to}
	}

	before, err := snapshotEntity(p.entity)
	if err != nil {
		return nil, fmt.Errorf("unable to snapshot %s: %w", id, err)
	}

	pm := &PendingMutation{
		ID:            id,
		From:          actual,
		To:            to,
		RequestID:     uuid.New(),
		Started:       time.Now(),
		before:        placement{entity: before, stage: actual, rank: p.rank},
		filterEpoch:   b.epoch,
		countsEpoch:   b.counts.Epoch(),
		countsVersion: b.counts.Version(),
	}
	if sv, ok := b.views[actual]; ok {
		pm.sourceGen = sv.gen
	}

	moved := p.entity
	b.store.remove(id)
	b.placeInto(moved, to)
	b.counts.Shift(actual, to)
	b.pending[id] = pm

	b.log.Infow("moving entity", "id", id, "from", actual, "to", to, "request", pm.RequestID)

	req := db.TransitionRequest{ID: id, Status: to, Metadata: metadata}
	msg := transitionDoneMsg{kind: b.kind, id: id, requestID: pm.RequestID}
	ctx, collection, timeout := b.ctx, b.collection, b.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		msg.resp, msg.err = collection.Transition(ctx, req)
		return msg
	}, nil
}

// placeInto inserts e into a loaded view of stage following the stage's
// ordering. It reports false when the view cannot show it yet; pagination
// will deliver it later.
func (b *Board) placeInto(e *v1.Entity, to v1.Stage) bool {
	tv, ok := b.views[to]
	if !ok || !tv.loaded {
		return false
	}
	switch b.registry.Ordering(to) {
	case stage.OrderAppend:
		if tv.hasMore {
			return false
		}
		b.store.appendTo(to, e)
	default:
		b.store.prependTo(to, e)
	}
	return true
}

func (b *Board) handleTransition(msg transitionDoneMsg) (tea.Cmd, error) {
	pm, ok := b.pending[msg.id]
	if !ok || pm.RequestID != msg.requestID {
		metrics.StaleDiscarded(b.kind, "transition")
		return nil, nil
	}
	delete(b.pending, msg.id)

	if msg.err != nil {
		b.rollback(pm)
		metrics.TransitionFinished(b.kind, string(pm.To), metrics.ResultError)
		b.log.Warnw("move rejected, rolled back", "id", pm.ID, "from", pm.From, "to", pm.To, "error", msg.err)
		return nil, &TransitionError{ID: pm.ID, From: pm.From, To: pm.To, Err: msg.err}
	}

	metrics.TransitionFinished(b.kind, string(pm.To), metrics.ResultOK)
	b.confirm(pm, msg.resp)
	b.log.Infow("move confirmed", "id", pm.ID, "to", pm.To, "took", time.Since(pm.Started))
	return msgCmd(TransitionConfirmedMsg{Kind: b.kind, ID: pm.ID, From: pm.From, To: pm.To}), nil
}

func (b *Board) confirm(pm *PendingMutation, resp *db.TransitionResponse) {
	var server *v1.Entity
	if resp != nil {
		server = resp.Entity
		if resp.Counts != nil {
			b.counts.Observe(pm.countsEpoch, resp.Counts)
		}
	}

	target := pm.To
	if server != nil {
		if server.ID == "" {
			server.ID = pm.ID
		}
		if server.ID != pm.ID {
			b.log.Warnw("server confirmed a different entity", "expected", pm.ID, "got", server.ID)
			server = nil
		} else if server.Stage != "" && server.Stage != pm.To && b.registry.Has(server.Stage) {
			b.log.Warnw("server placed entity in another stage", "id", pm.ID, "requested", pm.To, "actual", server.Stage)
			target = server.Stage
		}
	}

	p, placed := b.store.get(pm.ID)
	switch {
	case placed && p.stage == target:
		if server != nil {
			server.Stage = target
			p.entity = server
		}
	case placed:
		e := p.entity
		if server != nil {
			e = server
		}
		b.store.remove(pm.ID)
		b.placeInto(e, target)
	case pm.relisted(b, target):
		e := pm.listed.entity
		if server != nil {
			e = server
		}
		b.store.put(e, target, pm.listed.rank)
	case b.epoch == pm.filterEpoch:
		// the target view had nothing to show yet, or skipped the entity
		// while the move was in flight
		e := server
		if e == nil {
			e = pm.before.entity
		}
		b.placeInto(e, target)
	}
}

// rollback restores the pre-move placement. When the source view was reset
// in the meantime its old cache no longer exists, so the entity only comes
// back if the fresh listing returned it.
func (b *Board) rollback(pm *PendingMutation) {
	b.store.remove(pm.ID)
	switch sv, ok := b.views[pm.From]; {
	case ok && sv.gen == pm.sourceGen:
		b.store.put(pm.before.entity, pm.before.stage, pm.before.rank)
	case pm.listed != nil && pm.relisted(b, pm.listed.stage):
		b.store.put(pm.listed.entity, pm.listed.stage, pm.listed.rank)
	}
	if b.counts.Epoch() == pm.countsEpoch && b.counts.Version() == pm.countsVersion {
		b.counts.Shift(pm.To, pm.From)
	}
}

// relisted reports whether the current listing of s returned the entity
// while its move was pending
func (pm *PendingMutation) relisted(b *Board, s v1.Stage) bool {
	if pm.listed == nil || pm.listed.stage != s {
		return false
	}
	v, ok := b.views[s]
	return ok && v.gen == pm.listedGen
}

// snapshotEntity deep copies e so later in-place updates cannot leak into
// the rollback state
func snapshotEntity(e *v1.Entity) (*v1.Entity, error) {
	x := v1.Entity{ID: e.ID, Stage: e.Stage, Created: e.Created}
	if e.Modified != nil {
		m := *e.Modified
		x.Modified = &m
	}
	if e.Payload != nil {
		if err := deepcopy.Copy(&x.Payload, &e.Payload); err != nil {
			return nil, err
		}
	}
	return &x, nil
}
