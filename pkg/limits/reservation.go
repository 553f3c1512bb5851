package limits

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agentceli/warden/pkg/alerts"
)

// Reserve checks and claims in one step: on success it consumes one RPM slot
// of source and holds cost as pending, so every later check sees it. The
// reservation must be settled with Commit or Release; unsettled reservations
// are released by PruneOld once their TTL passes.
func (g *Governor) Reserve(source string, cost decimal.Decimal) (*Reservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	_, err := g.checkLocked(source, cost, now)
	g.recordDecision(source, err)
	if err != nil {
		return nil, err
	}

	r := &Reservation{
		ID:        uuid.NewString(),
		Source:    source,
		Cost:      cost,
		At:        now,
		ExpiresAt: now.Add(g.cfg.ReservationTTL),
	}
	if st, ok := g.sources[source]; ok {
		st.window.Add(now)
		st.reserved++
		st.pending = st.pending.Add(cost)
	}
	g.reservations[r.ID] = r
	g.updateGaugesLocked()

	out := *r
	return &out, nil
}

// Commit settles a reservation as a completed call. The slot claimed by
// Reserve is the call's RPM slot; cost reaches the ledger only if success.
//
// A reservation released by PruneOld can still be committed: the call was
// made, so it takes an RPM slot again and its cost is charged.
func (g *Governor) Commit(id string, success bool) error {
	g.mu.Lock()
	now := g.now()
	var pending []alerts.Alert
	if r, ok := g.reservations[id]; ok {
		g.dropLocked(id, r)
		pending = g.recordLocked(r.Source, r.Cost, success, now, false)
	} else if r, ok := g.expired[id]; ok {
		delete(g.expired, id)
		g.logger.Warn("late commit of expired reservation", "id", id, "source", r.Source, "cost", r.Cost.String(), "success", success)
		pending = g.recordLocked(r.Source, r.Cost, success, now, true)
	} else {
		g.mu.Unlock()
		return fmt.Errorf("commit %s: %w", id, ErrUnknownReservation)
	}
	g.updateGaugesLocked()
	g.mu.Unlock()

	g.emit(pending)
	return nil
}

// Release undoes a reservation whose call was never made: the RPM slot is
// returned and the pending cost dropped.
func (g *Governor) Release(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.reservations[id]
	if !ok {
		if _, late := g.expired[id]; late {
			// PruneOld already gave the slot back.
			delete(g.expired, id)
			return nil
		}
		return fmt.Errorf("release %s: %w", id, ErrUnknownReservation)
	}
	g.releaseLocked(id, r)
	g.updateGaugesLocked()
	return nil
}

// Reservations returns the outstanding reservations, oldest first.
func (g *Governor) Reservations() []Reservation {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Reservation, 0, len(g.reservations))
	for _, r := range g.reservations {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// releaseLocked drops r and gives back its RPM slot. Caller must hold g.mu.
func (g *Governor) releaseLocked(id string, r *Reservation) {
	g.dropLocked(id, r)
	if st, ok := g.sources[r.Source]; ok {
		st.window.Remove(r.At)
	}
}

// dropLocked removes r and its pending cost. Caller must hold g.mu.
func (g *Governor) dropLocked(id string, r *Reservation) {
	delete(g.reservations, id)
	if st, ok := g.sources[r.Source]; ok {
		st.reserved--
		st.pending = st.pending.Sub(r.Cost)
	}
}

// Do reserves a call to source, runs fn and commits the outcome. fn's call
// counts as successful when it returns nil. A rejected reservation is
// returned as a *LimitError without calling fn. A panic in fn is recorded as
// a failed call and re-raised.
func (g *Governor) Do(ctx context.Context, source string, cost decimal.Decimal, fn func(ctx context.Context) error) (err error) {
	r, err := g.Reserve(source, cost)
	if err != nil {
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = g.Release(r.ID)
		return ctxErr
	}

	defer func() {
		if p := recover(); p != nil {
			_ = g.Commit(r.ID, false)
			panic(p)
		}
	}()

	err = fn(ctx)
	if commitErr := g.Commit(r.ID, err == nil); commitErr != nil {
		// Forgotten after a full retention window; charge the call directly.
		g.logger.Warn("reservation unknown at commit, recording outcome", "id", r.ID, "source", source)
		g.RecordOutcome(source, cost, err == nil)
	}
	return err
}
