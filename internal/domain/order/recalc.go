package order

import (
	"context"
	"sync"
)

// Recalculator re-runs item adjustment recalculation over every member of an
// order and folds the results into the order totals.
//
// Resync runs under a per-order exclusive lock: two concurrent resyncs of
// the same order must never interleave, since best-promotion selection
// flips loser eligibility and is not idempotent under interleaving. The
// storage layer additionally serializes cross-process writers with a
// database advisory lock.
type Recalculator struct {
	locks keyedMutex
}

// NewRecalculator creates a Recalculator.
func NewRecalculator() *Recalculator {
	return &Recalculator{}
}

// Resync recalculates every line item, every shipment and the order-level
// adjustments, then folds the member totals into the order sums. A failure
// anywhere rolls the whole order back to its pre-call state; callers never
// observe partial sums.
func (r *Recalculator) Resync(ctx context.Context, o *Order) error {
	unlock := r.locks.lock(o.ID)
	defer unlock()

	restore := o.Snapshot()

	for _, member := range o.Adjustables() {
		if err := NewItemAdjustments(member).Update(ctx); err != nil {
			restore()
			return err
		}
	}

	o.foldTotals()
	return nil
}

// keyedMutex serializes critical sections per string key. Entries are
// reference-counted and removed once the last holder releases, so the map
// does not grow with the number of orders ever seen.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*lockEntry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
