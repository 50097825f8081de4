package ledger

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// VIEW - Push-fed, recomputed case set
// =============================================================================

// View holds the last good snapshot of every case, ingested and recomputed.
// It is fed by DocumentStore.Subscribe; readers always get copies.
//
// A snapshot carrying an error leaves the cases untouched and is recorded as
// LastError until the next good snapshot arrives.
type View struct {
	normalizer Normalizer
	reporter   Reporter

	mu        sync.RWMutex
	cases     []Case
	lastErr   error
	updatedAt time.Time
	listeners []func()
	cancel    func()
}

func NewView(n Normalizer, r Reporter) *View {
	return &View{normalizer: n, reporter: r}
}

// Start subscribes to the store. The current snapshot is ingested before
// Start returns when the store delivers it synchronously.
func (v *View) Start(ctx context.Context, store DocumentStore) error {
	cancel, err := store.Subscribe(ctx, v.Ingest)
	if err != nil {
		return &PersistenceError{Op: "subscribe", Err: err}
	}
	v.mu.Lock()
	v.cancel = cancel
	v.mu.Unlock()
	return nil
}

// Stop ends the subscription. Safe to call on a view that never started.
func (v *View) Stop() {
	v.mu.Lock()
	cancel := v.cancel
	v.cancel = nil
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Ingest replaces the case set with snap. Listeners run after the lock is
// released.
func (v *View) Ingest(snap Snapshot) {
	if snap.Err != nil {
		v.mu.Lock()
		v.lastErr = &PersistenceError{Op: "subscribe", Err: snap.Err}
		v.mu.Unlock()
		return
	}

	cases := FromRecords(v.normalizer, snap.Records)

	v.mu.Lock()
	v.cases = cases
	v.lastErr = nil
	v.updatedAt = time.Now()
	listeners := append([]func(){}, v.listeners...)
	v.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// OnChange registers fn to run after every successful ingestion.
func (v *View) OnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// =============================================================================
// READS
// =============================================================================

// Cases returns every case, most recent first, unparsed dates last.
func (v *View) Cases() []Case {
	return SortByDate(v.snapshot())
}

// Case returns one case from the last snapshot.
func (v *View) Case(id CaseID) (Case, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, c := range v.cases {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return Case{}, false
}

// Filter returns the cases in window w as of asOf.
func (v *View) Filter(w Window, asOf time.Time) []Case {
	return v.reporter.Filter(v.snapshot(), w, asOf)
}

func (v *View) Report(w Window, asOf time.Time) Report {
	return v.reporter.Aggregate(v.snapshot(), w, asOf)
}

func (v *View) PaymentActivity(w Window, asOf time.Time) PaymentActivity {
	return v.reporter.PaymentActivity(v.snapshot(), w, asOf)
}

func (v *View) Unparsed() []Case {
	return Unparsed(v.snapshot())
}

// LastError is the error of the most recent failed snapshot, or nil.
func (v *View) LastError() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}

func (v *View) UpdatedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.updatedAt
}

func (v *View) snapshot() []Case {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Case, len(v.cases))
	for i, c := range v.cases {
		out[i] = c.Clone()
	}
	return out
}
