package store

import (
	"context"
	"sync"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// FANOUT - Snapshot delivery to subscribers
// =============================================================================

// Fanout delivers full snapshots to subscribers, one notification at a time.
// Each Notify reads the snapshot while holding the delivery lock, so the last
// delivery a subscriber sees always reflects the latest committed write.
//
// Callbacks run on the writer's goroutine and must not write to the store.
type Fanout struct {
	deliver sync.Mutex

	mu   sync.Mutex
	next int
	subs map[int]func(ledger.Snapshot)
}

// Add registers fn, delivers current() to it immediately, and returns a
// cancel func. Cancelling ctx also removes the subscriber.
func (f *Fanout) Add(ctx context.Context, fn func(ledger.Snapshot), current func() ledger.Snapshot) func() {
	f.deliver.Lock()
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]func(ledger.Snapshot))
	}
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()

	fn(current())
	f.deliver.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
	if ctx != nil {
		stop := context.AfterFunc(ctx, cancel)
		return func() {
			stop()
			cancel()
		}
	}
	return cancel
}

// Notify sends current() to every subscriber. current is not called when
// nobody is subscribed.
func (f *Fanout) Notify(current func() ledger.Snapshot) {
	f.deliver.Lock()
	defer f.deliver.Unlock()

	f.mu.Lock()
	subs := make([]func(ledger.Snapshot), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	snap := current()
	for _, fn := range subs {
		fn(snap)
	}
}

// Len reports the number of active subscribers.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
