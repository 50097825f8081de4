/*
store.go - Persistence boundary for case documents

PURPOSE:
  Defines the interface between the ledger and the realtime document store.
  The ledger never holds its own copy as a source of truth: the store is
  authoritative, pushes full snapshots on every change, and accepts
  per-document partial updates.

KEY INTERFACES:
  DocumentStore: Subscribe / Create / Update / Get / List
  ReportStore:   Saved report snapshots (optional capability)

PUSH MODEL:
  Subscribe delivers the current snapshot immediately, then one full
  snapshot after every committed write. A feed failure is delivered as a
  Snapshot with Err set; subscribers keep their last good state.

MERGE SEMANTICS:
  Update merges the supplied top-level fields into one document. Lists
  (particulars, payments) are replaced whole. Last write wins.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite with in-process change feed
  - store/redis/redis.go: Redis with pub/sub change feed

SEE ALSO:
  - service.go: Writes through this interface
  - view.go: Reads through Subscribe
*/
package ledger

import "context"

// =============================================================================
// DOCUMENT STORE
// =============================================================================

// Snapshot is one push from the store: every case document, or an error.
type Snapshot struct {
	Records []Record
	Err     error
}

// DocumentStore is the realtime key-value store holding case documents.
type DocumentStore interface {
	// Subscribe registers fn for full snapshots. The returned cancel func
	// stops delivery; it is safe to call more than once.
	Subscribe(ctx context.Context, fn func(Snapshot)) (cancel func(), err error)

	// Create stores a new document and returns its assigned id.
	Create(ctx context.Context, doc Document) (CaseID, error)

	// Update merges fields into an existing document.
	// Returns ErrCaseNotFound if id does not exist.
	Update(ctx context.Context, id CaseID, fields Document) error

	// Get returns one document. Returns ErrCaseNotFound if id does not exist.
	Get(ctx context.Context, id CaseID) (Document, error)

	// List returns every document.
	List(ctx context.Context) ([]Record, error)
}

// =============================================================================
// REPORT STORE - Optional capability
// =============================================================================

// ReportStore persists report snapshots taken by the scheduler.
// Stores that can't keep them simply don't implement it.
type ReportStore interface {
	SaveReport(ctx context.Context, snap ReportSnapshot) error
	ListReports(ctx context.Context, limit int) ([]ReportSnapshot, error)
}
