/*
Package sqlite provides a SQLite-backed implementation of the ledger store.

PURPOSE:
  Implements ledger.DocumentStore and ledger.ReportStore on SQLite. Each case
  is one row holding its JSON document, so the ledger keeps the flat-map
  document model it would have against a realtime document store.

INTERFACES IMPLEMENTED:
  ledger.DocumentStore: Case documents + change feed
  ledger.ReportStore:   Report snapshots taken by the scheduler

KEY TABLES:
  cases:             id, JSON document, timestamps
  report_snapshots:  Frozen reports (window, as-of, stats, buckets)

MERGE:
  Update reads the document, merges the supplied top-level fields and writes
  it back inside one database transaction. Lists are replaced whole.

CHANGE FEED:
  SQLite has no push notifications. Subscribers are tracked in-process and
  receive a full snapshot after every committed write made through this
  Store. Writes from other processes are not observed.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Notifications are sent after the
  lock is released.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, ledger.DefaultNormalizer())

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/billing-ledger/ledger"
	"github.com/warp/billing-ledger/ledger/store"
)

// Store implements the ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// NewID assigns case ids. Defaults to random UUIDs.
	NewID func() string

	fanout store.Fanout
}

// New opens (and migrates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := NewStore(db)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// timestampLayout is fixed-width so stored timestamps sort as text.
// RFC3339Nano trims trailing zeros and would put ":00Z" after ":00.1Z".
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewStore wraps an already-open database without migrating it.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, NewID: uuid.NewString}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Case documents
	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cases_created_at
		ON cases(created_at);

	-- Report snapshots (projections, never read back into the ledger)
	CREATE TABLE IF NOT EXISTS report_snapshots (
		id TEXT PRIMARY KEY,
		report_window TEXT NOT NULL,
		reason TEXT NOT NULL,
		taken_at TEXT NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_report_snapshots_taken_at
		ON report_snapshots(taken_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DOCUMENT STORE (ledger.DocumentStore interface)
// =============================================================================

// Subscribe delivers the current snapshot, then one per committed write.
func (s *Store) Subscribe(ctx context.Context, fn func(ledger.Snapshot)) (func(), error) {
	return s.fanout.Add(ctx, fn, s.snapshot), nil
}

// Create inserts a new case document.
func (s *Store) Create(ctx context.Context, doc ledger.Document) (ledger.CaseID, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode case: %w", err)
	}

	id := ledger.CaseID(s.NewID())
	now := time.Now().UTC().Format(timestampLayout)

	s.mu.Lock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cases (id, document, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		string(id), string(data), now, now,
	)
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to insert case: %w", err)
	}

	s.fanout.Notify(s.snapshot)
	return id, nil
}

// Put writes doc under a caller-chosen id, replacing any existing row.
func (s *Store) Put(ctx context.Context, id ledger.CaseID, doc ledger.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode case: %w", err)
	}
	now := time.Now().UTC().Format(timestampLayout)

	s.mu.Lock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cases (id, document, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at`,
		string(id), string(data), now, now,
	)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to put case: %w", err)
	}

	s.fanout.Notify(s.snapshot)
	return nil
}

// Update merges fields into an existing document in one transaction.
func (s *Store) Update(ctx context.Context, id ledger.CaseID, fields ledger.Document) error {
	if err := s.update(ctx, id, fields); err != nil {
		return err
	}
	s.fanout.Notify(s.snapshot)
	return nil
}

func (s *Store) update(ctx context.Context, id ledger.CaseID, fields ledger.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT document FROM cases WHERE id = ?`, string(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrCaseNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load case: %w", err)
	}

	doc, err := ledger.DecodeDocument([]byte(raw))
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc.Merge(fields))
	if err != nil {
		return fmt.Errorf("failed to encode case: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE cases SET document = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC().Format(timestampLayout), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}

	return tx.Commit()
}

// Get returns one case document.
func (s *Store) Get(ctx context.Context, id ledger.CaseID) (ledger.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM cases WHERE id = ?`, string(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case: %w", err)
	}
	return ledger.DecodeDocument([]byte(raw))
}

// List returns every case document in insertion order.
func (s *Store) List(ctx context.Context) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, document FROM cases ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	records := []ledger.Record{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		doc, err := ledger.DecodeDocument([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", id, err)
		}
		records = append(records, ledger.Record{ID: ledger.CaseID(id), Doc: doc})
	}
	return records, rows.Err()
}

func (s *Store) snapshot() ledger.Snapshot {
	recs, err := s.List(context.Background())
	return ledger.Snapshot{Records: recs, Err: err}
}

// =============================================================================
// REPORT STORE (ledger.ReportStore interface)
// =============================================================================

// SaveReport stores a report snapshot.
func (s *Store) SaveReport(ctx context.Context, snap ledger.ReportSnapshot) error {
	data, err := ledger.EncodeReport(snap.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO report_snapshots (id, report_window, reason, taken_at, report_json)
		VALUES (?, ?, ?, ?, ?)`,
		snap.ID, string(snap.Report.Window), string(snap.Reason),
		snap.TakenAt.UTC().Format(timestampLayout), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// ListReports returns the newest snapshots first. limit <= 0 means all.
func (s *Store) ListReports(ctx context.Context, limit int) ([]ledger.ReportSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, reason, taken_at, report_json FROM report_snapshots ORDER BY taken_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var snaps []ledger.ReportSnapshot
	for rows.Next() {
		var (
			snap    ledger.ReportSnapshot
			reason  string
			takenAt string
			raw     string
		)
		if err := rows.Scan(&snap.ID, &reason, &takenAt, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		snap.Reason = ledger.SnapshotReason(reason)
		if snap.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
			return nil, fmt.Errorf("report %s taken_at: %w", snap.ID, err)
		}
		if snap.Report, err = ledger.DecodeReport([]byte(raw)); err != nil {
			return nil, fmt.Errorf("report %s: %w", snap.ID, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	for _, table := range []string{"cases", "report_snapshots"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	s.fanout.Notify(s.snapshot)
	return nil
}

// Compile-time interface checks.
var (
	_ ledger.DocumentStore = (*Store)(nil)
	_ ledger.ReportStore   = (*Store)(nil)
)
