// Package store provides DocumentStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	docs    map[ledger.CaseID]ledger.Document
	order   []ledger.CaseID
	reports []ledger.ReportSnapshot

	// NewID assigns case ids. Defaults to random UUIDs.
	NewID func() string

	fanout Fanout
}

func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[ledger.CaseID]ledger.Document),
		NewID: uuid.NewString,
	}
}

// Subscribe delivers the current snapshot, then one per committed write.
func (m *Memory) Subscribe(ctx context.Context, fn func(ledger.Snapshot)) (func(), error) {
	return m.fanout.Add(ctx, fn, m.snapshot), nil
}

// Create stores doc under a fresh id.
func (m *Memory) Create(_ context.Context, doc ledger.Document) (ledger.CaseID, error) {
	m.mu.Lock()
	id := ledger.CaseID(m.NewID())
	for m.docs[id] != nil {
		id = ledger.CaseID(m.NewID())
	}
	m.docs[id] = doc.Clone()
	if m.docs[id] == nil {
		m.docs[id] = ledger.Document{}
	}
	m.order = append(m.order, id)
	m.mu.Unlock()

	m.fanout.Notify(m.snapshot)
	return id, nil
}

// Put stores doc under a caller-chosen id, replacing any existing document.
// Used to seed legacy documents that were never written through Create.
func (m *Memory) Put(_ context.Context, id ledger.CaseID, doc ledger.Document) error {
	m.mu.Lock()
	if _, ok := m.docs[id]; !ok {
		m.order = append(m.order, id)
	}
	m.docs[id] = doc.Clone()
	m.mu.Unlock()

	m.fanout.Notify(m.snapshot)
	return nil
}

// Reset drops every case and report (for demo loading).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	m.docs = make(map[ledger.CaseID]ledger.Document)
	m.order = nil
	m.reports = nil
	m.mu.Unlock()

	m.fanout.Notify(m.snapshot)
	return nil
}

// Update merges fields into an existing document.
func (m *Memory) Update(_ context.Context, id ledger.CaseID, fields ledger.Document) error {
	m.mu.Lock()
	doc, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return ledger.ErrCaseNotFound
	}
	m.docs[id] = doc.Merge(fields)
	m.mu.Unlock()

	m.fanout.Notify(m.snapshot)
	return nil
}

func (m *Memory) Get(_ context.Context, id ledger.CaseID) (ledger.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ledger.ErrCaseNotFound
	}
	return doc.Clone(), nil
}

// List returns every document in creation order.
func (m *Memory) List(_ context.Context) ([]ledger.Record, error) {
	return m.snapshot().Records, nil
}

func (m *Memory) snapshot() ledger.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]ledger.Record, 0, len(m.order))
	for _, id := range m.order {
		recs = append(recs, ledger.Record{ID: id, Doc: m.docs[id].Clone()})
	}
	return ledger.Snapshot{Records: recs}
}

// =============================================================================
// REPORT SNAPSHOTS
// =============================================================================

func (m *Memory) SaveReport(_ context.Context, snap ledger.ReportSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	m.reports = append(m.reports, snap)
	return nil
}

// ListReports returns the newest snapshots first. limit <= 0 means all.
func (m *Memory) ListReports(_ context.Context, limit int) ([]ledger.ReportSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.ReportSnapshot, len(m.reports))
	copy(result, m.reports)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TakenAt.After(result[j].TakenAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Compile-time interface checks.
var (
	_ ledger.DocumentStore = (*Memory)(nil)
	_ ledger.ReportStore   = (*Memory)(nil)
)
