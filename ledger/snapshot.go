package ledger

import (
	"encoding/json"
	"time"
)

// =============================================================================
// REPORT SNAPSHOT - Frozen report taken at a point in time
// =============================================================================

// ReportSnapshot captures a report so dashboards can show history without
// replaying old case states. Snapshots are projections: they are never read
// back into the ledger.
type ReportSnapshot struct {
	ID      string
	TakenAt time.Time
	Reason  SnapshotReason
	Report  Report
}

type SnapshotReason string

const (
	SnapshotScheduled SnapshotReason = "scheduled" // Cron-triggered
	SnapshotManual    SnapshotReason = "manual"    // Requested via API
)

type reportJSON struct {
	Window  Window    `json:"window"`
	AsOf    time.Time `json:"as_of"`
	Stats   Stats     `json:"stats"`
	Buckets []Bucket  `json:"buckets"`
}

// EncodeReport serializes a report for storage.
func EncodeReport(r Report) ([]byte, error) {
	return json.Marshal(reportJSON{Window: r.Window, AsOf: r.AsOf, Stats: r.Stats, Buckets: r.Buckets})
}

// DecodeReport restores a stored report. Bucket order is preserved as stored.
func DecodeReport(data []byte) (Report, error) {
	var rj reportJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return Report{}, err
	}
	if rj.Buckets == nil {
		rj.Buckets = []Bucket{}
	}
	return Report{Window: rj.Window, AsOf: rj.AsOf, Stats: rj.Stats, Buckets: rj.Buckets}, nil
}
