/*
scheduler.go - Report snapshot scheduler

PURPOSE:
  Periodically freezes the current reports (one per configured window) into
  the ReportStore so dashboards can show how totals moved over time.

DESIGN:
  - robfig/cron drives the schedule (standard 5-field spec, UTC by default)
  - Each run reads the live View; it never touches case documents
  - A failed save is logged and the remaining windows are still attempted

CONFIGURATION:
  - Windows: which reports to freeze (default: today, month, year)
  - Schedule: cron spec passed to Start (REPORT_SCHEDULE)

USAGE:
  s := NewReportScheduler(reports, view)
  if err := s.Start("0 1 * * *"); err != nil { ... }
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: TakeReportSnapshot endpoint (manual snapshots)
  - ledger/snapshot.go: ReportSnapshot
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/billing-ledger/ledger"
)

// DefaultSnapshotWindows are frozen on every scheduled run.
var DefaultSnapshotWindows = []ledger.Window{ledger.WindowToday, ledger.WindowMonth, ledger.WindowYear}

// ReportScheduler takes report snapshots on a cron schedule.
type ReportScheduler struct {
	Reports ledger.ReportStore
	View    *ledger.View
	Windows []ledger.Window
	Now     func() time.Time

	// Location is the cron's time zone.
	Location *time.Location

	mu   sync.Mutex
	cron *cron.Cron
}

func NewReportScheduler(reports ledger.ReportStore, view *ledger.View) *ReportScheduler {
	return &ReportScheduler{
		Reports:  reports,
		View:     view,
		Windows:  DefaultSnapshotWindows,
		Now:      time.Now,
		Location: time.UTC,
	}
}

// Start registers the snapshot job and starts the cron. An empty spec
// leaves the scheduler idle.
func (s *ReportScheduler) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec == "" {
		zap.S().Info("report scheduler disabled")
		return nil
	}
	if s.cron != nil {
		return errors.New("report scheduler already started")
	}

	c := cron.New(cron.WithLocation(s.Location))
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c

	zap.S().Infow("report scheduler started", "schedule", spec, "windows", s.Windows)
	return nil
}

// Stop waits for a running job to finish.
func (s *ReportScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	ctx := c.Stop()
	<-ctx.Done()
	zap.S().Info("report scheduler stopped")
}

// NextRun returns when the job fires next, or the zero time when idle.
func (s *ReportScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *ReportScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	snaps, err := s.TakeSnapshots(ctx, ledger.SnapshotScheduled)
	if err != nil {
		zap.S().Errorw("scheduled report snapshot failed", "error", err, "saved", len(snaps))
		return
	}
	zap.S().Infow("report snapshots saved", "count", len(snaps))
}

// TakeSnapshots freezes one report per window. Windows that fail to save
// are reported together; the others are still saved and returned.
func (s *ReportScheduler) TakeSnapshots(ctx context.Context, reason ledger.SnapshotReason) ([]ledger.ReportSnapshot, error) {
	now := s.Now()
	var (
		saved []ledger.ReportSnapshot
		errs  []error
	)
	for _, w := range s.Windows {
		snap := ledger.ReportSnapshot{
			ID:      uuid.NewString(),
			TakenAt: now,
			Reason:  reason,
			Report:  s.View.Report(w, now),
		}
		if err := s.Reports.SaveReport(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("window %s: %w", w, err))
			continue
		}
		saved = append(saved, snap)
	}
	return saved, errors.Join(errs...)
}
