/*
scheduler.go - Periodic balance snapshot reconciliation

PURPOSE:
  Cached balance snapshots are refreshed by events, and events can be lost
  (Redis down, process restart between write and refresh). This scheduler
  periodically recomputes every owner's snapshots from movements and
  rewrites the ones that drifted. The recomputed value always wins.

DESIGN:
  - robfig/cron drives the schedule ("@every 15m" by default)
  - Overlapping runs are skipped, not queued
  - Each run walks every owner with at least one customer
  - Records the last run for the API and logs drift

USAGE:
  scheduler, err := NewSnapshotScheduler(svc, store, "@every 15m", log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - refresher.go: event-driven refresh
  - ledger/snapshot.go: ReconcileSnapshots
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/shop-ledger/ledger"
)

// ReconcileRun is the outcome of one pass over all owners.
type ReconcileRun struct {
	StartedAt time.Time
	Duration  time.Duration
	Owners    int
	Checked   int
	Updated   int
	Removed   int
	Failed    int
}

// SnapshotScheduler handles automated snapshot reconciliation.
type SnapshotScheduler struct {
	svc   *ledger.Service
	snaps ledger.SnapshotStore
	cron  *cron.Cron
	log   *zap.Logger

	mu      sync.Mutex
	lastRun ReconcileRun
}

// NewSnapshotScheduler parses the cron schedule and registers the job. It does not start.
func NewSnapshotScheduler(svc *ledger.Service, snaps ledger.SnapshotStore, schedule string, log *zap.Logger) (*SnapshotScheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &SnapshotScheduler{
		svc:   svc,
		snaps: snaps,
		log:   log.Named("scheduler"),
	}

	cl := cronLogger{log: s.log}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the scheduler.
func (s *SnapshotScheduler) Start() {
	s.cron.Start()
	s.log.Info("snapshot scheduler started")
}

// Stop stops the scheduler and waits for a running job.
func (s *SnapshotScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("snapshot scheduler stopped")
}

// RunOnce reconciles every owner. A failing owner does not stop the run.
func (s *SnapshotScheduler) RunOnce(ctx context.Context) ReconcileRun {
	run := ReconcileRun{StartedAt: s.svc.Now()}
	start := time.Now()

	owners, err := s.snaps.Owners(ctx)
	if err != nil {
		s.log.Error("listing owners failed", zap.Error(err))
		run.Failed++
	}

	for _, owner := range owners {
		summary, err := s.svc.ReconcileSnapshots(ctx, s.snaps, owner)
		if err != nil {
			s.log.Error("reconciliation failed", zap.String("owner_id", string(owner)), zap.Error(err))
			run.Failed++
			continue
		}
		run.Owners++
		run.Checked += summary.Checked
		run.Updated += summary.Updated
		run.Removed += summary.Removed
		if summary.Updated > 0 || summary.Removed > 0 {
			s.log.Warn("snapshot drift corrected",
				zap.String("owner_id", string(owner)),
				zap.Int("updated", summary.Updated),
				zap.Int("removed", summary.Removed))
		}
	}

	run.Duration = time.Since(start)
	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()

	s.log.Info("snapshot reconciliation finished",
		zap.Int("owners", run.Owners),
		zap.Int("checked", run.Checked),
		zap.Int("updated", run.Updated),
		zap.Duration("duration", run.Duration))
	return run
}

// LastRun returns the most recent run, zero if none finished yet.
func (s *SnapshotScheduler) LastRun() ReconcileRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
