// internal/audit/reconciler.go
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher brings stored loan statuses and fines up to date.
type Refresher interface {
	RefreshOutstanding(ctx context.Context) (int, error)
}

// Reconciler refreshes outstanding loans and audits the inventory on a cron schedule.
type Reconciler struct {
	cron      *cron.Cron
	refresher Refresher
	auditor   *Auditor
	logger    *slog.Logger
	timeout   time.Duration
}

// NewReconciler parses schedule, a standard five-field cron spec or a
// descriptor such as "@hourly".
func NewReconciler(schedule string, refresher Refresher, auditor *Auditor, logger *slog.Logger) (*Reconciler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		refresher: refresher,
		auditor:   auditor,
		logger:    logger.With("component", "reconciler"),
		timeout:   10 * time.Minute,
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("reconcile schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs the schedule in the background.
func (r *Reconciler) Start() {
	r.cron.Start()
	r.logger.Info("reconciler started", "next_run", r.cron.Entries()[0].Next)
}

// Stop halts the schedule and waits for a running pass until ctx is done.
func (r *Reconciler) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
		r.logger.Warn("reconciler stop timed out")
	}
}

// RunOnce refreshes outstanding loans, then audits.
func (r *Reconciler) RunOnce(ctx context.Context) *Report {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.refresher.RefreshOutstanding(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "loan refresh failed", "error", err)
	}
	report := r.auditor.Run(ctx)
	r.logger.InfoContext(ctx, "reconcile pass finished",
		"loans_refreshed", n, "healthy", report.Healthy, "violations", len(report.Violations()), "duration", report.Duration)
	return report
}
