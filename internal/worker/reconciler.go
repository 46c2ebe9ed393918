package worker

import (
	"context"
	"fmt"
	"time"

	"keymarket/internal/core/ports"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reconciler periodically runs the payment reconciliation pass:
// expire overdue invoices, then settle those visible in the bank feed.
type Reconciler struct {
	svc      ports.ReconciliationService
	interval time.Duration
	log      zerolog.Logger
	sched    *cron.Cron
}

// NewReconciler creates a reconciler running every interval.
func NewReconciler(svc ports.ReconciliationService, interval time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		svc:      svc,
		interval: interval,
		log:      log.With().Str("component", "reconciler").Logger(),
	}
}

// Start schedules the reconciliation job. Call Stop to shut down.
func (r *Reconciler) Start() error {
	r.sched = cron.New()
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.sched.AddFunc(spec, r.run); err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	r.sched.Start()
	r.log.Info().Str("interval", r.interval.String()).Msg("reconciler started")
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	if r.sched == nil {
		return
	}
	ctx := r.sched.Stop()
	<-ctx.Done()
	r.log.Info().Msg("reconciler stopped")
}

func (r *Reconciler) run() {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("reconcile pass panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	report, err := r.svc.RunOnce(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("reconcile pass failed")
		return
	}

	if report.Scanned > 0 || report.Errors > 0 {
		r.log.Info().
			Int("scanned", report.Scanned).
			Int("expired", report.Expired).
			Int("completed", report.Completed).
			Int("errors", report.Errors).
			Msg("reconcile pass finished")
	}
}
