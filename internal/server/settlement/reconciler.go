package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/afriswift/settlement/internal/logging"
	"github.com/afriswift/settlement/internal/server/models"
	"github.com/robfig/cron/v3"
)

// ReconcileStats counts what one reconciliation pass did.
type ReconcileStats struct {
	Scanned  int
	Advanced int
	Aborted  int
	Errors   int
}

// Reconcile finishes intents left behind by requests that returned early:
// parked external calls, deferred ledger application, conversions and
// intents abandoned before their external call.
func (o *Orchestrator) Reconcile(ctx context.Context) ReconcileStats {
	var stats ReconcileStats
	cutoff := o.now().Add(-o.cfg.ReconcileGrace)

	for _, status := range []models.IntentStatus{
		models.IntentExternalSettled,
		models.IntentExternalPending,
		models.IntentExternalFailed,
		models.IntentCreated,
	} {
		stale, err := o.intents().ListStale(ctx, status, cutoff, o.cfg.ReconcileBatch)
		if err != nil {
			o.logger.Error(ctx, "list stale intents", "status", status, "error", err)
			stats.Errors++
			continue
		}
		for _, in := range stale {
			stats.Scanned++
			o.reconcileOne(ctx, in, &stats)
		}
	}

	if stats.Scanned > 0 {
		o.logger.Info(ctx, "reconciliation pass", "scanned", stats.Scanned, "advanced", stats.Advanced,
			"aborted", stats.Aborted, "errors", stats.Errors)
	}
	return stats
}

func (o *Orchestrator) reconcileOne(ctx context.Context, in *models.Intent, stats *ReconcileStats) {
	before := in.Status

	// a primary still in created never reached the external side and its
	// request is gone
	if in.Status == models.IntentCreated && in.Kind != models.KindConversion {
		err := o.transition(ctx, in, models.IntentAborted, models.IntentUpdate{
			FailureReason: encodeReason(ClassGating, "abandoned_before_submission"),
		})
		if err != nil {
			stats.Errors++
			return
		}
		stats.Aborted++
		return
	}

	_, err := o.advance(ctx, in)
	if in.Status == before {
		// push it to the back of the queue so parked intents do not keep
		// the rest of the batch from being seen
		if terr := o.intents().Touch(ctx, in.ID); terr != nil {
			o.logger.Warn(ctx, "mark intent checked", "intent_id", in.ID, "error", terr)
		}
	}

	var f *Failure
	switch {
	case err == nil:
	case errors.As(err, &f) && in.Status == models.IntentAborted:
	default:
		o.logger.Error(ctx, "reconcile intent", "intent_id", in.ID, "error", err)
		stats.Errors++
		return
	}

	switch {
	case in.Status == models.IntentAborted:
		stats.Aborted++
	case in.Status != before:
		stats.Advanced++
	}
}

// Reconciler runs Reconcile on a fixed schedule.
type Reconciler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       logging.Logger
	cron         *cron.Cron
	onPass       func(ReconcileStats, time.Duration)
}

func NewReconciler(o *Orchestrator, interval time.Duration, logger logging.Logger) *Reconciler {
	return &Reconciler{
		orchestrator: o,
		interval:     interval,
		logger:       logger.With("module", "reconciler"),
		cron:         cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// OnPass installs a callback run after every scheduled pass.
func (r *Reconciler) OnPass(fn func(ReconcileStats, time.Duration)) {
	r.onPass = fn
}

// Start schedules the passes. They run until Stop is called; ctx is handed
// to every pass.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %s", r.interval)
	}
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		start := time.Now()
		stats := r.orchestrator.Reconcile(ctx)
		if r.onPass != nil {
			r.onPass(stats, time.Since(start))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	r.cron.Start()
	r.logger.Info(ctx, "reconciler started", "interval", r.interval.String())
	return nil
}

// Stop stops scheduling and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}
