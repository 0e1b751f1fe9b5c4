// Package workers runs the periodic background jobs: the entitlement drift
// sweep and pending order expiry.
package workers

import (
	"context"
	"sync"
	"time"

	"endurancy/internal/engine/entitlements"
	"endurancy/internal/platform/config"
	"github.com/rs/zerolog/log"
)

type SweepReconciler interface {
	ReconcileAll(ctx context.Context) (entitlements.SweepResult, error)
}

type OrderExpirer interface {
	ExpireStaleOrders(ctx context.Context) (int64, error)
}

type Runner struct {
	reconciler SweepReconciler
	expirer    OrderExpirer
	cfg        config.WorkersConfig
}

func NewRunner(reconciler SweepReconciler, expirer OrderExpirer, cfg config.WorkersConfig) *Runner {
	return &Runner{reconciler: reconciler, expirer: expirer, cfg: cfg}
}

// Run starts every job with a positive interval and blocks until ctx is
// cancelled. Jobs run once immediately, then on each tick.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup

	start := func(name string, interval time.Duration, job func(context.Context)) {
		if interval <= 0 {
			log.Info().Str("job", name).Msg("Worker disabled")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runEvery(ctx, name, interval, job)
		}()
	}

	start("reconcile_all", r.cfg.ReconcileInterval, r.reconcileAll)
	start("expire_orders", r.cfg.ExpiryInterval, r.expireOrders)

	wg.Wait()
}

// RunOnce runs each job a single time.
func (r *Runner) RunOnce(ctx context.Context) {
	r.reconcileAll(ctx)
	r.expireOrders(ctx)
}

func runEvery(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	log.Info().Str("job", name).Dur("interval", interval).Msg("Worker started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	job(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("job", name).Msg("Worker stopped")
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

func (r *Runner) reconcileAll(ctx context.Context) {
	start := time.Now()
	res, err := r.reconciler.ReconcileAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Entitlement sweep failed")
		return
	}
	log.Info().
		Int("organizations", res.Organizations).
		Int("changed", res.Changed).
		Int("failed", res.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("Entitlement sweep finished")
}

func (r *Runner) expireOrders(ctx context.Context) {
	if _, err := r.expirer.ExpireStaleOrders(ctx); err != nil {
		log.Error().Err(err).Msg("Order expiry failed")
	}
}
