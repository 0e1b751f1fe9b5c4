// Package entitlements keeps each organization's enabled modules in line with
// its plan.
package entitlements

import (
	"context"
	"database/sql"
	"time"

	"endurancy/internal/platform/database"
	"endurancy/internal/platform/metrics"
	"endurancy/internal/platform/models"
	"endurancy/internal/platform/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Reconciler struct {
	db         *sql.DB
	orgs       *repositories.OrganizationRepository
	plans      *repositories.PlanRepository
	modules    *repositories.ModuleRepository
	orgModules *repositories.OrganizationModuleRepository
	locker     Locker
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewReconciler builds a reconciler. A nil locker falls back to an
// in-process one.
func NewReconciler(db *sql.DB, locker Locker, m *metrics.Metrics) *Reconciler {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Reconciler{
		db:         db,
		orgs:       repositories.NewOrganizationRepository(db),
		plans:      repositories.NewPlanRepository(db),
		modules:    repositories.NewModuleRepository(db),
		orgModules: repositories.NewOrganizationModuleRepository(db),
		locker:     locker,
		metrics:    m,
		now:        time.Now,
	}
}

// Reconcile brings the organization's modules in line with planID. All
// writes commit together or not at all. Errors are *ReconciliationFailure.
func (r *Reconciler) Reconcile(ctx context.Context, orgID, planID string) error {
	_, err := r.Run(ctx, orgID, planID)
	return err
}

// Run is Reconcile that also reports the writes it made.
func (r *Reconciler) Run(ctx context.Context, orgID, planID string) ([]Change, error) {
	var changes []Change
	err := r.WithLock(ctx, orgID, func(ctx context.Context) error {
		return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
			var err error
			changes, err = r.ReconcileTx(ctx, tx, orgID, planID)
			return err
		})
	})
	err = failure(orgID, planID, err)
	r.Record(changes, err)
	if err != nil {
		return nil, err
	}

	LogChanges(orgID, planID, changes)
	return changes, nil
}

// WithLock runs fn while holding the organization's reconcile lock.
func (r *Reconciler) WithLock(ctx context.Context, orgID string, fn func(ctx context.Context) error) error {
	unlock, err := r.locker.Lock(ctx, orgID)
	if err != nil {
		return &ReconciliationFailure{OrganizationID: orgID, Err: err}
	}
	defer unlock()
	return fn(ctx)
}

// ReconcileTx applies the diff inside the caller's transaction. The caller
// is expected to hold the organization lock and to commit.
func (r *Reconciler) ReconcileTx(ctx context.Context, tx *sql.Tx, orgID, planID string) ([]Change, error) {
	catalog, err := r.modules.WithTx(tx).List(ctx)
	if err != nil {
		return nil, failure(orgID, planID, err)
	}
	planModuleIDs, err := r.plans.WithTx(tx).ModuleIDs(ctx, planID)
	if err != nil {
		return nil, failure(orgID, planID, err)
	}
	orgModules := r.orgModules.WithTx(tx)
	existing, err := orgModules.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, failure(orgID, planID, err)
	}

	changes := Diff(catalog, planModuleIDs, existing, planID)
	now := r.now().Unix()

	for _, c := range changes {
		switch c.Kind {
		case ChangeInsert:
			err = orgModules.Create(ctx, &models.OrganizationModule{
				ID:             "om_" + uuid.NewString(),
				OrganizationID: orgID,
				ModuleID:       c.Module.ID,
				Name:           c.Module.Name,
				Enabled:        true,
				Status:         models.ModuleStatusActive,
				PlanID:         planID,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		case ChangeEnable:
			err = orgModules.SetEnabled(ctx, c.Existing.ID, true, planID, now)
		case ChangeDisable:
			// disabled rows keep the plan that last granted them
			err = orgModules.SetEnabled(ctx, c.Existing.ID, false, c.Existing.PlanID, now)
		}
		if err != nil {
			return nil, failure(orgID, planID, err)
		}
	}

	return changes, nil
}

// Record counts a finished reconciliation. Callers that use ReconcileTx
// call it once their transaction has committed or failed.
func (r *Reconciler) Record(changes []Change, err error) {
	if err != nil {
		r.metrics.Reconciled("failure")
		return
	}
	r.metrics.Reconciled("success")
	for _, c := range changes {
		r.metrics.ModuleChanged(string(c.Kind))
	}
}

// SweepResult reports a ReconcileAll pass.
type SweepResult struct {
	Organizations int `json:"organizations"`
	Changed       int `json:"changed"`
	Failed        int `json:"failed"`
}

// ReconcileAll reconciles every organization that has an active plan.
// Failures for one organization are logged and do not stop the sweep.
func (r *Reconciler) ReconcileAll(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	orgs, err := r.orgs.ListWithPlan(ctx)
	if err != nil {
		return result, err
	}

	for _, org := range orgs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Organizations++

		changes, err := r.Run(ctx, org.ID, *org.PlanID)
		if err != nil {
			result.Failed++
			log.Error().Err(err).Str("org_id", org.ID).Str("plan_id", *org.PlanID).Msg("Reconciliation sweep failed for organization")
			continue
		}
		if len(changes) > 0 {
			result.Changed++
		}
	}

	log.Info().
		Int("organizations", result.Organizations).
		Int("changed", result.Changed).
		Int("failed", result.Failed).
		Msg("Reconciliation sweep finished")
	return result, nil
}

// LogChanges writes the outcome of a reconciliation to the log.
func LogChanges(orgID, planID string, changes []Change) {
	ev := log.Debug()
	if len(changes) > 0 {
		ev = log.Info()
	}
	ev.Str("org_id", orgID).
		Str("plan_id", planID).
		Int("changes", len(changes)).
		Interface("modules", Summarize(changes)).
		Msg("Entitlements reconciled")
}
