package entitlements

import (
	"context"
	"database/sql"

	"endurancy/internal/platform/models"
	"endurancy/internal/platform/repositories"
)

// Service exposes read access to entitlements and on-demand reconciliation.
type Service struct {
	orgs       *repositories.OrganizationRepository
	orgModules *repositories.OrganizationModuleRepository
	reconciler *Reconciler
}

func NewService(db *sql.DB, reconciler *Reconciler) *Service {
	return &Service{
		orgs:       repositories.NewOrganizationRepository(db),
		orgModules: repositories.NewOrganizationModuleRepository(db),
		reconciler: reconciler,
	}
}

func (s *Service) ListOrganizationModules(ctx context.Context, orgID string) ([]*models.OrganizationModule, error) {
	return s.orgModules.ListByOrganization(ctx, orgID)
}

// HasModule reports whether the organization currently has moduleID enabled.
func (s *Service) HasModule(ctx context.Context, orgID, moduleID string) (bool, error) {
	row, err := s.orgModules.Get(ctx, orgID, moduleID)
	if err != nil {
		return false, err
	}
	return row != nil && row.Enabled && row.Status == models.ModuleStatusActive, nil
}

// ReconcileOrganization re-runs reconciliation against the organization's
// active plan.
func (s *Service) ReconcileOrganization(ctx context.Context, orgID string) ([]Change, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}
	if org.PlanID == nil {
		return nil, ErrNoActivePlan
	}
	return s.reconciler.Run(ctx, org.ID, *org.PlanID)
}
