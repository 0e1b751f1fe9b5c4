package repositories

import (
	"context"
	"database/sql"

	"endurancy/internal/platform/database"
	"endurancy/internal/platform/models"
)

type OrganizationModuleRepository struct {
	db database.Querier
}

func NewOrganizationModuleRepository(db database.Querier) *OrganizationModuleRepository {
	return &OrganizationModuleRepository{db: db}
}

func (r *OrganizationModuleRepository) WithTx(tx *sql.Tx) *OrganizationModuleRepository {
	return &OrganizationModuleRepository{db: tx}
}

func (r *OrganizationModuleRepository) Create(ctx context.Context, om *models.OrganizationModule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organization_modules (id, organization_id, module_id, name, enabled, status, plan_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, om.ID, om.OrganizationID, om.ModuleID, om.Name, om.Enabled, om.Status, om.PlanID, om.CreatedAt, om.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// SetEnabled toggles a row and records the plan that owns it.
func (r *OrganizationModuleRepository) SetEnabled(ctx context.Context, id string, enabled bool, planID string, now int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE organization_modules SET enabled = ?, plan_id = ?, updated_at = ? WHERE id = ?
	`, enabled, planID, now, id)
	return err
}

func (r *OrganizationModuleRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.OrganizationModule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, module_id, name, enabled, status, plan_id, created_at, updated_at
		FROM organization_modules WHERE organization_id = ?
		ORDER BY module_id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.OrganizationModule
	for rows.Next() {
		om, err := scanOrganizationModule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, om)
	}
	return result, rows.Err()
}

func (r *OrganizationModuleRepository) Get(ctx context.Context, orgID, moduleID string) (*models.OrganizationModule, error) {
	om, err := scanOrganizationModule(r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, module_id, name, enabled, status, plan_id, created_at, updated_at
		FROM organization_modules WHERE organization_id = ? AND module_id = ?
	`, orgID, moduleID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return om, nil
}

func scanOrganizationModule(s scanner) (*models.OrganizationModule, error) {
	var om models.OrganizationModule
	err := s.Scan(&om.ID, &om.OrganizationID, &om.ModuleID, &om.Name, &om.Enabled, &om.Status, &om.PlanID, &om.CreatedAt, &om.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &om, nil
}
