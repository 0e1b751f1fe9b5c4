package repositories

import (
	"context"
	"database/sql"
	"errors"

	"endurancy/internal/platform/database"
	"endurancy/internal/platform/models"
	"github.com/mattn/go-sqlite3"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

type scanner interface {
	Scan(dest ...interface{}) error
}

type OrganizationRepository struct {
	db database.Querier
}

func NewOrganizationRepository(db database.Querier) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *OrganizationRepository) WithTx(tx *sql.Tx) *OrganizationRepository {
	return &OrganizationRepository{db: tx}
}

func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, email, plan_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, org.ID, org.Name, org.Email, org.PlanID, org.CreatedAt, org.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	org, err := scanOrganization(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, plan_id, created_at, updated_at
		FROM organizations WHERE id = ?
	`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

// SetPlan moves the organization's active plan pointer.
func (r *OrganizationRepository) SetPlan(ctx context.Context, orgID, planID string, now int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE organizations SET plan_id = ?, updated_at = ? WHERE id = ?`, planID, now, orgID)
	return err
}

// ListWithPlan returns every organization that has an active plan.
func (r *OrganizationRepository) ListWithPlan(ctx context.Context) ([]*models.Organization, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, plan_id, created_at, updated_at
		FROM organizations WHERE plan_id IS NOT NULL AND plan_id != ''
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func scanOrganization(s scanner) (*models.Organization, error) {
	var org models.Organization
	var planID sql.NullString

	if err := s.Scan(&org.ID, &org.Name, &org.Email, &planID, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, err
	}
	if planID.Valid && planID.String != "" {
		org.PlanID = &planID.String
	}
	return &org, nil
}
