package repositories

import (
	"context"
	"database/sql"

	"endurancy/internal/platform/database"
	"endurancy/internal/platform/models"
)

type PlanRepository struct {
	db database.Querier
}

func NewPlanRepository(db database.Querier) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) WithTx(tx *sql.Tx) *PlanRepository {
	return &PlanRepository{db: tx}
}

func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plans (id, name, description, price, billing_interval, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, plan.ID, plan.Name, plan.Description, plan.Price.String(), plan.BillingInterval, plan.Active, plan.CreatedAt, plan.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PlanRepository) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	plan := &models.Plan{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, billing_interval, active, created_at, updated_at
		FROM plans WHERE id = ?
	`, id).Scan(&plan.ID, &plan.Name, &plan.Description, &plan.Price, &plan.BillingInterval, &plan.Active, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return plan, nil
}

// AddModule includes a catalog module in the plan. Adding an existing pair
// is a no-op.
func (r *PlanRepository) AddModule(ctx context.Context, planID, moduleID string, now int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plan_modules (plan_id, module_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (plan_id, module_id) DO NOTHING
	`, planID, moduleID, now)
	return err
}

// ModuleIDs returns the identifiers of the modules included in the plan.
func (r *PlanRepository) ModuleIDs(ctx context.Context, planID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT module_id FROM plan_modules WHERE plan_id = ? ORDER BY module_id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
