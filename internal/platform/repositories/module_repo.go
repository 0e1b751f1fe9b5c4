package repositories

import (
	"context"
	"database/sql"

	"endurancy/internal/platform/database"
	"endurancy/internal/platform/models"
)

// ModuleRepository reads the module catalog.
type ModuleRepository struct {
	db database.Querier
}

func NewModuleRepository(db database.Querier) *ModuleRepository {
	return &ModuleRepository{db: db}
}

func (r *ModuleRepository) WithTx(tx *sql.Tx) *ModuleRepository {
	return &ModuleRepository{db: tx}
}

func (r *ModuleRepository) Create(ctx context.Context, module *models.Module) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO modules (id, name, type, created_at) VALUES (?, ?, ?, ?)
	`, module.ID, module.Name, module.Type, module.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// List returns the full catalog ordered by id.
func (r *ModuleRepository) List(ctx context.Context) ([]*models.Module, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, type, created_at FROM modules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []*models.Module
	for rows.Next() {
		var m models.Module
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.CreatedAt); err != nil {
			return nil, err
		}
		modules = append(modules, &m)
	}
	return modules, rows.Err()
}
