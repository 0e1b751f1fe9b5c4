package repositories

import (
	"context"
	"database/sql"

	"endurancy/internal/platform/database"
	"endurancy/internal/platform/models"
)

const orderColumns = `id, organization_id, plan_id, status, payment_token, email, customer_name,
		amount, currency, created_at, updated_at, completed_at`

type OrderRepository struct {
	db database.Querier
}

func NewOrderRepository(db database.Querier) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx *sql.Tx) *OrderRepository {
	return &OrderRepository{db: tx}
}

// Create inserts the order. A second pending order for the same
// organization and plan returns ErrDuplicate.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, organization_id, plan_id, status, payment_token, email, customer_name,
			amount, currency, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.OrganizationID, o.PlanID, o.Status, o.PaymentToken, o.Email, o.CustomerName,
		o.Amount.String(), o.Currency, o.CreatedAt, o.UpdatedAt, o.CompletedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetLatestByToken returns the most recently created order carrying token.
func (r *OrderRepository) GetLatestByToken(ctx context.Context, token string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE payment_token = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, token)
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

// GetPending returns the pending order for the organization and plan, if any.
func (r *OrderRepository) GetPending(ctx context.Context, orgID, planID string) (*models.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE organization_id = ? AND plan_id = ? AND status = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, orgID, planID, models.OrderStatusPending)
}

// MarkCompleted flips a pending order to completed. It reports false when
// the order was not pending, which means another confirmation won.
func (r *OrderRepository) MarkCompleted(ctx context.Context, id string, now int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.OrderStatusCompleted, now, now, id, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpirePendingBefore marks pending orders created before cutoff as expired
// and returns how many were changed.
func (r *OrderRepository) ExpirePendingBefore(ctx context.Context, cutoff, now int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE status = ? AND created_at < ?
	`, models.OrderStatusExpired, now, models.OrderStatusPending, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *OrderRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}

func scanOrder(s scanner) (*models.Order, error) {
	var o models.Order
	var completedAt sql.NullInt64

	err := s.Scan(&o.ID, &o.OrganizationID, &o.PlanID, &o.Status, &o.PaymentToken, &o.Email, &o.CustomerName,
		&o.Amount, &o.Currency, &o.CreatedAt, &o.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		val := completedAt.Int64
		o.CompletedAt = &val
	}
	return &o, nil
}
