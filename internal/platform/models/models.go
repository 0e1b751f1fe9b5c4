package models

import "github.com/shopspring/decimal"

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusExpired   = "expired"

	ModuleStatusActive = "active"
)

type Organization struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	PlanID    *string `json:"plan_id,omitempty"` // active plan pointer
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

type Plan struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	BillingInterval string          `json:"billing_interval"`
	Active          bool            `json:"active"`
	CreatedAt       int64           `json:"created_at"`
	UpdatedAt       int64           `json:"updated_at"`
}

// Module is a catalog entry for an optional platform feature.
type Module struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at"`
}

type PlanModule struct {
	PlanID    string `json:"plan_id"`
	ModuleID  string `json:"module_id"`
	CreatedAt int64  `json:"created_at"`
}

// OrganizationModule is the per-tenant entitlement row. Rows are toggled,
// never deleted.
type OrganizationModule struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	ModuleID       string `json:"module_id"`
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	Status         string `json:"status"`
	PlanID         string `json:"plan_id"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

type Order struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	PlanID         string          `json:"plan_id"`
	Status         string          `json:"status"`
	PaymentToken   string          `json:"-"`
	Email          string          `json:"email"`
	CustomerName   string          `json:"customer_name"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	CreatedAt      int64           `json:"created_at"`
	UpdatedAt      int64           `json:"updated_at"`
	CompletedAt    *int64          `json:"completed_at,omitempty"`
}

type AuditLog struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	Actor          string                 `json:"actor"`
	Action         string                 `json:"action"`
	ResourceType   string                 `json:"resource_type"`
	ResourceID     string                 `json:"resource_id"`
	Metadata       map[string]interface{} `json:"metadata"`
	CreatedAt      int64                  `json:"created_at"`
}
