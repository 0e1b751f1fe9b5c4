package audit

import (
	"context"
	"encoding/json"
	"time"

	"endurancy/internal/platform/database"
	"endurancy/internal/platform/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionOrderCreated           = "order.created"
	ActionOrderCompleted         = "order.completed"
	ActionPaymentEmailSent       = "payment_email.sent"
	ActionEntitlementsReconciled = "entitlements.reconciled"
	ActionReconciliationFailed   = "entitlements.reconciliation_failed"
)

// Entry is one audit event. Actor is whoever triggered it: a JWT subject,
// "payment-link" for token confirmations, or "system" for workers.
type Entry struct {
	OrganizationID string
	Actor          string
	Action         string
	ResourceType   string
	ResourceID     string
	Metadata       map[string]interface{}
}

type Logger struct {
	db database.Querier
}

func NewLogger(db database.Querier) *Logger {
	return &Logger{db: db}
}

// Log stores e. A failure is logged and never returned: the audit trail must
// not fail the operation it describes.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if l == nil {
		return
	}

	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, organization_id, actor, action, resource_type, resource_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, "audit_"+uuid.NewString(), e.OrganizationID, e.Actor, e.Action, e.ResourceType, e.ResourceID, string(metaJSON), time.Now().Unix())
	if err != nil {
		log.Error().Err(err).Str("action", e.Action).Str("org_id", e.OrganizationID).Msg("Failed to write audit log")
	}
}

// List returns the newest entries for an organization.
func (l *Logger) List(ctx context.Context, orgID string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, organization_id, actor, action, resource_type, resource_id, metadata, created_at
		FROM audit_logs WHERE organization_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		var metaJSON string
		if err := rows.Scan(&entry.ID, &entry.OrganizationID, &entry.Actor, &entry.Action, &entry.ResourceType, &entry.ResourceID, &metaJSON, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &entry.Metadata); err != nil {
				log.Warn().Err(err).Str("audit_id", entry.ID).Str("org_id", entry.OrganizationID).Msg("Failed to decode audit log metadata")
				entry.Metadata = nil
			}
		}
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}
