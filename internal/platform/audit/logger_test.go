package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"endurancy/internal/platform/database/dbtest"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LogAndList(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	l := NewLogger(db)

	l.Log(ctx, Entry{OrganizationID: "org_1", Actor: "payment-link", Action: ActionOrderCompleted, ResourceType: "order", ResourceID: "ord_1",
		Metadata: map[string]interface{}{"plan_id": "plan_pro"}})
	l.Log(ctx, Entry{OrganizationID: "org_1", Actor: "system", Action: ActionEntitlementsReconciled})
	l.Log(ctx, Entry{OrganizationID: "org_2", Action: ActionOrderCreated})

	logs, err := l.List(ctx, "org_1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, ActionEntitlementsReconciled, logs[0].Action)
	assert.Equal(t, "plan_pro", logs[1].Metadata["plan_id"])
	assert.Empty(t, logs[0].Metadata)
}

func TestLogger_LogSwallowsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("database is locked"))

	assert.NotPanics(t, func() {
		NewLogger(db).Log(context.Background(), Entry{Action: ActionOrderCreated})
	})
	assert.NoError(t, mock.ExpectationsWereMet())

	var nilLogger *Logger
	assert.NotPanics(t, func() { nilLogger.Log(context.Background(), Entry{}) })
}

func TestLogger_ListWarnsOnBadMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	mock.ExpectQuery("SELECT id, organization_id, actor, action").
		WithArgs("org_1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "actor", "action", "resource_type", "resource_id", "metadata", "created_at"}).
			AddRow("audit_1", "org_1", "system", ActionOrderCreated, "order", "ord_1", "{not json", 1).
			AddRow("audit_2", "org_1", "system", ActionOrderCreated, "order", "ord_2", `{"plan_id":"plan_pro"}`, 1))

	logs, err := NewLogger(db).List(context.Background(), "org_1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Nil(t, logs[0].Metadata)
	assert.Equal(t, "plan_pro", logs[1].Metadata["plan_id"])

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "audit_1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
