package entitlements

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailure(t *testing.T) {
	assert.NoError(t, failure("org_1", "plan_pro", nil))

	base := errors.New("disk full")
	err := failure("org_1", "plan_pro", base)
	var rf *ReconciliationFailure
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, "plan_pro", rf.PlanID)
	assert.ErrorIs(t, err, base)

	// already wrapped with a plan: returned unchanged
	assert.Same(t, err, failure("org_1", "plan_other", err))
}

func TestFailure_FillsPlanWithoutMutating(t *testing.T) {
	base := errors.New("lock timeout")
	original := &ReconciliationFailure{OrganizationID: "org_1", Err: base}

	err := failure("org_1", "plan_pro", original)

	var rf *ReconciliationFailure
	require.ErrorAs(t, err, &rf)
	assert.NotSame(t, original, rf)
	assert.Equal(t, "plan_pro", rf.PlanID)
	assert.Equal(t, "org_1", rf.OrganizationID)
	assert.ErrorIs(t, err, base)
	assert.Empty(t, original.PlanID, "caller's value is left alone")
}
