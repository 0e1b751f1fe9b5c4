package entitlements

import (
	"errors"
	"fmt"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrNoActivePlan         = errors.New("organization has no active plan")
)

// ReconciliationFailure wraps any error raised while bringing an
// organization's modules in line with a plan.
type ReconciliationFailure struct {
	OrganizationID string
	PlanID         string
	Err            error
}

func (e *ReconciliationFailure) Error() string {
	return fmt.Sprintf("reconcile organization %s against plan %s: %v", e.OrganizationID, e.PlanID, e.Err)
}

func (e *ReconciliationFailure) Unwrap() error {
	return e.Err
}

func failure(orgID, planID string, err error) error {
	if err == nil {
		return nil
	}
	var rf *ReconciliationFailure
	if errors.As(err, &rf) {
		if rf.PlanID != "" || planID == "" {
			return err
		}
		return &ReconciliationFailure{OrganizationID: rf.OrganizationID, PlanID: planID, Err: rf.Err}
	}
	return &ReconciliationFailure{OrganizationID: orgID, PlanID: planID, Err: err}
}
