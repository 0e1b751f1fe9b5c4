package entitlements

import "endurancy/internal/platform/models"

type ChangeKind string

const (
	ChangeInsert  ChangeKind = "insert"
	ChangeEnable  ChangeKind = "enable"
	ChangeDisable ChangeKind = "disable"
)

// Change is one write needed to bring an organization in line with a plan.
// Existing is nil for inserts.
type Change struct {
	Kind     ChangeKind
	Module   *models.Module
	Existing *models.OrganizationModule
}

// Diff compares the catalog, the plan's module set and the organization's
// current rows and returns only the writes that change state. Rows whose
// module left the catalog are never visited. Output follows catalog order.
func Diff(catalog []*models.Module, planModuleIDs []string, existing []*models.OrganizationModule, planID string) []Change {
	inPlan := make(map[string]struct{}, len(planModuleIDs))
	for _, id := range planModuleIDs {
		inPlan[id] = struct{}{}
	}

	rows := make(map[string]*models.OrganizationModule, len(existing))
	for _, row := range existing {
		rows[row.ModuleID] = row
	}

	var changes []Change
	for _, module := range catalog {
		_, wanted := inPlan[module.ID]
		row := rows[module.ID]

		switch {
		case wanted && row == nil:
			changes = append(changes, Change{Kind: ChangeInsert, Module: module})
		case wanted && (!row.Enabled || row.PlanID != planID):
			changes = append(changes, Change{Kind: ChangeEnable, Module: module, Existing: row})
		case !wanted && row != nil && row.Enabled:
			changes = append(changes, Change{Kind: ChangeDisable, Module: module, Existing: row})
		}
	}
	return changes
}

// Summarize groups module ids by change kind.
func Summarize(changes []Change) map[string][]string {
	out := make(map[string][]string)
	for _, c := range changes {
		out[string(c.Kind)] = append(out[string(c.Kind)], c.Module.ID)
	}
	return out
}
