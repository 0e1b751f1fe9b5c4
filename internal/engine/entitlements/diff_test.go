package entitlements

import (
	"testing"

	"endurancy/internal/platform/models"
	"github.com/stretchr/testify/assert"
)

func catalogOf(ids ...string) []*models.Module {
	var out []*models.Module
	for _, id := range ids {
		out = append(out, &models.Module{ID: id, Name: "Module " + id})
	}
	return out
}

func row(moduleID string, enabled bool, planID string) *models.OrganizationModule {
	return &models.OrganizationModule{ID: "om_" + moduleID, ModuleID: moduleID, Enabled: enabled, PlanID: planID}
}

type kindPair struct {
	kind   ChangeKind
	module string
}

func pairs(changes []Change) []kindPair {
	var out []kindPair
	for _, c := range changes {
		out = append(out, kindPair{c.Kind, c.Module.ID})
	}
	return out
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		catalog  []*models.Module
		plan     []string
		existing []*models.OrganizationModule
		want     []kindPair
	}{
		{
			name:     "example scenario",
			catalog:  catalogOf("A", "B", "C", "D", "E"),
			plan:     []string{"A", "C", "D"},
			existing: []*models.OrganizationModule{row("A", true, "p1"), row("B", true, "p1"), row("C", false, "p1")},
			want:     []kindPair{{ChangeEnable, "C"}, {ChangeDisable, "B"}, {ChangeInsert, "D"}},
		},
		{
			name:    "fresh organization",
			catalog: catalogOf("A", "B"),
			plan:    []string{"A", "B"},
			want:    []kindPair{{ChangeInsert, "A"}, {ChangeInsert, "B"}},
		},
		{
			name:     "already converged",
			catalog:  catalogOf("A", "B"),
			plan:     []string{"A"},
			existing: []*models.OrganizationModule{row("A", true, "p1"), row("B", false, "p0")},
			want:     nil,
		},
		{
			name:     "enabled row owned by another plan is re-owned",
			catalog:  catalogOf("A"),
			plan:     []string{"A"},
			existing: []*models.OrganizationModule{row("A", true, "p0")},
			want:     []kindPair{{ChangeEnable, "A"}},
		},
		{
			name:     "orphaned row is not visited",
			catalog:  catalogOf("A"),
			plan:     []string{"A"},
			existing: []*models.OrganizationModule{row("A", true, "p1"), row("GONE", true, "p0")},
			want:     nil,
		},
		{
			name:     "plan module missing from catalog is ignored",
			catalog:  catalogOf("A"),
			plan:     []string{"A", "GHOST"},
			existing: nil,
			want:     []kindPair{{ChangeInsert, "A"}},
		},
		{
			name:     "empty plan disables everything",
			catalog:  catalogOf("A", "B"),
			plan:     nil,
			existing: []*models.OrganizationModule{row("A", true, "p1"), row("B", true, "p1")},
			want:     []kindPair{{ChangeDisable, "A"}, {ChangeDisable, "B"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pairs(Diff(tt.catalog, tt.plan, tt.existing, "p1"))
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestDiff_FollowsCatalogOrder(t *testing.T) {
	changes := Diff(catalogOf("C", "A", "B"), []string{"A", "B", "C"}, nil, "p1")
	assert.Equal(t, []kindPair{{ChangeInsert, "C"}, {ChangeInsert, "A"}, {ChangeInsert, "B"}}, pairs(changes))
}

func TestSummarize(t *testing.T) {
	changes := Diff(catalogOf("A", "B", "C"), []string{"A", "C"}, []*models.OrganizationModule{row("B", true, "p1")}, "p1")
	assert.Equal(t, map[string][]string{
		"insert":  {"A", "C"},
		"disable": {"B"},
	}, Summarize(changes))
}
