package middleware

import (
	"context"
	"net/http"

	apiContext "endurancy/internal/api/context"
	"endurancy/internal/pkg/errors"
	"endurancy/internal/platform/auth"
	"endurancy/internal/platform/models"
	"endurancy/internal/platform/repositories"
	"github.com/julienschmidt/httprouter"
)

// OrganizationMiddleware resolves the :org_id route parameter. Callers must
// belong to that organization unless they are platform admins.
type OrganizationMiddleware struct {
	orgRepo *repositories.OrganizationRepository
}

func NewOrganizationMiddleware(orgRepo *repositories.OrganizationRepository) *OrganizationMiddleware {
	return &OrganizationMiddleware{orgRepo: orgRepo}
}

func (m *OrganizationMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}

		ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
		orgID := ps.ByName("org_id")
		if orgID == "" {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Missing organization id", nil)
			return
		}

		if claims.Role != auth.RoleAdmin && claims.OrganizationID != orgID {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Access to this organization is not allowed", nil)
			return
		}

		org, err := m.orgRepo.GetByID(r.Context(), orgID)
		if err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load organization", nil)
			return
		}
		if org == nil {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Organization not found", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Organization, org)
		next(w, r.WithContext(ctx))
	}
}

// OrganizationFrom returns the organization resolved by OrganizationMiddleware.
func OrganizationFrom(ctx context.Context) *models.Organization {
	org, _ := ctx.Value(apiContext.Organization).(*models.Organization)
	return org
}
