package handlers

import (
	stderrors "errors"
	"net/http"

	apiContext "endurancy/internal/api/context"
	"endurancy/internal/api/middleware"
	"endurancy/internal/engine/entitlements"
	"endurancy/internal/pkg/errors"
	"endurancy/internal/platform/audit"
	"github.com/julienschmidt/httprouter"
)

type EntitlementHandler struct {
	svc   *entitlements.Service
	audit *audit.Logger
}

func NewEntitlementHandler(svc *entitlements.Service, auditLog *audit.Logger) *EntitlementHandler {
	return &EntitlementHandler{svc: svc, audit: auditLog}
}

func (h *EntitlementHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	org := middleware.OrganizationFrom(r.Context())

	rows, err := h.svc.ListOrganizationModules(r.Context(), org.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"organization_id": org.ID,
		"plan_id":         org.PlanID,
		"modules":         rows,
	})
}

func (h *EntitlementHandler) CheckModule(w http.ResponseWriter, r *http.Request) {
	org := middleware.OrganizationFrom(r.Context())
	ps := r.Context().Value(apiContext.Params).(httprouter.Params)
	moduleID := ps.ByName("module_id")

	enabled, err := h.svc.HasModule(r.Context(), org.ID, moduleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"module_id": moduleID,
		"enabled":   enabled,
	})
}

func (h *EntitlementHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	org := middleware.OrganizationFrom(r.Context())

	changes, err := h.svc.ReconcileOrganization(r.Context(), org.ID)
	if err != nil {
		var failure *entitlements.ReconciliationFailure
		if stderrors.As(err, &failure) {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeActivationFailed, "Module reconciliation failed", nil)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	summary := entitlements.Summarize(changes)
	planID := ""
	if org.PlanID != nil {
		planID = *org.PlanID
	}

	actor := "unknown"
	if claims, ok := middleware.ClaimsFrom(r.Context()); ok {
		actor = claims.Subject
	}
	h.audit.Log(r.Context(), audit.Entry{
		OrganizationID: org.ID,
		Actor:          actor,
		Action:         audit.ActionEntitlementsReconciled,
		ResourceType:   "organization",
		ResourceID:     org.ID,
		Metadata: map[string]interface{}{
			"plan_id": planID,
			"changes": summary,
			"manual":  true,
		},
	})

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Entitlements reconciled",
		"changes": summary,
	})
}
