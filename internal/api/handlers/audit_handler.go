package handlers

import (
	"net/http"
	"strconv"

	"endurancy/internal/api/middleware"
	"endurancy/internal/pkg/errors"
	"endurancy/internal/platform/audit"
)

type AuditHandler struct {
	audit *audit.Logger
}

func NewAuditHandler(auditLog *audit.Logger) *AuditHandler {
	return &AuditHandler{audit: auditLog}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	org := middleware.OrganizationFrom(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	logs, err := h.audit.List(r.Context(), org.ID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"logs":    logs,
	})
}
