package handlers

import (
	stderrors "errors"
	"net/http"

	"endurancy/internal/engine/entitlements"
	"endurancy/internal/engine/payments"
	"endurancy/internal/pkg/errors"
	"endurancy/internal/pkg/validator"
	"github.com/rs/zerolog/log"
)

const activationFailedMessage = "payment received but module activation failed, please retry the confirmation link"

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *validator.ValidationError
	var reconcileErr *entitlements.ReconciliationFailure

	switch {
	case stderrors.As(err, &validationErr):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request", validationErr.Fields)
	case stderrors.Is(err, payments.ErrOrderNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Order not found: token invalid or expired", nil)
	case stderrors.Is(err, payments.ErrReferenceNotFound):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeReferenceNotFound, "Organization or plan not found", nil)
	case stderrors.Is(err, entitlements.ErrOrganizationNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Organization not found", nil)
	case stderrors.Is(err, entitlements.ErrNoActivePlan):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Organization has no active plan", nil)
	case stderrors.As(err, &reconcileErr):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("module activation failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeActivationFailed, activationFailedMessage, nil)
	case stderrors.Is(err, payments.ErrEmailDelivery):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("payment email delivery failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeEmailDelivery, "Failed to send payment email", nil)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
	}
}
