package handlers

import (
	"net/http"

	apiContext "endurancy/internal/api/context"
	"endurancy/internal/engine/payments"
	"endurancy/internal/pkg/errors"
	"endurancy/internal/pkg/validator"
	"github.com/julienschmidt/httprouter"
)

type PaymentHandler struct {
	svc *payments.Service
}

func NewPaymentHandler(svc *payments.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

func (h *PaymentHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req payments.GenerateRequest
	if err := validator.DecodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.svc.GeneratePaymentEmail(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  result.Message,
		"order_id": result.OrderID,
	})
}

type confirmRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := validator.DecodeJSON(r.Body, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	conf, err := h.svc.ConfirmPayment(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"message":           conf.Message,
		"already_confirmed": conf.AlreadyConfirmed,
		"order":             conf.Order,
	})
}

func (h *PaymentHandler) Details(w http.ResponseWriter, r *http.Request) {
	ps := r.Context().Value(apiContext.Params).(httprouter.Params)

	order, err := h.svc.GetDetails(r.Context(), ps.ByName("token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"order":   order,
	})
}
