package api

import (
	"context"
	"net/http"

	apiContext "endurancy/internal/api/context"
	"endurancy/internal/api/handlers"
	"endurancy/internal/api/middleware"
	"endurancy/internal/pkg/errors"
	"endurancy/internal/platform/auth"
	"endurancy/internal/platform/config"
	"endurancy/internal/platform/metrics"
	"github.com/julienschmidt/httprouter"
)

type Dependencies struct {
	PaymentHandler         *handlers.PaymentHandler
	EntitlementHandler     *handlers.EntitlementHandler
	AuditHandler           *handlers.AuditHandler
	HealthHandler          *handlers.HealthHandler
	MetricsHandler         *handlers.MetricsHandler
	AuthMiddleware         *middleware.AuthMiddleware
	OrganizationMiddleware *middleware.OrganizationMiddleware
	RateLimiter            *middleware.RateLimiter
	RateLimits             config.RateLimitConfig
	Metrics                *metrics.Metrics
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	handle := func(method, path string, handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) {
		mws := append([]func(http.HandlerFunc) http.HandlerFunc{middleware.Observe(path, deps.Metrics)}, middlewares...)
		router.Handle(method, path, chain(handler, mws...))
	}

	rl := deps.RateLimiter
	authMid := deps.AuthMiddleware
	orgMid := deps.OrganizationMiddleware

	// Payment email flow, public and reached from the email link
	handle(http.MethodPost, "/api/payment-email/generate", deps.PaymentHandler.Generate,
		rl.Limit("payment_email", deps.RateLimits.PaymentEmailPerMinute))
	handle(http.MethodPost, "/api/payment-email/confirm", deps.PaymentHandler.Confirm,
		rl.Limit("confirm", deps.RateLimits.ConfirmPerMinute))
	handle(http.MethodGet, "/api/payment-email/details/:token", deps.PaymentHandler.Details,
		rl.Limit("confirm", deps.RateLimits.ConfirmPerMinute))

	// Entitlements
	handle(http.MethodGet, "/api/organizations/:org_id/modules", deps.EntitlementHandler.ListModules,
		authMid.Handle, orgMid.Handle)
	handle(http.MethodGet, "/api/organizations/:org_id/modules/:module_id", deps.EntitlementHandler.CheckModule,
		authMid.Handle, orgMid.Handle)
	handle(http.MethodPost, "/api/organizations/:org_id/reconcile", deps.EntitlementHandler.Reconcile,
		authMid.Handle, requireRole(auth.RoleAdmin), orgMid.Handle)
	handle(http.MethodGet, "/api/organizations/:org_id/audit-logs", deps.AuditHandler.List,
		authMid.Handle, orgMid.Handle)

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := middleware.ClaimsFrom(r.Context())
			if !ok {
				errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
				return
			}

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
