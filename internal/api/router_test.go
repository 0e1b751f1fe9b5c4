package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"endurancy/internal/api/handlers"
	"endurancy/internal/api/middleware"
	"endurancy/internal/engine/entitlements"
	"endurancy/internal/engine/payments"
	"endurancy/internal/pkg/mail"
	"endurancy/internal/platform/audit"
	"endurancy/internal/platform/auth"
	"endurancy/internal/platform/config"
	"endurancy/internal/platform/database/dbtest"
	"endurancy/internal/platform/metrics"
	"endurancy/internal/platform/models"
	"endurancy/internal/platform/repositories"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type testServer struct {
	db     *sql.DB
	router *httprouter.Router
	tokens *auth.TokenService
	mailer *recordingMailer
}

func newTestServer(t *testing.T, limits config.RateLimitConfig) *testServer {
	t.Helper()
	db := dbtest.New(t)
	ctx := context.Background()

	modules := repositories.NewModuleRepository(db)
	plans := repositories.NewPlanRepository(db)
	orgs := repositories.NewOrganizationRepository(db)

	for _, id := range []string{"mod_a", "mod_b", "mod_c"} {
		require.NoError(t, modules.Create(ctx, &models.Module{ID: id, Name: "Module " + id, CreatedAt: 1}))
	}
	require.NoError(t, plans.Create(ctx, &models.Plan{
		ID: "plan_pro", Name: "Profissional", Price: decimal.RequireFromString("499.00"), Active: true, CreatedAt: 1, UpdatedAt: 1,
	}))
	for _, id := range []string{"mod_a", "mod_c"} {
		require.NoError(t, plans.AddModule(ctx, "plan_pro", id, 1))
	}
	for _, id := range []string{"org_1", "org_2"} {
		require.NoError(t, orgs.Create(ctx, &models.Organization{ID: id, Name: "Org " + id, Email: id + "@test", CreatedAt: 1, UpdatedAt: 1}))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	auditLog := audit.NewLogger(db)
	mailer := &recordingMailer{}
	tokens := auth.NewTokenService(config.JWTConfig{Secret: "router-secret", Issuer: "endurancy", AccessTokenTTL: time.Hour})

	reconciler := entitlements.NewReconciler(db, nil, m)
	paymentSvc := payments.NewService(db, reconciler, mailer, nil, auditLog, m, config.PaymentConfig{
		ConfirmURLTemplate: "https://app.endurancy.test/confirm?token={token}",
		PendingOrderTTL:    time.Hour,
		LinkCacheTTL:       time.Hour,
	})

	rl, err := middleware.NewRateLimiter(limits.TrustedProxies)
	require.NoError(t, err)
	t.Cleanup(rl.Stop)

	router := NewRouter(&Dependencies{
		PaymentHandler:         handlers.NewPaymentHandler(paymentSvc),
		EntitlementHandler:     handlers.NewEntitlementHandler(entitlements.NewService(db, reconciler), auditLog),
		AuditHandler:           handlers.NewAuditHandler(auditLog),
		HealthHandler:          handlers.NewHealthHandler(db, nil),
		MetricsHandler:         handlers.NewMetricsHandler(reg),
		AuthMiddleware:         middleware.NewAuthMiddleware(tokens),
		OrganizationMiddleware: middleware.NewOrganizationMiddleware(orgs),
		RateLimiter:            rl,
		RateLimits:             limits,
		Metrics:                m,
	})

	return &testServer{db: db, router: router, tokens: tokens, mailer: mailer}
}

func (s *testServer) token(t *testing.T, orgID, role string) string {
	t.Helper()
	tok, err := s.tokens.GenerateAccessToken("user_"+role, orgID, role, role+"@test")
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, bearer string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	var out map[string]interface{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr.Code, out
}

func (s *testServer) pendingToken(t *testing.T) string {
	t.Helper()
	order, err := repositories.NewOrderRepository(s.db).GetPending(context.Background(), "org_1", "plan_pro")
	require.NoError(t, err)
	require.NotNil(t, order)
	return order.PaymentToken
}

var generateBody = map[string]string{
	"organizationId": "org_1",
	"planId":         "plan_pro",
	"email":          "ana@org1.test",
	"name":           "Ana",
}

func TestPaymentFlow(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	status, body := s.do(t, http.MethodPost, "/api/payment-email/generate", generateBody, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Payment email sent successfully", body["message"])
	assert.Len(t, s.mailer.sent, 1)

	token := s.pendingToken(t)

	status, body = s.do(t, http.MethodGet, "/api/payment-email/details/"+token, nil, "")
	require.Equal(t, http.StatusOK, status)
	order := body["order"].(map[string]interface{})
	assert.Equal(t, "Org org_1", order["organization_name"])
	assert.Equal(t, "Profissional", order["plan_name"])
	assert.Equal(t, "pending", order["status"])
	assert.NotContains(t, order, "payment_token")

	status, body = s.do(t, http.MethodPost, "/api/payment-email/confirm", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Payment confirmed successfully", body["message"])
	assert.Equal(t, "completed", body["order"].(map[string]interface{})["status"])

	status, body = s.do(t, http.MethodPost, "/api/payment-email/confirm", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Payment already confirmed", body["message"])
	assert.Equal(t, true, body["already_confirmed"])

	status, body = s.do(t, http.MethodGet, "/api/organizations/org_1/modules", nil, s.token(t, "org_1", "member"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "plan_pro", body["plan_id"])
	enabled := map[string]bool{}
	for _, raw := range body["modules"].([]interface{}) {
		row := raw.(map[string]interface{})
		enabled[row["module_id"].(string)] = row["enabled"].(bool)
	}
	assert.Equal(t, map[string]bool{"mod_a": true, "mod_c": true}, enabled)

	status, body = s.do(t, http.MethodGet, "/api/organizations/org_1/modules/mod_c", nil, s.token(t, "org_1", "member"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["enabled"])

	status, body = s.do(t, http.MethodGet, "/api/organizations/org_1/modules/mod_b", nil, s.token(t, "org_1", "member"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["enabled"])

	status, body = s.do(t, http.MethodGet, "/api/organizations/org_1/audit-logs", nil, s.token(t, "org_1", "member"))
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["logs"])
}

func TestPaymentEndpoints_Errors(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "generate missing email",
			method:     http.MethodPost,
			path:       "/api/payment-email/generate",
			body:       map[string]string{"organizationId": "org_1", "planId": "plan_pro"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "generate malformed email",
			method:     http.MethodPost,
			path:       "/api/payment-email/generate",
			body:       map[string]string{"organizationId": "org_1", "planId": "plan_pro", "email": "nope"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "generate unknown plan",
			method:     http.MethodPost,
			path:       "/api/payment-email/generate",
			body:       map[string]string{"organizationId": "org_1", "planId": "plan_gone", "email": "a@b.test"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "REFERENCE_NOT_FOUND",
		},
		{
			name:       "confirm without token",
			method:     http.MethodPost,
			path:       "/api/payment-email/confirm",
			body:       map[string]string{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "confirm unknown token",
			method:     http.MethodPost,
			path:       "/api/payment-email/confirm",
			body:       map[string]string{"token": "does-not-exist"},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "details unknown token",
			method:     http.MethodGet,
			path:       "/api/payment-email/details/does-not-exist",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestOrganizationEndpoints_Access(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	status, _ := s.do(t, http.MethodGet, "/api/organizations/org_1/modules", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := s.do(t, http.MethodGet, "/api/organizations/org_1/modules", nil, s.token(t, "org_2", "member"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])

	status, _ = s.do(t, http.MethodPost, "/api/organizations/org_1/reconcile", nil, s.token(t, "org_1", "member"))
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodPost, "/api/organizations/org_1/reconcile", nil, s.token(t, "", auth.RoleAdmin))
	assert.Equal(t, http.StatusConflict, status, "no active plan yet")
	assert.Equal(t, "CONFLICT", body["code"])

	status, _ = s.do(t, http.MethodGet, "/api/organizations/org_404/modules", nil, s.token(t, "", auth.RoleAdmin))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReconcileEndpoint(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})
	ctx := context.Background()

	require.NoError(t, repositories.NewOrganizationRepository(s.db).SetPlan(ctx, "org_1", "plan_pro", 2))

	status, body := s.do(t, http.MethodPost, "/api/organizations/org_1/reconcile", nil, s.token(t, "", auth.RoleAdmin))
	require.Equal(t, http.StatusOK, status)
	changes := body["changes"].(map[string]interface{})
	assert.ElementsMatch(t, []interface{}{"mod_a", "mod_c"}, changes["insert"])

	status, body = s.do(t, http.MethodPost, "/api/organizations/org_1/reconcile", nil, s.token(t, "", auth.RoleAdmin))
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["changes"], "second run is a no-op")

	logs, err := audit.NewLogger(s.db).List(ctx, "org_1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "user_admin", logs[0].Actor)
}

func TestRateLimitedConfirm(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{ConfirmPerMinute: 2})

	for i := 0; i < 2; i++ {
		status, _ := s.do(t, http.MethodPost, "/api/payment-email/confirm", map[string]string{"token": "x"}, "")
		assert.Equal(t, http.StatusNotFound, status)
	}
	status, body := s.do(t, http.MethodPost, "/api/payment-email/confirm", map[string]string{"token": "x"}, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
}

func TestRateLimitedConfirm_IgnoresForgedForwardedFor(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{ConfirmPerMinute: 2})

	var codes []int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/payment-email/confirm", strings.NewReader(`{"token":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rr := httptest.NewRecorder()
		s.router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{
		http.StatusNotFound, http.StatusNotFound,
		http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, codes)
}

func TestDetails_ExpiredOrder(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	status, _ := s.do(t, http.MethodPost, "/api/payment-email/generate", generateBody, "")
	require.Equal(t, http.StatusOK, status)
	token := s.pendingToken(t)

	_, err := s.db.Exec(`UPDATE orders SET status = 'expired'`)
	require.NoError(t, err)

	status, body := s.do(t, http.MethodGet, "/api/payment-email/details/"+token, nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])

	status, _ = s.do(t, http.MethodPost, "/api/payment-email/confirm", map[string]string{"token": token}, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{})

	status, body := s.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	s.do(t, http.MethodGet, "/api/payment-email/details/unknown", nil, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `endurancy_http_requests_total{method="GET",route="/api/payment-email/details/:token",status="404"} 1`)
}
