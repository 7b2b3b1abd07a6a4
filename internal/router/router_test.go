package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/bus-charter-booking/internal/config"
	"github.com/iliyamo/bus-charter-booking/internal/handler"
	"github.com/iliyamo/bus-charter-booking/internal/utils"
)

func noop(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Validator = handler.NewValidator()
	cfg := config.Config{JWTSecret: "router-secret", AccessTTLMin: 5, RefreshTTLDays: 1}
	auth := handler.NewAuthHandler(cfg, nil, nil, zap.NewNop())

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"}))

	RegisterRoutes(e, nil, reg)
	RegisterAuth(e, auth, noop)
	RegisterPublic(e, &handler.PublicHandler{FrontendURL: "https://book.example", Log: zap.NewNop()}, noop, noop)
	RegisterAdmin(e, &handler.AdminHandler{Log: zap.NewNop()}, auth, cfg.JWTSecret)
	return e
}

func TestRouteTable(t *testing.T) {
	e := newServer(t)
	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /metrics",
		"POST /v1/auth/login",
		"POST /v1/quotes",
		"POST /v1/reservations",
		"GET /v1/reservations/:ref",
		"POST /v1/reservations/:ref/checkout",
		"GET /v1/payments/success",
		"POST /v1/webhooks/payment",
		"GET /v1/buses/available",
		"GET /v1/admin/reservations",
		"POST /v1/admin/reservations/:id/payments",
		"POST /v1/admin/refunds/:id/process",
		"POST /v1/admin/fuel-prices",
	} {
		assert.True(t, got[want], want)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	e := newServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := utils.NewAccessToken("router-secret", 9, "CUSTOMER", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	tok, err = utils.NewAccessToken("router-secret", 9, "ADMIN", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":9`)
}

func TestOperationalEndpoints(t *testing.T) {
	e := newServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "router_test_total")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/payments/cancel", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
}
