package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ordersvc/internal/handlers"
	"ordersvc/internal/middleware"
	"ordersvc/internal/models"
	"ordersvc/internal/services"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "serve-test-secret-0123456789abcd"

// stubOrderService answers every read with one fixed order per owner.
type stubOrderService struct {
	services.OrderServiceInterface
	lastOwner int64
}

func (s *stubOrderService) ListOrders(ctx context.Context, ownerID int64, limit, offset int) ([]*models.OrderWithItems, error) {
	s.lastOwner = ownerID
	return []*models.OrderWithItems{{ID: 1, Status: models.StatusPending, Items: []*models.OrderItemView{}}}, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T) (*echo.Echo, *stubOrderService) {
	t.Helper()
	auth, err := middleware.NewAuthenticator(middleware.JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	t.Cleanup(auth.Close)

	svc := &stubOrderService{}
	e := newServer(
		handlers.NewOrderHandlers(svc),
		handlers.NewHealthHandlers(okPinger{}, nil, nil, "test"),
		auth.Middleware(),
	)
	return e, svc
}

func bearer(t *testing.T, ownerID int64) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": ownerID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestServer_HealthIsPublic(t *testing.T) {
	e, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	var body handlers.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "disabled", body.Services["cache"])
}

func TestServer_OrdersRequireToken(t *testing.T) {
	e, svc := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, svc.lastOwner)
}

func TestServer_ListOrders(t *testing.T) {
	e, svc := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, 42))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))
	assert.Equal(t, int64(42), svc.lastOwner)

	var orders []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "0.00", orders[0]["total_amount"])
}

func TestServer_UnknownVersion(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v9/orders", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, 42))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
