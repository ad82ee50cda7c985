package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/export"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *mockBookings) Product(ctx context.Context, productID string) (*service.ProductView, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ProductView), args.Error(1)
}

func (m *mockBookings) Create(ctx context.Context, userID string, req *service.CreateBookingRequest) (*service.CreateBookingResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CreateBookingResponse), args.Error(1)
}

func (m *mockBookings) Receipt(ctx context.Context, userID, bookingID string, isAdmin bool) (*models.OrderView, error) {
	args := m.Called(ctx, userID, bookingID, isAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderView), args.Error(1)
}

type admins map[string]bool

func (a admins) IsAdmin(_ context.Context, userID string) (bool, error) {
	return a[userID], nil
}

type fixedFetcher struct {
	orders []models.OrderView
}

func (f *fixedFetcher) FetchAll(_ context.Context, scope service.Scope) (*service.Aggregation, error) {
	var out []models.OrderView
	for _, o := range f.orders {
		if scope.IsAdmin() || o.UserID == scope.UserID {
			out = append(out, o)
		}
	}
	return &service.Aggregation{Orders: out, Summary: service.Summarize(out)}, nil
}

type recordingMutator struct {
	mu      sync.Mutex
	calls   []string
	deleted []string
}

func (m *recordingMutator) SetStatus(_ context.Context, order models.OrderView, to models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, order.ID+"->"+string(to))
	return nil
}

func (m *recordingMutator) Delete(_ context.Context, order models.OrderView, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, order.ID+":"+reason)
	return nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func testOrders() []models.OrderView {
	day := func(d int) *time.Time {
		t := time.Date(2024, 1, d, 10, 0, 0, 0, ist)
		return &t
	}
	return []models.OrderView{
		{ID: "b1", UserID: "u1", UserName: "Asha", ProductName: "Milk 1L", Quantity: 2, TotalAmount: 120,
			Subscribed: true, Status: models.StatusPending, Timestamp: day(2)},
		{ID: "b2", UserID: "u2", UserName: "Meera", ProductName: "Ghee 0.5L", Quantity: 1, TotalAmount: 1400,
			Status: models.StatusConfirmed, Timestamp: day(1)},
		{ID: "b3", UserID: "u1", UserName: "Asha", ProductName: "Curd", Quantity: 1, TotalAmount: 40,
			Status: models.StatusConfirmed, Timestamp: day(1)},
	}
}

type testEnv struct {
	router   *gin.Engine
	bookings *mockBookings
	mutator  *recordingMutator
}

func setup(t *testing.T, deps map[string]Pinger) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bookings := &mockBookings{}
	mutator := &recordingMutator{}
	registry := service.NewSessionRegistry(&fixedFetcher{orders: testOrders()}, mutator, service.CancelDelete)

	h := NewHandler(bookings, registry, auth.DevVerifier{}, admins{"admin-1": true}, ist, deps)
	router := gin.New()
	h.SetupRoutes(router)

	return &testEnv{router: router, bookings: bookings, mutator: mutator}
}

func (e *testEnv) do(method, path, uid, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+auth.DevPrefix+uid)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeOrders(t *testing.T, w *httptest.ResponseRecorder) ordersResponse {
	t.Helper()
	var resp ordersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func rowIDs(resp ordersResponse) []string {
	ids := make([]string, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestHealth(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessReportsFailedDependency(t *testing.T) {
	env := setup(t, map[string]Pinger{"redis": failingPinger{}})

	w := env.do(http.MethodGet, "/ready", "", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestAuthentication(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodGet, "/api/v1/session", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer not-a-dev-token")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	w = env.do(http.MethodGet, "/api/v1/session", "admin-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"admin-1","is_admin":true}`, w.Body.String())
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodGet, "/api/v1/admin/orders", "u1", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListOrders(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodGet, "/api/v1/admin/orders", "admin-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeOrders(t, w)
	assert.Equal(t, []string{"b1", "b2", "b3"}, rowIDs(resp))
	assert.Equal(t, 3, resp.Summary.Count)
	assert.Equal(t, "₹1,560", resp.Summary.Revenue)
	assert.Equal(t, 3, resp.Total)

	w = env.do(http.MethodGet, "/api/v1/admin/orders?status=confirmed&subscription=all&date=2024-01-01&q=ghee", "admin-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeOrders(t, w)
	assert.Equal(t, []string{"b2"}, rowIDs(resp))
	assert.Equal(t, "₹1,400", resp.Summary.Revenue)
	assert.Equal(t, 3, resp.Total)
}

func TestListOrdersNoMatch(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodGet, "/api/v1/admin/orders?q=nothing-matches", "admin-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeOrders(t, w)
	require.Len(t, resp.Rows, 1)
	assert.True(t, resp.Rows[0].Placeholder)
	assert.Equal(t, 0, resp.Summary.Count)
}

func TestListOrdersInvalidFilter(t *testing.T) {
	env := setup(t, nil)

	for _, q := range []string{"status=shipped", "subscription=weekly", "date=01/02/2024"} {
		w := env.do(http.MethodGet, "/api/v1/admin/orders?"+q, "admin-1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodPatch, "/api/v1/admin/orders/b1/status", "admin-1", `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
	assert.Empty(t, env.mutator.calls)

	w = env.do(http.MethodPatch, "/api/v1/admin/orders/b1/status", "admin-1", `{"status":"shipped","confirm":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPatch, "/api/v1/admin/orders/missing/status", "admin-1", `{"status":"confirmed","confirm":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPatch, "/api/v1/admin/orders/b1/status?status=confirmed", "admin-1", `{"status":"confirmed","confirm":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"b1->confirmed"}, env.mutator.calls)
	assert.Equal(t, []string{"b1", "b2", "b3"}, rowIDs(decodeOrders(t, w)))
}

func TestCancelStatusDeletesUnderDeletePolicy(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodPatch, "/api/v1/admin/orders/b2/status", "admin-1", `{"status":"cancelled","confirm":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"b2:" + service.ReasonAdminCancel}, env.mutator.deleted)
	assert.Equal(t, []string{"b1", "b3"}, rowIDs(decodeOrders(t, w)))
}

func TestDeleteOrder(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodDelete, "/api/v1/admin/orders/b3", "admin-1", "")
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/admin/orders/b3?confirm=true", "admin-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeOrders(t, w)
	assert.Equal(t, []string{"b1", "b2"}, rowIDs(resp))
	assert.Equal(t, 2, resp.Summary.Count)
}

func TestExportOrders(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodGet, "/api/v1/admin/orders/export?status=confirmed", "admin-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "orders_")
	assert.NotZero(t, w.Body.Len())

	w = env.do(http.MethodGet, "/api/v1/admin/orders/export?q=nothing-matches", "admin-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "No orders to download", body["error"])
}

func TestExportFailureMessage(t *testing.T) {
	assert.Equal(t, "No orders to download", exportFailure(export.ErrNoOrders))

	writeErr := fmt.Errorf("failed to write workbook: %w", errors.New("disk full"))
	assert.Equal(t, "Failed to export orders", exportFailure(writeErr))
	assert.Equal(t, http.StatusInternalServerError, statusFor(writeErr))
}

func TestMyOrders(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodGet, "/api/v1/my/orders", "u1", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeOrders(t, w)
	assert.Equal(t, []string{"b1", "b3"}, rowIDs(resp))
	assert.True(t, resp.Rows[0].Cancellable)
	assert.False(t, resp.Rows[1].Cancellable)
}

func TestCancelMyOrder(t *testing.T) {
	env := setup(t, nil)

	w := env.do(http.MethodDelete, "/api/v1/my/orders/b3?confirm=true", "u1", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/my/orders/b2?confirm=true", "u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/my/orders/b1?confirm=true", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"b1:" + service.ReasonCustomerCancel}, env.mutator.deleted)
	assert.Equal(t, []string{"b3"}, rowIDs(decodeOrders(t, w)))
}

func TestCreateBooking(t *testing.T) {
	env := setup(t, nil)
	env.bookings.On("Create", mock.Anything, "u1", mock.MatchedBy(func(r *service.CreateBookingRequest) bool {
		return r.ProductID == "milk-1l" && r.IdempotencyKey == "req-1"
	})).Return(&service.CreateBookingResponse{BookingID: "b9", Status: models.StatusPending, TotalAmount: 180}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings",
		strings.NewReader(`{"product_id":"milk-1l","quantity":3,"name":"Asha","phone":"9876543210","address":"12 Lake Road, Pune"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer dev:u1")
	req.Header.Set("Idempotency-Key", "req-1")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"booking_id":"b9"`)
	env.bookings.AssertExpectations(t)
}

func TestCreateBookingValidationError(t *testing.T) {
	env := setup(t, nil)
	env.bookings.On("Create", mock.Anything, "u1", mock.Anything).Return(nil, &service.ValidationError{
		Fields: []service.FieldError{{Field: "phone", Message: "Phone number must be exactly 10 digits"}},
	})

	w := env.do(http.MethodPost, "/api/v1/bookings", "u1", `{"product_id":"milk-1l","quantity":1,"phone":"123"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Phone number must be exactly 10 digits")

	w = env.do(http.MethodPost, "/api/v1/bookings", "u1", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBooking(t *testing.T) {
	env := setup(t, nil)
	env.bookings.On("Receipt", mock.Anything, "u2", "b1", false).Return(nil, service.ErrForbidden)
	env.bookings.On("Receipt", mock.Anything, "admin-1", "b1", true).
		Return(&models.OrderView{ID: "b1", TotalAmount: 120, Status: models.StatusPending}, nil)

	w := env.do(http.MethodGet, "/api/v1/bookings/b1", "u2", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/api/v1/bookings/b1", "admin-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"amount":"₹120"`)
}

func TestGetProduct(t *testing.T) {
	env := setup(t, nil)
	env.bookings.On("Product", mock.Anything, "gone").Return(nil, service.ErrProductNotFound)
	env.bookings.On("Profile", mock.Anything, "u1").Return(&models.UserProfile{UserID: "u1", Name: "Asha"}, nil)

	w := env.do(http.MethodGet, "/api/v1/products/gone", "u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/profile", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Asha"`)
}
