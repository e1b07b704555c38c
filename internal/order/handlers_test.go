package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antonminaichev/agroconnect/internal/middleware"
	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/antonminaichev/agroconnect/internal/types/user"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	tokens map[string]*user.User
}

func (a *stubAuth) Authenticate(ctx context.Context, token string) (*user.User, error) {
	u, ok := a.tokens[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return u, nil
}

type handlerFixture struct {
	*fixture
	h      *Handler
	router chi.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture(t)
	auth := &stubAuth{tokens: map[string]*user.User{
		"farmer-token":   {ID: f.farmerA, Login: "farmer-a", Role: user.RoleFarmer},
		"customer-token": {ID: f.customer, Login: "customer", Role: user.RoleCustomer},
	}}
	h := NewHandler(f.svc, NewStreamer(f.versions, 10*time.Millisecond), auth)

	r := chi.NewRouter()
	r.Get("/api/farmer/orders/stream", h.Stream)
	r.Mount("/api/orders", h.CustomerRoutes())
	r.Mount("/api/farmer/orders", h.FarmerRoutes())
	return &handlerFixture{fixture: f, h: h, router: r}
}

func (hf *handlerFixture) do(method, path, body string, userID int64, role user.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUser(req.Context(), userID, role))
	rec := httptest.NewRecorder()
	hf.router.ServeHTTP(rec, req)
	return rec
}

const deliveryJSON = `"delivery_address":{"name":"Asha","phone":"99","address_line1":"12 Market Road","city":"Pune","state":"MH","postal_code":"411001"}`

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestHandlerPlaceOrder(t *testing.T) {
	hf := newHandlerFixture(t)
	tomato := hf.addCrop(t, hf.farmerA, "Tomato", "12.50", 10)

	body := fmt.Sprintf(`{"items":[{"crop_id":%d,"quantity_kg":4}],"payment_method":"COD",%s}`, tomato, deliveryJSON)
	rec := hf.do(http.MethodPost, "/api/orders/place", body, hf.customer, user.RoleCustomer)
	require.Equal(t, http.StatusCreated, rec.Code)

	var o order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&o))
	assert.Equal(t, hf.customer, o.CustomerID)
	assert.Equal(t, "50", o.TotalAmount.String())
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Tomato", o.Items[0].CropName)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"bad json", `{"items":`, http.StatusBadRequest, "invalid JSON body"},
		{"bad method", `{"items":[{"crop_id":1,"quantity_kg":1}],"payment_method":"BTC"}`, http.StatusBadRequest, "invalid payment method"},
		{"no items", `{"items":[]}`, http.StatusBadRequest, "no items provided"},
		{"missing address", `{"items":[{"crop_id":1,"quantity_kg":1}],"delivery_address":{"name":"A","city":"P"}}`,
			http.StatusBadRequest, "missing delivery address fields: phone, address_line1, state, postal_code"},
		{"over stock", fmt.Sprintf(`{"items":[{"crop_id":%d,"quantity_kg":7}],%s}`, tomato, deliveryJSON),
			http.StatusBadRequest, "insufficient stock for Tomato"},
		{"unknown crop", fmt.Sprintf(`{"items":[{"crop_id":999,"quantity_kg":1}],%s}`, deliveryJSON),
			http.StatusNotFound, "crop not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hf.do(http.MethodPost, "/api/orders/place", tt.body, hf.customer, user.RoleCustomer)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, errorBody(t, rec))
		})
	}
}

func TestHandlerUpdateStatus(t *testing.T) {
	hf := newHandlerFixture(t)
	tomato := hf.addCrop(t, hf.farmerA, "Tomato", "12.50", 10)
	o, err := hf.svc.PlaceOrder(context.Background(), hf.customer, placeInput(order.PaymentCOD, ItemInput{CropID: tomato, QuantityKg: 4}))
	require.NoError(t, err)
	path := fmt.Sprintf("/api/farmer/orders/%d/status", o.ID)

	rec := hf.do(http.MethodPatch, path, `{"status":"SHIPPED"}`, hf.farmerA, user.RoleFarmer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hf.do(http.MethodPatch, path, `{"status":"CANCELLED"}`, hf.farmerB, user.RoleFarmer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "you are not allowed to update this order", errorBody(t, rec))

	rec = hf.do(http.MethodPatch, "/api/farmer/orders/999/status", `{"status":"CANCELLED"}`, hf.farmerA, user.RoleFarmer)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = hf.do(http.MethodPatch, path, `{"status":"CANCELLED"}`, hf.farmerA, user.RoleFarmer)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, statusResp{Message: "Order cancelled successfully", OrderID: o.ID, Status: order.StatusCancelled}, resp)

	rec = hf.do(http.MethodPatch, path, `{"status":"CONFIRMED"}`, hf.farmerA, user.RoleFarmer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "order status cannot be changed", errorBody(t, rec))

	rec = hf.do(http.MethodGet, fmt.Sprintf("/api/farmer/orders/%d/history", o.ID), "", hf.farmerA, user.RoleFarmer)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []order.StatusHistory
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	assert.Len(t, history, 1)
}

func TestHandlerListings(t *testing.T) {
	hf := newHandlerFixture(t)
	tomato := hf.addCrop(t, hf.farmerA, "Tomato", "12.50", 10)
	for range 3 {
		_, err := hf.svc.PlaceOrder(context.Background(), hf.customer, placeInput(order.PaymentCOD, ItemInput{CropID: tomato, QuantityKg: 1}))
		require.NoError(t, err)
	}

	rec := hf.do(http.MethodGet, "/api/farmer/orders", "", hf.farmerA, user.RoleFarmer)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []order.FarmerOrderItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	assert.Len(t, rows, 3)

	rec = hf.do(http.MethodGet, "/api/farmer/orders?page=2&page_size=2&sort=oldest", "", hf.farmerA, user.RoleFarmer)
	require.Equal(t, http.StatusOK, rec.Code)
	var page order.Page[order.FarmerOrderItem]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, 3, page.Count)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	assert.Len(t, page.Results, 1)

	rec = hf.do(http.MethodGet, "/api/farmer/orders?page=abc", "", hf.farmerA, user.RoleFarmer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hf.do(http.MethodGet, "/api/orders", "", hf.customer, user.RoleCustomer)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&orders))
	assert.Len(t, orders, 3)

	rec = hf.do(http.MethodGet, "/api/orders?page_size=1", "", hf.customer, user.RoleCustomer)
	require.Equal(t, http.StatusOK, rec.Code)
	var cpage order.Page[order.Order]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cpage))
	assert.Equal(t, 3, cpage.Count)
	assert.Len(t, cpage.Results, 1)
}

func TestHandlerStreamAuth(t *testing.T) {
	hf := newHandlerFixture(t)

	tests := []struct {
		name   string
		target string
		header string
	}{
		{"no token", "/api/farmer/orders/stream", ""},
		{"invalid token", "/api/farmer/orders/stream?token=nope", ""},
		{"customer token", "/api/farmer/orders/stream?token=customer-token", ""},
		{"customer header", "/api/farmer/orders/stream", "Bearer customer-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			hf.router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestHandlerStreamEmitsReady(t *testing.T) {
	hf := newHandlerFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/farmer/orders/stream?token=farmer-token", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	hf.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "event: ready\ndata: ok\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestHandlerHistoryUnknownOrderIsNotFound(t *testing.T) {
	hf := newHandlerFixture(t)
	tomato := hf.addCrop(t, hf.farmerA, "Tomato", "12.50", 10)
	o, err := hf.svc.PlaceOrder(context.Background(), hf.customer, placeInput(order.PaymentCOD, ItemInput{CropID: tomato, QuantityKg: 1}))
	require.NoError(t, err)

	rec := hf.do(http.MethodGet, "/api/farmer/orders/999/history", "", hf.farmerA, user.RoleFarmer)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order not found", errorBody(t, rec))

	rec = hf.do(http.MethodGet, fmt.Sprintf("/api/farmer/orders/%d/history", o.ID), "", hf.farmerB, user.RoleFarmer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerPlaceOrderUpperBounds(t *testing.T) {
	hf := newHandlerFixture(t)
	premium := hf.addCrop(t, hf.farmerA, "Saffron", "999999.99", 1000)

	body := fmt.Sprintf(`{"items":[{"crop_id":%d,"quantity_kg":1000001}],%s}`, premium, deliveryJSON)
	rec := hf.do(http.MethodPost, "/api/orders/place", body, hf.customer, user.RoleCustomer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrInvalidQuantity.Error(), errorBody(t, rec))

	body = fmt.Sprintf(`{"items":[{"crop_id":%d,"quantity_kg":101}],%s}`, premium, deliveryJSON)
	rec = hf.do(http.MethodPost, "/api/orders/place", body, hf.customer, user.RoleCustomer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "order total must not exceed 99999999.99", errorBody(t, rec))
	assert.Equal(t, int64(1000), hf.stock(t, premium), "rejected order leaves stock untouched")
}

func TestHandlerDashboards(t *testing.T) {
	hf := newHandlerFixture(t)
	hf.router.Get("/api/farmer/dashboard", hf.h.FarmerDashboard)
	hf.router.Get("/api/customer/dashboard", hf.h.CustomerDashboard)
	tomato := hf.addCrop(t, hf.farmerA, "Tomato", "12.50", 10)
	_, err := hf.svc.PlaceOrder(context.Background(), hf.customer, placeInput(order.PaymentCOD, ItemInput{CropID: tomato, QuantityKg: 2}))
	require.NoError(t, err)

	rec := hf.do(http.MethodGet, "/api/farmer/dashboard", "", hf.farmerA, user.RoleFarmer)
	require.Equal(t, http.StatusOK, rec.Code)
	var farmer struct {
		Metrics order.FarmerStats `json:"metrics"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&farmer))
	assert.Equal(t, 1, farmer.Metrics.TotalCrops)
	assert.Equal(t, int64(8), farmer.Metrics.TotalStockKg)
	assert.Equal(t, 1, farmer.Metrics.PendingOrders)
	assert.Equal(t, 1, farmer.Metrics.RecentOrders)

	rec = hf.do(http.MethodGet, "/api/customer/dashboard", "", hf.customer, user.RoleCustomer)
	require.Equal(t, http.StatusOK, rec.Code)
	var customer struct {
		Metrics order.CustomerStats `json:"metrics"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&customer))
	assert.Equal(t, 1, customer.Metrics.TotalOrders)
	assert.True(t, customer.Metrics.TotalSpent.IsZero(), "pending orders are not spent")
}
