package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/bookstore/internal/api/middleware"
	"github.com/d60-Lab/bookstore/internal/config"
	"github.com/d60-Lab/bookstore/internal/gateway"
	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/internal/repository"
	"github.com/d60-Lab/bookstore/internal/service"
	"github.com/d60-Lab/bookstore/internal/telemetry"
)

const (
	e2eSecret     = "e2e-jwt-secret"
	e2eHashSecret = "e2e-hash-secret"
)

type e2e struct {
	t     *testing.T
	app   *application
	user  string
	admin string
}

func newE2E(t *testing.T) *e2e {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode, NodeID: 3},
		Database:  config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		Notify:    config.NotifyConfig{Workers: 2, SendTimeout: time.Second},
		Inventory: config.InventoryConfig{LowStockThreshold: 5},
		JWT:       config.JWTConfig{Secret: e2eSecret, Issuer: "bookstore"},
		Telemetry: config.TelemetryConfig{ServiceName: "bookstore-test"},
		Gateway: config.GatewayConfig{
			PayURL:     "https://pay.example.com/vpcpay.html",
			TmnCode:    "TMN01",
			HashSecret: e2eHashSecret,
			ReturnURL:  "http://localhost/api/v1/payment/gateway-return",
			SuccessURL: "http://shop.local/ok",
			FailureURL: "http://shop.local/fail",
		},
	}
	db, err := repository.Open(cfg.Database)
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() { _ = repository.Close(db) })

	app, err := build(cfg, db, nil, telemetry.NoopMetrics())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.dispatcher.Close(time.Second) })

	u := &model.User{Email: "reader@example.com", FullName: "Reader", Phone: "0900000000", Address: "1 Book St"}
	a := &model.User{Email: "admin@example.com", FullName: "Admin", Role: model.RoleAdmin}
	require.NoError(t, db.Create(u).Error)
	require.NoError(t, db.Create(a).Error)
	require.NoError(t, db.Create(&model.Product{ID: 100, Name: "The Go Programming Language", Price: decimal.NewFromInt(200000), Discount: 10, StockQuantity: 10, Active: true}).Error)

	userToken, err := middleware.NewToken(e2eSecret, "bookstore", u.ID, model.RoleUser, time.Hour)
	require.NoError(t, err)
	adminToken, err := middleware.NewToken(e2eSecret, "bookstore", a.ID, model.RoleAdmin, time.Hour)
	require.NoError(t, err)

	return &e2e{t: t, app: app, user: userToken, admin: adminToken}
}

func (e *e2e) call(method, target, token, body string, out interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.app.engine.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		env := struct {
			Data interface{} `json:"data"`
		}{Data: out}
		require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w
}

func TestServerCheckoutPayShipReview(t *testing.T) {
	e := newE2E(t)

	var cart model.CartView
	require.Equal(t, http.StatusOK, e.call(http.MethodPost, "/api/v1/cart/items/100?quantity=2", e.user, "", &cart).Code)
	assert.True(t, cart.TotalAmount.Equal(decimal.NewFromInt(360000)))

	var order model.Order
	w := e.call(http.MethodPost, "/api/v1/orders/checkout", e.user, `{"use_user_address":true}`, &order)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(360000)))

	var pay service.PaymentResult
	w = e.call(http.MethodPost, "/api/v1/payment/order", e.user, fmt.Sprintf(`{"order_id":%d,"method":"GATEWAY"}`, order.OrderID), &pay)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(pay.PaymentURL, "https://pay.example.com/vpcpay.html?"))

	params := gateway.SignParams(e2eHashSecret, url.Values{
		"vnp_Amount":            {"36000000"},
		"vnp_TxnRef":            {pay.TxnRef},
		"vnp_ResponseCode":      {"00"},
		"vnp_TransactionStatus": {"00"},
		"vnp_TransactionNo":     {"14000001"},
	})
	w = e.call(http.MethodGet, "/api/v1/payment/gateway-return?"+params.Encode(), "", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("http://shop.local/ok?orderId=%d", order.OrderID), w.Header().Get("Location"))

	// 重复回调不重复记账
	w = e.call(http.MethodGet, "/api/v1/payment/gateway-return?"+params.Encode(), "", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)

	statusURL := fmt.Sprintf("/api/v1/orders/%d/status?status=", order.OrderID)
	assert.Equal(t, http.StatusForbidden, e.call(http.MethodPut, statusURL+"SHIPPED", e.user, "", nil).Code)
	require.Equal(t, http.StatusOK, e.call(http.MethodPut, statusURL+"SHIPPED", e.admin, "", nil).Code)

	reviewURL := fmt.Sprintf("/api/v1/reviews/orders/%d/products/100?rating=5&comment=great", order.OrderID)
	assert.Equal(t, http.StatusForbidden, e.call(http.MethodPost, reviewURL, e.user, "", nil).Code, "not delivered yet")

	require.Equal(t, http.StatusOK, e.call(http.MethodPut, statusURL+"DELIVERED", e.admin, "", nil).Code)
	require.Equal(t, http.StatusOK, e.call(http.MethodPost, reviewURL, e.user, "", nil).Code)
	assert.Equal(t, http.StatusConflict, e.call(http.MethodPost, reviewURL, e.user, "", nil).Code)

	var got model.Order
	require.Equal(t, http.StatusOK, e.call(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", order.OrderID), e.user, "", &got).Code)
	assert.Equal(t, model.OrderStatusDelivered, got.Status)

	var cartAfter model.CartView
	require.Equal(t, http.StatusOK, e.call(http.MethodGet, "/api/v1/cart", e.user, "", &cartAfter).Code)
	assert.Empty(t, cartAfter.Items)
}

func TestServerCancelRestoresStock(t *testing.T) {
	e := newE2E(t)

	var order model.Order
	w := e.call(http.MethodPost, "/api/v1/orders", e.user, `{"items":[{"product_id":100,"quantity":9}],"use_user_address":true}`, &order)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.call(http.MethodPost, "/api/v1/orders", e.user, `{"items":[{"product_id":100,"quantity":2}],"use_user_address":true}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "only one left in stock")

	cancelURL := fmt.Sprintf("/api/v1/orders/%d/cancel", order.OrderID)
	require.Equal(t, http.StatusOK, e.call(http.MethodPut, cancelURL, e.user, "", nil).Code)
	assert.Equal(t, http.StatusConflict, e.call(http.MethodPut, cancelURL, e.user, "", nil).Code)

	w = e.call(http.MethodPost, "/api/v1/orders", e.user, `{"items":[{"product_id":100,"quantity":10}],"use_user_address":true}`, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestServerRejectsAnonymousAndForgedCallbacks(t *testing.T) {
	e := newE2E(t)

	assert.Equal(t, http.StatusUnauthorized, e.call(http.MethodGet, "/api/v1/cart", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, e.call(http.MethodGet, "/api/v1/products/100", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, e.call(http.MethodGet, "/healthz", "", "", nil).Code)

	forged := url.Values{"vnp_TxnRef": {"1-abc"}, "vnp_ResponseCode": {"00"}, "vnp_Amount": {"100"}, "vnp_SecureHash": {"deadbeef"}}
	w := e.call(http.MethodGet, "/api/v1/payment/gateway-return?"+forged.Encode(), "", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "http://shop.local/fail?"))
}
