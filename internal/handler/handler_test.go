package handler

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/loyalty-kart/internal/domain/apperr"
	"github.com/xenking/loyalty-kart/internal/domain/auth"
	"github.com/xenking/loyalty-kart/internal/domain/order"
	"github.com/xenking/loyalty-kart/internal/domain/payment"
	"github.com/xenking/loyalty-kart/internal/domain/product"
	"github.com/xenking/loyalty-kart/internal/domain/recommend"
	"github.com/xenking/loyalty-kart/internal/storage/memory"
)

type testAPI struct {
	mux   *http.ServeMux
	store *memory.Store
}

func newTestAPI(t *testing.T, paymentRate float64) *testAPI {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []product.Product{
		{ID: "p1", Name: "Phone", Price: decimal.NewFromInt(500), StockQuantity: 5, Category: "Smartphones", ImageURL: "phone.jpg", Rating: 4.5, IsActive: true, CreatedAt: created},
		{ID: "p2", Name: "Laptop", Price: decimal.NewFromInt(1500), StockQuantity: 1, Category: "Laptops", Rating: 4.8, IsActive: true, CreatedAt: created},
		{ID: "p3", Name: "Pager", Price: decimal.NewFromInt(10), StockQuantity: 9, Category: "Smartphones", IsActive: false, CreatedAt: created},
	} {
		require.NoError(t, s.Products().Upsert(ctx, p))
	}
	require.NoError(t, s.Products().UpsertCategory(ctx, product.Category{ID: "c1", Name: "Smartphones"}))

	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	reco := recommend.NewService(s.Products(), s.Orders(), nil)
	orders, err := order.NewService(s, s.Products(), s.Users(), s.Orders(), s.Outbox(),
		order.WithAfterCommit(reco.Invalidate),
	)
	require.NoError(t, err)

	h := NewHandler(HandlerConfig{ImageBaseURL: "https://cdn.test/img/"}, Deps{
		Auth:      auth.NewService(s.Users(), issuer),
		Products:  s.Products(),
		Users:     s.Users(),
		Orders:    orders,
		Recommend: reco,
		Payments:  payment.NewSimulator(s.Orders(), paymentRate, rand.NewPCG(1, 2)),
	})
	mux := http.NewServeMux()
	h.Register(mux)
	return &testAPI{mux: mux, store: s}
}

func (a *testAPI) do(t *testing.T, method, path, token, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (a *testAPI) list(t *testing.T, method, path, token string) []map[string]any {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	rec, body := a.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"`+email+`","name":"Asha","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return body["token"].(string)
}

func TestRoot(t *testing.T) {
	api := newTestAPI(t, 1)
	rec, body := api.do(t, http.MethodGet, "/api/", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, Banner, body["message"])
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t, 1)

	rec, body := api.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"asha@example.com","name":"Asha","password":"s3cret","phone":"+91"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, body["token"])
	u := body["user"].(map[string]any)
	assert.Equal(t, float64(auth.WelcomeBonus), u["loyalty_points"])
	assert.Equal(t, "bronze", u["loyalty_tier"])

	rec, body = api.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"ASHA@example.com","name":"Asha","password":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", body["kind"])

	rec, body = api.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"asha@example.com","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Login successful", body["message"])

	rec, body = api.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"asha@example.com","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, float64(http.StatusUnauthorized), body["code"])
	assert.Equal(t, "unauthorized", body["kind"])
}

func TestDecodeRejectsBadBodies(t *testing.T) {
	api := newTestAPI(t, 1)
	tests := []struct {
		name string
		body string
	}{
		{"empty", ``},
		{"not object", `[1,2]`},
		{"unknown field", `{"email":"a@b.c","password":"x","admin":true}`},
		{"wrong type", `{"email":1,"password":"x"}`},
		{"trailing data", `{"email":"a@b.c","password":"x"} {}`},
		{"malformed", `{"email":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := api.do(t, http.MethodPost, "/api/auth/login", "", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation", body["kind"])
		})
	}
}

func TestProducts(t *testing.T) {
	api := newTestAPI(t, 1)

	all := api.list(t, http.MethodGet, "/api/products", "")
	require.Len(t, all, 2)
	assert.Equal(t, "p1", all[0]["id"])
	assert.Equal(t, "https://cdn.test/img/phone.jpg", all[0]["image_url"])
	assert.Equal(t, 500.0, all[0]["price"])

	phones := api.list(t, http.MethodGet, "/api/products?category=smartphones", "")
	require.Len(t, phones, 1)
	assert.Equal(t, "p1", phones[0]["id"])

	limited := api.list(t, http.MethodGet, "/api/products?limit=1", "")
	assert.Len(t, limited, 1)

	rec, _ := api.do(t, http.MethodGet, "/api/products?limit=zero", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := api.do(t, http.MethodGet, "/api/products/p2", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Laptop", body["name"])
	assert.Equal(t, "", body["image_url"])

	for _, id := range []string{"p3", "nope"} {
		rec, body = api.do(t, http.MethodGet, "/api/products/"+id, "", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, id, body["entity"])
	}

	categories := api.list(t, http.MethodGet, "/api/categories", "")
	require.Len(t, categories, 1)
	assert.Equal(t, "Smartphones", categories[0]["name"])
}

func TestOrders_RequireToken(t *testing.T) {
	api := newTestAPI(t, 1)
	for _, token := range []string{"", "garbage"} {
		rec, body := api.do(t, http.MethodGet, "/api/orders", token, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", body["kind"])
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	}
}

func TestPlaceOrder(t *testing.T) {
	api := newTestAPI(t, 1)
	token := api.register(t, "asha@example.com")

	const cart = `{"items":[{"product_id":"p1","quantity":2}],"shipping_address":"12 MG Road","loyalty_points_to_use":50}`
	key := map[string]string{IdempotencyKeyHeader: "checkout-1"}

	rec, body := api.do(t, http.MethodPost, "/api/orders", token, cart, key)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 950.0, body["total_amount"])
	assert.Equal(t, 50.0, body["discount_amount"])
	assert.Equal(t, 9.0, body["loyalty_points_earned"])
	assert.Equal(t, 59.0, body["new_loyalty_points"])
	assert.Equal(t, "bronze", body["new_tier"])
	assert.Equal(t, false, body["replayed"])
	orderID := body["order_id"].(string)

	rec, body = api.do(t, http.MethodPost, "/api/orders", token, cart, key)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, orderID, body["order_id"])

	p, err := api.store.Products().GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.StockQuantity)

	orders := api.list(t, http.MethodGet, "/api/orders", token)
	require.Len(t, orders, 1)
	assert.Equal(t, orderID, orders[0]["id"])
	assert.Equal(t, "UPI", orders[0]["payment_method"])
	assert.Equal(t, "pending", orders[0]["payment_status"])
	assert.Equal(t, "placed", orders[0]["order_status"])
}

func TestPlaceOrder_Failures(t *testing.T) {
	api := newTestAPI(t, 1)
	token := api.register(t, "asha@example.com")

	tests := []struct {
		name   string
		body   string
		status int
		entity string
	}{
		{"insufficient stock", `{"items":[{"product_id":"p2","quantity":2}],"shipping_address":"x"}`, http.StatusBadRequest, "p2"},
		{"unknown product", `{"items":[{"product_id":"zz","quantity":1}],"shipping_address":"x"}`, http.StatusNotFound, "zz"},
		{"inactive product", `{"items":[{"product_id":"p3","quantity":1}],"shipping_address":"x"}`, http.StatusNotFound, "p3"},
		{"zero quantity", `{"items":[{"product_id":"p1","quantity":0}],"shipping_address":"x"}`, http.StatusBadRequest, "p1"},
		{"quantity past max", `{"items":[{"product_id":"p1","quantity":2147483648}],"shipping_address":"x"}`, http.StatusBadRequest, "p1"},
		{"duplicate lines wrapping", `{"items":[{"product_id":"p1","quantity":4611686018427387904},{"product_id":"p1","quantity":4611686018427387904}],"shipping_address":"x"}`, http.StatusBadRequest, "p1"},
		{"no items", `{"items":[],"shipping_address":"x"}`, http.StatusBadRequest, ""},
		{"no address", `{"items":[{"product_id":"p1","quantity":1}]}`, http.StatusBadRequest, ""},
		{"unknown item field", `{"items":[{"product_id":"p1","quantity":1,"price":1}],"shipping_address":"x"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := api.do(t, http.MethodPost, "/api/orders", token, tt.body, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.entity != "" {
				assert.Equal(t, tt.entity, body["entity"])
			} else {
				assert.NotContains(t, body, "entity")
			}
		})
	}

	p, err := api.store.Products().GetByID(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, 1, p.StockQuantity)
}

func TestLoyaltyStatus(t *testing.T) {
	api := newTestAPI(t, 1)
	token := api.register(t, "asha@example.com")

	rec, body := api.do(t, http.MethodGet, "/api/loyalty/status", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100.0, body["points"])
	assert.Equal(t, "bronze", body["tier"])
	assert.Equal(t, 0.0, body["total_spent"])

	benefits := body["benefits"].(map[string]any)
	require.Len(t, benefits, 4)
	silver := benefits["silver"].(map[string]any)
	assert.Equal(t, "10%", silver["discount"])
	assert.Equal(t, true, silver["free_shipping"])
	assert.Equal(t, false, silver["priority_support"])
}

func TestRecommendations(t *testing.T) {
	api := newTestAPI(t, 1)
	token := api.register(t, "asha@example.com")

	fresh := api.list(t, http.MethodGet, "/api/recommendations", token)
	require.Len(t, fresh, 2)
	assert.Equal(t, "p2", fresh[0]["id"])

	rec, _ := api.do(t, http.MethodPost, "/api/orders", token,
		`{"items":[{"product_id":"p1","quantity":1}],"shipping_address":"x"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	after := api.list(t, http.MethodGet, "/api/recommendations?limit=3", token)
	require.Len(t, after, 1)
	assert.Equal(t, "p1", after[0]["id"])

	rec, _ = api.do(t, http.MethodGet, "/api/recommendations?limit=-1", token, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulatePayment(t *testing.T) {
	api := newTestAPI(t, 1)
	token := api.register(t, "asha@example.com")
	other := api.register(t, "ravi@example.com")

	_, placed := api.do(t, http.MethodPost, "/api/orders", token,
		`{"items":[{"product_id":"p1","quantity":1}],"shipping_address":"x"}`, nil)
	orderID := placed["order_id"].(string)

	rec, body := api.do(t, http.MethodPost, "/api/payment/simulate", other,
		`{"order_id":"`+orderID+`","payment_method":"Card"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["kind"])

	rec, body = api.do(t, http.MethodPost, "/api/payment/simulate", token,
		`{"order_id":"`+orderID+`","payment_method":"Card"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Payment via Card successful", body["message"])

	o, err := api.store.Orders().GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, order.StatusConfirmed, o.Status)

	rec, _ = api.do(t, http.MethodPost, "/api/payment/simulate", token, `{"payment_method":"Card"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulatePayment_Declined(t *testing.T) {
	api := newTestAPI(t, 0)
	token := api.register(t, "asha@example.com")
	_, placed := api.do(t, http.MethodPost, "/api/orders", token,
		`{"items":[{"product_id":"p1","quantity":1}],"shipping_address":"x"}`, nil)

	rec, body := api.do(t, http.MethodPost, "/api/payment/simulate", token,
		`{"order_id":"`+placed["order_id"].(string)+`","payment_method":"UPI"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", body["status"])
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", order.ErrEmptyItems, http.StatusBadRequest, "items required"},
		{"unauthorized", errMissingToken, http.StatusUnauthorized, "bearer token required"},
		{"not found", errors.Wrap(order.ErrNotFound, "get order"), http.StatusNotFound, "order not found"},
		{"conflict", product.ErrInsufficientStock, http.StatusConflict, "insufficient stock"},
		{"transient", apperr.AsTransient(errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "service temporarily unavailable, retry later"},
		{"internal", errors.New("pq: relation missing"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, float64(tt.status), body["code"])
			assert.Equal(t, apperr.KindOf(tt.err).String(), body["kind"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}
