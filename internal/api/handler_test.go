package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/store/storetest"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error { return nil }
func (nopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}
func (nopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}

type nopIdempotency struct{}

func (nopIdempotency) GetIdempotentOrder(context.Context, int64, string) (int64, bool, error) {
	return 0, false, nil
}
func (nopIdempotency) SetIdempotentOrder(context.Context, int64, string, int64, time.Duration) error {
	return nil
}

type emptyMirror struct{}

func (emptyMirror) GetStock(context.Context, int64) (int, bool, error) { return 0, false, nil }
func (emptyMirror) SetStock(context.Context, int64, int, int64) (bool, error) {
	return true, nil
}

func (emptyMirror) DeleteStock(context.Context, int64) error { return nil }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	router *gin.Engine
	mem    *storetest.Memory
	auth   *Authenticator
	checks map[string]Pinger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := storetest.New()
	cfg := config.BusinessConfig{OrderTxTimeout: 5 * time.Second, IdempotencyTTL: time.Hour}
	orders := service.NewOrderService(mem, nopIdempotency{}, nopPublisher{}, cfg)
	carts := service.NewCartService(mem)
	catalog := service.NewCatalogService(mem, service.NewInventoryClient(mem, emptyMirror{}))
	auth := NewAuthenticator("test-secret", "jwt")
	checks := map[string]Pinger{"database": mem}

	router := gin.New()
	NewHandler(orders, carts, catalog, auth, checks).SetupRoutes(router)
	return &testServer{router: router, mem: mem, auth: auth, checks: checks}
}

func (s *testServer) token(t *testing.T, userID int64, role models.Role) string {
	t.Helper()
	token, err := s.auth.Issue(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *testServer) addProduct(stock int) models.Product {
	return s.mem.AddProduct(models.Product{
		Name:     "Phone",
		Price:    decimal.RequireFromString("199.99"),
		Category: "Phones",
		Stock:    stock,
	})
}

func TestOrderFlow(t *testing.T) {
	s := newTestServer(t)
	p := s.addProduct(10)
	buyer := s.token(t, 1, models.RoleUser)

	code, _ := s.do(t, http.MethodPost, "/api/v1/cart/items", buyer, gin.H{"product_id": p.ID, "quantity": 3})
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPost, "/api/v1/orders", buyer, nil)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "599.97", body["total_amount"])
	orderID := int64(body["id"].(float64))

	stored, _ := s.mem.Product(p.ID)
	assert.Equal(t, 7, stored.Stock)

	code, body = s.do(t, http.MethodGet, "/api/v1/orders/my", buyer, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["orders"], 1)

	path := "/api/v1/orders/" + itoa(orderID)
	code, body = s.do(t, http.MethodPost, path+"/cancel", buyer, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "cancelled", body["status"])

	stored, _ = s.mem.Product(p.ID)
	assert.Equal(t, 10, stored.Stock)

	code, body = s.do(t, http.MethodPost, path+"/cancel", buyer, nil)
	assert.Equal(t, http.StatusConflict, code)
	details := body["details"].(map[string]interface{})
	assert.Equal(t, "cancelled", details["current_status"])
}

func TestCreateOrder_Errors(t *testing.T) {
	s := newTestServer(t)
	p := s.addProduct(5)
	buyer := s.token(t, 1, models.RoleUser)

	code, body := s.do(t, http.MethodPost, "/api/v1/orders", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "cart: cart is empty", body["error"])

	require.NoError(t, s.mem.SetCartItem(context.Background(), 1, p.ID, 6))
	code, body = s.do(t, http.MethodPost, "/api/v1/orders", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	details := body["details"].(map[string]interface{})
	assert.Equal(t, float64(5), details["available"])
	assert.Equal(t, float64(6), details["requested"])

	require.NoError(t, s.mem.SetCartItem(context.Background(), 1, 999, 1))
	require.NoError(t, s.mem.DeleteCartItem(context.Background(), 1, p.ID))
	code, _ = s.do(t, http.MethodPost, "/api/v1/orders", buyer, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSetOrderStatus(t *testing.T) {
	s := newTestServer(t)
	p := s.addProduct(5)
	buyer := s.token(t, 1, models.RoleUser)
	admin := s.token(t, 99, models.RoleAdmin)

	require.NoError(t, s.mem.SetCartItem(context.Background(), 1, p.ID, 1))
	code, body := s.do(t, http.MethodPost, "/api/v1/orders", buyer, nil)
	require.Equal(t, http.StatusCreated, code)
	path := "/api/v1/orders/" + itoa(int64(body["id"].(float64))) + "/status"

	code, _ = s.do(t, http.MethodPatch, path, s.token(t, 2, models.RoleUser), gin.H{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodPatch, path, admin, gin.H{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPatch, path, admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPatch, path, admin, gin.H{"status": "confirmed"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "confirmed", body["status"])

	code, _ = s.do(t, http.MethodPatch, path, admin, gin.H{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/orders", buyer, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, body = s.do(t, http.MethodGet, "/api/v1/orders", admin, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["orders"], 1)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/cart", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	other := NewAuthenticator("other-secret", "jwt")
	forged, err := other.Issue(1, models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	code, _ = s.do(t, http.MethodGet, "/api/v1/cart", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	expired, err := s.auth.Issue(1, models.RoleUser, -time.Minute)
	require.NoError(t, err)
	code, _ = s.do(t, http.MethodGet, "/api/v1/cart", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// Cookie transport.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: s.token(t, 1, models.RoleUser)})
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticator_Parse(t *testing.T) {
	a := NewAuthenticator("secret", "jwt")

	token, err := a.Issue(42, models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	actor, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{UserID: 42, Role: models.RoleAdmin}, actor)

	token, err = a.Issue(42, models.Role("root"), time.Hour)
	require.NoError(t, err)
	_, err = a.Parse(token)
	assert.Error(t, err)
}

func TestProducts(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, 99, models.RoleAdmin)
	buyer := s.token(t, 1, models.RoleUser)
	product := gin.H{"name": "Laptop Pro", "price": "1299.00", "category": "Laptops", "stock": 4}

	code, _ := s.do(t, http.MethodPost, "/api/v1/products", buyer, product)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.do(t, http.MethodPost, "/api/v1/products", admin, product)
	require.Equal(t, http.StatusCreated, code, body)
	id := itoa(int64(body["id"].(float64)))

	code, body = s.do(t, http.MethodGet, "/api/v1/products/"+id, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Laptop Pro", body["name"])

	code, body = s.do(t, http.MethodGet, "/api/v1/products/"+id+"/availability", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(4), body["available"])

	code, body = s.do(t, http.MethodGet, "/api/v1/products?category=Laptops&sort=price&order=desc", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])

	code, _ = s.do(t, http.MethodGet, "/api/v1/products?minPrice=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPut, "/api/v1/products/"+id, admin,
		gin.H{"name": "Laptop Pro", "price": "1199.00", "category": "Laptops", "stock": 10})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/products/"+id, admin, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/products/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCartEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.addProduct(3)
	buyer := s.token(t, 1, models.RoleUser)
	item := "/api/v1/cart/items/" + itoa(p.ID)

	code, _ := s.do(t, http.MethodPost, "/api/v1/cart/items", buyer, gin.H{"product_id": p.ID, "quantity": 4})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPut, item, buyer, gin.H{"quantity": 2})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/cart/items", buyer, gin.H{"product_id": p.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPut, item, buyer, gin.H{"quantity": 2})
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, float64(2), items[0].(map[string]interface{})["quantity"])

	code, _ = s.do(t, http.MethodDelete, item, buyer, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/cart", buyer, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	s.checks["redis"] = pingFunc(func(context.Context) error { return errors.New("connection refused") })
	code, body = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "connection refused", checks["redis"])
	assert.Equal(t, "ok", checks["database"])
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
