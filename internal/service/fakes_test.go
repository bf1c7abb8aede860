package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	changed   []*models.OrderStatusChangedEvent
	cancelled []*models.OrderCancelledEvent
	err       error
}

func (p *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return p.err
}

func (p *fakePublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

func (p *fakePublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return p.err
}

type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: map[string]int64{}}
}

func (c *fakeIdempotency) GetIdempotentOrder(_ context.Context, userID int64, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.keys[fmt.Sprintf("%d:%s", userID, key)]
	return id, ok, nil
}

func (c *fakeIdempotency) SetIdempotentOrder(_ context.Context, userID int64, key string, orderID int64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[fmt.Sprintf("%d:%s", userID, key)] = orderID
	return nil
}

type mirrorEntry struct {
	available int
	version   int64
}

type fakeMirror struct {
	mu      sync.Mutex
	entries map[int64]mirrorEntry
	readErr error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{entries: map[int64]mirrorEntry{}}
}

func (m *fakeMirror) GetStock(_ context.Context, productID int64) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, false, m.readErr
	}
	e, ok := m.entries[productID]
	return e.available, ok, nil
}

func (m *fakeMirror) SetStock(_ context.Context, productID int64, available int, version int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[productID]; ok && cur.version >= version {
		return false, nil
	}
	m.entries[productID] = mirrorEntry{available: available, version: version}
	return true, nil
}

func (m *fakeMirror) DeleteStock(_ context.Context, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, productID)
	return nil
}

type fixture struct {
	mem     *storetest.Memory
	orders  *OrderService
	carts   *CartService
	catalog *CatalogService
	events  *fakePublisher
	idem    *fakeIdempotency
	mirror  *fakeMirror
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		mem:    storetest.New(),
		events: &fakePublisher{},
		idem:   newFakeIdempotency(),
		mirror: newFakeMirror(),
	}
	cfg := config.BusinessConfig{OrderTxTimeout: 5 * time.Second, IdempotencyTTL: time.Hour}
	f.orders = NewOrderService(f.mem, f.idem, f.events, cfg)
	f.carts = NewCartService(f.mem)
	f.catalog = NewCatalogService(f.mem, NewInventoryClient(f.mem, f.mirror))
	return f
}

func (f *fixture) addProduct(name, price string, stock int) models.Product {
	return f.mem.AddProduct(models.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Category: "Phones",
		Brand:    "Acme",
		Stock:    stock,
	})
}

func (f *fixture) putInCart(t *testing.T, userID, productID int64, qty int) {
	t.Helper()
	require.NoError(t, f.mem.SetCartItem(context.Background(), userID, productID, qty))
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, ok := f.mem.Product(productID)
	require.True(t, ok)
	return p.Stock
}

func user(id int64) models.Actor {
	return models.Actor{UserID: id, Role: models.RoleUser}
}

var admin = models.Actor{UserID: 1000, Role: models.RoleAdmin}
