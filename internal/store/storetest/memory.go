// Package storetest provides an in-memory store.Repository for tests.
//
// Transactions are serialised: InTx holds the store lock for the whole
// callback, works on a copy of the data and swaps it in only on success, so
// an aborted transaction leaves no trace.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/go-faster/errors"
)

// Hook runs before every query made through a transaction or the pool.
// A non-nil error aborts that query.
type Hook func(op string, tx store.Queries) error

// Snapshot is a deep copy of the persisted state.
type Snapshot struct {
	Products map[int64]models.Product
	Carts    map[int64][]models.CartItem
	Orders   map[int64]models.Order
}

type state struct {
	Snapshot
	nextProductID int64
	nextOrderID   int64
	nextItemID    int64
}

func newState() *state {
	return &state{Snapshot: Snapshot{
		Products: map[int64]models.Product{},
		Carts:    map[int64][]models.CartItem{},
		Orders:   map[int64]models.Order{},
	}}
}

func (s *state) clone() *state {
	c := *s
	c.Snapshot = s.Snapshot.clone()
	return &c
}

func (s Snapshot) clone() Snapshot {
	c := Snapshot{
		Products: make(map[int64]models.Product, len(s.Products)),
		Carts:    make(map[int64][]models.CartItem, len(s.Carts)),
		Orders:   make(map[int64]models.Order, len(s.Orders)),
	}
	for id, p := range s.Products {
		c.Products[id] = p
	}
	for uid, items := range s.Carts {
		c.Carts[uid] = append([]models.CartItem(nil), items...)
	}
	for id, o := range s.Orders {
		c.Orders[id] = copyOrder(o)
	}
	return c
}

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}

// Memory is an in-memory store.Repository.
type Memory struct {
	mu   sync.Mutex
	st   *state
	hook Hook
}

var _ store.Repository = (*Memory)(nil)

// New returns an empty store.
func New() *Memory {
	return &Memory{st: newState()}
}

// SetHook installs h. Pass nil to remove it.
func (m *Memory) SetHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = h
}

// AddProduct stores p with a fresh id and returns the stored copy.
func (m *Memory) AddProduct(p models.Product) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := &view{st: m.st}
	v.insertProduct(&p)
	return p
}

// Product returns the current state of a product.
func (m *Memory) Product(id int64) (models.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.Products[id]
	return p, ok
}

// Snapshot returns a deep copy of the persisted state.
func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Snapshot.clone()
}

// InTx runs fn on a private copy of the state and publishes it only when fn
// succeeds and ctx is still live.
func (m *Memory) InTx(ctx context.Context, fn func(tx store.Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "begin tx")
	}
	working := m.st.clone()
	if err := fn(&view{st: working, hook: m.hook}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	m.st = working
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) pool() *view {
	return &view{st: m.st, hook: m.hook}
}

func (m *Memory) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().GetProductByID(ctx, id)
}

func (m *Memory) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().GetProductsByIDs(ctx, ids)
}

func (m *Memory) GetProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().GetProducts(ctx)
}

func (m *Memory) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().ListProducts(ctx, f)
}

func (m *Memory) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().CreateProduct(ctx, p)
}

func (m *Memory) UpdateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().UpdateProduct(ctx, p)
}

func (m *Memory) DeleteProduct(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().DeleteProduct(ctx, id)
}

func (m *Memory) ReserveStock(ctx context.Context, productID int64, quantity int) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().ReserveStock(ctx, productID, quantity)
}

func (m *Memory) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().RestoreStock(ctx, productID, quantity)
}

func (m *Memory) ReadCart(ctx context.Context, userID int64) (*models.CartSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().ReadCart(ctx, userID)
}

func (m *Memory) SetCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().SetCartItem(ctx, userID, productID, quantity)
}

func (m *Memory) AddCartItem(ctx context.Context, userID, productID int64, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().AddCartItem(ctx, userID, productID, quantity)
}

func (m *Memory) DeleteCartItem(ctx context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().DeleteCartItem(ctx, userID, productID)
}

func (m *Memory) DeleteCart(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().DeleteCart(ctx, userID)
}

func (m *Memory) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().CreateOrder(ctx, order)
}

func (m *Memory) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().GetOrderByID(ctx, id)
}

func (m *Memory) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().GetOrderForUpdate(ctx, id)
}

func (m *Memory) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().GetOrderByIdempotencyKey(ctx, userID, key)
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().UpdateOrderStatus(ctx, orderID, status)
}

func (m *Memory) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().ListOrdersByUser(ctx, userID)
}

func (m *Memory) ListOrders(ctx context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool().ListOrders(ctx)
}

// view implements store.Queries over a state without locking.
type view struct {
	st   *state
	hook Hook
}

func (v *view) before(op string) error {
	if v.hook == nil {
		return nil
	}
	return v.hook(op, v)
}

func (v *view) insertProduct(p *models.Product) {
	v.st.nextProductID++
	now := time.Now()
	p.ID = v.st.nextProductID
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now
	v.st.Products[p.ID] = *p
}

func (v *view) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	if err := v.before("GetProductByID"); err != nil {
		return nil, err
	}
	p, ok := v.st.Products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (v *view) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	if err := v.before("GetProductsByIDs"); err != nil {
		return nil, err
	}
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := v.st.Products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *view) GetProducts(_ context.Context) ([]models.Product, error) {
	if err := v.before("GetProducts"); err != nil {
		return nil, err
	}
	return v.sortedProducts(), nil
}

func (v *view) sortedProducts() []models.Product {
	out := make([]models.Product, 0, len(v.st.Products))
	for _, p := range v.st.Products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *view) ListProducts(_ context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	if err := v.before("ListProducts"); err != nil {
		return nil, 0, err
	}

	search := strings.ToLower(f.Search)
	var matched []models.Product
	for _, p := range v.sortedProducts() {
		switch {
		case search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) &&
			!strings.Contains(strings.ToLower(p.Brand), search):
			continue
		case f.Category != "" && p.Category != f.Category:
			continue
		case f.Brand != "" && p.Brand != f.Brand:
			continue
		case f.MinPrice != nil && p.Price.LessThan(*f.MinPrice):
			continue
		case f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice):
			continue
		case f.Featured != nil && p.Featured != *f.Featured:
			continue
		}
		matched = append(matched, p)
	}

	less := func(a, b models.Product) bool {
		switch f.SortBy {
		case "price":
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
		case "name":
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if f.Desc {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start < 0 || start >= total {
		return []models.Product{}, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (v *view) CreateProduct(_ context.Context, p *models.Product) error {
	if err := v.before("CreateProduct"); err != nil {
		return err
	}
	if p.Stock < 0 || p.Price.IsNegative() {
		return errors.New("create product: check constraint violated")
	}
	v.insertProduct(p)
	return nil
}

func (v *view) UpdateProduct(_ context.Context, p *models.Product) error {
	if err := v.before("UpdateProduct"); err != nil {
		return err
	}
	cur, ok := v.st.Products[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	if p.Stock < 0 || p.Price.IsNegative() {
		return errors.New("update product: check constraint violated")
	}
	p.SellerID = cur.SellerID
	p.CreatedAt = cur.CreatedAt
	p.Version = cur.Version + 1
	p.UpdatedAt = time.Now()
	v.st.Products[p.ID] = *p
	return nil
}

func (v *view) DeleteProduct(_ context.Context, id int64) error {
	if err := v.before("DeleteProduct"); err != nil {
		return err
	}
	if _, ok := v.st.Products[id]; !ok {
		return store.ErrNotFound
	}
	delete(v.st.Products, id)
	return nil
}

func (v *view) ReserveStock(_ context.Context, productID int64, quantity int) (*models.Product, error) {
	if err := v.before("ReserveStock"); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, errors.Errorf("reserve stock: quantity must be positive, got %d", quantity)
	}
	p, ok := v.st.Products[productID]
	if !ok || p.Stock < quantity {
		return nil, store.ErrInsufficientStock
	}
	p.Stock -= quantity
	p.Version++
	p.UpdatedAt = time.Now()
	v.st.Products[productID] = p
	return &p, nil
}

func (v *view) RestoreStock(_ context.Context, productID int64, quantity int) error {
	if err := v.before("RestoreStock"); err != nil {
		return err
	}
	if quantity <= 0 {
		return errors.Errorf("restore stock: quantity must be positive, got %d", quantity)
	}
	p, ok := v.st.Products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.Stock += quantity
	p.Version++
	p.UpdatedAt = time.Now()
	v.st.Products[productID] = p
	return nil
}

func (v *view) ReadCart(_ context.Context, userID int64) (*models.CartSnapshot, error) {
	if err := v.before("ReadCart"); err != nil {
		return nil, err
	}
	items := v.st.Carts[userID]
	snapshot := &models.CartSnapshot{UserID: userID, Lines: make([]models.CartLine, 0, len(items))}
	for _, it := range items {
		line := models.CartLine{ProductID: it.ProductID, Quantity: it.Quantity}
		if p, ok := v.st.Products[it.ProductID]; ok {
			line.Product = &p
		}
		snapshot.Lines = append(snapshot.Lines, line)
	}
	return snapshot, nil
}

func (v *view) SetCartItem(_ context.Context, userID, productID int64, quantity int) error {
	if err := v.before("SetCartItem"); err != nil {
		return err
	}
	return v.putCartItem(userID, productID, quantity)
}

func (v *view) putCartItem(userID, productID int64, quantity int) error {
	if quantity <= 0 {
		return errors.New("set cart item: check constraint violated")
	}
	items := v.st.Carts[userID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = quantity
			return nil
		}
	}
	v.st.Carts[userID] = append(items, models.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	})
	return nil
}

func (v *view) AddCartItem(_ context.Context, userID, productID int64, quantity int) (int, error) {
	if err := v.before("AddCartItem"); err != nil {
		return 0, err
	}
	total := quantity
	for _, it := range v.st.Carts[userID] {
		if it.ProductID == productID {
			total += it.Quantity
		}
	}
	if err := v.putCartItem(userID, productID, total); err != nil {
		return 0, err
	}
	return total, nil
}

func (v *view) DeleteCartItem(_ context.Context, userID, productID int64) error {
	if err := v.before("DeleteCartItem"); err != nil {
		return err
	}
	items := v.st.Carts[userID]
	for i := range items {
		if items[i].ProductID == productID {
			items = append(items[:i:i], items[i+1:]...)
			if len(items) == 0 {
				delete(v.st.Carts, userID)
			} else {
				v.st.Carts[userID] = items
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (v *view) DeleteCart(_ context.Context, userID int64) error {
	if err := v.before("DeleteCart"); err != nil {
		return err
	}
	delete(v.st.Carts, userID)
	return nil
}

func (v *view) CreateOrder(_ context.Context, order *models.Order) error {
	if err := v.before("CreateOrder"); err != nil {
		return err
	}
	if order.IdempotencyKey != nil {
		for _, o := range v.st.Orders {
			if o.UserID == order.UserID && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return store.ErrDuplicateIdempotencyKey
			}
		}
	}

	v.st.nextOrderID++
	now := time.Now()
	order.ID = v.st.nextOrderID
	order.CreatedAt, order.UpdatedAt = now, now
	for i := range order.Items {
		v.st.nextItemID++
		order.Items[i].ID = v.st.nextItemID
		order.Items[i].OrderID = order.ID
	}
	v.st.Orders[order.ID] = copyOrder(*order)
	return nil
}

func (v *view) getOrder(id int64) (*models.Order, error) {
	o, ok := v.st.Orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (v *view) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	if err := v.before("GetOrderByID"); err != nil {
		return nil, err
	}
	return v.getOrder(id)
}

func (v *view) GetOrderForUpdate(_ context.Context, id int64) (*models.Order, error) {
	if err := v.before("GetOrderForUpdate"); err != nil {
		return nil, err
	}
	return v.getOrder(id)
}

func (v *view) GetOrderByIdempotencyKey(_ context.Context, userID int64, key string) (*models.Order, error) {
	if err := v.before("GetOrderByIdempotencyKey"); err != nil {
		return nil, err
	}
	for id, o := range v.st.Orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return v.getOrder(id)
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) UpdateOrderStatus(_ context.Context, orderID int64, status models.OrderStatus) error {
	if err := v.before("UpdateOrderStatus"); err != nil {
		return err
	}
	o, ok := v.st.Orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	v.st.Orders[orderID] = o
	return nil
}

func (v *view) listOrders(keep func(models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range v.st.Orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (v *view) ListOrdersByUser(_ context.Context, userID int64) ([]models.Order, error) {
	if err := v.before("ListOrdersByUser"); err != nil {
		return nil, err
	}
	return v.listOrders(func(o models.Order) bool { return o.UserID == userID }), nil
}

func (v *view) ListOrders(_ context.Context) ([]models.Order, error) {
	if err := v.before("ListOrders"); err != nil {
		return nil, err
	}
	return v.listOrders(func(models.Order) bool { return true }), nil
}
