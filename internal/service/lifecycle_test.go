package service

import (
	"context"
	"testing"

	"storefront/internal/models"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeOrder(t *testing.T, f *fixture, userID int64, lines map[int64]int) *models.Order {
	t.Helper()
	for productID, qty := range lines {
		f.putInCart(t, userID, productID, qty)
	}
	order, err := f.orders.CreateOrder(context.Background(), user(userID), "")
	require.NoError(t, err)
	return order
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct("Phone", "100.00", 10)

	order := placeOrder(t, f, 1, map[int64]int{p.ID: 3})
	require.Equal(t, 7, f.stock(t, p.ID))

	cancelled, err := f.orders.CancelOrder(ctx, order.ID, user(1))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, f.stock(t, p.ID))

	stored, err := f.mem.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)

	require.Len(t, f.events.cancelled, 1)
	assert.Equal(t, models.OrderStatusPending, f.events.cancelled[0].From)
	assert.Empty(t, f.events.changed)
}

func TestCancelOrder_FromConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct("Phone", "100.00", 10)
	order := placeOrder(t, f, 1, map[int64]int{p.ID: 4})

	_, err := f.orders.SetOrderStatus(ctx, order.ID, admin, "confirmed")
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(ctx, order.ID, user(1))
	require.NoError(t, err)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCancelOrder_TransitionGuard(t *testing.T) {
	tests := []struct {
		name string
		path []string
	}{
		{name: "shipped", path: []string{"confirmed", "shipped"}},
		{name: "delivered", path: []string{"confirmed", "shipped", "delivered"}},
		{name: "cancelled", path: []string{"cancelled"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			p := f.addProduct("Phone", "100.00", 10)
			order := placeOrder(t, f, 1, map[int64]int{p.ID: 3})

			for _, status := range tt.path {
				_, err := f.orders.SetOrderStatus(ctx, order.ID, admin, status)
				require.NoError(t, err)
			}
			before := f.mem.Snapshot()

			_, err := f.orders.CancelOrder(ctx, order.ID, user(1))
			require.Error(t, err)

			var transition *InvalidTransitionError
			require.True(t, errors.As(err, &transition))
			assert.Equal(t, models.OrderStatus(tt.name), transition.From)
			assert.Equal(t, models.OrderStatusCancelled, transition.To)
			assert.Equal(t, before, f.mem.Snapshot())
		})
	}
}

func TestSetOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from    []string
		to      string
		allowed bool
	}{
		{to: "confirmed", allowed: true},
		{to: "shipped"},
		{to: "delivered"},
		{to: "pending"},
		{from: []string{"confirmed"}, to: "shipped", allowed: true},
		{from: []string{"confirmed"}, to: "confirmed"},
		{from: []string{"confirmed"}, to: "pending"},
		{from: []string{"confirmed", "shipped"}, to: "delivered", allowed: true},
		{from: []string{"confirmed", "shipped"}, to: "confirmed"},
		{from: []string{"confirmed", "shipped", "delivered"}, to: "shipped"},
		{from: []string{"cancelled"}, to: "confirmed"},
	}

	for _, tt := range tests {
		f := newFixture(t)
		ctx := context.Background()
		p := f.addProduct("Phone", "100.00", 10)
		order := placeOrder(t, f, 1, map[int64]int{p.ID: 1})
		for _, status := range tt.from {
			_, err := f.orders.SetOrderStatus(ctx, order.ID, admin, status)
			require.NoError(t, err)
		}

		updated, err := f.orders.SetOrderStatus(ctx, order.ID, admin, tt.to)
		if tt.allowed {
			require.NoError(t, err, "%v -> %s", tt.from, tt.to)
			assert.Equal(t, models.OrderStatus(tt.to), updated.Status)
			continue
		}
		var transition *InvalidTransitionError
		assert.True(t, errors.As(err, &transition), "%v -> %s: %v", tt.from, tt.to, err)
	}
}

func TestSetOrderStatus_PublishesStatusChanged(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct("Phone", "100.00", 10)
	order := placeOrder(t, f, 1, map[int64]int{p.ID: 1})

	_, err := f.orders.SetOrderStatus(context.Background(), order.ID, admin, "confirmed")
	require.NoError(t, err)

	require.Len(t, f.events.changed, 1)
	e := f.events.changed[0]
	assert.Equal(t, models.OrderStatusPending, e.From)
	assert.Equal(t, models.OrderStatusConfirmed, e.To)
	assert.Equal(t, admin.UserID, e.ActorID)
	assert.Equal(t, 9, f.stock(t, p.ID))
}

func TestSetOrderStatus_UnknownStatus(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct("Phone", "100.00", 10)
	order := placeOrder(t, f, 1, map[int64]int{p.ID: 1})

	_, err := f.orders.SetOrderStatus(context.Background(), order.ID, admin, "lost")
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "status", validation.Field)
}

func TestSetOrderStatus_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct("Phone", "100.00", 10)
	order := placeOrder(t, f, 1, map[int64]int{p.ID: 2})
	before := f.mem.Snapshot()

	_, err := f.orders.CancelOrder(ctx, order.ID, user(2))
	var authz *AuthorizationError
	require.True(t, errors.As(err, &authz))
	assert.Equal(t, before, f.mem.Snapshot())

	_, err = f.orders.CancelOrder(ctx, order.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestSetOrderStatus_OrderNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.SetOrderStatus(context.Background(), 42, admin, "confirmed")
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "order", notFound.Resource)
}

func TestCancelOrder_PartialRestoreAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addProduct("A", "1.00", 10)
	b := f.addProduct("B", "1.00", 10)
	order := placeOrder(t, f, 1, map[int64]int{a.ID: 3, b.ID: 2})

	require.NoError(t, f.mem.DeleteProduct(ctx, b.ID))
	before := f.mem.Snapshot()

	_, err := f.orders.CancelOrder(ctx, order.ID, user(1))
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, b.ID, notFound.ID)

	assert.Equal(t, before, f.mem.Snapshot())
	assert.Equal(t, 7, f.stock(t, a.ID))
	stored, err := f.mem.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
}
