package store

import (
	"context"

	"storefront/internal/models"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
)

const orderColumns = "id, user_id, total_amount, status, idempotency_key, created_at, updated_at"

// CreateOrder inserts the order and its line items.
func (s *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, total_amount, status, idempotency_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	row := s.q.QueryRowxContext(ctx, query,
		order.UserID, order.TotalAmount, order.Status, order.IdempotencyKey)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdempotencyKey
		}
		return errors.Wrap(err, "create order")
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := s.createOrderItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *queries) createOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := sqlx.GetContext(ctx, s.q, &item.ID, query,
		item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
	if err != nil {
		return errors.Wrapf(err, "create order item for product %d", item.ProductID)
	}
	return nil
}

// GetOrderByID retrieves an order and its items.
func (s *queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// GetOrderForUpdate retrieves an order and row-locks it until the
// surrounding transaction ends. Only meaningful inside InTx.
func (s *queries) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

// GetOrderByIdempotencyKey retrieves the user's order created with key.
func (s *queries) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	return s.getOrder(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
}

func (s *queries) getOrder(ctx context.Context, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	if err := sqlx.GetContext(ctx, s.q, &order, query, args...); err != nil {
		return nil, notFound(err, "get order")
	}

	items, err := s.getOrderItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

// UpdateOrderStatus updates order status
func (s *queries) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	return requireRow(res)
}

// ListOrdersByUser retrieves orders for a user, newest first
func (s *queries) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
}

// ListOrders retrieves every order, newest first
func (s *queries) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id DESC")
}

func (s *queries) listOrders(ctx context.Context, query string, args ...interface{}) ([]models.Order, error) {
	var orders []models.Order
	if err := sqlx.SelectContext(ctx, s.q, &orders, query, args...); err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.getOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (s *queries) getOrderItems(ctx context.Context, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	query, args, err := sqlx.In(
		"SELECT id, order_id, product_id, product_name, quantity, unit_price FROM order_items WHERE order_id IN (?) ORDER BY id",
		orderIDs)
	if err != nil {
		return nil, err
	}
	query = s.q.Rebind(query)

	var items []models.OrderItem
	if err := sqlx.SelectContext(ctx, s.q, &items, query, args...); err != nil {
		return nil, errors.Wrap(err, "get order items")
	}

	byOrder := make(map[int64][]models.OrderItem, len(orderIDs))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	return byOrder, nil
}
