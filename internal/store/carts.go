package store

import (
	"context"

	"storefront/internal/models"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
)

// ReadCart returns the user's cart lines joined with the live products.
// A user without a cart gets an empty snapshot. Lines referencing a product
// that no longer exists have a nil Product.
func (s *queries) ReadCart(ctx context.Context, userID int64) (*models.CartSnapshot, error) {
	var items []models.CartItem
	err := sqlx.SelectContext(ctx, s.q, &items,
		"SELECT user_id, product_id, quantity, created_at FROM cart_items WHERE user_id = $1 ORDER BY created_at, product_id",
		userID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart items")
	}

	snapshot := &models.CartSnapshot{UserID: userID, Lines: make([]models.CartLine, 0, len(items))}
	if len(items) == 0 {
		return snapshot, nil
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := s.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "read cart products")
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for _, it := range items {
		snapshot.Lines = append(snapshot.Lines, models.CartLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Product:   byID[it.ProductID],
		})
	}
	return snapshot, nil
}

// SetCartItem sets the quantity of productID in the user's cart, adding the
// line when it is not there yet.
func (s *queries) SetCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		userID, productID, quantity)
	if err != nil {
		return errors.Wrap(err, "set cart item")
	}
	return nil
}

// AddCartItem adds quantity to the user's line for productID in a single
// upsert and returns the resulting quantity. The line stays row-locked until
// the surrounding transaction ends.
func (s *queries) AddCartItem(ctx context.Context, userID, productID int64, quantity int) (int, error) {
	var total int
	err := sqlx.GetContext(ctx, s.q, &total, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING quantity`,
		userID, productID, quantity)
	if err != nil {
		return 0, errors.Wrap(err, "add cart item")
	}
	return total, nil
}

// DeleteCartItem removes one line from the user's cart.
func (s *queries) DeleteCartItem(ctx context.Context, userID, productID int64) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return errors.Wrap(err, "delete cart item")
	}
	return requireRow(res)
}

// DeleteCart removes the whole cart. Deleting an absent cart is not an error.
func (s *queries) DeleteCart(ctx context.Context, userID int64) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	if err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}
