package store

import (
	"context"
	"database/sql"

	"storefront/internal/models"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
)

// ReserveStock decrements stock by quantity only if at least quantity is
// available, as one conditional UPDATE. Concurrent reservations of the same
// row serialize on the row lock and re-check the predicate, so the loser sees
// ErrInsufficientStock instead of driving stock negative.
func (s *queries) ReserveStock(ctx context.Context, productID int64, quantity int) (*models.Product, error) {
	if quantity <= 0 {
		return nil, errors.Errorf("reserve stock: quantity must be positive, got %d", quantity)
	}

	query := `
		UPDATE products
		SET stock = stock - $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
		RETURNING ` + productColumns

	var product models.Product
	err := sqlx.GetContext(ctx, s.q, &product, query, quantity, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInsufficientStock
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reserve stock for product %d", productID)
	}
	return &product, nil
}

// RestoreStock is the inverse of ReserveStock for the same quantity.
func (s *queries) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return errors.Errorf("restore stock: quantity must be positive, got %d", quantity)
	}

	res, err := s.q.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, version = version + 1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return errors.Wrapf(err, "restore stock for product %d", productID)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
