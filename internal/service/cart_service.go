package service

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// CartService manages the actor's pending cart. Its stock checks are
// advisory; the order transaction re-checks and reserves.
type CartService struct {
	store  store.Repository
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(repo store.Repository) *CartService {
	return &CartService{
		store:  repo,
		logger: util.GetLogger(),
	}
}

// GetCart returns the actor's cart joined with live product data.
func (s *CartService) GetCart(ctx context.Context, actor models.Actor) (*models.CartSnapshot, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	cart, err := s.store.ReadCart(ctx, actor.UserID)
	if err != nil {
		return nil, classify("get cart", err)
	}
	return cart, nil
}

// AddToCart adds quantity units of a product, creating the cart on first use.
func (s *CartService) AddToCart(ctx context.Context, actor models.Actor, productID int64, quantity int) (*models.CartSnapshot, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart")
	defer span.End()

	if quantity < 1 {
		return nil, &ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	var cart *models.CartSnapshot
	err := s.store.InTx(ctx, func(tx store.Queries) error {
		// The increment happens in the upsert so concurrent adds of the same
		// product serialise on the cart row instead of overwriting each other.
		newQty, err := tx.AddCartItem(ctx, actor.UserID, productID, quantity)
		if err != nil {
			return err
		}
		if err := checkProductStock(ctx, tx, productID, newQty); err != nil {
			return err
		}
		cart, err = tx.ReadCart(ctx, actor.UserID)
		return err
	})
	if err != nil {
		return nil, classify("add to cart", err)
	}

	s.logger.Debug("Cart item added",
		zap.Int64("user_id", actor.UserID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))
	return cart, nil
}

// UpdateCartItem sets the quantity of a product already in the cart.
func (s *CartService) UpdateCartItem(ctx context.Context, actor models.Actor, productID int64, quantity int) (*models.CartSnapshot, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateCartItem")
	defer span.End()

	if quantity < 1 {
		return nil, &ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	var cart *models.CartSnapshot
	err := s.store.InTx(ctx, func(tx store.Queries) error {
		current, err := tx.ReadCart(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if !hasLine(current, productID) {
			return &NotFoundError{Resource: "cart item", ID: productID}
		}
		if err := checkProductStock(ctx, tx, productID, quantity); err != nil {
			return err
		}
		if err := tx.SetCartItem(ctx, actor.UserID, productID, quantity); err != nil {
			return err
		}
		cart, err = tx.ReadCart(ctx, actor.UserID)
		return err
	})
	if err != nil {
		return nil, classify("update cart item", err)
	}
	return cart, nil
}

// RemoveFromCart drops one product from the cart.
func (s *CartService) RemoveFromCart(ctx context.Context, actor models.Actor, productID int64) (*models.CartSnapshot, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveFromCart")
	defer span.End()

	err := s.store.DeleteCartItem(ctx, actor.UserID, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "cart item", ID: productID}
	}
	if err != nil {
		return nil, classify("remove from cart", err)
	}
	return s.GetCart(ctx, actor)
}

// ClearCart deletes the whole cart.
func (s *CartService) ClearCart(ctx context.Context, actor models.Actor) error {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart")
	defer span.End()

	return classify("clear cart", s.store.DeleteCart(ctx, actor.UserID))
}

func hasLine(cart *models.CartSnapshot, productID int64) bool {
	for _, line := range cart.Lines {
		if line.ProductID == productID {
			return true
		}
	}
	return false
}

func checkProductStock(ctx context.Context, tx store.Queries, productID int64, quantity int) error {
	product, err := tx.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Resource: "product", ID: productID}
	}
	if err != nil {
		return err
	}
	if quantity > product.Stock {
		return &InsufficientStockError{
			ProductID:   productID,
			ProductName: product.Name,
			Requested:   quantity,
			Available:   product.Stock,
		}
	}
	return nil
}
