package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// EventPublisher publishes order events after the owning transaction commits.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// IdempotencyCache remembers which order a user's idempotency key produced.
// It is a fast path only; the unique key on the orders table is authoritative.
type IdempotencyCache interface {
	GetIdempotentOrder(ctx context.Context, userID int64, key string) (orderID int64, ok bool, err error)
	SetIdempotentOrder(ctx context.Context, userID int64, key string, orderID int64, ttl time.Duration) error
}

// TxPhase is the last step an order-creation transaction completed.
type TxPhase string

const (
	PhaseStart          TxPhase = "start"
	PhaseCartValidated  TxPhase = "cart_validated"
	PhaseStockReserved  TxPhase = "stock_reserved"
	PhaseOrderPersisted TxPhase = "order_persisted"
	PhaseCartCleared    TxPhase = "cart_cleared"
	PhaseCommitted      TxPhase = "committed"
	PhaseAborted        TxPhase = "aborted"
)

// OrderService places orders and drives their status lifecycle.
type OrderService struct {
	store          store.Repository
	idempotency    IdempotencyCache
	eventPublisher EventPublisher
	txTimeout      time.Duration
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	repo store.Repository,
	idempotency IdempotencyCache,
	eventPublisher EventPublisher,
	cfg config.BusinessConfig,
) *OrderService {
	return &OrderService{
		store:          repo,
		idempotency:    idempotency,
		eventPublisher: eventPublisher,
		txTimeout:      cfg.OrderTxTimeout,
		idempotencyTTL: cfg.IdempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// CreateOrder turns the actor's cart into a pending order. Reading the cart,
// reserving stock for every line, writing the order and deleting the cart
// happen in one transaction: either all of it commits or none of it does.
//
// A non-empty idempotencyKey makes retries safe: a repeated key returns the
// order the first call created and has no further effect.
func (s *OrderService) CreateOrder(ctx context.Context, actor models.Actor, idempotencyKey string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.Int64("user_id", actor.UserID),
		attribute.Bool("idempotent", idempotencyKey != ""))
	defer span.End()

	if idempotencyKey != "" {
		if order := s.cachedReplay(ctx, actor, idempotencyKey); order != nil {
			return order, nil
		}
	}

	start := time.Now()
	phase := PhaseStart
	var (
		order    *models.Order
		replayed bool
	)

	txCtx, cancel := s.withTxTimeout(ctx)
	defer cancel()

	err := s.store.InTx(txCtx, func(tx store.Queries) error {
		if idempotencyKey != "" {
			existing, err := tx.GetOrderByIdempotencyKey(txCtx, actor.UserID, idempotencyKey)
			if err == nil {
				order, replayed = existing, true
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		cart, err := tx.ReadCart(txCtx, actor.UserID)
		if err != nil {
			return err
		}
		if cart.IsEmpty() {
			return ErrEmptyCart
		}
		if err := checkCartLines(cart); err != nil {
			return err
		}
		phase = PhaseCartValidated

		lines := reservationOrder(cart.Lines)
		items := make([]models.OrderItem, 0, len(lines))
		total := decimal.Zero
		for _, line := range lines {
			if err := s.reserve(txCtx, tx, line); err != nil {
				return err
			}
			item := models.OrderItem{
				ProductID:   line.ProductID,
				ProductName: line.Product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   line.Product.Price,
			}
			items = append(items, item)
			total = total.Add(item.Subtotal())
		}
		phase = PhaseStockReserved

		order = &models.Order{
			UserID:      actor.UserID,
			TotalAmount: total,
			Status:      models.OrderStatusPending,
			Items:       items,
		}
		if idempotencyKey != "" {
			key := idempotencyKey
			order.IdempotencyKey = &key
		}
		if err := tx.CreateOrder(txCtx, order); err != nil {
			return err
		}
		phase = PhaseOrderPersisted

		if err := tx.DeleteCart(txCtx, actor.UserID); err != nil {
			return err
		}
		phase = PhaseCartCleared
		return nil
	})

	if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
		// A concurrent request with the same key committed first.
		existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, actor.UserID, idempotencyKey)
		if lookupErr == nil {
			return existing, nil
		}
		err = lookupErr
	}
	if err != nil {
		err = classify("create order", err)
		reason := failureReason(err)
		util.OrdersFailedTotal.WithLabelValues(reason).Inc()
		util.OrderTxLatency.WithLabelValues("create_order", "aborted").Observe(time.Since(start).Seconds())
		util.SpanError(span, err)
		util.LoggerFor(ctx, s.logger).Warn("Order transaction aborted",
			zap.Int64("user_id", actor.UserID),
			zap.String("phase", string(PhaseAborted)),
			zap.String("failed_after", string(phase)),
			zap.String("reason", reason),
			zap.Error(err))
		return nil, err
	}

	if replayed {
		s.logger.Info("Duplicate order request detected",
			zap.String("idempotency_key", idempotencyKey),
			zap.Int64("order_id", order.ID))
		return order, nil
	}

	util.OrdersCreatedTotal.Inc()
	util.OrderTxLatency.WithLabelValues("create_order", "committed").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int64("order_id", order.ID))
	util.LoggerFor(ctx, s.logger).Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("phase", string(PhaseCommitted)),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	if idempotencyKey != "" {
		if err := s.idempotency.SetIdempotentOrder(ctx, actor.UserID, idempotencyKey, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
		}
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       models.ItemData(order.Items),
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// checkCartLines verifies every line still references a product with enough
// stock as of this read.
func checkCartLines(cart *models.CartSnapshot) error {
	for _, line := range cart.Lines {
		if line.Product == nil {
			return &NotFoundError{Resource: "product", ID: line.ProductID}
		}
		if line.Product.Stock < line.Quantity {
			util.StockReservationsFailed.WithLabelValues("precheck").Inc()
			return &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: line.Product.Name,
				Requested:   line.Quantity,
				Available:   line.Product.Stock,
			}
		}
	}
	return nil
}

// reservationOrder returns lines sorted by product id. Every transaction
// locks product rows in that order, so two orders over the same products
// cannot wait on each other.
func reservationOrder(lines []models.CartLine) []models.CartLine {
	sorted := slices.Clone(lines)
	slices.SortFunc(sorted, func(a, b models.CartLine) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return sorted
}

// reserve takes line.Quantity units of stock. Losing a race to another
// reservation after the cart was read surfaces as InsufficientStockError
// carrying the stock left now.
func (s *OrderService) reserve(ctx context.Context, tx store.Queries, line models.CartLine) error {
	_, err := tx.ReserveStock(ctx, line.ProductID, line.Quantity)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrInsufficientStock) {
		return err
	}

	util.StockReservationsFailed.WithLabelValues("predicate").Inc()
	available := 0
	current, lookupErr := tx.GetProductByID(ctx, line.ProductID)
	switch {
	case errors.Is(lookupErr, store.ErrNotFound):
		return &NotFoundError{Resource: "product", ID: line.ProductID}
	case lookupErr != nil:
		return lookupErr
	default:
		available = current.Stock
	}
	return &InsufficientStockError{
		ProductID:   line.ProductID,
		ProductName: line.Product.Name,
		Requested:   line.Quantity,
		Available:   available,
	}
}

func (s *OrderService) cachedReplay(ctx context.Context, actor models.Actor, key string) *models.Order {
	orderID, ok, err := s.idempotency.GetIdempotentOrder(ctx, actor.UserID, key)
	if err != nil {
		s.logger.Warn("Idempotency cache read failed", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil || order.UserID != actor.UserID {
		return nil
	}
	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", order.ID))
	return order
}

func (s *OrderService) withTxTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.txTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.txTimeout)
}

// GetOrder returns an order visible to actor.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "order", ID: orderID}
	}
	if err != nil {
		return nil, classify("get order", err)
	}
	if !actor.CanAccess(order.UserID) {
		return nil, &AuthorizationError{Action: "view this order"}
	}
	return order, nil
}

// ListMyOrders returns the actor's orders, newest first.
func (s *OrderService) ListMyOrders(ctx context.Context, actor models.Actor) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListMyOrders")
	defer span.End()

	orders, err := s.store.ListOrdersByUser(ctx, actor.UserID)
	if err != nil {
		return nil, classify("list orders", err)
	}
	return orders, nil
}

// ListAllOrders returns every order, newest first. Admin only.
func (s *OrderService) ListAllOrders(ctx context.Context, actor models.Actor) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListAllOrders")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, &AuthorizationError{Action: "list all orders"}
	}
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, classify("list orders", err)
	}
	return orders, nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
