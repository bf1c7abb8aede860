package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SetOrderStatus moves an order to the named status on behalf of actor, who
// must own the order or be an admin. Cancelling restores stock.
func (s *OrderService) SetOrderStatus(ctx context.Context, orderID int64, actor models.Actor, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SetOrderStatus",
		attribute.Int64("order_id", orderID),
		attribute.String("status", status))
	defer span.End()

	next, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown order status %q", status)}
	}
	order, err := s.transition(ctx, orderID, actor, next)
	if err != nil {
		util.SpanError(span, err)
	}
	return order, err
}

// CancelOrder cancels a pending or confirmed order and returns every
// reserved unit to stock in the same transaction as the status write.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.transition(ctx, orderID, actor, models.OrderStatusCancelled)
	if err != nil {
		util.SpanError(span, err)
	}
	return order, err
}

func (s *OrderService) transition(ctx context.Context, orderID int64, actor models.Actor, next models.OrderStatus) (*models.Order, error) {
	start := time.Now()
	var (
		order *models.Order
		from  models.OrderStatus
	)

	txCtx, cancel := s.withTxTimeout(ctx)
	defer cancel()

	err := s.store.InTx(txCtx, func(tx store.Queries) error {
		o, err := tx.GetOrderForUpdate(txCtx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Resource: "order", ID: orderID}
		}
		if err != nil {
			return err
		}
		if !actor.CanAccess(o.UserID) {
			return &AuthorizationError{Action: "change this order"}
		}
		if !models.CanTransition(o.Status, next) {
			return &InvalidTransitionError{From: o.Status, To: next}
		}

		if next == models.OrderStatusCancelled {
			for _, item := range o.Items {
				err := tx.RestoreStock(txCtx, item.ProductID, item.Quantity)
				if errors.Is(err, store.ErrNotFound) {
					return &NotFoundError{Resource: "product", ID: item.ProductID}
				}
				if err != nil {
					return err
				}
			}
		}

		if err := tx.UpdateOrderStatus(txCtx, o.ID, next); err != nil {
			return err
		}
		from = o.Status
		o.Status = next
		o.UpdatedAt = time.Now()
		order = o
		return nil
	})
	if err != nil {
		err = classify("set order status", err)
		util.OrderTxLatency.WithLabelValues("set_status", "aborted").Observe(time.Since(start).Seconds())
		util.LoggerFor(ctx, s.logger).Warn("Order status transition aborted",
			zap.Int64("order_id", orderID),
			zap.Int64("actor_id", actor.UserID),
			zap.String("to", string(next)),
			zap.String("reason", failureReason(err)),
			zap.Error(err))
		return nil, err
	}

	util.OrderTxLatency.WithLabelValues("set_status", "committed").Observe(time.Since(start).Seconds())
	util.OrderStatusTransitionsTotal.WithLabelValues(string(next)).Inc()
	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.Int64("actor_id", actor.UserID))

	if next == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.Inc()
		event := &models.OrderCancelledEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
			OrderID:   order.ID,
			UserID:    order.UserID,
			From:      from,
			ActorID:   actor.UserID,
			Items:     models.ItemData(order.Items),
		}
		if err := s.eventPublisher.PublishOrderCancelled(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
		}
		return order, nil
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		UserID:    order.UserID,
		From:      from,
		To:        next,
		ActorID:   actor.UserID,
	}
	if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
	return order, nil
}
