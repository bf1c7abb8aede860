package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StockRefresher reloads mirrored stock for the products in an order.
type StockRefresher interface {
	RefreshItems(ctx context.Context, items []models.OrderItemData) error
}

// StockCacheWorker keeps the Redis stock mirror current by refreshing every
// product touched by an order event.
type StockCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockCacheWorker creates a new stock cache worker
func NewStockCacheWorker(consumer *broker.Consumer, inventory StockRefresher) *StockCacheWorker {
	return &StockCacheWorker{
		consumer:     consumer,
		eventHandler: NewStockEventHandler(inventory),
		logger:       util.GetLogger(),
	}
}

// NewStockEventHandler routes order events that change stock to inventory.
func NewStockEventHandler(inventory StockRefresher) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(func(ctx context.Context, e *models.OrderCreatedEvent) error {
		return inventory.RefreshItems(ctx, e.Items)
	})
	eventHandler.OnOrderCancelled(func(ctx context.Context, e *models.OrderCancelledEvent) error {
		return inventory.RefreshItems(ctx, e.Items)
	})
	return eventHandler
}

// Start starts the worker
func (w *StockCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockCacheWorker) Stop() error {
	w.logger.Info("Stopping stock cache worker")
	return w.consumer.Close()
}
