package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	keys  []string
	types []string
	err   error
}

func (w *recordingWriter) PublishEvent(_ context.Context, key, eventType string, _ interface{}) error {
	w.keys = append(w.keys, key)
	w.types = append(w.types, eventType)
	return w.err
}

func TestEventPublisher_KeysByOrder(t *testing.T) {
	w := &recordingWriter{}
	ep := NewEventPublisher(w)

	err := ep.PublishOrderCreated(context.Background(), &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCreated},
		OrderID:   17,
	})
	require.NoError(t, err)
	err = ep.PublishOrderCancelled(context.Background(), &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCancelled},
		OrderID:   17,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"order-17", "order-17"}, w.keys)
	assert.Equal(t, []string{models.EventTypeOrderCreated, models.EventTypeOrderCancelled}, w.types)
}

func TestEventPublisher_BreakerOpensAfterFailures(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker unreachable")}
	ep := NewEventPublisher(w)
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderStatusChanged},
		OrderID:   1,
	}

	for i := 0; i < 5; i++ {
		err := ep.PublishOrderStatusChanged(context.Background(), event)
		assert.ErrorIs(t, err, w.err)
	}
	assert.Equal(t, gobreaker.StateOpen, ep.breaker.State())

	err := ep.PublishOrderStatusChanged(context.Background(), event)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, w.keys, 5)
}

func TestEventHandler_Routes(t *testing.T) {
	var (
		created   *models.OrderCreatedEvent
		cancelled *models.OrderCancelledEvent
	)
	eh := NewEventHandler()
	eh.OnOrderCreated(func(_ context.Context, e *models.OrderCreatedEvent) error {
		created = e
		return nil
	})
	eh.OnOrderCancelled(func(_ context.Context, e *models.OrderCancelledEvent) error {
		cancelled = e
		return nil
	})

	createdEvent := models.OrderCreatedEvent{
		BaseEvent:   models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderCreated, Timestamp: time.Now()},
		OrderID:     5,
		TotalAmount: decimal.RequireFromString("12.50"),
		Items:       []models.OrderItemData{{ProductID: 3, Quantity: 2, UnitPrice: decimal.RequireFromString("6.25")}},
	}
	payload, err := json.Marshal(createdEvent)
	require.NoError(t, err)

	// Routed by header.
	err = eh.HandleMessage(context.Background(), kafka.Message{
		Value:   payload,
		Headers: []kafka.Header{{Key: eventTypeHeader, Value: []byte(models.EventTypeOrderCreated)}},
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, int64(5), created.OrderID)
	require.Len(t, created.Items, 1)
	assert.Equal(t, int64(3), created.Items[0].ProductID)

	// Routed by payload when the header is missing.
	payload, err = json.Marshal(models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCancelled},
		OrderID:   6,
	})
	require.NoError(t, err)
	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, cancelled)
	assert.Equal(t, int64(6), cancelled.OrderID)

	// Events without a registered handler are skipped.
	payload, err = json.Marshal(models.BaseEvent{EventType: models.EventTypeOrderStatusChanged})
	require.NoError(t, err)
	assert.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: payload}))

	assert.Error(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))
}
