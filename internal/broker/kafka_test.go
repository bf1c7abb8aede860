package broker

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHandleWithRetry(t *testing.T) {
	msg := kafka.Message{Key: []byte("order-1"), Offset: 7}
	logger := zap.NewNop()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		var calls int
		handler := func(context.Context, kafka.Message) error {
			calls++
			if calls < 3 {
				return errors.New("redis unavailable")
			}
			return nil
		}

		err := handleWithRetry(context.Background(), logger, handler, msg, 3, time.Millisecond)
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		var calls int
		boom := errors.New("boom")
		handler := func(context.Context, kafka.Message) error {
			calls++
			return boom
		}

		err := handleWithRetry(context.Background(), logger, handler, msg, 3, time.Millisecond)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops waiting when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls int
		handler := func(context.Context, kafka.Message) error {
			calls++
			cancel()
			return errors.New("boom")
		}

		err := handleWithRetry(ctx, logger, handler, msg, 5, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
