// internal/workers/infrastructure/validate-subscription/bus.go
package validatesubscription

import (
	"context"
	"fmt"
	"strings"

	"oracle-worker/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// Broadcaster tells other workers that a customer's cached health is stale.
type Broadcaster interface {
	Broadcast(ctx context.Context, customerID string) error
}

// InvalidationBus carries invalidations over a Redis pub/sub channel so that
// every worker's in-process store drops the entry.
type InvalidationBus struct {
	rdb     *redis.Client
	channel string
	logger  logger.Logger
}

func NewInvalidationBus(rdb *redis.Client, channel string, log logger.Logger) *InvalidationBus {
	return &InvalidationBus{
		rdb:     rdb,
		channel: channel,
		logger:  log.WithFields(map[string]interface{}{"channel": channel}),
	}
}

func (b *InvalidationBus) Broadcast(ctx context.Context, customerID string) error {
	if err := b.rdb.Publish(ctx, b.channel, customerID).Err(); err != nil {
		return fmt.Errorf("%w: publish: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Listen invalidates store for every customer id received until ctx is
// cancelled. ready, when non-nil, is closed once the subscription is active.
func (b *InvalidationBus) Listen(ctx context.Context, store Store, ready chan<- struct{}) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: subscribe: %v", ErrCacheUnavailable, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			customerID := strings.TrimSpace(msg.Payload)
			if customerID == "" {
				continue
			}
			if err := store.Invalidate(ctx, customerID); err != nil {
				b.logger.Warn("Failed to apply invalidation", map[string]interface{}{
					"customerId": customerID,
					"error":      err.Error(),
				})
			}
		}
	}
}
