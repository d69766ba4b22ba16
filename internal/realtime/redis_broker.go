package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/therapyflow/agent-surface/pkg/logging"
)

// RedisBroker is a Broker over Redis pub/sub. One PubSub connection per
// subscription; each delivers on its own goroutine in publish order.
type RedisBroker struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedisBroker creates a broker over the given Redis client.
func NewRedisBroker(client *redis.Client, logger *logging.Logger) *RedisBroker {
	if client == nil {
		panic("realtime: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBroker{client: client, logger: logger}
}

// Publish sends the payload to every live subscriber of the channel.
func (b *RedisBroker) Publish(ctx context.Context, channelKey string, payload []byte) error {
	if err := b.client.Publish(ctx, channelKey, payload).Err(); err != nil {
		return fmt.Errorf("realtime: publish to %s: %w", channelKey, err)
	}
	return nil
}

// Subscribe opens a Redis subscription and pumps messages to fn until the
// returned UnsubscribeFunc runs. Subscribe confirms the subscription is
// established before returning, so no event published afterwards is missed.
func (b *RedisBroker) Subscribe(ctx context.Context, channelKey string, fn Handler) (UnsubscribeFunc, error) {
	pubsub := b.client.Subscribe(ctx, channelKey)

	// Receive forces the SUBSCRIBE handshake; surfacing failure here lets
	// the reconciler enter its error state instead of waiting forever.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("realtime: subscribe to %s: %w", channelKey, err)
	}

	ch := pubsub.Channel()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn([]byte(msg.Payload))
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				b.logger.Warn("realtime: closing subscription failed", "channel", channelKey, "error", err)
			}
		})
	}
	return unsubscribe, nil
}
