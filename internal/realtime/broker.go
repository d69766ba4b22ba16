// Package realtime provides the push-channel transport surface updates
// arrive on. Implementations deliver events for one subscription on a
// single goroutine, so handlers never run concurrently with themselves.
package realtime

import (
	"context"
	"fmt"
)

// Handler receives one raw event payload from the channel.
type Handler func(payload []byte)

// UnsubscribeFunc tears the subscription down. Safe to call more than once.
type UnsubscribeFunc func()

// Broker is the pub/sub contract between the agent side (publisher) and the
// reconciler side (subscriber). Delivery is at-least-once; duplicate and
// out-of-order redelivery is handled by version checks downstream.
type Broker interface {
	Publish(ctx context.Context, channelKey string, payload []byte) error
	Subscribe(ctx context.Context, channelKey string, fn Handler) (UnsubscribeFunc, error)
}

// ChannelKey builds the canonical per-recipient channel name.
func ChannelKey(userID string) string {
	return fmt.Sprintf("agent-updates:%s", userID)
}
