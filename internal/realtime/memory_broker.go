package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBroker is a Broker backed by in-process channels. Used in local
// development (USE_MEMORY_BROKER) and tests.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[string]*memorySub // channelKey -> subID -> sub
	buffer int
	closed bool
}

type memorySub struct {
	ch   chan []byte
	done chan struct{}
}

// NewMemoryBroker creates a broker with the provided per-subscriber buffer.
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryBroker{
		subs:   make(map[string]map[string]*memorySub),
		buffer: buffer,
	}
}

// Publish fans the payload out to every subscriber of the channel. A
// subscriber whose buffer is full drops the payload rather than blocking
// the publisher; the snapshot re-fetch on remount covers the gap.
func (b *MemoryBroker) Publish(ctx context.Context, channelKey string, payload []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	targets := make([]*memorySub, 0, len(b.subs[channelKey]))
	for _, sub := range b.subs[channelKey] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- payload:
		case <-sub.done:
		default:
		}
	}
	return nil
}

// Subscribe registers a handler for the channel. Events are delivered in
// publish order on a dedicated goroutine per subscription.
func (b *MemoryBroker) Subscribe(_ context.Context, channelKey string, fn Handler) (UnsubscribeFunc, error) {
	sub := &memorySub{
		ch:   make(chan []byte, b.buffer),
		done: make(chan struct{}),
	}
	subID := uuid.NewString()

	b.mu.Lock()
	if b.subs[channelKey] == nil {
		b.subs[channelKey] = make(map[string]*memorySub)
	}
	b.subs[channelKey][subID] = sub
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case payload := <-sub.ch:
				fn(payload)
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[channelKey]; subs != nil {
				delete(subs, subID)
				if len(subs) == 0 {
					delete(b.subs, channelKey)
				}
			}
			b.mu.Unlock()
			close(sub.done)
		})
	}
	return unsubscribe, nil
}
