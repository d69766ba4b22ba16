package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestChannelKey(t *testing.T) {
	if got := ChannelKey("user-1"); got != "agent-updates:user-1" {
		t.Errorf("ChannelKey() = %q", got)
	}
}

// collector gathers delivered payloads.
type collector struct {
	mu       sync.Mutex
	payloads []string
}

func (c *collector) handler(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, string(payload))
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMemoryBrokerDeliversInOrder(t *testing.T) {
	broker := NewMemoryBroker(16)
	ctx := context.Background()
	var c collector

	stop, err := broker.Subscribe(ctx, ChannelKey("user-1"), c.handler)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer stop()

	for _, payload := range []string{"one", "two", "three"} {
		if err := broker.Publish(ctx, ChannelKey("user-1"), []byte(payload)); err != nil {
			t.Fatalf("Publish() error: %v", err)
		}
	}

	waitFor(t, func() bool { return len(c.snapshot()) == 3 })
	got := c.snapshot()
	if got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Errorf("out-of-order delivery: %v", got)
	}
}

func TestMemoryBrokerChannelIsolation(t *testing.T) {
	broker := NewMemoryBroker(16)
	ctx := context.Background()
	var c1, c2 collector

	stop1, _ := broker.Subscribe(ctx, ChannelKey("user-1"), c1.handler)
	defer stop1()
	stop2, _ := broker.Subscribe(ctx, ChannelKey("user-2"), c2.handler)
	defer stop2()

	_ = broker.Publish(ctx, ChannelKey("user-1"), []byte("for-user-1"))

	waitFor(t, func() bool { return len(c1.snapshot()) == 1 })
	if len(c2.snapshot()) != 0 {
		t.Errorf("user-2 received user-1's event: %v", c2.snapshot())
	}
}

func TestMemoryBrokerUnsubscribeStopsDelivery(t *testing.T) {
	broker := NewMemoryBroker(16)
	ctx := context.Background()
	var c collector

	stop, _ := broker.Subscribe(ctx, ChannelKey("user-1"), c.handler)
	_ = broker.Publish(ctx, ChannelKey("user-1"), []byte("before"))
	waitFor(t, func() bool { return len(c.snapshot()) == 1 })

	stop()
	stop() // second call is harmless

	_ = broker.Publish(ctx, ChannelKey("user-1"), []byte("after"))
	time.Sleep(50 * time.Millisecond)
	if got := c.snapshot(); len(got) != 1 {
		t.Errorf("event delivered after unsubscribe: %v", got)
	}
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	broker := NewRedisBroker(client, nil)
	ctx := context.Background()
	var c collector

	stop, err := broker.Subscribe(ctx, ChannelKey("user-1"), c.handler)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer stop()

	if err := broker.Publish(ctx, ChannelKey("user-1"), []byte(`{"version":1}`)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	waitFor(t, func() bool { return len(c.snapshot()) == 1 })
	if got := c.snapshot()[0]; got != `{"version":1}` {
		t.Errorf("unexpected payload: %s", got)
	}
}

func TestRedisBrokerUnsubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	broker := NewRedisBroker(client, nil)
	ctx := context.Background()
	var c collector

	stop, err := broker.Subscribe(ctx, ChannelKey("user-1"), c.handler)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	stop()

	_ = broker.Publish(ctx, ChannelKey("user-1"), []byte("late"))
	time.Sleep(50 * time.Millisecond)
	if len(c.snapshot()) != 0 {
		t.Errorf("event delivered after unsubscribe: %v", c.snapshot())
	}
}
