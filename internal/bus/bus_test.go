package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSubscribe(t *testing.T) {
	b := New()

	sub := b.Subscribe("channels", func(Event) {})

	assert.Equal(t, "channels", sub.Category)
	assert.NotZero(t, sub.id)

	// Verify internal state
	b.mu.RLock()
	defer b.mu.RUnlock()
	assert.Contains(t, b.handlers, "channels")
	assert.Contains(t, b.handlers["channels"], sub.id)
}

func TestBusPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()

	var calls [3]atomic.Int32
	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe("channels", func(ev Event) {
			assert.Equal(t, "channels", ev.Category)
			assert.Equal(t, "channels.sync.started", ev.Name)
			calls[i].Add(1)
		})
	}

	b.Publish("channels", "channels.sync.started", map[string]string{"targetId": "acct-1"})

	// Delivery is synchronous, so all handlers have run by now
	for i := 0; i < 3; i++ {
		assert.Equal(t, int32(1), calls[i].Load(), "handler %d should run exactly once", i)
	}
}

func TestBusPublishNoSubscribers(t *testing.T) {
	b := New()

	// Publishing to a category nobody listens to must not panic or block
	b.Publish("guide", "guide.sync.started", nil)
}

func TestBusCategoryIsolation(t *testing.T) {
	b := New()

	var channelEvents, guideEvents atomic.Int32
	b.Subscribe("channels", func(Event) { channelEvents.Add(1) })
	b.Subscribe("guide", func(Event) { guideEvents.Add(1) })

	b.Publish("channels", "channels.sync.started", nil)
	b.Publish("channels", "channels.sync.completed", nil)
	b.Publish("guide", "guide.sync.started", nil)

	assert.Equal(t, int32(2), channelEvents.Load())
	assert.Equal(t, int32(1), guideEvents.Load())
}

func TestBusHandlerPanicIsolation(t *testing.T) {
	b := New()

	var before, after atomic.Int32
	b.Subscribe("channels", func(Event) { before.Add(1) })
	b.Subscribe("channels", func(Event) { panic("handler exploded") })
	b.Subscribe("channels", func(Event) { after.Add(1) })

	// Must not panic the publisher
	require.NotPanics(t, func() {
		b.Publish("channels", "channels.sync.failed", nil)
	})

	assert.Equal(t, int32(1), before.Load(), "handler before the panicking one should still run")
	assert.Equal(t, int32(1), after.Load(), "handler after the panicking one should still run")
}

func TestBusUnsubscribe(t *testing.T) {
	b := New()

	var calls atomic.Int32
	sub := b.Subscribe("channels", func(Event) { calls.Add(1) })

	b.Publish("channels", "channels.sync.started", nil)
	assert.Equal(t, int32(1), calls.Load())

	b.Unsubscribe(sub)

	b.Publish("channels", "channels.sync.completed", nil)
	assert.Equal(t, int32(1), calls.Load(), "no delivery after unsubscribe")

	// Empty categories are removed entirely
	b.mu.RLock()
	assert.NotContains(t, b.handlers, "channels")
	b.mu.RUnlock()
}

func TestBusUnsubscribeIdempotent(t *testing.T) {
	b := New()

	sub := b.Subscribe("channels", func(Event) {})
	other := b.Subscribe("channels", func(Event) {})

	b.Unsubscribe(sub)
	// Second removal of the same handle is a no-op
	b.Unsubscribe(sub)
	// Unknown handles are ignored too
	b.Unsubscribe(Subscription{Category: "channels", id: 9999})
	b.Unsubscribe(Subscription{Category: "nonexistent", id: 1})

	// The other subscription is untouched
	b.mu.RLock()
	defer b.mu.RUnlock()
	assert.Contains(t, b.handlers["channels"], other.id)
	assert.Len(t, b.handlers["channels"], 1)
}

func TestBusSnapshotDispatch(t *testing.T) {
	b := New()

	var lateCalls atomic.Int32
	b.Subscribe("channels", func(Event) {
		// Registering during delivery must not receive the in-flight event
		b.Subscribe("channels", func(Event) { lateCalls.Add(1) })
	})

	b.Publish("channels", "channels.sync.started", nil)
	assert.Equal(t, int32(0), lateCalls.Load())

	b.Publish("channels", "channels.sync.completed", nil)
	assert.Equal(t, int32(1), lateCalls.Load(), "handler added mid-publish receives later events")
}

func TestBusPublishOrdering(t *testing.T) {
	b := New()

	var received []string
	b.Subscribe("channels", func(ev Event) {
		received = append(received, ev.Name)
	})

	for i := 0; i < 5; i++ {
		b.Publish("channels", fmt.Sprintf("event-%d", i), nil)
	}

	require.Len(t, received, 5)
	for i, name := range received {
		assert.Equal(t, fmt.Sprintf("event-%d", i), name, "synchronous dispatch preserves publish order")
	}
}

func TestBusEventTimestamp(t *testing.T) {
	b := New()

	var got Event
	b.Subscribe("channels", func(ev Event) { got = ev })

	before := time.Now().UTC()
	b.Publish("channels", "channels.sync.started", nil)
	after := time.Now().UTC()

	assert.False(t, got.Timestamp.Before(before))
	assert.False(t, got.Timestamp.After(after))
}

func TestBusConcurrentPublishSubscribe(t *testing.T) {
	b := New()

	var delivered atomic.Int64
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish("channels", "channels.sync.started", nil)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				sub := b.Subscribe("channels", func(Event) { delivered.Add(1) })
				b.Unsubscribe(sub)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for concurrent publishers and subscribers")
	}
}

func TestBusShutdown(t *testing.T) {
	b := New()

	var calls atomic.Int32
	b.Subscribe("channels", func(Event) { calls.Add(1) })
	b.Subscribe("guide", func(Event) { calls.Add(1) })

	err := b.Shutdown(context.Background())
	require.NoError(t, err)

	b.mu.RLock()
	assert.Empty(t, b.handlers)
	b.mu.RUnlock()

	// Publishing after shutdown is a harmless no-op
	b.Publish("channels", "channels.sync.started", nil)
	assert.Equal(t, int32(0), calls.Load())
}
