package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkkko/telecast/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event is a single occurrence published on the bus. Events are not
// persisted and are never replayed to late subscribers.
type Event struct {
	Category  string
	Name      string
	Payload   any
	Timestamp time.Time
}

// Handler receives every event published to a subscribed category.
// Handlers run synchronously on the publisher's goroutine and should
// return quickly.
type Handler func(Event)

// Subscription identifies one registered handler. It is returned by
// Subscribe and consumed by Unsubscribe.
type Subscription struct {
	Category string
	id       uint64
}

// Config contains bus configuration
type Config struct {
	// WarnSlowHandlers logs handlers that take longer than this to return.
	// Zero disables the check.
	WarnSlowHandlers time.Duration
}

// DefaultConfig returns a default bus configuration
func DefaultConfig() Config {
	return Config{
		WarnSlowHandlers: 0,
	}
}

// Bus is an in-process publish/subscribe registry keyed by event
// category. Categories come into existence on first use; publishing to
// a category with no subscribers is a no-op.
type Bus struct {
	config   Config
	handlers map[string]map[uint64]Handler
	mu       sync.RWMutex
	nextID   atomic.Uint64
	logger   zerolog.Logger
	metrics  *metrics.BusMetrics
}

// New creates a new event bus
func New(config ...Config) *Bus {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	} else {
		cfg = DefaultConfig()
	}

	logger := log.With().Str("component", "bus").Logger()

	return &Bus{
		config:   cfg,
		handlers: make(map[string]map[uint64]Handler),
		logger:   logger,
		metrics:  metrics.GetBusMetrics(),
	}
}

// Subscribe registers a handler for every future event published to the
// category. Safe to call concurrently with Publish and other Subscribes.
func (b *Bus) Subscribe(category string, h Handler) Subscription {
	sub := Subscription{
		Category: category,
		id:       b.nextID.Add(1),
	}

	b.mu.Lock()
	if _, ok := b.handlers[category]; !ok {
		b.handlers[category] = make(map[uint64]Handler)
	}
	b.handlers[category][sub.id] = h
	b.mu.Unlock()

	b.metrics.SubscriptionsActive.Inc()
	b.logger.Debug().Str("category", category).Uint64("subscription_id", sub.id).Msg("Subscribed")

	return sub
}

// Unsubscribe removes a previously registered handler. Unknown or
// already removed subscriptions are ignored, so it is safe to call more
// than once with the same handle.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs, ok := b.handlers[sub.Category]
	if !ok {
		return
	}
	if _, ok := hs[sub.id]; !ok {
		return
	}

	delete(hs, sub.id)
	if len(hs) == 0 {
		delete(b.handlers, sub.Category)
	}

	b.metrics.SubscriptionsActive.Dec()
	b.logger.Debug().Str("category", sub.Category).Uint64("subscription_id", sub.id).Msg("Unsubscribed")
}

// Publish delivers an event to every handler currently subscribed to the
// category. Delivery is synchronous: when Publish returns, every handler
// has been invoked exactly once. A panicking handler does not prevent
// delivery to the remaining handlers and never reaches the publisher.
func (b *Bus) Publish(category, name string, payload any) {
	event := Event{
		Category:  category,
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	hs, ok := b.handlers[category]
	if !ok || len(hs) == 0 {
		b.mu.RUnlock()
		b.metrics.EventsPublished.WithLabelValues(category).Inc()
		return
	}
	// Snapshot so handlers registered or removed during delivery do not
	// affect this publish.
	handlers := make([]Handler, 0, len(hs))
	for _, h := range hs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	b.metrics.EventsPublished.WithLabelValues(category).Inc()

	start := time.Now()
	for _, h := range handlers {
		b.deliver(h, event)
	}
	b.metrics.PublishDuration.Observe(time.Since(start).Seconds())
}

// deliver invokes one handler, containing any panic it raises
func (b *Bus) deliver(h Handler, event Event) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.metrics.HandlerPanics.WithLabelValues(event.Category).Inc()
			b.logger.Warn().
				Str("category", event.Category).
				Str("event", event.Name).
				Interface("panic", r).
				Msg("Event handler panicked")
			return
		}
		if warn := b.config.WarnSlowHandlers; warn > 0 {
			if elapsed := time.Since(start); elapsed > warn {
				b.logger.Warn().
					Str("category", event.Category).
					Str("event", event.Name).
					Dur("elapsed", elapsed).
					Msg("Slow event handler")
			}
		}
	}()

	h(event)
	b.metrics.EventsDelivered.WithLabelValues(event.Category).Inc()
}

// Shutdown removes all subscriptions. Publishing after shutdown is a
// harmless no-op.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info().Msg("Shutting down event bus")

	b.mu.Lock()
	defer b.mu.Unlock()

	for category, hs := range b.handlers {
		for range hs {
			b.metrics.SubscriptionsActive.Dec()
		}
		delete(b.handlers, category)
	}

	return nil
}
