// ABOUTME: Typed connector event stream replacing wildcard name dispatch
// ABOUTME: In-memory fan-out broadcaster; subscribers switch on a discriminated Kind

package connector

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Kind discriminates connector events.
type Kind string

const (
	// KindReady fires once startup finished (possibly degraded).
	KindReady Kind = "connector.ready"
	// KindDomainsResolved fires when the service directory was fetched.
	KindDomainsResolved Kind = "connector.domains"
	// KindListenerReady fires when the webhook listener is bound.
	KindListenerReady Kind = "listener.ready"
	// KindSenderReady fires when the first app token was obtained.
	KindSenderReady Kind = "sender.ready"
	// KindTokenRefreshed fires after each successful background refresh.
	KindTokenRefreshed Kind = "sender.token_refreshed"
	// KindSenderError fires when a token refresh failed; the refresh loop
	// is stopped at that point.
	KindSenderError Kind = "sender.error"
	// KindWebhook carries one change record from an inbound notification.
	KindWebhook Kind = "webhook"
	// KindInfo carries informational progress messages.
	KindInfo Kind = "connector.info"
)

// Event is the discriminated payload delivered to subscribers.
type Event struct {
	Kind Kind

	// WebhookType and Change are set for KindWebhook: the path segment the
	// platform posted to, and one element of its changes array.
	WebhookType string
	Change      json.RawMessage

	// Message is a human-readable note for informational kinds.
	Message string

	// Err is set for error kinds.
	Err error
}

// Broadcaster provides in-memory pub/sub for connector events. Every
// subscriber receives every event; delivery is non-blocking and events are
// dropped for subscribers whose channels are full.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
	logger      *slog.Logger
	closed      bool
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber and returns its event channel plus a
// subscription id for Unsubscribe. The subscription is cleaned up when ctx
// is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.NewString()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)
}

// Publish delivers an event to all subscribers without blocking.
func (b *Broadcaster) Publish(event Event) {
	b.mu.Lock()
	targets := make([]chan Event, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber", "kind", event.Kind)
		}
	}
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
}
