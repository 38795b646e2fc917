// ABOUTME: Tests for the typed event broadcaster
// ABOUTME: Covers fan-out, non-blocking delivery, and subscription teardown

package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()
	ch1, _ := b.Subscribe(ctx)
	ch2, _ := b.Subscribe(ctx)

	b.Publish(Event{Kind: KindReady, Message: "up"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			assert.Equal(t, KindReady, e.Kind)
			assert.Equal(t, "up", e.Message)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background())

	// Publish past the buffer; none of these may block.
	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish(Event{Kind: KindInfo})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			assert.Equal(t, subscriberBufferSize, received)
			return
		}
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background())
	b.Unsubscribe(subID)

	_, open := <-ch
	assert.False(t, open, "channel must be closed after unsubscribe")

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Kind: KindInfo})
}

func TestBroadcasterContextCancellation(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "subscription must end when its context is cancelled")
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster(nil)

	ch, _ := b.Subscribe(context.Background())
	b.Close()

	_, open := <-ch
	assert.False(t, open)

	// Subscriptions after close get an already-closed channel.
	late, _ := b.Subscribe(context.Background())
	_, open = <-late
	assert.False(t, open)
}
