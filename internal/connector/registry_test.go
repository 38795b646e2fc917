// ABOUTME: Tests for the conversation registry and lifecycle states
// ABOUTME: Covers lookup order, state transitions, and concurrent access

package connector

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/liveconnect/internal/ums"
)

func TestConversationLifecycle(t *testing.T) {
	conv := newConversation("ext-1", ums.UserProfile{FirstName: "Ada"})
	assert.Equal(t, StateCreated, conv.State())
	assert.Empty(t, conv.ConversationID())

	conv.setSessionToken("jws-1")
	assert.Equal(t, StateAwaitingResponse, conv.State())
	assert.Equal(t, "jws-1", conv.SessionToken())

	conv.open("conv-123")
	assert.Equal(t, StateOpen, conv.State())
	assert.Equal(t, "conv-123", conv.ConversationID())
}

func TestConversationMarkDuplicate(t *testing.T) {
	conv := newConversation("ext-1", ums.UserProfile{})
	conv.setSessionToken("jws-1")
	conv.markDuplicate("u-999")
	assert.Equal(t, StateDuplicate, conv.State())
	assert.Equal(t, "u-999", conv.UserID())
	assert.Empty(t, conv.ConversationID())
}

func TestRegistryFindByConversationID(t *testing.T) {
	r := NewRegistry()

	a := newConversation("ext-a", ums.UserProfile{})
	a.open("conv-1")
	b := newConversation("ext-b", ums.UserProfile{})
	b.open("conv-2")
	r.Append(a)
	r.Append(b)

	got, ok := r.FindByConversationID("conv-2")
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = r.FindByConversationID("conv-404")
	assert.False(t, ok)
}

func TestRegistryFirstMatchWins(t *testing.T) {
	r := NewRegistry()

	first := newConversation("ext-a", ums.UserProfile{})
	first.open("conv-1")
	second := newConversation("ext-b", ums.UserProfile{})
	second.open("conv-1")
	r.Append(first)
	r.Append(second)

	got, ok := r.FindByConversationID("conv-1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			conv := newConversation(fmt.Sprintf("ext-%d", i), ums.UserProfile{})
			conv.open(fmt.Sprintf("conv-%d", i))
			r.Append(conv)
		}(i)
		go func(i int) {
			defer wg.Done()
			r.FindByConversationID(fmt.Sprintf("conv-%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
}
