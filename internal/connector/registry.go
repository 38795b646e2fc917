// ABOUTME: In-memory registry of conversations started through this connector
// ABOUTME: Append-only for the process lifetime; lookups scan in insertion order

package connector

import (
	"sync"

	"github.com/2389/liveconnect/internal/ums"
)

// State is a conversation's lifecycle position.
type State string

const (
	// StateCreated means the conversation exists locally but no platform
	// request has completed yet.
	StateCreated State = "created"
	// StateAwaitingResponse means the create request is in flight.
	StateAwaitingResponse State = "awaiting-creation-response"
	// StateOpen means the platform assigned a conversation id.
	StateOpen State = "open"
	// StateDuplicate means the platform refused the create because the
	// consumer already has an open conversation.
	StateDuplicate State = "duplicate-detected"
)

// Conversation is one consumer conversation tracked by the connector. The
// identity fields are fixed at creation; the session and platform-assigned
// fields are guarded because webhook handling reads them concurrently with
// the create flow.
type Conversation struct {
	ExternalConsumerID string
	Profile            ums.UserProfile

	mu             sync.Mutex
	userID         string
	sessionToken   string
	conversationID string
	state          State
}

func newConversation(externalConsumerID string, profile ums.UserProfile) *Conversation {
	return &Conversation{
		ExternalConsumerID: externalConsumerID,
		Profile:            profile,
		state:              StateCreated,
	}
}

// UserID returns the platform-assigned user id (set once known).
func (c *Conversation) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// SessionToken returns the consumer session JWS for this conversation.
func (c *Conversation) SessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionToken
}

// ConversationID returns the platform conversation id (empty until open).
func (c *Conversation) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// State returns the conversation's lifecycle state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conversation) setSessionToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionToken = token
	c.state = StateAwaitingResponse
}

func (c *Conversation) open(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationID = conversationID
	c.state = StateOpen
}

func (c *Conversation) markDuplicate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.state = StateDuplicate
}

// Registry tracks every conversation the connector has started. Entries are
// never evicted; a connector instance serves a bounded set of consumers for
// its lifetime.
type Registry struct {
	mu            sync.RWMutex
	conversations []*Conversation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Append records a conversation.
func (r *Registry) Append(conv *Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations = append(r.conversations, conv)
}

// FindByConversationID returns the first conversation with the given
// platform id.
func (r *Registry) FindByConversationID(conversationID string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conv := range r.conversations {
		if conv.ConversationID() == conversationID {
			return conv, true
		}
	}
	return nil, false
}

// Len returns the number of tracked conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}
