// ABOUTME: Tests for the webhook listener route
// ABOUTME: Verifies change fan-out, ordering, and the always-200 contract

package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/liveconnect/internal/config"
)

type emitted struct {
	eventType string
	change    json.RawMessage
}

// collector records emitted events for assertions.
type collector struct {
	mu     sync.Mutex
	events []emitted
}

func (c *collector) emit(eventType string, change json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, emitted{eventType: eventType, change: change})
}

func (c *collector) all() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.events...)
}

func newTestListener(t *testing.T) (*httptest.Server, *collector) {
	t.Helper()
	c := &collector{}
	l := NewListener(config.ListenerConfig{}, c.emit, nil)
	server := httptest.NewServer(l.routes())
	t.Cleanup(server.Close)
	return server, c
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleEvent_FansOutChangesInOrder(t *testing.T) {
	server, c := newTestListener(t)

	resp := post(t, server.URL+"/event/ms.MessagingEventNotification", `{
		"type": "ms.MessagingEventNotification",
		"body": {"changes": [
			{"sequence": 1, "event": {"type": "ContentEvent"}},
			{"sequence": 2, "event": {"type": "ChatStateEvent"}},
			{"sequence": 3, "event": {"type": "ContentEvent"}}
		]}
	}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events := c.all()
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, "ms.MessagingEventNotification", e.eventType)
		var change map[string]any
		require.NoError(t, json.Unmarshal(e.change, &change))
		assert.Equal(t, float64(i+1), change["sequence"], "changes must keep array order")
	}
}

func TestHandleEvent_NoChanges(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing body", body: `{}`},
		{name: "missing changes", body: `{"body": {}}`},
		{name: "empty changes", body: `{"body": {"changes": []}}`},
		{name: "malformed json", body: `{"body": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, c := newTestListener(t)

			resp := post(t, server.URL+"/event/cqm.ExConversationChangeNotification", tt.body)
			assert.Equal(t, http.StatusOK, resp.StatusCode, "route must answer 200 regardless")
			assert.Empty(t, c.all())
		})
	}
}

func TestHandleEvent_TypeFromPath(t *testing.T) {
	server, c := newTestListener(t)

	post(t, server.URL+"/event/ms.MessagingEventNotification.ChatStateEvent", `{
		"body": {"changes": [{"originatorId": "agent-1"}]}
	}`)

	events := c.all()
	require.Len(t, events, 1)
	assert.Equal(t, "ms.MessagingEventNotification.ChatStateEvent", events[0].eventType)
}

func TestHandleEvent_GetRejected(t *testing.T) {
	server, _ := newTestListener(t)

	resp, err := http.Get(server.URL + "/event/whatever")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	server, _ := newTestListener(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
