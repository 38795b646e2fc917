// ABOUTME: Tests for the outbound dispatcher
// ABOUTME: Covers headers, create/send responses, in-band errors, and file upload

package ums

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) Token() (string, error) { return string(s), nil }

func newTestDispatcher(server *httptest.Server) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		AccountID:       "42",
		MessagingDomain: server.URL,
		SwiftDomain:     server.URL,
		AppID:           "test-app",
		Tokens:          staticTokens("app-jwt"),
		HTTPClient:      server.Client(),
	})
}

func TestCreateConversation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/account/42/messaging/consumer/conversation", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("v"))
		assert.Equal(t, "app-jwt", r.Header.Get("Authorization"))
		assert.Equal(t, "consumer-jws", r.Header.Get("X-LP-ON-BEHALF"))
		assert.Contains(t, r.Header.Get("Client-Properties"), ".ams.headers.ClientProperties")
		assert.Contains(t, r.Header.Get("Client-Properties"), "test-app")

		var events []Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&events))
		require.Len(t, events, 2)
		assert.Equal(t, TypeSetUserProfile, events[0].Type)
		assert.Equal(t, TypeRequestConversation, events[1].Type)

		_, _ = w.Write([]byte(`[
			{"reqId":"` + events[0].ID + `","code":"OK"},
			{"reqId":"` + events[1].ID + `","code":"OK","body":{"conversationId":"conv-123"}}
		]`))
	}))
	defer server.Close()

	d := newTestDispatcher(server)
	results, err := d.CreateConversation(context.Background(), "consumer-jws", []Event{
		SetUserProfile(UserProfile{FirstName: "Mark"}),
		RequestConversation("42"),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "conv-123", results[1].Body.ConversationID)
}

func TestCreateConversation_InBandError(t *testing.T) {
	// The duplicate-conversation signal arrives as a decodable body on a
	// 400 status; the dispatcher must hand it back, not reject it.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`[
			{"code":"OK"},
			{"code":"BAD_REQUEST","body":{"msg":"User u-555 already has open conversation"}}
		]`))
	}))
	defer server.Close()

	d := newTestDispatcher(server)
	results, err := d.CreateConversation(context.Background(), "jws", []Event{
		SetUserProfile(UserProfile{}),
		RequestConversation("42"),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "BAD_REQUEST", results[1].Code)
	assert.Contains(t, results[1].Body.Msg, "already has open conversation")
}

func TestCreateConversation_UndecodableFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	d := newTestDispatcher(server)
	_, err := d.CreateConversation(context.Background(), "jws", []Event{RequestConversation("42")})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusBadGateway, transportErr.Status)
}

func TestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/account/42/messaging/consumer/conversation/send", r.URL.Path)

		var event Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		assert.Equal(t, TypePublishEvent, event.Type)

		_, _ = w.Write([]byte(`{"reqId":"` + event.ID + `","code":"OK"}`))
	}))
	defer server.Close()

	d := newTestDispatcher(server)
	result, err := d.Send(context.Background(), "jws", PublishText("conv-1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "OK", result.Code)
}

func TestSend_TokenUnavailable(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		AccountID:       "42",
		MessagingDomain: "ums.example.net",
		Tokens:          erroringTokens{},
	})

	_, err := d.Send(context.Background(), "jws", PublishText("conv-1", "hello"))
	assert.Error(t, err)
}

type erroringTokens struct{}

func (erroringTokens) Token() (string, error) { return "", assert.AnError }

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doge.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/store/slot-1", r.URL.Path)
		assert.Equal(t, "sig-abc", r.URL.Query().Get("temp_url_sig"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "true", r.FormValue("async"))
		assert.Equal(t, "{}", r.FormValue("resources"))

		file, _, err := r.FormFile("application")
		require.NoError(t, err)
		defer file.Close()

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	d := newTestDispatcher(server)
	resp, err := d.UploadFile(context.Background(), path, UploadParams{
		RelativePath: "/store/slot-1",
		QueryParams:  map[string]string{"temp_url_sig": "sig-abc", "temp_url_expires": "999"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestUploadFile_MissingFile(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Tokens: staticTokens("t")})
	_, err := d.UploadFile(context.Background(), "/nonexistent/file.jpg", UploadParams{})
	assert.Error(t, err)
}
