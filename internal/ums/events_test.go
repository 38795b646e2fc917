// ABOUTME: Tests for event envelope factories
// ABOUTME: Verifies envelope shape and the wire form of each event kind

package ums

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip marshals an event and returns its generic JSON form.
func roundTrip(t *testing.T, e Event) map[string]any {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestEnvelope(t *testing.T) {
	e := PublishText("conv-1", "hello")

	assert.Equal(t, "req", e.Kind)
	assert.Equal(t, TypePublishEvent, e.Type)

	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err, "event id should be a uuid, got %q", e.ID)

	// Ids must be fresh per event.
	assert.NotEqual(t, e.ID, PublishText("conv-1", "hello").ID)
}

func TestRequestConversation(t *testing.T) {
	m := roundTrip(t, RequestConversation("acc-9"))
	body := m["body"].(map[string]any)

	assert.Equal(t, TypeRequestConversation, m["type"])
	assert.Equal(t, "CUSTOM", body["ttrDefName"])
	assert.Equal(t, "MESSAGING", body["channelType"])
	assert.Equal(t, "acc-9", body["brandId"])
	assert.NotContains(t, body, "skillId")
	assert.NotContains(t, body, "campaignInfo")
}

func TestRequestConversationRouted(t *testing.T) {
	m := roundTrip(t, RequestConversationRouted("acc-9", "skill-1", &CampaignInfo{
		CampaignID:   "camp-1",
		EngagementID: "eng-1",
	}))
	body := m["body"].(map[string]any)

	assert.Equal(t, "skill-1", body["skillId"])
	campaign := body["campaignInfo"].(map[string]any)
	assert.Equal(t, "camp-1", campaign["campaignId"])
	assert.Equal(t, "eng-1", campaign["engagementId"])
}

func TestPublishText(t *testing.T) {
	m := roundTrip(t, PublishText("conv-1", "hi there"))
	body := m["body"].(map[string]any)
	event := body["event"].(map[string]any)

	assert.Equal(t, "conv-1", body["dialogId"])
	assert.Equal(t, "ContentEvent", event["type"])
	assert.Equal(t, "text/plain", event["contentType"])
	assert.Equal(t, "hi there", event["message"])
}

func TestPublishChatState(t *testing.T) {
	m := roundTrip(t, PublishChatState("conv-1", ChatStateComposing))
	event := m["body"].(map[string]any)["event"].(map[string]any)

	assert.Equal(t, "ChatStateEvent", event["type"])
	assert.Equal(t, "COMPOSING", event["chatState"])
}

func TestPublishAcceptStatus(t *testing.T) {
	m := roundTrip(t, PublishAcceptStatus("conv-1", []int{3, 4, 5}))
	event := m["body"].(map[string]any)["event"].(map[string]any)

	assert.Equal(t, "AcceptStatusEvent", event["type"])
	assert.Equal(t, "ACCEPT", event["status"])
	assert.Equal(t, []any{float64(3), float64(4), float64(5)}, event["sequenceList"])
}

func TestEndConversation(t *testing.T) {
	m := roundTrip(t, EndConversation("conv-1"))
	body := m["body"].(map[string]any)
	field := body["conversationField"].(map[string]any)

	assert.Equal(t, TypeUpdateConversationField, m["type"])
	assert.Equal(t, "conv-1", body["conversationId"])
	assert.Equal(t, "ConversationStateField", field["field"])
	assert.Equal(t, "CLOSE", field["conversationState"])
}

func TestPublishImageThumbnail(t *testing.T) {
	params := UploadParams{RelativePath: "/store/abc.jpg"}
	m := roundTrip(t, PublishImageThumbnail("conv-1", "doge!", params, "JPG", "QUJD"))
	event := m["body"].(map[string]any)["event"].(map[string]any)
	msg := event["message"].(map[string]any)

	assert.Equal(t, "hosted/file", event["contentType"])
	assert.Equal(t, "doge!", msg["caption"])
	assert.Equal(t, "/store/abc.jpg", msg["relativePath"])
	assert.Equal(t, "JPG", msg["fileType"])
	assert.Equal(t, "data:image/jpg;base64,QUJD", msg["preview"])
}

func TestRequestUploadURL(t *testing.T) {
	m := roundTrip(t, RequestUploadURL(69666, "JPG"))
	body := m["body"].(map[string]any)

	assert.Equal(t, TypeGenerateUploadURL, m["type"])
	assert.Equal(t, float64(69666), body["fileSize"])
	assert.Equal(t, "JPG", body["fileType"])
}

func TestUserProfile_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(UserProfile{FirstName: "Mark"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"firstName":"Mark"}`, string(data))
}
