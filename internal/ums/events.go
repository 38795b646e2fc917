// ABOUTME: Request envelope and factories for consumer messaging events
// ABOUTME: Each factory produces the {kind, id, type, body} shape the platform expects

package ums

import (
	"strings"

	"github.com/google/uuid"
)

// Event types accepted by the conversation endpoints.
const (
	TypeRequestConversation     = "cm.ConsumerRequestConversation"
	TypeUpdateConversationField = "cm.UpdateConversationField"
	TypeSetUserProfile          = "userprofile.SetUserProfile"
	TypePublishEvent            = "ms.PublishEvent"
	TypeGenerateUploadURL       = "ms.GenerateURLForUploadFile"
)

// ChatState is the consumer's composing state.
type ChatState string

const (
	ChatStateActive    ChatState = "ACTIVE"
	ChatStateInactive  ChatState = "INACTIVE"
	ChatStateGone      ChatState = "GONE"
	ChatStateComposing ChatState = "COMPOSING"
	ChatStatePause     ChatState = "PAUSE"
)

// Event is the request envelope sent to the conversation endpoints. Every
// event carries kind "req" and a fresh request id.
type Event struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Body any    `json:"body"`
}

func newEvent(eventType string, body any) Event {
	return Event{
		Kind: "req",
		ID:   uuid.NewString(),
		Type: eventType,
		Body: body,
	}
}

// CampaignInfo routes a conversation by campaign/engagement.
type CampaignInfo struct {
	CampaignID   string `json:"campaignId"`
	EngagementID string `json:"engagementId"`
}

type conversationRequestBody struct {
	TTRDefName   string        `json:"ttrDefName"`
	ChannelType  string        `json:"channelType"`
	BrandID      string        `json:"brandId"`
	SkillID      string        `json:"skillId,omitempty"`
	CampaignInfo *CampaignInfo `json:"campaignInfo,omitempty"`
}

// RequestConversation builds the event that asks the platform to open a
// conversation for the account.
func RequestConversation(accountID string) Event {
	return RequestConversationRouted(accountID, "", nil)
}

// RequestConversationRouted is RequestConversation with optional skill or
// campaign routing.
func RequestConversationRouted(accountID, skillID string, campaign *CampaignInfo) Event {
	return newEvent(TypeRequestConversation, conversationRequestBody{
		TTRDefName:   "CUSTOM",
		ChannelType:  "MESSAGING",
		BrandID:      accountID,
		SkillID:      skillID,
		CampaignInfo: campaign,
	})
}

type conversationFieldBody struct {
	ConversationID    string            `json:"conversationId"`
	ConversationField conversationField `json:"conversationField"`
}

type conversationField struct {
	Field             string `json:"field"`
	ConversationState string `json:"conversationState"`
}

// EndConversation builds the event that closes a conversation.
func EndConversation(conversationID string) Event {
	return newEvent(TypeUpdateConversationField, conversationFieldBody{
		ConversationID: conversationID,
		ConversationField: conversationField{
			Field:             "ConversationStateField",
			ConversationState: "CLOSE",
		},
	})
}

// SetUserProfile builds the event that attaches display attributes to the
// consumer identity.
func SetUserProfile(profile UserProfile) Event {
	return newEvent(TypeSetUserProfile, profile)
}

type publishBody struct {
	DialogID string `json:"dialogId,omitempty"`
	Event    any    `json:"event"`
}

type contentEvent struct {
	Type        string `json:"type"`
	ContentType string `json:"contentType"`
	Message     any    `json:"message"`
}

// PublishText builds a plain text message event for a conversation.
func PublishText(conversationID, text string) Event {
	return newEvent(TypePublishEvent, publishBody{
		DialogID: conversationID,
		Event: contentEvent{
			Type:        "ContentEvent",
			ContentType: "text/plain",
			Message:     text,
		},
	})
}

type chatStateEvent struct {
	Type      string    `json:"type"`
	ChatState ChatState `json:"chatState"`
}

// PublishChatState builds a composing-state change event.
func PublishChatState(conversationID string, state ChatState) Event {
	return newEvent(TypePublishEvent, publishBody{
		DialogID: conversationID,
		Event: chatStateEvent{
			Type:      "ChatStateEvent",
			ChatState: state,
		},
	})
}

type acceptStatusEvent struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	SequenceList []int  `json:"sequenceList"`
}

// PublishAcceptStatus builds the event marking the given message sequence
// numbers as accepted (read).
func PublishAcceptStatus(conversationID string, sequenceList []int) Event {
	return newEvent(TypePublishEvent, publishBody{
		DialogID: conversationID,
		Event: acceptStatusEvent{
			Type:         "AcceptStatusEvent",
			Status:       "ACCEPT",
			SequenceList: sequenceList,
		},
	})
}

type hostedFileMessage struct {
	Caption      string `json:"caption"`
	RelativePath string `json:"relativePath"`
	FileType     string `json:"fileType"`
	Preview      string `json:"preview"`
}

// PublishImageThumbnail builds a hosted-file message referencing an uploaded
// image, with a base64 preview supplied by the caller.
func PublishImageThumbnail(conversationID, caption string, params UploadParams, fileType, encodedPreview string) Event {
	return newEvent(TypePublishEvent, publishBody{
		DialogID: conversationID,
		Event: contentEvent{
			Type:        "ContentEvent",
			ContentType: "hosted/file",
			Message: hostedFileMessage{
				Caption:      caption,
				RelativePath: params.RelativePath,
				FileType:     fileType,
				Preview:      "data:image/" + strings.ToLower(fileType) + ";base64," + encodedPreview,
			},
		},
	})
}

type uploadURLBody struct {
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
}

// RequestUploadURL builds the event that asks for a pre-signed file upload
// URL. The response body carries UploadParams.
func RequestUploadURL(fileSize int64, fileType string) Event {
	return newEvent(TypeGenerateUploadURL, uploadURLBody{
		FileSize: fileSize,
		FileType: fileType,
	})
}

// UserProfile carries the consumer's display attributes.
type UserProfile struct {
	FirstName         string             `json:"firstName,omitempty"`
	LastName          string             `json:"lastName,omitempty"`
	UserID            string             `json:"userId,omitempty"`
	AvatarURL         string             `json:"avatarUrl,omitempty"`
	Role              string             `json:"role,omitempty"`
	BackgroundImgURI  string             `json:"backgndImgUri,omitempty"`
	Description       string             `json:"description,omitempty"`
	PrivateData       *UserPrivateData   `json:"userPrivateData,omitempty"`
	AuthenticatedData *AuthenticatedData `json:"authenticatedData,omitempty"`
}

// UserPrivateData carries contact details and push registration.
type UserPrivateData struct {
	MobileNum            string                `json:"mobileNum,omitempty"`
	Mail                 string                `json:"mail,omitempty"`
	PushNotificationData *PushNotificationData `json:"pushNotificationData,omitempty"`
}

// PushNotificationData identifies the consumer's push channel.
type PushNotificationData struct {
	ServiceName string `json:"serviceName,omitempty"`
	CertName    string `json:"certName,omitempty"`
	Token       string `json:"token,omitempty"`
}

// AuthenticatedData wraps engagement attributes under the lp_sdes key.
type AuthenticatedData struct {
	SDEs []map[string]any `json:"lp_sdes"`
}
