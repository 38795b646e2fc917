// Package connector orchestrates the platform collaborators into one
// consumer messaging connector.
//
// # Overview
//
// The connector sits between the caller and the platform services, wiring
// together service directory resolution, token management, the outbound
// event dispatcher, history search, and the webhook listener.
//
// # Startup
//
// Capabilities come up independently during Start:
//
//	conn := connector.New(cfg, logger)
//	err := conn.Start(ctx)
//
// A missing config section disables the dependent capability with a warning
// rather than failing startup. Operations that need a disabled capability
// return a *CapabilityError.
//
// # Conversations
//
// Key operations:
//
//   - StartConversation(ctx, id, profile): Open a fresh conversation
//   - OpenConversation(ctx, id, profile): Open, resuming on duplicate
//   - SendText / SetTyping / SetMsgAcceptStatus / CloseConversation
//   - RequestUploadURL / UploadFile / SendImageThumbnail
//
// When the platform refuses a create because the consumer already has an
// open conversation, StartConversation returns a
// *DuplicateConversationError carrying the platform user id extracted from
// the rejection message. OpenConversation uses that id for a history search
// and resumes the most recent open conversation.
//
// Every conversation opened through the connector is tracked in an
// in-memory Registry keyed by platform conversation id; subsequent sends
// reuse its consumer session token.
//
// # Event Stream
//
// The connector broadcasts typed events for observers:
//
//	events := conn.Events(ctx)
//	for e := range events {
//	    switch e.Kind {
//	    case connector.KindWebhook:
//	        // one change record from an inbound notification
//	    case connector.KindSenderError:
//	        // token refresh failed; the refresh loop stopped
//	    }
//	}
//
// Delivery is non-blocking: events are dropped for subscribers that fall
// more than a buffer behind.
package connector
