// Package ums builds and dispatches consumer messaging events.
//
// # Event Envelope
//
// Every request to the conversation endpoints is an Event envelope with
// kind "req", a fresh request id, a type, and a type-specific body. The
// factory functions produce the bodies the platform expects:
//
//	ums.RequestConversation(accountID)
//	ums.PublishText(conversationID, "hello")
//	ums.PublishChatState(conversationID, ums.ChatStateComposing)
//	ums.EndConversation(conversationID)
//
// # Dispatcher
//
// The Dispatcher posts events with the app bearer token in Authorization
// and the consumer session JWS in X-LP-ON-BEHALF. The platform reports
// per-event failures in-band (a result code plus message), so responses
// are decoded even on non-2xx statuses; only transport failures and
// undecodable responses surface as *TransportError.
//
// File uploads go separately: RequestUploadURL yields pre-signed
// UploadParams and UploadFile streams a local file to the slot.
package ums
