// ABOUTME: Connector error taxonomy
// ABOUTME: Typed capability and duplicate-conversation errors plus the user-id extraction

package connector

import (
	"fmt"
	"regexp"
)

// codeBadRequest is the in-band result code the platform uses for rejected
// events, including the already-open-conversation case.
const codeBadRequest = "BAD_REQUEST"

// CapabilityError reports an operation that needs a capability the current
// configuration did not enable.
type CapabilityError struct {
	// Capability is the disabled capability (e.g. "sender", "history").
	Capability string
	// Missing names the config section whose absence disabled it.
	Missing string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability unavailable: config section %q missing or incomplete", e.Capability, e.Missing)
}

// DuplicateConversationError reports that the platform refused to open a
// conversation because the consumer already has one. Conversation carries the
// platform-assigned user id extracted from the rejection, which is enough to
// resume the existing conversation through a history search.
type DuplicateConversationError struct {
	Conversation *Conversation
}

func (e *DuplicateConversationError) Error() string {
	return fmt.Sprintf("consumer %s already has an open conversation (user id %s)",
		e.Conversation.ExternalConsumerID, e.Conversation.UserID())
}

// duplicateUserPattern matches the rejection message of a duplicate
// conversation request, e.g. "User u-123 already has open conversation".
var duplicateUserPattern = regexp.MustCompile(`User (\w+) already`)

// extractUserID pulls the platform user id out of a duplicate-conversation
// rejection message. It reports false when the message has another shape.
func extractUserID(msg string) (string, bool) {
	m := duplicateUserPattern.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	return m[1], true
}
