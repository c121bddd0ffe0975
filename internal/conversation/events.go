// ABOUTME: Change notifications published by the conversation store
// ABOUTME: Events carry no state; subscribers re-read the store snapshot they care about

package conversation

// EventKind says which part of the store changed.
type EventKind string

const (
	// EventConversations means the collection or a conversation summary changed.
	EventConversations EventKind = "conversations"
	// EventSelection means a different conversation (or none) is selected.
	EventSelection EventKind = "selection"
	// EventMessages means a conversation's messages or state changed.
	EventMessages EventKind = "messages"
)

// Event is a store change notification.
type Event struct {
	Kind           EventKind
	ConversationID string // empty for collection-wide changes
}
