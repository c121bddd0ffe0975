// ABOUTME: Canonical conversation and message types shared by the transport client and the conversation store
// ABOUTME: Defines placeholder-id rules, per-conversation state, and ordering helpers

// Package chat holds the client-side domain model: conversations, messages,
// and the rules that distinguish a local placeholder conversation from one
// the backend has acknowledged.
package chat

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// PlaceholderPrefix marks conversation ids generated locally before the
// backend has assigned one. Backend ids never carry it.
const PlaceholderPrefix = "new-"

// DefaultDisplayName is used when the backend omits a conversation name.
const DefaultDisplayName = "Untitled"

// IsPlaceholderID reports whether id was generated locally.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// ErrValidation marks caller-side input errors that never reach the network.
var ErrValidation = errors.New("validation error")

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// State is the synchronization state of a single conversation.
type State int

const (
	StateIdle State = iota
	StateLoadingMessages
	StateSending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingMessages:
		return "loading_messages"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

// Message is a single entry in a conversation transcript.
//
// Pending is set while an optimistically inserted message awaits the backend;
// Failed is set once that attempt errored and nothing is retrying it. The two
// are never set together.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
	Pending   bool
	Failed    bool
}

// Conversation is a named exchange with the model backend.
type Conversation struct {
	ID                 string
	DisplayName        string
	Messages           []Message // sorted by Timestamp ascending
	MessageCount       int       // display hint from the backend, may lag len(Messages)
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastMessagePreview string
	State              State
}

// IsPlaceholder reports whether the conversation has not been acknowledged by the backend.
func (c *Conversation) IsPlaceholder() bool {
	return IsPlaceholderID(c.ID)
}

// Clone returns a deep copy safe to hand to readers.
func (c *Conversation) Clone() Conversation {
	cp := *c
	if c.Messages != nil {
		cp.Messages = make([]Message, len(c.Messages))
		copy(cp.Messages, c.Messages)
	}
	return cp
}

// SortMessages orders messages by timestamp, keeping arrival order for ties.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// MessagesSorted reports whether msgs is in ascending timestamp order.
func MessagesSorted(msgs []Message) bool {
	return sort.SliceIsSorted(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
