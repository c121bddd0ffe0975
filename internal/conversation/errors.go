// ABOUTME: Error values returned by the conversation store
// ABOUTME: Validation errors never reach the network; the rest describe store state conflicts

package conversation

import (
	"errors"
	"fmt"

	"github.com/2389/coven-chat/internal/chat"
)

// ErrValidation is the parent of every caller-side input error.
var ErrValidation = chat.ErrValidation

var (
	ErrEmptyMessage = fmt.Errorf("%w: message is empty", ErrValidation)
	ErrNoSelection  = fmt.Errorf("%w: no conversation selected", ErrValidation)
	ErrNoSession    = fmt.Errorf("%w: no user id", ErrValidation)
)

var (
	// ErrConversationBusy is returned when a conversation is already sending
	// or loading messages.
	ErrConversationBusy = errors.New("conversation busy")
	// ErrConversationNotFound is returned for an id not in the collection.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNotRetryable is returned by RetryMessage when the message is not the
	// conversation's last failed user message.
	ErrNotRetryable = errors.New("message cannot be retried")
)
