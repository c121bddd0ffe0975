// ABOUTME: Prompt submission calls: create-with-first-message and send to an existing conversation
// ABOUTME: Both go through POST /prompt; a null discussionId asks the backend to create the conversation

package client

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/2389/coven-chat/internal/chat"
)

// NoReplyText stands in for an empty assistant reply.
const NoReplyText = "No response received"

// promptRequest is the JSON body sent to POST /prompt.
type promptRequest struct {
	Prompt       string  `json:"prompt"`
	Model        string  `json:"model"`
	DiscussionID *string `json:"discussionId"`
	UserID       string  `json:"userId"`
}

// PromptResult is the outcome of a prompt round trip.
type PromptResult struct {
	ReplyText        string
	ConversationID   string // set by CreateConversationWithFirstMessage
	ConversationName string // set by CreateConversationWithFirstMessage
}

// CreateConversationWithFirstMessage creates a conversation and submits its
// first prompt in one round trip.
func (c *Client) CreateConversationWithFirstMessage(ctx context.Context, prompt, model, userID string) (*PromptResult, error) {
	const op = "create conversation"

	parsed, err := c.postPrompt(ctx, op, prompt, model, nil, userID)
	if err != nil {
		return nil, err
	}

	id, ok := stringField(parsed, "discussionId")
	if !ok {
		return nil, &Error{Kind: ErrServer, Op: op, Err: errors.New("response missing discussionId")}
	}

	result := &PromptResult{
		ReplyText:        replyText(parsed.Get("response").String()),
		ConversationID:   id,
		ConversationName: chat.DefaultDisplayName,
	}
	if name := strings.TrimSpace(parsed.Get("discussionName").String()); name != "" {
		result.ConversationName = name
	}

	c.logger.Debug("conversation created", "conversation_id", id, "user_id", userID)
	return result, nil
}

// SendPrompt submits a prompt to an existing conversation.
func (c *Client) SendPrompt(ctx context.Context, prompt, model, conversationID, userID string) (*PromptResult, error) {
	if chat.IsPlaceholderID(conversationID) {
		panic("client: SendPrompt called with placeholder conversation id " + conversationID)
	}

	parsed, err := c.postPrompt(ctx, "send prompt", prompt, model, &conversationID, userID)
	if err != nil {
		return nil, err
	}

	return &PromptResult{ReplyText: replyText(parsed.Get("response").String())}, nil
}

func (c *Client) postPrompt(ctx context.Context, op, prompt, model string, conversationID *string, userID string) (gjson.Result, error) {
	if model == "" {
		model = DefaultModel
	}
	body := promptRequest{
		Prompt:       prompt,
		Model:        model,
		DiscussionID: conversationID,
		UserID:       userID,
	}

	data, err := c.do(ctx, op, http.MethodPost, c.endpoint(nil, "prompt"), body)
	if err != nil {
		return gjson.Result{}, err
	}
	return decodeObject(op, data)
}

func replyText(s string) string {
	if strings.TrimSpace(s) == "" {
		return NoReplyText
	}
	return s
}
