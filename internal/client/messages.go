// ABOUTME: Message history call for an existing conversation
// ABOUTME: Normalizes message records whose id, role, content, and timestamp fields vary by backend version

package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/2389/coven-chat/internal/chat"
)

// ListMessages returns the messages of a backend conversation in backend order.
//
// Placeholder conversations exist only locally; calling ListMessages with a
// placeholder id is a programming error and panics.
func (c *Client) ListMessages(ctx context.Context, conversationID, userID string) ([]chat.Message, error) {
	if chat.IsPlaceholderID(conversationID) {
		panic("client: ListMessages called with placeholder conversation id " + conversationID)
	}
	const op = "list messages"

	query := url.Values{"userId": {userID}}
	data, err := c.do(ctx, op, http.MethodGet, c.endpoint(query, "discussions", conversationID, "messages"), nil)
	if err != nil {
		return nil, err
	}

	items, err := decodeArray(op, data)
	if err != nil {
		return nil, err
	}

	now := c.now()
	msgs := make([]chat.Message, 0, len(items))
	for _, item := range items {
		msgs = append(msgs, normalizeMessage(item, now))
	}

	c.logger.Debug("messages listed", "conversation_id", conversationID, "count", len(msgs))
	return msgs, nil
}

// normalizeMessage converts one backend message record.
func normalizeMessage(item gjson.Result, now time.Time) chat.Message {
	msg := chat.Message{
		Role:    normalizeRole(item),
		Content: item.Get("content").String(),
	}

	if id, ok := stringField(item, "id"); ok {
		msg.ID = id
	} else {
		msg.ID = "msg-" + uuid.New().String()
	}

	if msg.Content == "" {
		msg.Content = item.Get("message").String()
	}

	if ts, ok := parseTime(item.Get("timestamp")); ok {
		msg.Timestamp = ts
	} else {
		msg.Timestamp = now
	}

	return msg
}

// normalizeRole maps backend role names onto user/assistant, falling back to
// the isUser flag when the role is missing.
func normalizeRole(item gjson.Result) chat.Role {
	switch strings.ToLower(strings.TrimSpace(item.Get("role").String())) {
	case "user", "human":
		return chat.RoleUser
	case "assistant", "ai", "model", "bot":
		return chat.RoleAssistant
	}
	if item.Get("isUser").Bool() {
		return chat.RoleUser
	}
	return chat.RoleAssistant
}
