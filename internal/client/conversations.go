// ABOUTME: Conversation list and delete calls
// ABOUTME: Normalizes partial conversation summaries, defaulting missing names, counts, and timestamps

package client

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/2389/coven-chat/internal/chat"
)

// timeLayouts are the timestamp shapes the backend has been seen to emit.
// Zone-less layouts are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ListConversations returns the user's conversations in backend order.
// Messages are left empty; they are loaded per conversation with ListMessages.
func (c *Client) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	const op = "list conversations"

	data, err := c.do(ctx, op, http.MethodGet, c.endpoint(nil, "discussions", "user", userID), nil)
	if err != nil {
		return nil, err
	}

	items, err := decodeArray(op, data)
	if err != nil {
		return nil, err
	}

	now := c.now()
	convs := make([]chat.Conversation, 0, len(items))
	for _, item := range items {
		conv, ok := normalizeConversation(item, now)
		if !ok {
			c.logger.Warn("skipping conversation without id", "raw", truncate(item.Raw, 120))
			continue
		}
		convs = append(convs, conv)
	}

	c.logger.Debug("conversations listed", "user_id", userID, "count", len(convs))
	return convs, nil
}

// DeleteConversation removes a conversation on the backend.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if chat.IsPlaceholderID(conversationID) {
		panic("client: DeleteConversation called with placeholder conversation id " + conversationID)
	}
	_, err := c.do(ctx, "delete conversation", http.MethodDelete, c.endpoint(nil, "discussions", conversationID), nil)
	return err
}

// normalizeConversation fills defaults for a conversation summary.
// Returns false when the summary has no usable id.
func normalizeConversation(item gjson.Result, now time.Time) (chat.Conversation, bool) {
	id, ok := stringField(item, "id")
	if !ok {
		return chat.Conversation{}, false
	}

	conv := chat.Conversation{
		ID:                 id,
		DisplayName:        chat.DefaultDisplayName,
		MessageCount:       int(item.Get("messageCount").Int()),
		LastMessagePreview: item.Get("lastMessage").String(),
		State:              chat.StateIdle,
	}
	if name := strings.TrimSpace(item.Get("name").String()); name != "" {
		conv.DisplayName = name
	}

	createdAt, hasCreated := parseTime(item.Get("createdAt"))
	updatedAt, hasUpdated := parseTime(item.Get("updatedAt"))
	switch {
	case hasCreated:
		conv.CreatedAt = createdAt
	default:
		conv.CreatedAt = now
	}
	switch {
	case hasUpdated:
		conv.UpdatedAt = updatedAt
	case hasCreated:
		conv.UpdatedAt = createdAt
	default:
		conv.UpdatedAt = now
	}

	return conv, true
}

// parseTime reads a timestamp given as a string or as epoch milliseconds.
func parseTime(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return time.Time{}, false
		}
		// Values this large are milliseconds; smaller ones are seconds
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
