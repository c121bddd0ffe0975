// Package client implements the REST transport used by the chat front end.
//
// # Overview
//
// Client translates conversation intents into calls against the chat
// backend and normalizes its loosely-typed JSON payloads into the canonical
// shapes of package chat. It never retries; retry policy belongs to the
// caller.
//
// # Endpoints
//
//   - GET    /discussions/user/{userId}            ListConversations
//   - GET    /discussions/{id}/messages?userId=... ListMessages
//   - POST   /prompt (discussionId null)           CreateConversationWithFirstMessage
//   - POST   /prompt (discussionId set)            SendPrompt
//   - DELETE /discussions/{id}                     DeleteConversation
//   - GET    /users/me                             CurrentUser
//
// Requests are bearer-less; the user is identified by an explicit userId in
// the path, query, or body.
//
// # Errors
//
// Every failure is a *Error classified as ErrNetwork, ErrNotFound, or
// ErrServer:
//
//	if errors.Is(err, client.ErrNotFound) {
//		// refresh the conversation list
//	}
//
// # Usage
//
//	c := client.New("http://localhost:8080/api", client.WithLogger(logger))
//	convs, err := c.ListConversations(ctx, userID)
package client
