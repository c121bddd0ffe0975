// Package conversation owns the client-side collection of conversations and
// reconciles optimistic local edits with what the backend confirms.
//
// # Store
//
// A Store holds the ordered conversation list, the current selection and the
// input draft. The view reads deep copies through Conversations and Selected
// and is told about changes through Subscribe:
//
//	st := conversation.NewStore(apiClient, identityStore)
//	events := st.Subscribe(ctx)
//
// # States
//
// Each conversation is Idle, LoadingMessages or Sending. A send is only
// accepted on an Idle conversation, so two sends never overlap on the same
// conversation. Sends on different conversations are independent.
//
// # Placeholders
//
// CreateConversation makes a local conversation with a "new-" id and no
// backend call. The first SendMessage on it creates the backend conversation
// and swaps the id and name in place, so a held selection keeps pointing at
// the same conversation.
//
// # Failures
//
// Transport errors never roll back the user's message. It stays in the
// transcript with Failed set, and RetryMessage resends it. Deletes are removed
// optimistically and put back where they were if the backend refuses.
package conversation
