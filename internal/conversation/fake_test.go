// ABOUTME: Scripted transport and session fakes for conversation store tests
// ABOUTME: Gates let a test hold a single call open to exercise interleavings

package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/client"
)

type promptCall struct {
	Prompt         string
	Model          string
	ConversationID string // empty for create
	UserID         string
}

// fakeTransport is an in-memory backend. Calls are keyed "list",
// "messages:<id>", "create", "send:<id>" and "delete:<id>".
type fakeTransport struct {
	mu sync.Mutex

	conversations []chat.Conversation
	messages      map[string][]chat.Message
	nextID        int

	listErr     error
	messagesErr error
	createErr   error
	sendErr     error
	deleteErr   error

	// result overrides; empty fields are generated
	createID   string
	createName string
	reply      string

	calls   []string
	prompts []promptCall

	gates   map[string]chan struct{}
	entered chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(map[string][]chat.Message),
		gates:    make(map[string]chan struct{}),
		entered:  make(chan string, 16),
	}
}

// gate makes the next call with key block until the returned func is called.
func (f *fakeTransport) gate(key string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[key] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// enter records the call and blocks on its gate, if one is set.
func (f *fakeTransport) enter(key string) {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	g := f.gates[key]
	delete(f.gates, key)
	f.mu.Unlock()

	if g != nil {
		f.entered <- key
		<-g
	}
}

func (f *fakeTransport) waitEntered(t *testing.T, key string) {
	t.Helper()
	select {
	case got := <-f.entered:
		if got != key {
			t.Fatalf("expected call %q to block, got %q", key, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for call %q", key)
	}
}

func (f *fakeTransport) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func (f *fakeTransport) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) setConversations(convs ...chat.Conversation) {
	f.mu.Lock()
	f.conversations = convs
	f.mu.Unlock()
}

func (f *fakeTransport) setMessages(id string, msgs ...chat.Message) {
	f.mu.Lock()
	f.messages[id] = msgs
	f.mu.Unlock()
}

func (f *fakeTransport) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	// Snapshot before blocking, as a real response would be.
	f.mu.Lock()
	snapshot := append([]chat.Conversation(nil), f.conversations...)
	err := f.listErr
	f.mu.Unlock()

	f.enter("list")
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (f *fakeTransport) ListMessages(ctx context.Context, conversationID, userID string) ([]chat.Message, error) {
	if chat.IsPlaceholderID(conversationID) {
		panic("ListMessages called with placeholder id " + conversationID)
	}
	f.enter("messages:" + conversationID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	return append([]chat.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeTransport) CreateConversationWithFirstMessage(ctx context.Context, prompt, model, userID string) (*client.PromptResult, error) {
	f.enter("create")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, promptCall{Prompt: prompt, Model: model, UserID: userID})
	if f.createErr != nil {
		return nil, f.createErr
	}

	f.nextID++
	id, name := f.createID, f.createName
	if id == "" {
		id = fmt.Sprintf("conv-%d", f.nextID)
	}
	if name == "" {
		name = "Chat " + id
	}
	f.conversations = append([]chat.Conversation{{ID: id, DisplayName: name, MessageCount: 2}}, f.conversations...)
	return &client.PromptResult{
		ReplyText:        f.replyTo(prompt),
		ConversationID:   id,
		ConversationName: name,
	}, nil
}

func (f *fakeTransport) SendPrompt(ctx context.Context, prompt, model, conversationID, userID string) (*client.PromptResult, error) {
	if chat.IsPlaceholderID(conversationID) {
		panic("SendPrompt called with placeholder id " + conversationID)
	}
	f.enter("send:" + conversationID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, promptCall{Prompt: prompt, Model: model, ConversationID: conversationID, UserID: userID})
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &client.PromptResult{ReplyText: f.replyTo(prompt)}, nil
}

func (f *fakeTransport) replyTo(prompt string) string {
	if f.reply != "" {
		return f.reply
	}
	return "reply to " + prompt
}

func (f *fakeTransport) DeleteConversation(ctx context.Context, conversationID string) error {
	if chat.IsPlaceholderID(conversationID) {
		panic("DeleteConversation called with placeholder id " + conversationID)
	}
	f.enter("delete:" + conversationID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, c := range f.conversations {
		if c.ID == conversationID {
			f.conversations = append(f.conversations[:i], f.conversations[i+1:]...)
			break
		}
	}
	return nil
}

// staticSession is a fixed user id; empty means logged out.
type staticSession string

func (s staticSession) UserID() (string, bool) {
	return string(s), s != ""
}

// stepClock advances one second on every read.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}
