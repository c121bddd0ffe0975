// ABOUTME: Conversation store: ordered collection, selection, and the send/reconcile state machine
// ABOUTME: Mutations are serialized by a mutex that is released across every transport call

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/broadcast"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/dedupe"
)

const (
	// NewConversationName is the display name of a conversation not yet sent.
	NewConversationName = "New conversation"

	// DefaultTombstoneTTL is how long a deleted id is kept out of list refreshes.
	DefaultTombstoneTTL = 2 * time.Minute

	maxTombstones = 1000
)

// Transport is what the store needs from the backend client.
type Transport interface {
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)
	ListMessages(ctx context.Context, conversationID, userID string) ([]chat.Message, error)
	CreateConversationWithFirstMessage(ctx context.Context, prompt, model, userID string) (*client.PromptResult, error)
	SendPrompt(ctx context.Context, prompt, model, conversationID, userID string) (*client.PromptResult, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Session supplies the current user id.
type Session interface {
	UserID() (string, bool)
}

// Store holds the conversations of the current session.
type Store struct {
	transport  Transport
	session    Session
	model      string
	logger     *slog.Logger
	now        func() time.Time
	tombstones *dedupe.Cache
	events     *broadcast.Broadcaster[Event]

	mu              sync.Mutex
	convs           []*chat.Conversation // display order, placeholders first
	selected        *chat.Conversation   // held by pointer so an id swap keeps the selection
	draft           string
	nextPlaceholder int
	generation      uint64 // bumped by Reset; results from older generations are dropped

	// adopted records when each placeholder got its backend id, so a list
	// fetched before that moment does not drop it.
	adoptSeq uint64
	adopted  map[*chat.Conversation]uint64
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	model        string
	logger       *slog.Logger
	now          func() time.Time
	tombstoneTTL time.Duration
}

// WithModel sets the model named in prompts. Empty uses the client default.
func WithModel(model string) Option {
	return func(c *storeConfig) {
		c.model = model
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the time source for local timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTombstoneTTL sets how long deleted ids are hidden from list refreshes.
func WithTombstoneTTL(ttl time.Duration) Option {
	return func(c *storeConfig) {
		if ttl > 0 {
			c.tombstoneTTL = ttl
		}
	}
}

// NewStore creates an empty store. Call Close to release it.
func NewStore(transport Transport, session Session, opts ...Option) *Store {
	cfg := storeConfig{
		model:        client.DefaultModel,
		logger:       slog.Default(),
		now:          time.Now,
		tombstoneTTL: DefaultTombstoneTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.model == "" {
		cfg.model = client.DefaultModel
	}

	logger := cfg.logger.With("component", "conversation")
	return &Store{
		transport:  transport,
		session:    session,
		model:      cfg.model,
		logger:     logger,
		now:        cfg.now,
		tombstones: dedupe.New(cfg.tombstoneTTL, maxTombstones),
		events:     broadcast.New[Event](logger),
		adopted:    make(map[*chat.Conversation]uint64),
	}
}

// Close stops notifications and background cleanup.
func (s *Store) Close() {
	s.events.Close()
	s.tombstones.Close()
}

// Subscribe returns a channel of change events, closed when ctx is done or
// the store is closed. Slow subscribers miss events rather than block the store.
func (s *Store) Subscribe(ctx context.Context) <-chan Event {
	ch, _ := s.events.Subscribe(ctx)
	return ch
}

func (s *Store) publish(kind EventKind, conversationID string) {
	s.events.Publish(Event{Kind: kind, ConversationID: conversationID})
}

// Conversations returns a deep copy of the collection in display order.
func (s *Store) Conversations() []chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Conversation, len(s.convs))
	for i, c := range s.convs {
		out[i] = c.Clone()
	}
	return out
}

// Selected returns a deep copy of the selected conversation.
func (s *Store) Selected() (chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return chat.Conversation{}, false
	}
	return s.selected.Clone(), true
}

// SelectedID returns the id of the selected conversation, or "".
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return ""
	}
	return s.selected.ID
}

// SetDraft replaces the input buffer.
func (s *Store) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// Draft returns the input buffer.
func (s *Store) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Reset drops every conversation and the selection. Operations still in
// flight from before the reset discard their results.
func (s *Store) Reset() {
	s.mu.Lock()
	s.generation++
	s.convs = nil
	s.selected = nil
	s.draft = ""
	clear(s.adopted)
	s.mu.Unlock()

	s.logger.Debug("store reset")
	s.publish(EventConversations, "")
	s.publish(EventSelection, "")
}

// LoadConversations fetches the conversation list and merges it into the
// collection. If nothing is selected afterwards, the first conversation is
// selected and its messages are loaded.
func (s *Store) LoadConversations(ctx context.Context) error {
	userID, ok := s.session.UserID()
	if !ok {
		return ErrNoSession
	}

	s.mu.Lock()
	gen, seq := s.generation, s.adoptSeq
	s.mu.Unlock()

	list, err := s.transport.ListConversations(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding conversation list from previous session")
		return nil
	}
	selectionLost := s.mergeLocked(list, seq)
	var autoSelected *chat.Conversation
	if s.selected == nil && len(s.convs) > 0 {
		autoSelected = s.convs[0]
		s.selected = autoSelected
	}
	count := len(s.convs)
	s.mu.Unlock()

	s.logger.Debug("conversations merged", "listed", len(list), "count", count)
	s.publish(EventConversations, "")
	if selectionLost || autoSelected != nil {
		s.publish(EventSelection, s.SelectedID())
	}

	if autoSelected != nil {
		if err := s.loadMessages(ctx, autoSelected, userID); err != nil {
			return err
		}
	}
	return nil
}

// mergeLocked folds a backend list into the collection and reports whether
// the selected conversation disappeared.
//
// Placeholders stay in front. Unlisted conversations that are mid-send, or
// that got their backend id after the list was requested (seq), are kept
// after them. Listed conversations follow in backend order, reusing existing
// objects so loaded messages survive. Tombstoned ids are skipped.
func (s *Store) mergeLocked(list []chat.Conversation, seq uint64) bool {
	existing := make(map[string]*chat.Conversation, len(s.convs))
	for _, c := range s.convs {
		existing[c.ID] = c
	}
	listed := make(map[string]bool, len(list))
	for _, summary := range list {
		if !s.tombstones.Check(summary.ID) {
			listed[summary.ID] = true
		}
	}

	merged := make([]*chat.Conversation, 0, len(list)+len(s.convs))
	for _, c := range s.convs {
		if listed[c.ID] {
			continue
		}
		if c.IsPlaceholder() || c.State == chat.StateSending || s.adopted[c] > seq {
			merged = append(merged, c)
		}
	}

	seen := make(map[string]bool, len(list))
	for i := range list {
		summary := &list[i]
		if !listed[summary.ID] || seen[summary.ID] {
			continue
		}
		seen[summary.ID] = true

		if c, ok := existing[summary.ID]; ok {
			c.DisplayName = summary.DisplayName
			c.MessageCount = summary.MessageCount
			if !summary.CreatedAt.IsZero() {
				c.CreatedAt = summary.CreatedAt
			}
			// A local reply may be newer than the backend's summary.
			if summary.UpdatedAt.After(c.UpdatedAt) {
				c.UpdatedAt = summary.UpdatedAt
			}
			if summary.LastMessagePreview != "" {
				c.LastMessagePreview = summary.LastMessagePreview
			}
			merged = append(merged, c)
			continue
		}

		c := *summary
		c.Messages = nil
		c.State = chat.StateIdle
		merged = append(merged, &c)
	}

	s.convs = merged
	for c := range s.adopted {
		if s.indexLocked(c) < 0 {
			delete(s.adopted, c)
		}
	}
	if s.selected != nil && s.indexLocked(s.selected) < 0 {
		s.selected = nil
		return true
	}
	return false
}

// SelectConversation selects a conversation. If it has no messages and is
// known to the backend, its messages are fetched; a failure leaves them empty
// and is returned. A fetch that completes after the selection moved on is
// discarded.
func (s *Store) SelectConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	conv := s.findLocked(id)
	if conv == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	changed := s.selected != conv
	s.selected = conv
	needsLoad := len(conv.Messages) == 0 && !conv.IsPlaceholder()
	s.mu.Unlock()

	if changed {
		s.publish(EventSelection, id)
	}
	if !needsLoad {
		return nil
	}

	userID, ok := s.session.UserID()
	if !ok {
		return ErrNoSession
	}
	return s.loadMessages(ctx, conv, userID)
}

// loadMessages runs Idle -> LoadingMessages -> Idle for conv. Placeholders and
// conversations that already hold messages are left alone.
func (s *Store) loadMessages(ctx context.Context, conv *chat.Conversation, userID string) error {
	s.mu.Lock()
	if conv.IsPlaceholder() || len(conv.Messages) > 0 || conv.State != chat.StateIdle || s.indexLocked(conv) < 0 {
		// A busy conversation's transcript belongs to the operation in flight.
		s.mu.Unlock()
		return nil
	}
	conv.State = chat.StateLoadingMessages
	id := conv.ID
	gen := s.generation
	s.mu.Unlock()
	s.publish(EventMessages, id)

	msgs, err := s.transport.ListMessages(ctx, id, userID)

	s.mu.Lock()
	conv.State = chat.StateIdle
	current := gen == s.generation && s.selected == conv
	if err == nil && current {
		chat.SortMessages(msgs)
		conv.Messages = msgs
	}
	s.mu.Unlock()
	s.publish(EventMessages, id)

	if !current {
		s.logger.Debug("discarding messages for deselected conversation", "conversation_id", id, "error", err)
		return nil
	}
	if err != nil {
		s.logger.Warn("loading messages failed", "conversation_id", id, "error", err)
		return fmt.Errorf("loading messages for %s: %w", id, err)
	}
	return nil
}

// CreateConversation adds a local placeholder conversation at the front and
// selects it. The backend conversation is created by the first send.
func (s *Store) CreateConversation() chat.Conversation {
	s.mu.Lock()
	s.nextPlaceholder++
	now := s.now()
	conv := &chat.Conversation{
		ID:          fmt.Sprintf("%s%d", chat.PlaceholderPrefix, s.nextPlaceholder),
		DisplayName: NewConversationName,
		CreatedAt:   now,
		UpdatedAt:   now,
		State:       chat.StateIdle,
	}
	s.convs = append([]*chat.Conversation{conv}, s.convs...)
	s.selected = conv
	snapshot := conv.Clone()
	s.mu.Unlock()

	s.logger.Debug("placeholder conversation created", "conversation_id", conv.ID)
	s.publish(EventConversations, "")
	s.publish(EventSelection, snapshot.ID)
	return snapshot
}

// SendMessage sends text on the selected conversation.
//
// The user message is appended as pending and the draft cleared before any
// network call. A placeholder conversation is created on the backend by this
// send and takes the backend's id and name. On failure the message stays in
// the transcript marked failed and the error is returned. Either way the
// conversation list is refreshed when the backend may have changed it.
func (s *Store) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	userID, ok := s.session.UserID()
	if !ok {
		return ErrNoSession
	}

	s.mu.Lock()
	conv := s.selected
	if conv == nil {
		s.mu.Unlock()
		return ErrNoSelection
	}
	if conv.State != chat.StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrConversationBusy, conv.ID, conv.State)
	}
	msg := chat.Message{
		ID:        newMessageID(),
		Role:      chat.RoleUser,
		Content:   text,
		Timestamp: s.nextTimestampLocked(conv),
		Pending:   true,
	}
	conv.Messages = append(conv.Messages, msg)
	conv.State = chat.StateSending
	s.draft = ""
	id := conv.ID
	s.mu.Unlock()
	s.publish(EventMessages, id)

	return s.deliver(ctx, conv, msg.ID, text, userID)
}

// RetryMessage resends the selected conversation's last message if it is a
// failed user message. An empty messageID means that last message. The
// message is reused, not duplicated.
func (s *Store) RetryMessage(ctx context.Context, messageID string) error {
	userID, ok := s.session.UserID()
	if !ok {
		return ErrNoSession
	}

	s.mu.Lock()
	conv := s.selected
	if conv == nil {
		s.mu.Unlock()
		return ErrNoSelection
	}
	if conv.State != chat.StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrConversationBusy, conv.ID, conv.State)
	}
	n := len(conv.Messages)
	if n == 0 {
		s.mu.Unlock()
		return ErrNotRetryable
	}
	last := &conv.Messages[n-1]
	if (messageID != "" && last.ID != messageID) || last.Role != chat.RoleUser || !last.Failed {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRetryable, messageID)
	}
	last.Failed = false
	last.Pending = true
	conv.State = chat.StateSending
	msgID, text, id := last.ID, last.Content, conv.ID
	s.mu.Unlock()
	s.publish(EventMessages, id)

	s.logger.Debug("retrying message", "conversation_id", id, "message_id", msgID)
	return s.deliver(ctx, conv, msgID, text, userID)
}

// deliver performs the transport call for a user message already in conv
// and reconciles the result. conv must be in StateSending.
func (s *Store) deliver(ctx context.Context, conv *chat.Conversation, msgID, text, userID string) error {
	s.mu.Lock()
	placeholder := conv.IsPlaceholder()
	id := conv.ID
	gen := s.generation
	s.mu.Unlock()

	var (
		res *client.PromptResult
		err error
	)
	if placeholder {
		res, err = s.transport.CreateConversationWithFirstMessage(ctx, text, s.model, userID)
	} else {
		res, err = s.transport.SendPrompt(ctx, text, s.model, id, userID)
	}

	s.mu.Lock()
	conv.State = chat.StateIdle
	live := gen == s.generation && s.indexLocked(conv) >= 0

	if err != nil {
		if msg := findMessage(conv, msgID); msg != nil {
			msg.Pending = false
			msg.Failed = true
		}
		s.mu.Unlock()

		s.logger.Warn("send failed", "conversation_id", id, "error", err)
		if live {
			s.publish(EventMessages, id)
			s.refresh(ctx)
		}
		return fmt.Errorf("sending message: %w", err)
	}

	// Completed even if conv was removed meanwhile; a failed delete restores it.
	if msg := findMessage(conv, msgID); msg != nil {
		msg.Pending = false
		msg.Failed = false
	}
	if placeholder && live {
		s.adoptBackendIDLocked(conv, res.ConversationID, res.ConversationName)
	}
	reply := chat.Message{
		ID:        newMessageID(),
		Role:      chat.RoleAssistant,
		Content:   res.ReplyText,
		Timestamp: s.nextTimestampLocked(conv),
	}
	conv.Messages = append(conv.Messages, reply)
	conv.UpdatedAt = reply.Timestamp
	conv.LastMessagePreview = reply.Content
	if conv.MessageCount < len(conv.Messages) {
		conv.MessageCount = len(conv.Messages)
	}
	newID := conv.ID
	s.mu.Unlock()

	if !live {
		s.logger.Debug("reply delivered to removed conversation", "conversation_id", id)
		return nil
	}

	s.logger.Debug("message delivered", "conversation_id", newID, "created", placeholder)
	s.publish(EventMessages, newID)
	if placeholder {
		s.publish(EventConversations, "")
		s.refresh(ctx)
	}
	return nil
}

// adoptBackendIDLocked retires conv's placeholder id. A summary for the same
// backend id that a concurrent refresh may have added is dropped in favour of
// conv, which holds the transcript.
func (s *Store) adoptBackendIDLocked(conv *chat.Conversation, id, name string) {
	old := conv.ID
	for i, c := range s.convs {
		if c != conv && c.ID == id {
			s.convs = append(s.convs[:i], s.convs[i+1:]...)
			if s.selected == c {
				s.selected = conv
			}
			break
		}
	}
	conv.ID = id
	conv.DisplayName = name
	s.adoptSeq++
	s.adopted[conv] = s.adoptSeq
	s.logger.Info("conversation created", "placeholder_id", old, "conversation_id", id)
}

// refresh reloads the list after a send. Failures are logged only; the send
// result stands on its own.
func (s *Store) refresh(ctx context.Context) {
	if err := s.LoadConversations(ctx); err != nil {
		s.logger.Warn("conversation list refresh failed", "error", err)
	}
}

// DeleteConversation removes a conversation. A placeholder is removed locally
// unless its first send is in flight. Otherwise the conversation is removed
// at once and the backend is asked to delete it; if that fails it is put back
// where it was, selection included, and the error is returned.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if !chat.IsPlaceholderID(id) {
		if _, ok := s.session.UserID(); !ok {
			return ErrNoSession
		}
	}

	s.mu.Lock()
	conv := s.findLocked(id)
	if conv == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	if conv.IsPlaceholder() {
		if conv.State == chat.StateSending {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s is being created", ErrConversationBusy, id)
		}
		wasSelected := s.removeLocked(conv)
		s.mu.Unlock()

		s.publish(EventConversations, "")
		if wasSelected {
			s.publish(EventSelection, "")
		}
		return nil
	}

	index := s.indexLocked(conv)
	var successor *chat.Conversation
	if index+1 < len(s.convs) {
		successor = s.convs[index+1]
	}
	wasSelected := s.removeLocked(conv)
	s.tombstones.Mark(id)
	gen := s.generation
	s.mu.Unlock()

	s.publish(EventConversations, "")
	if wasSelected {
		s.publish(EventSelection, "")
	}

	err := s.transport.DeleteConversation(ctx, id)
	if err == nil {
		s.logger.Info("conversation deleted", "conversation_id", id)
		return nil
	}

	s.mu.Lock()
	s.tombstones.Forget(id)
	restored := false
	if gen == s.generation && s.findLocked(id) == nil {
		pos := -1
		if successor != nil {
			pos = s.indexLocked(successor)
		}
		if pos < 0 {
			pos = min(index, len(s.convs))
		}
		s.convs = append(s.convs, nil)
		copy(s.convs[pos+1:], s.convs[pos:])
		s.convs[pos] = conv
		if wasSelected && s.selected == nil {
			s.selected = conv
		}
		restored = true
	}
	s.mu.Unlock()

	s.logger.Warn("delete failed", "conversation_id", id, "restored", restored, "error", err)
	if restored {
		s.publish(EventConversations, "")
		if wasSelected {
			s.publish(EventSelection, id)
		}
	}
	return fmt.Errorf("deleting conversation %s: %w", id, err)
}

// removeLocked drops conv from the collection and reports whether it was selected.
func (s *Store) removeLocked(conv *chat.Conversation) bool {
	if i := s.indexLocked(conv); i >= 0 {
		s.convs = append(s.convs[:i], s.convs[i+1:]...)
	}
	if s.selected == conv {
		s.selected = nil
		return true
	}
	return false
}

func (s *Store) findLocked(id string) *chat.Conversation {
	for _, c := range s.convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) indexLocked(conv *chat.Conversation) int {
	for i, c := range s.convs {
		if c == conv {
			return i
		}
	}
	return -1
}

// nextTimestampLocked returns now, or the last message's timestamp if the
// clock has not moved past it, so appends keep the transcript sorted.
func (s *Store) nextTimestampLocked(conv *chat.Conversation) time.Time {
	now := s.now()
	if n := len(conv.Messages); n > 0 {
		if last := conv.Messages[n-1].Timestamp; now.Before(last) {
			return last
		}
	}
	return now
}

func findMessage(conv *chat.Conversation, id string) *chat.Message {
	for i := range conv.Messages {
		if conv.Messages[i].ID == id {
			return &conv.Messages[i]
		}
	}
	return nil
}

func newMessageID() string {
	return "msg-" + uuid.New().String()
}
