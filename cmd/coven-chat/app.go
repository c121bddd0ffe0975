// ABOUTME: Interactive command loop for coven-chat
// ABOUTME: Turns input lines into identity and conversation store operations and renders the results

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/identity"
)

const previewLen = 60

var (
	dim    = color.New(color.FgHiBlack)
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

// app wires the stores to a line-oriented terminal.
type app struct {
	out    io.Writer
	ids    *identity.Store
	convs  *conversation.Store
	api    *client.Client
	logger *slog.Logger
}

// run reads commands from in until EOF, /quit, or ctx is cancelled.
func (a *app) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		a.prompt()

		var line string
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		case line = <-lines:
		}

		if quit := a.handle(ctx, line); quit {
			return nil
		}
	}
}

func (a *app) prompt() {
	if conv, ok := a.convs.Selected(); ok {
		cyan.Fprintf(a.out, "[%s]", conv.DisplayName)
		fmt.Fprint(a.out, "> ")
		return
	}
	fmt.Fprint(a.out, "> ")
}

// handle executes one input line and reports whether the user asked to quit.
func (a *app) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !strings.HasPrefix(line, "/") {
		a.send(ctx, line)
		return false
	}

	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		a.printHelp()
	case "/login":
		a.login(ctx, args)
	case "/logout":
		if err := a.ids.Clear(ctx); err != nil {
			a.printError(err)
			break
		}
		fmt.Fprintln(a.out, "Logged out")
	case "/whoami":
		a.whoami(ctx)
	case "/list":
		a.list(ctx)
	case "/new":
		conv := a.convs.CreateConversation()
		fmt.Fprintf(a.out, "Started %s. Your first message creates it.\n", conv.DisplayName)
	case "/use":
		a.use(ctx, args)
	case "/delete":
		a.delete(ctx, args)
	case "/retry":
		a.retry(ctx)
	default:
		yellow.Fprintf(a.out, "Unknown command %s. /help lists commands.\n", cmd)
	}
	return false
}

func (a *app) printHelp() {
	fmt.Fprintln(a.out, "Commands:")
	fmt.Fprintln(a.out, "  /login <id> [--no-remember]  Set the user id (remembered unless --no-remember)")
	fmt.Fprintln(a.out, "  /logout                      Forget the user id")
	fmt.Fprintln(a.out, "  /whoami                      Show the local and backend identity")
	fmt.Fprintln(a.out, "  /list                        Refresh and list conversations")
	fmt.Fprintln(a.out, "  /new                         Start a new conversation")
	fmt.Fprintln(a.out, "  /use <id|#n>                 Switch conversation and show it")
	fmt.Fprintln(a.out, "  /delete <id|#n>              Delete a conversation")
	fmt.Fprintln(a.out, "  /retry                       Resend the last failed message")
	fmt.Fprintln(a.out, "  /help                        Show this help")
	fmt.Fprintln(a.out, "  /quit                        Exit")
	fmt.Fprintln(a.out, "Anything else is sent to the current conversation.")
}

func (a *app) login(ctx context.Context, args string) {
	remember := true
	var id string
	for _, f := range strings.Fields(args) {
		if f == "--no-remember" {
			remember = false
			continue
		}
		id = f
	}

	if err := a.ids.Set(ctx, id, remember); err != nil {
		a.printError(err)
		return
	}
	green.Fprint(a.out, "Logged in as ")
	bold.Fprintln(a.out, id)
	if !remember {
		dim.Fprintln(a.out, "Not remembered after exit.")
	}
}

func (a *app) whoami(ctx context.Context) {
	id, ok := a.ids.Get()
	if !ok {
		fmt.Fprintln(a.out, "Not logged in. Use /login <id>.")
	} else {
		fmt.Fprintf(a.out, "User id: %s\n", id)
	}

	user, err := a.api.CurrentUser(ctx)
	if err != nil {
		dim.Fprintf(a.out, "Backend %s: %s\n", a.api.BaseURL(), describeError(err))
		return
	}
	name := user.DisplayName
	if name == "" {
		name = "(no name)"
	}
	dim.Fprintf(a.out, "Backend %s sees %s %s\n", a.api.BaseURL(), user.ID, name)
}

// send posts text to the selected conversation, starting one if needed.
func (a *app) send(ctx context.Context, text string) {
	if a.convs.SelectedID() == "" {
		a.convs.CreateConversation()
	}
	a.convs.SetDraft(text)

	err := a.convs.SendMessage(ctx, a.convs.Draft())
	if err != nil {
		a.printError(err)
		if client.IsRecoverable(err) {
			dim.Fprintln(a.out, "Message kept. /retry to resend.")
		}
		return
	}
	a.printReply()
}

func (a *app) retry(ctx context.Context) {
	if err := a.convs.RetryMessage(ctx, ""); err != nil {
		a.printError(err)
		return
	}
	a.printReply()
}

// printReply shows the assistant message that ends the selected conversation.
func (a *app) printReply() {
	conv, ok := a.convs.Selected()
	if !ok || len(conv.Messages) == 0 {
		return
	}
	last := conv.Messages[len(conv.Messages)-1]
	if last.Role == chat.RoleAssistant {
		a.printMessage(last)
	}
}

func (a *app) use(ctx context.Context, args string) {
	id, err := a.resolve(args)
	if err != nil {
		a.printError(err)
		return
	}
	if err := a.convs.SelectConversation(ctx, id); err != nil {
		a.printError(err)
		return
	}
	a.printTranscript()
}

func (a *app) delete(ctx context.Context, args string) {
	id, err := a.resolve(args)
	if err != nil {
		a.printError(err)
		return
	}
	if err := a.convs.DeleteConversation(ctx, id); err != nil {
		a.printError(err)
		return
	}
	fmt.Fprintf(a.out, "Deleted %s\n", id)
}

// resolve turns "#n" (1-based, as printed by /list) or an id into an id.
func (a *app) resolve(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("expected a conversation id or #n")
	}
	if !strings.HasPrefix(ref, "#") {
		return ref, nil
	}
	n, err := strconv.Atoi(ref[1:])
	if err != nil {
		return "", fmt.Errorf("invalid conversation number %q", ref)
	}
	convs := a.convs.Conversations()
	if n < 1 || n > len(convs) {
		return "", fmt.Errorf("no conversation #%d (have %d)", n, len(convs))
	}
	return convs[n-1].ID, nil
}

// list refreshes the collection from the backend when logged in, then prints it.
func (a *app) list(ctx context.Context) {
	if a.ids.LoggedIn() {
		if err := a.convs.LoadConversations(ctx); err != nil {
			a.printError(err)
		}
	}
	a.printConversations()
}

func (a *app) printConversations() {
	convs := a.convs.Conversations()
	if len(convs) == 0 {
		fmt.Fprintln(a.out, "No conversations. Type a message or /new to start one.")
		return
	}

	selectedID := a.convs.SelectedID()
	for i, c := range convs {
		marker := " "
		if c.ID == selectedID {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s #%-3d ", marker, i+1)
		bold.Fprint(a.out, c.DisplayName)
		dim.Fprintf(a.out, "  %s", c.ID)
		if c.MessageCount > 0 {
			dim.Fprintf(a.out, "  %d msgs", c.MessageCount)
		}
		if c.State != chat.StateIdle {
			yellow.Fprintf(a.out, "  [%s]", c.State)
		}
		fmt.Fprintln(a.out)
		if c.LastMessagePreview != "" {
			dim.Fprintf(a.out, "       %s\n", truncate(oneLine(c.LastMessagePreview), previewLen))
		}
	}
}

func (a *app) printTranscript() {
	conv, ok := a.convs.Selected()
	if !ok {
		return
	}
	bold.Fprintln(a.out, conv.DisplayName)
	if len(conv.Messages) == 0 {
		dim.Fprintln(a.out, "(no messages)")
		return
	}
	for _, m := range conv.Messages {
		a.printMessage(m)
	}
}

func (a *app) printMessage(m chat.Message) {
	dim.Fprintf(a.out, "%s ", m.Timestamp.Local().Format("15:04"))
	if m.Role == chat.RoleUser {
		cyan.Fprint(a.out, "you ")
	} else {
		green.Fprint(a.out, "ai  ")
	}
	fmt.Fprint(a.out, m.Content)
	switch {
	case m.Failed:
		red.Fprint(a.out, " [failed]")
	case m.Pending:
		yellow.Fprint(a.out, " [sending]")
	}
	fmt.Fprintln(a.out)
}

func (a *app) printError(err error) {
	red.Fprintf(a.out, "[error] %s\n", describeError(err))
}

// describeError phrases store and transport errors for the terminal.
func describeError(err error) string {
	switch {
	case errors.Is(err, conversation.ErrNoSession):
		return "not logged in, use /login <id>"
	case errors.Is(err, conversation.ErrNoSelection):
		return "no conversation selected, use /use or /new"
	case errors.Is(err, conversation.ErrConversationBusy):
		return "that conversation is still waiting on the backend"
	case isUnauthorized(err):
		return "backend rejected the user id, use /login <id>: " + err.Error()
	case errors.Is(err, client.ErrNetwork):
		return "backend unreachable: " + err.Error()
	case errors.Is(err, client.ErrNotFound):
		return "not found on the backend, /list to refresh: " + err.Error()
	default:
		return err.Error()
	}
}

func isUnauthorized(err error) bool {
	var apiErr *client.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// watchIdentity resets the conversation store whenever the user changes and
// loads the new user's conversations.
func (a *app) watchIdentity(ctx context.Context, changes <-chan identity.Change) {
	for change := range changes {
		a.convs.Reset()
		if !change.Present {
			continue
		}
		if err := a.convs.LoadConversations(ctx); err != nil {
			a.logger.Warn("loading conversations after login failed", "user_id", change.UserID, "error", err)
		}
	}
}

// watchStore logs store notifications at debug level.
func (a *app) watchStore(events <-chan conversation.Event) {
	for ev := range events {
		a.logger.Debug("store changed", "kind", ev.Kind, "conversation_id", ev.ConversationID)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
