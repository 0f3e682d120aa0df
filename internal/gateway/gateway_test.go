package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"ChatGate/internal/conversation"
	"ChatGate/internal/provider"
	"ChatGate/internal/store"

	"go.opentelemetry.io/otel"
)

// echoAdapter replies deterministically based on the last message in the
// history it is handed.
type echoAdapter struct {
	name string
	err  error
}

func (e *echoAdapter) Name() string { return e.name }

func (e *echoAdapter) Complete(_ context.Context, history []conversation.Message) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return "re: " + history[len(history)-1].Content, nil
}

// cannedAdapter always replies with the same text.
type cannedAdapter struct {
	name  string
	reply string
}

func (c *cannedAdapter) Name() string { return c.name }

func (c *cannedAdapter) Complete(_ context.Context, _ []conversation.Message) (string, error) {
	return c.reply, nil
}

func testGateway(t *testing.T, adapters ...provider.Adapter) (*Gateway, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	defaultName := "echo"
	if len(adapters) > 0 {
		defaultName = adapters[0].Name()
	}
	reg := provider.NewRegistry(defaultName, otel.Tracer("test"), otel.Meter("test"))
	for _, a := range adapters {
		reg.Register(a)
	}

	return New(st, reg, logger, otel.Tracer("test")), st
}

func newChat(t *testing.T, st *store.Store) *conversation.Chat {
	t.Helper()
	ctx := context.Background()
	sess, err := st.CreateSession(ctx, "research")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	chat, err := st.CreateChat(ctx, sess.ID, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	return chat
}

func TestPostMessageScenario(t *testing.T) {
	gw, st := testGateway(t, &cannedAdapter{name: "stub", reply: "hi there"})
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "research")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if len(sess.ChatIDs) != 0 {
		t.Fatalf("new session has chat ids")
	}

	chat, err := st.CreateChat(ctx, sess.ID, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if chat.Title == "" {
		t.Fatalf("default title not generated")
	}

	reply, err := gw.PostMessage(ctx, chat.ID, conversation.RoleUser, "hello", "")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if reply.Role != conversation.RoleAssistant || reply.Content != "hi there" {
		t.Fatalf("reply = %+v", reply)
	}

	got, err := st.LoadChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("LoadChat: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("chat has %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != conversation.RoleUser || got.Messages[0].Content != "hello" {
		t.Fatalf("message 0 = %+v", got.Messages[0])
	}
	if got.Messages[1].Role != conversation.RoleAssistant || got.Messages[1].Content != "hi there" {
		t.Fatalf("message 1 = %+v", got.Messages[1])
	}
}

func TestPostMessageAppendOnly(t *testing.T) {
	gw, st := testGateway(t, &echoAdapter{name: "echo"})
	chat := newChat(t, st)
	ctx := context.Background()

	const turns = 5
	for i := 0; i < turns; i++ {
		if _, err := gw.PostMessage(ctx, chat.ID, conversation.RoleUser, fmt.Sprintf("turn %d", i), ""); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	got, err := st.LoadChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("LoadChat: %v", err)
	}
	if len(got.Messages) != 2*turns {
		t.Fatalf("chat has %d messages after %d turns, want %d", len(got.Messages), turns, 2*turns)
	}
	for i := 0; i < turns; i++ {
		user := got.Messages[2*i]
		assistant := got.Messages[2*i+1]
		wantUser := fmt.Sprintf("turn %d", i)
		if user.Role != conversation.RoleUser || user.Content != wantUser {
			t.Fatalf("message %d = %+v, want user %q", 2*i, user, wantUser)
		}
		if assistant.Role != conversation.RoleAssistant || assistant.Content != "re: "+wantUser {
			t.Fatalf("message %d = %+v, want assistant reply to %q", 2*i+1, assistant, wantUser)
		}
	}
}

func TestConcurrentTurnsNoLostUpdate(t *testing.T) {
	gw, st := testGateway(t, &echoAdapter{name: "echo"})
	chat := newChat(t, st)
	ctx := context.Background()

	const k = 10
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := gw.PostMessage(ctx, chat.ID, conversation.RoleUser, fmt.Sprintf("msg %d", i), ""); err != nil {
				t.Errorf("concurrent turn %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := st.LoadChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("LoadChat: %v", err)
	}
	if len(got.Messages) != 2*k {
		t.Fatalf("chat has %d messages after %d concurrent turns, want %d", len(got.Messages), k, 2*k)
	}

	seen := map[string]bool{}
	for i := 0; i < len(got.Messages); i += 2 {
		user := got.Messages[i]
		assistant := got.Messages[i+1]
		if user.Role != conversation.RoleUser {
			t.Fatalf("message %d role = %q, want user", i, user.Role)
		}
		if assistant.Role != conversation.RoleAssistant || assistant.Content != "re: "+user.Content {
			t.Fatalf("turn interleaved: user %q followed by %+v", user.Content, assistant)
		}
		if seen[user.Content] {
			t.Fatalf("duplicate user message %q", user.Content)
		}
		seen[user.Content] = true
	}
	if len(seen) != k {
		t.Fatalf("saw %d distinct user messages, want %d", len(seen), k)
	}
}

func TestProviderFailureKeepsUserMessage(t *testing.T) {
	gw, st := testGateway(t, &echoAdapter{name: "echo", err: errors.New("upstream down")})
	chat := newChat(t, st)
	ctx := context.Background()

	_, err := gw.PostMessage(ctx, chat.ID, conversation.RoleUser, "hello?", "")

	var callErr *provider.CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("PostMessage error = %v, want *provider.CallError", err)
	}
	if callErr.Provider != "echo" {
		t.Fatalf("CallError.Provider = %q", callErr.Provider)
	}

	got, loadErr := st.LoadChat(ctx, chat.ID)
	if loadErr != nil {
		t.Fatalf("LoadChat: %v", loadErr)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("chat has %d messages after failed turn, want 1 (the user's)", len(got.Messages))
	}
	if got.Messages[0].Role != conversation.RoleUser || got.Messages[0].Content != "hello?" {
		t.Fatalf("persisted message = %+v", got.Messages[0])
	}
}

func TestUnsupportedProviderPersistsNothing(t *testing.T) {
	gw, st := testGateway(t, &echoAdapter{name: "echo"})
	chat := newChat(t, st)
	ctx := context.Background()

	_, err := gw.PostMessage(ctx, chat.ID, conversation.RoleUser, "hello", "bogus")
	if !errors.Is(err, provider.ErrUnsupportedProvider) {
		t.Fatalf("PostMessage = %v, want ErrUnsupportedProvider", err)
	}

	got, loadErr := st.LoadChat(ctx, chat.ID)
	if loadErr != nil {
		t.Fatalf("LoadChat: %v", loadErr)
	}
	if len(got.Messages) != 0 {
		t.Fatalf("unsupported provider persisted %d messages", len(got.Messages))
	}
}

func TestPostMessageChatNotFound(t *testing.T) {
	gw, _ := testGateway(t, &echoAdapter{name: "echo"})

	_, err := gw.PostMessage(context.Background(), "missing", conversation.RoleUser, "hello", "")
	if !errors.Is(err, conversation.ErrChatNotFound) {
		t.Fatalf("PostMessage = %v, want ErrChatNotFound", err)
	}
}

func TestEphemeral(t *testing.T) {
	gw, st := testGateway(t, &echoAdapter{name: "echo"})

	history := []conversation.Message{
		{Role: conversation.RoleUser, Content: "stateless hello"},
	}
	reply, err := gw.Ephemeral(context.Background(), history, "")
	if err != nil {
		t.Fatalf("Ephemeral: %v", err)
	}
	if reply.Role != conversation.RoleAssistant || reply.Content != "re: stateless hello" {
		t.Fatalf("reply = %+v", reply)
	}

	// Nothing durable may have been touched.
	sessions, err := st.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("ephemeral exchange created sessions: %v", sessions)
	}
}

func TestEphemeralEmptyHistory(t *testing.T) {
	gw, _ := testGateway(t, &echoAdapter{name: "echo"})

	_, err := gw.Ephemeral(context.Background(), nil, "")
	if !errors.Is(err, provider.ErrEmptyHistory) {
		t.Fatalf("Ephemeral(nil) = %v, want ErrEmptyHistory", err)
	}
}
