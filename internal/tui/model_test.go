package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/tutor/internal/chat"
	"github.com/fakeyudi/tutor/internal/config"
	"github.com/fakeyudi/tutor/internal/gateway"
	"github.com/fakeyudi/tutor/internal/status"
)

// memBackend is a minimal in-memory server.
type memBackend struct {
	mu       sync.Mutex
	sessions []gateway.Session
	texts    []string
	deleted  []string
}

func (b *memBackend) CreateSession(ctx context.Context, title string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := "s" + string(rune('a'+len(b.sessions)))
	b.sessions = append([]gateway.Session{{ID: id, Title: title}}, b.sessions...)
	return id, nil
}

func (b *memBackend) FetchSession(ctx context.Context, id string) ([]gateway.Message, error) {
	return []gateway.Message{}, nil
}

func (b *memBackend) DeleteSession(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, id)
	for i, s := range b.sessions {
		if s.ID == id {
			b.sessions = append(b.sessions[:i], b.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func (b *memBackend) SubmitAudio(ctx context.Context, audio gateway.Audio, sessionID, voice string) (gateway.Reply, error) {
	return gateway.Reply{UserText: "audio", AssistantResponse: "ok"}, nil
}

func (b *memBackend) SubmitText(ctx context.Context, text, sessionID, voice string) (gateway.Reply, error) {
	b.mu.Lock()
	b.texts = append(b.texts, text)
	b.mu.Unlock()
	return gateway.Reply{UserText: text, AssistantResponse: "The answer is 4."}, nil
}

func (b *memBackend) ListSessions(ctx context.Context) ([]gateway.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]gateway.Session(nil), b.sessions...), nil
}

func newTestModel(t *testing.T, b *memBackend) (Model, *chat.Controller, *Confirmer) {
	t.Helper()
	confirm := NewConfirmer()
	ctrl := chat.New(chat.Options{Backend: b, Confirmer: confirm, Voice: "elli"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := New(ctx, ctrl, confirm, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), ctrl, confirm
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(m Model, s string) Model {
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestViewBeforeSize(t *testing.T) {
	ctrl := chat.New(chat.Options{Backend: &memBackend{}})
	m := New(context.Background(), ctrl, nil, nil)
	if got := m.View(); got != "Starting..." {
		t.Errorf("View = %q", got)
	}
}

func TestBootstrapShowsWelcome(t *testing.T) {
	b := &memBackend{}
	m, ctrl, _ := newTestModel(t, b)
	if err := ctrl.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	m, _ = update(m, stateMsg{})

	view := m.View()
	if !strings.Contains(view, "Welcome to the AI Tutor") {
		t.Errorf("welcome placeholder missing:\n%s", view)
	}
	if !strings.Contains(view, "Conversation ") {
		t.Errorf("session title missing:\n%s", view)
	}
}

func TestSendTextFromInput(t *testing.T) {
	b := &memBackend{sessions: []gateway.Session{{ID: "1", Title: "Algebra"}}}
	m, ctrl, _ := newTestModel(t, b)
	ctrl.Bootstrap(context.Background())
	m, _ = update(m, stateMsg{})

	m = typeText(m, "2+2=?")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter produced no command")
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
	if done, ok := cmd().(opDoneMsg); !ok || done.err != nil {
		t.Fatalf("send result = %+v", done)
	}
	m, _ = update(m, stateMsg{})

	if len(b.texts) != 1 || b.texts[0] != "2+2=?" {
		t.Errorf("backend texts = %q", b.texts)
	}
	if view := m.View(); !strings.Contains(view, "2+2=?") {
		t.Errorf("user turn missing from view:\n%s", view)
	}
}

func TestBlankEnterDoesNothing(t *testing.T) {
	m, _, _ := newTestModel(t, &memBackend{})
	m = typeText(m, "   ")
	if _, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("blank input produced a command")
	}
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	b := &memBackend{sessions: []gateway.Session{{ID: "1", Title: "One"}, {ID: "2", Title: "Two"}}}
	m, ctrl, _ := newTestModel(t, b)
	ctrl.Bootstrap(context.Background())
	m, _ = update(m, stateMsg{})

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if cmd == nil {
		t.Fatal("delete produced no command")
	}

	result := make(chan tea.Msg, 1)
	go func() { result <- cmd() }()

	wait := m.waitForConfirm()
	msg := wait()
	if _, ok := msg.(confirmMsg); !ok {
		t.Fatalf("expected confirmMsg, got %T", msg)
	}
	m, _ = update(m, msg)
	if view := m.View(); !strings.Contains(view, "Are you sure") {
		t.Errorf("confirmation prompt missing:\n%s", view)
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	select {
	case msg := <-result:
		if done := msg.(opDoneMsg); done.err != nil {
			t.Fatalf("delete failed: %v", done.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delete never finished")
	}
	if len(b.deleted) != 1 || b.deleted[0] != "2" {
		t.Errorf("deleted = %v, want [2]", b.deleted)
	}
	if m.pending != nil {
		t.Error("prompt still pending after answer")
	}
}

func TestDeclinedDeleteKeepsSession(t *testing.T) {
	b := &memBackend{sessions: []gateway.Session{{ID: "1", Title: "One"}}}
	m, ctrl, _ := newTestModel(t, b)
	ctrl.Bootstrap(context.Background())
	m, _ = update(m, stateMsg{})

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	result := make(chan tea.Msg, 1)
	go func() { result <- cmd() }()
	m, _ = update(m, m.waitForConfirm()())
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})

	select {
	case msg := <-result:
		if done := msg.(opDoneMsg); !errors.Is(done.err, chat.ErrCancelled) {
			t.Errorf("err = %v, want ErrCancelled", done.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delete never finished")
	}
	if len(b.deleted) != 0 {
		t.Errorf("deleted = %v after declining", b.deleted)
	}
}

func TestStatusBarShowsLevelText(t *testing.T) {
	m, _, _ := newTestModel(t, &memBackend{})
	m, _ = update(m, statusMsg(status.Status{Text: "Error: Session not found", Level: status.LevelError, Visible: true}))
	if view := m.View(); !strings.Contains(view, "Error: Session not found") {
		t.Errorf("status missing:\n%s", view)
	}
	m, _ = update(m, statusMsg(status.Status{Text: "Error: Session not found", Level: status.LevelError}))
	if view := m.View(); strings.Contains(view, "Session not found") {
		t.Error("hidden status still drawn")
	}
}

func TestVoiceMsgUpdatesController(t *testing.T) {
	m, ctrl, _ := newTestModel(t, &memBackend{})
	update(m, voiceMsg("rachel"))
	if ctrl.Voice() != "rachel" {
		t.Errorf("Voice = %q", ctrl.Voice())
	}
}

func TestOfferLatestKeepsNewest(t *testing.T) {
	ch := make(chan status.Status, 1)
	offerLatest(ch, status.Status{Seq: 1})
	offerLatest(ch, status.Status{Seq: 2})
	if got := <-ch; got.Seq != 2 {
		t.Errorf("Seq = %d, want 2", got.Seq)
	}
}

func TestOlderStatusIgnored(t *testing.T) {
	m, _, _ := newTestModel(t, &memBackend{})
	m, _ = update(m, statusMsg(status.Status{Text: "Reply received", Level: status.LevelSuccess, Visible: true, Seq: 5}))
	m, _ = update(m, statusMsg(status.Status{Text: "Processing...", Level: status.LevelInfo, Seq: 4}))
	if view := m.View(); !strings.Contains(view, "Reply received") {
		t.Errorf("older snapshot replaced the newer one:\n%s", view)
	}
	m, _ = update(m, statusMsg(status.Status{Text: "Reply received", Level: status.LevelSuccess, Seq: 5}))
	if view := m.View(); strings.Contains(view, "Reply received") {
		t.Error("hide for the current status was not applied")
	}
}

func TestReloadedVoice(t *testing.T) {
	v, err := reloadedVoice(nil, &config.Config{LogLevel: "debug"})
	if err != nil || v != "" {
		t.Errorf("file without voice: got %q, %v; want empty", v, err)
	}
	v, _ = reloadedVoice(nil, nil)
	if v != "" {
		t.Errorf("missing file: got %q", v)
	}

	pinned := func(*config.Config) (config.Config, error) { return config.Config{Voice: "adam"}, nil }
	if v, _ := reloadedVoice(pinned, &config.Config{Voice: "rachel"}); v != "adam" {
		t.Errorf("resolved voice = %q, want adam", v)
	}

	broken := func(*config.Config) (config.Config, error) { return config.Config{}, errors.New("bad duration") }
	if _, err := reloadedVoice(broken, &config.Config{}); err == nil {
		t.Error("resolve error was swallowed")
	}
}
