// Package tui is the interactive chat client built on Bubble Tea.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/tutor/internal/chat"
	"github.com/fakeyudi/tutor/internal/sessionlist"
	"github.com/fakeyudi/tutor/internal/status"
	"github.com/fakeyudi/tutor/internal/transcript"
)

type focus int

const (
	focusInput focus = iota
	focusSessions
)

// ── Messages ─────────────────────────────────────────────────────────────────

// stateMsg means the controller state may have changed.
type stateMsg struct{}

type statusMsg status.Status

type confirmMsg confirmRequest

// voiceMsg carries a voice picked up from the config file.
type voiceMsg string

// opDoneMsg reports a finished controller call. Failures have already been
// shown as a status.
type opDoneMsg struct {
	op  string
	err error
}

// ── Model ────────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model for the chat client.
type Model struct {
	ctx     context.Context
	ctrl    *chat.Controller
	confirm *Confirmer
	statusC <-chan status.Status

	keys keyMap
	help help.Model

	state   chat.State
	status  status.Status
	pending *confirmRequest

	focus    focus
	cursor   int
	input    textinput.Model
	vp       viewport.Model
	md       *transcript.Renderer
	rendered int // transcript entries drawn so far

	width  int
	height int
	ready  bool
}

// New creates the chat model. statusC delivers status snapshots.
func New(ctx context.Context, ctrl *chat.Controller, confirm *Confirmer, statusC <-chan status.Status) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask the tutor a question…"
	ti.Prompt = "› "
	ti.CharLimit = 2000
	ti.Focus()

	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		confirm:  confirm,
		statusC:  statusC,
		keys:     defaultKeys(),
		help:     help.New(),
		state:    ctrl.Snapshot(),
		input:    ti,
		rendered: -1,
	}
}

// ── Bubble Tea interface ─────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.run("bootstrap", m.ctrl.Bootstrap),
		m.waitForChange(),
		m.waitForStatus(),
		m.waitForConfirm(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case stateMsg:
		m.applyState(m.ctrl.Snapshot())
		return m, m.waitForChange()

	case statusMsg:
		// A snapshot older than the one on screen is stale.
		if s := status.Status(msg); s.Seq >= m.status.Seq {
			m.status = s
		}
		return m, m.waitForStatus()

	case confirmMsg:
		req := confirmRequest(msg)
		m.pending = &req
		return m, nil

	case voiceMsg:
		if v := string(msg); v != "" && v != m.ctrl.Voice() {
			m.ctrl.SetVoice(v)
		}
		return m, nil

	case opDoneMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pending != nil {
		switch {
		case key.Matches(msg, m.keys.Yes):
			return m.answer(true)
		case key.Matches(msg, m.keys.No):
			return m.answer(false)
		case key.Matches(msg, m.keys.Quit):
			m.pending.reply <- false
			m.pending = nil
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Record):
		return m, m.run("record", m.ctrl.ToggleRecording)
	case key.Matches(msg, m.keys.New):
		return m, m.run("new", func(ctx context.Context) error {
			_, err := m.ctrl.NewSession(ctx)
			return err
		})
	case key.Matches(msg, m.keys.Play):
		return m, m.run("play", m.ctrl.PlayAudio)
	case key.Matches(msg, m.keys.Refresh):
		return m, m.run("refresh", m.ctrl.RefreshSessions)
	case key.Matches(msg, m.keys.Tab):
		m.toggleFocus()
		return m, nil
	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDn):
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}

	if m.focus == focusSessions {
		return m.handleSessionKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) handleSessionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.state.Sessions)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if id, ok := m.cursorID(); ok {
			return m, m.gesture(sessionlist.GestureSelect, id)
		}
	case key.Matches(msg, m.keys.Delete):
		if id, ok := m.cursorID(); ok {
			return m, m.gesture(sessionlist.GestureDelete, id)
		}
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Send) {
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		if !m.state.Busy {
			m.input.Reset()
		}
		return m, m.run("send", func(ctx context.Context) error {
			return m.ctrl.SendText(ctx, text)
		})
	}
	if m.state.Input.Disabled {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.ctrl.SetInputText(m.input.Value())
	return m, cmd
}

func (m Model) answer(yes bool) (tea.Model, tea.Cmd) {
	m.pending.reply <- yes
	m.pending = nil
	return m, m.waitForConfirm()
}

func (m *Model) toggleFocus() {
	if m.focus == focusInput {
		m.focus = focusSessions
		m.input.Blur()
		return
	}
	m.focus = focusInput
	if !m.state.Input.Disabled {
		m.input.Focus()
	}
}

func (m Model) cursorID() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.state.Sessions) {
		return "", false
	}
	return m.state.Sessions[m.cursor].ID, true
}

// ── Commands ─────────────────────────────────────────────────────────────────

func (m Model) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) gesture(g sessionlist.Gesture, id string) tea.Cmd {
	return m.run("gesture", func(ctx context.Context) error {
		return m.ctrl.HandleGesture(ctx, g, id)
	})
}

func (m Model) waitForChange() tea.Cmd {
	ctx, ch := m.ctx, m.ctrl.Changes()
	return func() tea.Msg {
		select {
		case <-ch:
			return stateMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitForStatus() tea.Cmd {
	ctx, ch := m.ctx, m.statusC
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case s := <-ch:
			return statusMsg(s)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitForConfirm() tea.Cmd {
	if m.confirm == nil {
		return nil
	}
	ctx, ch := m.ctx, m.confirm.reqs
	return func() tea.Msg {
		select {
		case req := <-ch:
			return confirmMsg(req)
		case <-ctx.Done():
			return nil
		}
	}
}

// ── State ────────────────────────────────────────────────────────────────────

func (m *Model) applyState(s chat.State) {
	m.state = s

	if s.Input.Disabled {
		m.input.Blur()
	} else if m.focus == focusInput && !m.input.Focused() {
		m.input.Focus()
	}

	// Keep the cursor on the active session when one is marked.
	for i, e := range s.Sessions {
		if e.Active && m.focus != focusSessions {
			m.cursor = i
		}
	}
	if m.cursor >= len(s.Sessions) {
		m.cursor = len(s.Sessions) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	if !m.ready || m.md == nil {
		return
	}
	m.vp.SetContent(m.md.Render(m.state.Transcript, m.state.Welcome))
	if n := len(m.state.Transcript); n != m.rendered {
		m.vp.GotoBottom()
		m.rendered = n
	}
}

// ── Layout ───────────────────────────────────────────────────────────────────

// Fixed rows: title, input, status and help.
const chromeRows = 4

func (m *Model) resize() {
	_, right := m.paneWidths()
	body := m.height - chromeRows
	if body < 5 {
		body = 5
	}
	m.vp = viewport.New(right-2, body-2)
	m.md = transcript.NewRenderer(right - 2)
	m.input.Width = m.width - 4
	m.help.Width = m.width
	m.rendered = -1
	m.refreshTranscript()
}

func (m Model) paneWidths() (int, int) {
	left := m.width / 4
	if left < 24 {
		left = 24
	}
	if left > 40 {
		left = 40
	}
	right := m.width - left
	if right < 24 {
		right = 24
	}
	return left, right
}

func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}

	left, right := m.paneWidths()
	bodyHeight := m.vp.Height

	var body string
	if m.pending != nil {
		box := confirmStyle.Render(m.pending.prompt + "\n\n" + dimStyle.Render("y confirm · n cancel"))
		body = lipgloss.Place(m.width, bodyHeight+2, lipgloss.Center, lipgloss.Center, box)
	} else {
		sessions := panelStyle(m.focus == focusSessions).Width(left - 2).Height(bodyHeight).Render(m.renderSessions(left - 2))
		chatPane := panelStyle(m.focus == focusInput).Width(right - 2).Height(bodyHeight).Render(m.vp.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, sessions, chatPane)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.titleBar(),
		body,
		m.inputLine(),
		m.statusBar(),
		m.help.View(helpKeys{
			keys:       m.keys,
			sessions:   m.focus == focusSessions,
			playable:   m.state.PlaybackVisible,
			confirming: m.pending != nil,
		}),
	)
}

func (m Model) titleBar() string {
	title := "  tutor"
	for _, e := range m.state.Sessions {
		if e.ID == m.state.CurrentSession {
			title += "  " + e.Title
			break
		}
	}
	if m.state.Voice != "" {
		title += "  · voice " + m.state.Voice
	}
	bar := titleStyle.Render(title)
	if m.state.Recording {
		bar += recordingStyle.Render("● REC")
	}
	return lipgloss.NewStyle().Width(m.width).Background(lipgloss.Color("62")).Render(bar)
}

func (m Model) renderSessions(width int) string {
	if len(m.state.Sessions) == 0 {
		return dimStyle.Render("(no sessions)")
	}
	var sb strings.Builder
	for i, e := range m.state.Sessions {
		marker := "  "
		if e.Active {
			marker = "● "
		}
		line := marker + shorten(e.Title, width-2)
		switch {
		case m.focus == focusSessions && i == m.cursor:
			line = cursorStyle.Width(width).Render(line)
		case e.Active:
			line = activeSessionStyle.Render(line)
		default:
			line = sessionStyle.Render(line)
		}
		sb.WriteString(line)
		if i < len(m.state.Sessions)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (m Model) inputLine() string {
	if m.state.Input.Disabled {
		return busyStyle.Render("  waiting for the tutor…")
	}
	return m.input.View()
}

func (m Model) statusBar() string {
	if !m.status.Visible || m.status.Text == "" {
		return statusBarStyle.Width(m.width).Render("")
	}
	style, ok := levelStyles[m.status.Level]
	if !ok {
		style = statusBarStyle
	}
	return style.Width(m.width).Render(m.status.Text)
}

func shorten(s string, n int) string {
	if n <= 1 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
