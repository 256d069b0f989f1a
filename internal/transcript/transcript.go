// Package transcript holds the rendered conversation of the open session.
package transcript

import (
	"time"

	"github.com/fakeyudi/tutor/internal/gateway"
)

// Welcome placeholder shown for a session with no messages.
const (
	WelcomeTitle = "Welcome to the AI Tutor"
	WelcomeHint  = "Press ctrl+r to record, or type a question to start the conversation"
)

// Entry is one rendered turn.
type Entry struct {
	Role     string
	Content  string
	Time     time.Time
	RawTime  string // server timestamp when it could not be parsed
	AudioURL string
}

// TimeLabel is the clock time shown next to the entry.
func (e Entry) TimeLabel() string {
	if e.Time.IsZero() {
		return e.RawTime
	}
	return e.Time.Format("15:04:05")
}

// Transcript is not safe for concurrent use; the chat controller guards it.
type Transcript struct {
	entries []Entry
	welcome bool
}

// New returns an empty transcript showing the welcome placeholder.
func New() *Transcript {
	return &Transcript{welcome: true}
}

// Reset removes every entry and the placeholder.
func (t *Transcript) Reset() {
	t.entries = nil
	t.welcome = false
}

// ShowWelcome switches to the empty state.
func (t *Transcript) ShowWelcome() {
	t.entries = nil
	t.welcome = true
}

// Append adds a live turn stamped with at. It hides the placeholder.
func (t *Transcript) Append(role, content string, at time.Time) {
	t.welcome = false
	t.entries = append(t.entries, Entry{Role: role, Content: content, Time: at})
}

// AppendHistory adds a stored turn. It returns the audio URL the turn carries
// when it is an assistant turn with audio, so the caller can track the most
// recent clip.
func (t *Transcript) AppendHistory(m gateway.Message) (audioURL string, ok bool) {
	e := Entry{Role: m.Role, Content: m.Content}
	if ts, parsed := m.Time(); parsed {
		e.Time = ts
	} else {
		e.RawTime = m.Timestamp
	}
	if m.Role == gateway.RoleAssistant && m.AudioPath != "" {
		e.AudioURL = m.AudioPath
		ok = true
	}
	t.welcome = false
	t.entries = append(t.entries, e)
	return e.AudioURL, ok
}

// Welcome reports whether the placeholder is showing.
func (t *Transcript) Welcome() bool { return t.welcome }

func (t *Transcript) Len() int { return len(t.entries) }

// Entries returns a copy of the turns in order.
func (t *Transcript) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}
