// Package export renders a session transcript to a file.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fakeyudi/tutor/internal/gateway"
)

// Transcript is the complete, renderable representation of a session.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Title      string    `json:"title,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
	Author     string    `json:"author,omitempty"`
	Messages   []Message `json:"messages"`
}

// Message is one turn of the exported conversation.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"` // as stored by the server
	AudioURL  string `json:"audio_url,omitempty"`
}

// FromMessages builds a Transcript from the server's history.
func FromMessages(sessionID, title string, msgs []gateway.Message, at time.Time) *Transcript {
	t := &Transcript{SessionID: sessionID, Title: title, ExportedAt: at.UTC().Truncate(time.Second), Messages: []Message{}}
	for _, m := range msgs {
		t.Messages = append(t.Messages, Message{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			AudioURL:  m.AudioPath,
		})
	}
	return t
}

// Renderer serializes a Transcript to bytes.
type Renderer interface {
	Render(t *Transcript) ([]byte, error)
	Ext() string
}

// ForFormat returns the renderer for "markdown" or "json".
func ForFormat(format string) (Renderer, error) {
	switch format {
	case "", "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want markdown or json)", format)
	}
}

// Filename is tutor-<id>-<timestamp><ext>.
func Filename(t *Transcript, ext string) string {
	id := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, t.SessionID)
	return fmt.Sprintf("tutor-%s-%s%s", id, t.ExportedAt.Format("20060102-150405"), ext)
}

// Path joins dir with the transcript's file name.
func Path(dir string, t *Transcript, r Renderer) string {
	return filepath.Join(dir, Filename(t, r.Ext()))
}

// Write renders t into dir and returns the file's path. An existing file of
// the same name is replaced atomically.
func Write(dir string, t *Transcript, r Renderer) (string, error) {
	data, err := r.Render(t)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	dest := Path(dir, t, r)
	tmp, err := os.CreateTemp(dir, ".tutor-export-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return dest, nil
}
