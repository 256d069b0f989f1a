package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NewSessionID is sent as session_id when no session exists yet. The server
// creates one and returns its id in the reply.
const NewSessionID = "new"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ID is a server-assigned identifier. The server encodes ids as JSON numbers;
// the client treats them as opaque strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Session is one entry of the server's session list.
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Message is one conversation turn as stored by the server.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	AudioPath string `json:"audio_path,omitempty"`
}

// timestampLayouts are tried in order by Message.Time. The first is SQLite's
// CURRENT_TIMESTAMP format.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

// Time parses the message timestamp. ok is false when the server sent
// something unrecognised.
func (m Message) Time() (t time.Time, ok bool) {
	ts := strings.TrimSpace(m.Timestamp)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Reply is the server's answer to an audio or text submission.
type Reply struct {
	// SessionID is set when the submission created a new session.
	SessionID         string
	UserText          string
	AssistantResponse string
	AudioURL          string
}

// Voice is one speech-synthesis voice offered by the server.
type Voice struct {
	ID   string
	Name string
}

// Wire shapes.

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type createSessionRequest struct {
	Title string `json:"title"`
}

type createSessionResponse struct {
	SessionID ID `json:"session_id"`
}

type fetchSessionResponse struct {
	Messages []Message `json:"messages"`
}

type listSessionsResponse struct {
	Sessions []struct {
		ID    ID     `json:"id"`
		Title string `json:"title"`
	} `json:"sessions"`
}

type submitTextRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	Voice     string `json:"voice"`
}

type replyResponse struct {
	SessionID         ID     `json:"session_id"`
	UserText          string `json:"user_text"`
	AssistantResponse string `json:"assistant_response"`
	AudioURL          string `json:"audio_url"`
}

func (r replyResponse) reply() Reply {
	return Reply{
		SessionID:         string(r.SessionID),
		UserText:          r.UserText,
		AssistantResponse: r.AssistantResponse,
		AudioURL:          r.AudioURL,
	}
}
