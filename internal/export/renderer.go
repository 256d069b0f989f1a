package export

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// JSONRenderer renders a Transcript as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(t *Transcript) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

func (r *JSONRenderer) Ext() string { return ".json" }

// MarkdownRenderer renders a Transcript as readable Markdown with an
// embedded base64 JSON payload so the file can be loaded back without loss.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Ext() string { return ".md" }

func (r *MarkdownRenderer) Render(t *Transcript) ([]byte, error) {
	jsonBytes, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder

	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	title := t.Title
	if title == "" {
		title = "Session " + t.SessionID
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Session: %s\n", t.SessionID)
	fmt.Fprintf(&sb, "- Exported: %s\n", t.ExportedAt.Format("2006-01-02 15:04:05 MST"))
	if t.Author != "" {
		fmt.Fprintf(&sb, "- Student: %s\n", t.Author)
	}
	fmt.Fprintf(&sb, "- Messages: %d\n\n", len(t.Messages))

	sb.WriteString("## Conversation\n\n")
	if len(t.Messages) == 0 {
		sb.WriteString("_No messages yet._\n")
	}
	for _, m := range t.Messages {
		speaker := "You"
		if m.Role == "assistant" {
			speaker = "Tutor"
		}
		if m.Timestamp != "" {
			fmt.Fprintf(&sb, "### %s (%s)\n\n", speaker, m.Timestamp)
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", speaker)
		}
		sb.WriteString(m.Content)
		if !strings.HasSuffix(m.Content, "\n") {
			sb.WriteString("\n")
		}
		if m.AudioURL != "" {
			fmt.Fprintf(&sb, "\n[audio](%s)\n", m.AudioURL)
		}
		sb.WriteString("\n")
	}

	return []byte(sb.String()), nil
}
