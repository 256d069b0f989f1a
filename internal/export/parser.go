package export

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	versionSentinel = "<!-- tutor-transcript-version: 1 -->"
	dataPrefix      = "<!-- tutor-data: "
	dataSuffix      = " -->"
)

// Parser deserializes an exported transcript file.
type Parser interface {
	Parse(data []byte) (*Transcript, error)
}

// Parse picks the parser from the content: JSON objects are parsed as JSON,
// everything else as Markdown.
func Parse(data []byte) (*Transcript, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return (&JSONParser{}).Parse(data)
	}
	return (&MarkdownParser{}).Parse(data)
}

// JSONParser parses a JSON-encoded Transcript.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse JSON transcript: %w", err)
	}
	return &t, nil
}

// MarkdownParser extracts the embedded payload from a Markdown export.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*Transcript, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a tutor transcript: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a tutor transcript: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("not a tutor transcript: malformed data payload")
	}

	jsonBytes, err := base64.StdEncoding.DecodeString(content[start : start+end])
	if err != nil {
		return nil, fmt.Errorf("not a tutor transcript: corrupted payload: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(jsonBytes, &t); err != nil {
		return nil, fmt.Errorf("not a tutor transcript: bad embedded JSON: %w", err)
	}
	return &t, nil
}
