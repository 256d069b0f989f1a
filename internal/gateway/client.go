// Package gateway is the only part of tutor that talks to the tutoring
// backend. Every call decodes the server's {success, error} envelope and turns
// a failure into an *APIError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes caps how much of a JSON or HTML response is read.
const maxBodyBytes = 8 << 20

// Client calls the backend's HTTP API.
type Client struct {
	base      *url.URL
	http      *http.Client
	logger    *zap.Logger
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	c := &Client{
		base:      u,
		http:      &http.Client{Timeout: 2 * time.Minute},
		logger:    zap.NewNop(),
		userAgent: "tutor",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root the client was built with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// CreateSession creates a session with the given title and returns its id.
func (c *Client) CreateSession(ctx context.Context, title string) (string, error) {
	var out createSessionResponse
	if err := c.doJSON(ctx, "create session", http.MethodPost, "/api/session", createSessionRequest{Title: title}, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", &ResponseError{Op: "create session", StatusCode: http.StatusOK, Err: fmt.Errorf("missing session_id")}
	}
	return string(out.SessionID), nil
}

// FetchSession returns the ordered messages of session id.
func (c *Client) FetchSession(ctx context.Context, id string) ([]Message, error) {
	var out fetchSessionResponse
	if err := c.doJSON(ctx, "fetch session", http.MethodGet, "/api/session/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return out.Messages, nil
}

// DeleteSession deletes session id.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete session", http.MethodDelete, "/api/session/"+url.PathEscape(id), nil, nil)
}

// SubmitText sends typed text to session sessionID (or NewSessionID).
func (c *Client) SubmitText(ctx context.Context, text, sessionID, voice string) (Reply, error) {
	var out replyResponse
	req := submitTextRequest{Text: text, SessionID: sessionID, Voice: voice}
	if err := c.doJSON(ctx, "submit text", http.MethodPost, "/api/process-text", req, &out); err != nil {
		return Reply{}, err
	}
	return out.reply(), nil
}

// Audio is a recorded clip to upload.
type Audio struct {
	Data     []byte
	MIMEType string
	Filename string
}

// SubmitAudio uploads a recording as multipart form data.
func (c *Client) SubmitAudio(ctx context.Context, audio Audio, sessionID, voice string) (Reply, error) {
	filename := audio.Filename
	if filename == "" {
		filename = "recording.wav"
	}
	mimeType := audio.MIMEType
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return Reply{}, fmt.Errorf("submit audio: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return Reply{}, fmt.Errorf("submit audio: %w", err)
	}
	if err := w.WriteField("session_id", sessionID); err != nil {
		return Reply{}, fmt.Errorf("submit audio: %w", err)
	}
	if err := w.WriteField("voice", voice); err != nil {
		return Reply{}, fmt.Errorf("submit audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return Reply{}, fmt.Errorf("submit audio: %w", err)
	}

	var out replyResponse
	if err := c.do(ctx, "submit audio", http.MethodPost, "/api/process-audio", &body, w.FormDataContentType(), &out); err != nil {
		return Reply{}, err
	}
	return out.reply(), nil
}

// ListSessions returns the server's session list. It prefers the structured
// /api/sessions endpoint and falls back to scraping the home page when the
// server does not provide it.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	sessions, err := c.listSessionsAPI(ctx)
	if err == nil {
		return sessions, nil
	}
	if !errors.Is(err, errEndpointUnavailable) {
		return nil, err
	}
	c.logger.Debug("falling back to home page for session list")
	page, err := c.FetchHome(ctx)
	if err != nil {
		return nil, err
	}
	return page.Sessions, nil
}

func (c *Client) listSessionsAPI(ctx context.Context) ([]Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/sessions", nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		return nil, errEndpointUnavailable
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "application/json" {
		return nil, errEndpointUnavailable
	}

	var out listSessionsResponse
	if err := decodeEnvelope("list sessions", resp, &out); err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, len(out.Sessions))
	for _, s := range out.Sessions {
		sessions = append(sessions, Session{ID: string(s.ID), Title: s.Title})
	}
	return sessions, nil
}

// FetchHome downloads and parses the server's home page.
func (c *Client) FetchHome(ctx context.Context) (*Page, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/", nil, "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := c.send(req)
	if err != nil {
		return nil, fmt.Errorf("fetch home page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ResponseError{Op: "fetch home page", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}
	return ParsePage(io.LimitReader(resp.Body, maxBodyBytes))
}

// ListVoices returns the voice options offered on the home page.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	page, err := c.FetchHome(ctx)
	if err != nil {
		return nil, err
	}
	return page.Voices, nil
}

// FetchAudio downloads a reply clip. Relative URLs resolve against the server.
func (c *Client) FetchAudio(ctx context.Context, audioURL string) (io.ReadCloser, error) {
	ref, err := url.Parse(audioURL)
	if err != nil {
		return nil, fmt.Errorf("invalid audio url %q: %w", audioURL, err)
	}
	target := c.base.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	c.decorate(req)
	resp, err := c.send(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &ResponseError{Op: "fetch audio", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}
	return resp.Body, nil
}

// doJSON marshals in (when non-nil) as the request body.
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.send(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	return decodeEnvelope(op, resp, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	c.decorate(req)
	return req, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("request_id", req.Header.Get("X-Request-ID")),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		c.logger.Warn("request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	c.logger.Debug("request done", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}

// decodeEnvelope reads a JSON response. A body without success=true is an
// *APIError regardless of the HTTP status, since the server reports failures
// as {"error": "..."} with 4xx/5xx codes.
func decodeEnvelope(op string, resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &ResponseError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &ResponseError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = GenericErrorMessage
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ResponseError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}
