// Package chat keeps the client's view of the tutoring conversation in sync
// with the server.
//
// A Controller owns all client state: the active session id, the session
// list, the transcript and the text input. Every operation talks to the
// backend first and only touches state once the call has succeeded, so a
// failure leaves the previous state intact.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/tutor/internal/capture"
	"github.com/fakeyudi/tutor/internal/gateway"
	"github.com/fakeyudi/tutor/internal/sessionlist"
	"github.com/fakeyudi/tutor/internal/status"
	"github.com/fakeyudi/tutor/internal/transcript"
)

// NewSessionID is the active session before any session exists.
const NewSessionID = gateway.NewSessionID

// ErrBusy is returned when a submission is already outstanding for the
// session.
var ErrBusy = errors.New("a request for this session is already in progress")

// ErrCancelled is returned when the user declines a confirmation.
var ErrCancelled = errors.New("cancelled")

// Backend is the subset of the gateway the controller needs.
type Backend interface {
	CreateSession(ctx context.Context, title string) (string, error)
	FetchSession(ctx context.Context, id string) ([]gateway.Message, error)
	DeleteSession(ctx context.Context, id string) error
	SubmitAudio(ctx context.Context, audio gateway.Audio, sessionID, voice string) (gateway.Reply, error)
	SubmitText(ctx context.Context, text, sessionID, voice string) (gateway.Reply, error)
	ListSessions(ctx context.Context) ([]gateway.Session, error)
}

// Player is the playback controller.
type Player interface {
	Set(audioURL string)
	Play(ctx context.Context) error
	Last() string
	Visible() bool
}

// Reporter shows status messages to the user.
type Reporter interface {
	Show(text string, level status.Level)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// InputState is the text box as the UI should draw it.
type InputState struct {
	Text     string
	Disabled bool
	Focused  bool
}

// State is a snapshot of everything the UI draws.
type State struct {
	CurrentSession  string
	Sessions        []sessionlist.Entry
	Transcript      []transcript.Entry
	Welcome         bool
	Input           InputState
	LastAudio       string
	PlaybackVisible bool
	Recording       bool
	Busy            bool // a submission is outstanding for the current session
	Voice           string
}

// Options configures a Controller.
type Options struct {
	Backend   Backend
	Status    Reporter
	Player    Player
	Confirmer Confirmer
	// Device is the microphone. Recording is unavailable when nil.
	Device capture.Device
	Voice  string
	Logger *zap.Logger
	// ManualPlayback stops replies from playing as soon as they arrive.
	ManualPlayback bool
	// Now stamps live turns; defaults to time.Now.
	Now func() time.Time
}

// Controller orchestrates sessions, submissions, recording and playback.
// It is safe for concurrent use.
type Controller struct {
	backend    Backend
	notify     Reporter
	player     Player
	confirm    Confirmer
	recorder   *capture.Recorder
	logger     *zap.Logger
	manualPlay bool
	now        func() time.Time

	mu         sync.Mutex
	current    string
	list       sessionlist.List
	transcript *transcript.Transcript
	input      InputState
	inflight   map[string]bool
	voice      string

	changes chan struct{}
}

// New builds a Controller with no active session.
func New(opts Options) *Controller {
	c := &Controller{
		backend:    opts.Backend,
		notify:     opts.Status,
		player:     opts.Player,
		confirm:    opts.Confirmer,
		logger:     opts.Logger,
		manualPlay: opts.ManualPlayback,
		now:        opts.Now,
		current:    NewSessionID,
		transcript: transcript.New(),
		input:      InputState{Focused: true},
		inflight:   make(map[string]bool),
		voice:      opts.Voice,
		changes:    make(chan struct{}, 1),
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.notify == nil {
		c.notify = status.New(0)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.confirm == nil {
		c.confirm = ConfirmFunc(func(context.Context, string) bool { return false })
	}
	if opts.Device != nil {
		c.recorder = capture.NewRecorder(opts.Device, c.notify, c.submitRecording, c.logger.Named("capture"))
	}
	return c
}

// Changes delivers a signal whenever State may have changed. Signals
// coalesce; read Snapshot after each one.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) changed() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	s := State{
		CurrentSession: c.current,
		Sessions:       c.list.Entries(),
		Transcript:     c.transcript.Entries(),
		Welcome:        c.transcript.Welcome(),
		Input:          c.input,
		Busy:           c.inflight[c.current],
		Voice:          c.voice,
	}
	c.mu.Unlock()
	if c.player != nil {
		s.LastAudio = c.player.Last()
		s.PlaybackVisible = c.player.Visible()
	}
	s.Recording = c.Recording()
	return s
}

// CurrentSession returns the active session id, or NewSessionID.
func (c *Controller) CurrentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Voice returns the selected voice option.
func (c *Controller) Voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// SetVoice selects the voice used by later submissions.
func (c *Controller) SetVoice(voice string) {
	c.mu.Lock()
	c.voice = voice
	c.mu.Unlock()
	c.changed()
}

// SetInputText mirrors what the user has typed so far.
func (c *Controller) SetInputText(text string) {
	c.mu.Lock()
	c.input.Text = text
	c.mu.Unlock()
}

// reportError logs err and shows it as an error status.
func (c *Controller) reportError(op string, err error) {
	c.logger.Warn(op+" failed", zap.Error(err))
	c.notify.Show("Error: "+gateway.ErrorText(err), status.LevelError)
}

// Bootstrap loads the session list, then opens the first session or creates
// one when there are none.
func (c *Controller) Bootstrap(ctx context.Context) error {
	if err := c.RefreshSessions(ctx); err != nil {
		c.reportError("load sessions", err)
		return err
	}
	c.mu.Lock()
	first, ok := c.list.First()
	c.mu.Unlock()
	if !ok {
		_, err := c.NewSession(ctx)
		return err
	}
	return c.OpenSession(ctx, first.ID)
}

// RefreshSessions replaces the session list with the server's. Failures are
// logged and returned but not shown; the old list stays.
func (c *Controller) RefreshSessions(ctx context.Context) error {
	sessions, err := c.backend.ListSessions(ctx)
	if err != nil {
		c.logger.Warn("refresh session list failed", zap.Error(err))
		return fmt.Errorf("refresh session list: %w", err)
	}
	c.mu.Lock()
	c.list.Replace(sessions, c.current)
	c.mu.Unlock()
	c.changed()
	return nil
}

// refreshIncluding refreshes the list and makes sure id is in it. When the
// server's list is unavailable or does not have id yet, id is added locally
// under title.
func (c *Controller) refreshIncluding(ctx context.Context, id, title string) {
	err := c.RefreshSessions(ctx)
	c.mu.Lock()
	added := c.list.Ensure(id, title)
	c.mu.Unlock()
	if added {
		c.logger.Debug("session listed locally", zap.String("session_id", id), zap.Error(err))
		c.changed()
	}
}

// HandleGesture routes a click on a session entry. A delete gesture only
// deletes; it never also opens the entry.
func (c *Controller) HandleGesture(ctx context.Context, g sessionlist.Gesture, id string) error {
	switch g {
	case sessionlist.GestureDelete:
		return c.DeleteSession(ctx, id)
	default:
		return c.OpenSession(ctx, id)
	}
}

// OpenSession fetches id and shows it. The active session changes only once
// the fetch has succeeded.
func (c *Controller) OpenSession(ctx context.Context, id string) error {
	c.notify.Show("Loading session...", status.LevelInfo)
	msgs, err := c.backend.FetchSession(ctx, id)
	if err != nil {
		c.reportError("open session", err)
		return err
	}

	c.mu.Lock()
	c.current = id
	if !c.list.SetActive(id) {
		c.logger.Debug("opened session is not in the list", zap.String("session_id", id))
	}
	var clips []string
	c.transcript.Reset()
	if len(msgs) == 0 {
		c.transcript.ShowWelcome()
	} else {
		for _, m := range msgs {
			if audioURL, ok := c.transcript.AppendHistory(m); ok {
				clips = append(clips, audioURL)
			}
		}
	}
	c.mu.Unlock()

	if c.player != nil {
		for _, clip := range clips {
			c.player.Set(clip)
		}
	}
	c.logger.Debug("session opened", zap.String("session_id", id), zap.Int("messages", len(msgs)))
	c.changed()
	c.notify.Show("Session loaded", status.LevelSuccess)
	return nil
}

// SessionTitle is the title given to a session created at t.
func SessionTitle(t time.Time) string {
	return "Conversation " + t.Format("2006-01-02 15:04:05")
}

// NewSession creates a session titled with the current time, waits for the
// list to include it and opens it.
func (c *Controller) NewSession(ctx context.Context) (string, error) {
	c.notify.Show("Creating a new session...", status.LevelInfo)
	title := SessionTitle(c.now())
	id, err := c.backend.CreateSession(ctx, title)
	if err != nil {
		c.reportError("create session", err)
		return "", err
	}
	c.logger.Info("session created", zap.String("session_id", id))
	c.notify.Show("New session created", status.LevelSuccess)

	// The new session is opened only after the list refresh has completed.
	// A failed or lagging refresh still gets the id listed so it can be
	// marked active.
	c.refreshIncluding(ctx, id, title)
	if err := c.OpenSession(ctx, id); err != nil {
		return id, err
	}
	return id, nil
}

// DeleteSession asks for confirmation, deletes id, and when it was the
// active session moves to the first remaining one or a new session.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	if !c.confirm.Confirm(ctx, "Are you sure you want to delete this chat session?") {
		return ErrCancelled
	}

	c.notify.Show("Deleting session...", status.LevelInfo)
	if err := c.backend.DeleteSession(ctx, id); err != nil {
		c.reportError("delete session", err)
		return err
	}

	// Selection moves before the next session loads, so a failed load still
	// leaves exactly one active entry.
	c.mu.Lock()
	c.list.Remove(id)
	wasCurrent := c.current == id
	first, hasFirst := c.list.First()
	if wasCurrent {
		c.transcript.Reset()
		if hasFirst {
			c.current = first.ID
			c.list.SetActive(first.ID)
		} else {
			c.current = NewSessionID
			c.transcript.ShowWelcome()
		}
	}
	c.mu.Unlock()

	c.logger.Info("session deleted", zap.String("session_id", id))
	c.changed()
	c.notify.Show("Session deleted", status.LevelSuccess)

	if !wasCurrent {
		return nil
	}
	if hasFirst {
		return c.OpenSession(ctx, first.ID)
	}
	_, err := c.NewSession(ctx)
	return err
}

// SendText submits typed text. Text that is blank after trimming is dropped
// without a request.
func (c *Controller) SendText(ctx context.Context, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	sid, voice, ok := c.begin()
	if !ok {
		c.reportError("send text", ErrBusy)
		return ErrBusy
	}
	c.mu.Lock()
	c.input = InputState{Text: "", Disabled: true, Focused: false}
	c.mu.Unlock()
	c.changed()

	defer func() {
		c.mu.Lock()
		c.input.Disabled = false
		c.input.Focused = true
		c.mu.Unlock()
		c.end(sid)
	}()

	c.notify.Show("Processing...", status.LevelInfo)
	reply, err := c.backend.SubmitText(ctx, text, sid, voice)
	if err != nil {
		c.reportError("send text", err)
		return err
	}
	c.applyReply(ctx, sid, reply)
	return nil
}

// SubmitAudio uploads a finished recording.
func (c *Controller) SubmitAudio(ctx context.Context, blob capture.Blob) error {
	sid, voice, ok := c.begin()
	if !ok {
		c.reportError("submit audio", ErrBusy)
		return ErrBusy
	}
	defer c.end(sid)

	c.notify.Show("Uploading audio...", status.LevelInfo)
	audio := gateway.Audio{Data: blob.Data, MIMEType: blob.MIMEType, Filename: blob.Filename}
	reply, err := c.backend.SubmitAudio(ctx, audio, sid, voice)
	if err != nil {
		c.reportError("submit audio", err)
		return err
	}
	c.applyReply(ctx, sid, reply)
	return nil
}

func (c *Controller) submitRecording(ctx context.Context, blob capture.Blob) error {
	err := c.SubmitAudio(ctx, blob)
	c.changed()
	return err
}

// begin marks the current session as submitting. ok is false when a
// submission for it is already outstanding.
func (c *Controller) begin() (sid, voice string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sid = c.current
	if c.inflight[sid] {
		return sid, c.voice, false
	}
	c.inflight[sid] = true
	return sid, c.voice, true
}

func (c *Controller) end(sid string) {
	c.mu.Lock()
	delete(c.inflight, sid)
	c.mu.Unlock()
	c.changed()
}

// applyReply reconciles a successful submission made while sid was active.
func (c *Controller) applyReply(ctx context.Context, sid string, reply gateway.Reply) {
	adopted := false
	if sid == NewSessionID && reply.SessionID != "" {
		c.mu.Lock()
		if c.current == NewSessionID {
			c.current = reply.SessionID
			adopted = true
		}
		c.mu.Unlock()
	}
	switch {
	case adopted:
		c.logger.Info("session adopted", zap.String("session_id", reply.SessionID))
		c.refreshIncluding(ctx, reply.SessionID, SessionTitle(c.now()))
		c.mu.Lock()
		c.list.SetActive(reply.SessionID)
		c.mu.Unlock()
	case sid == NewSessionID && reply.SessionID != "":
		// The server created a session but the user has moved on. List it
		// without switching to it.
		c.refreshIncluding(ctx, reply.SessionID, SessionTitle(c.now()))
	}

	c.mu.Lock()
	showing := c.current == sid || adopted
	if showing {
		now := c.now()
		c.transcript.Append(gateway.RoleUser, reply.UserText, now)
		c.transcript.Append(gateway.RoleAssistant, reply.AssistantResponse, now)
	}
	c.mu.Unlock()
	if !showing {
		// The user moved to another session while waiting. Its clip stays
		// with that session's history.
		c.logger.Debug("reply for a session no longer shown", zap.String("session_id", sid))
		c.changed()
		c.notify.Show("Reply received", status.LevelSuccess)
		return
	}

	if reply.AudioURL != "" && c.player != nil {
		c.player.Set(reply.AudioURL)
	}
	c.changed()

	if reply.AudioURL != "" && c.player != nil && !c.manualPlay {
		if err := c.player.Play(ctx); err != nil {
			c.reportError("play reply", err)
			return
		}
	}
	c.notify.Show("Reply received", status.LevelSuccess)
}

// PlayAudio replays the last reply clip.
func (c *Controller) PlayAudio(ctx context.Context) error {
	if c.player == nil {
		return nil
	}
	if err := c.player.Play(ctx); err != nil {
		c.reportError("play audio", err)
		return err
	}
	return nil
}

// Recording reports whether the microphone is capturing.
func (c *Controller) Recording() bool {
	return c.recorder != nil && c.recorder.Active()
}

// ToggleRecording starts or stops the microphone. A stopped recording is
// submitted automatically.
func (c *Controller) ToggleRecording(ctx context.Context) error {
	if c.recorder == nil {
		err := errors.New("recording is not available")
		c.reportError("toggle recording", err)
		return err
	}
	err := c.recorder.Toggle(ctx)
	c.changed()
	return err
}

// WaitRecording blocks until the last recording has been submitted and
// returns the submission's outcome.
func (c *Controller) WaitRecording(ctx context.Context) error {
	if c.recorder == nil {
		return capture.ErrNotRecording
	}
	return c.recorder.Wait(ctx)
}

// Close releases the microphone if it is still open.
func (c *Controller) Close() {
	if c.recorder != nil {
		c.recorder.Abort()
	}
}
