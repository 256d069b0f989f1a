package tui

import "context"

// confirmRequest is a question waiting for a y/n answer in the UI.
type confirmRequest struct {
	prompt string
	reply  chan bool
}

// Confirmer asks questions through the TUI. Confirm blocks the calling
// goroutine until the user answers, so it must not be called from Update.
type Confirmer struct {
	reqs chan confirmRequest
}

// NewConfirmer returns a Confirmer with no pending questions.
func NewConfirmer() *Confirmer {
	return &Confirmer{reqs: make(chan confirmRequest)}
}

// Confirm reports whether the user answered yes. A cancelled context counts
// as no.
func (c *Confirmer) Confirm(ctx context.Context, prompt string) bool {
	req := confirmRequest{prompt: prompt, reply: make(chan bool, 1)}
	select {
	case c.reqs <- req:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-req.reply:
		return ok
	case <-ctx.Done():
		return false
	}
}
