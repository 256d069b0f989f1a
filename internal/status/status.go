// Package status holds the transient status line shown to the user.
//
// Success and error statuses hide themselves after a fixed delay; info
// statuses stay until something replaces them.
package status

import (
	"slices"
	"sync"
	"time"
)

// Level is the severity of a status message.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "danger"
	default:
		return "info"
	}
}

// DefaultHideDelay is used when a Notifier is built with a non-positive delay.
const DefaultHideDelay = 3 * time.Second

// Status is a snapshot of the status line.
type Status struct {
	Text    string
	Level   Level
	Visible bool
	Seq     uint64 // increments on every Show
}

// AfterFunc schedules f after d and returns a function that cancels it.
// It matches time.AfterFunc so tests can drive hiding by hand.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Notifier publishes status changes to its subscribers.
type Notifier struct {
	mu        sync.Mutex
	pub       sync.Mutex // held across delivery so subscribers see snapshots in Seq order
	cur       Status
	hideDelay time.Duration
	after     AfterFunc
	stopHide  func() bool
	subs      []func(Status)
}

// New returns a Notifier that hides terminal statuses after hideDelay.
func New(hideDelay time.Duration) *Notifier {
	if hideDelay <= 0 {
		hideDelay = DefaultHideDelay
	}
	return &Notifier{hideDelay: hideDelay, after: realAfterFunc}
}

// WithAfterFunc replaces the timer used for auto-hiding. Used by tests.
func (n *Notifier) WithAfterFunc(f AfterFunc) *Notifier {
	n.mu.Lock()
	n.after = f
	n.mu.Unlock()
	return n
}

// Subscribe registers fn to be called with every new snapshot.
// fn runs on the goroutine that changed the status. It must not block or
// call back into the Notifier.
func (n *Notifier) Subscribe(fn func(Status)) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

// Show replaces the current status. A pending hide of an older status is
// cancelled.
func (n *Notifier) Show(text string, level Level) {
	n.mu.Lock()
	if n.stopHide != nil {
		n.stopHide()
		n.stopHide = nil
	}
	n.cur = Status{Text: text, Level: level, Visible: true, Seq: n.cur.Seq + 1}
	if level == LevelSuccess || level == LevelError {
		seq := n.cur.Seq
		n.stopHide = n.after(n.hideDelay, func() { n.hide(seq) })
	}
	n.publishLocked()
}

// hide hides the status only if it is still the one identified by seq.
func (n *Notifier) hide(seq uint64) {
	n.mu.Lock()
	if n.cur.Seq != seq || !n.cur.Visible {
		n.mu.Unlock()
		return
	}
	n.cur.Visible = false
	n.stopHide = nil
	n.publishLocked()
}

// Current returns the latest snapshot.
func (n *Notifier) Current() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cur
}

// publishLocked delivers the current snapshot and releases n.mu. The
// delivery lock is taken before n.mu is released, so two changes can never
// reach a subscriber out of order.
func (n *Notifier) publishLocked() {
	snap, subs := n.cur, slices.Clone(n.subs)
	n.pub.Lock()
	n.mu.Unlock()
	defer n.pub.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
