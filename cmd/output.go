package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/fakeyudi/tutor/internal/gateway"
	"github.com/fakeyudi/tutor/internal/status"
	"github.com/fakeyudi/tutor/internal/transcript"
)

// printer shows controller statuses as progress lines. Errors are skipped
// because the command returns them and cobra prints them.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) Show(text string, level status.Level) {
	if level == status.LevelError {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "· %s\n", text)
}

// historyEntries turns server messages into transcript entries.
func historyEntries(msgs []gateway.Message) ([]transcript.Entry, bool) {
	t := transcript.New()
	if len(msgs) == 0 {
		return nil, true
	}
	for _, m := range msgs {
		t.AppendHistory(m)
	}
	return t.Entries(), t.Welcome()
}

// lastTurns returns at most n trailing entries.
func lastTurns(entries []transcript.Entry, n int) []transcript.Entry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
