// Package sessionlist is the client-side view of the server's session list.
//
// The list is always replaced wholesale from the server; the only local state
// is which entry is marked active.
package sessionlist

import "github.com/fakeyudi/tutor/internal/gateway"

// Entry is one row of the list.
type Entry struct {
	ID     string
	Title  string
	Active bool
}

// Gesture is what the user did to an entry.
type Gesture int

const (
	// GestureSelect opens the entry.
	GestureSelect Gesture = iota
	// GestureDelete deletes the entry. It never also selects it.
	GestureDelete
)

// List is not safe for concurrent use; the chat controller guards it.
type List struct {
	entries []Entry
}

// Replace swaps in sessions as the new contents, in server order. The entry
// whose id equals activeID, if any, is marked active.
func (l *List) Replace(sessions []gateway.Session, activeID string) {
	entries := make([]Entry, 0, len(sessions))
	for _, s := range sessions {
		entries = append(entries, Entry{ID: s.ID, Title: s.Title, Active: s.ID == activeID})
	}
	l.entries = entries
}

// SetActive clears every active mark, then marks id. It reports whether id is
// in the list.
func (l *List) SetActive(id string) bool {
	found := false
	for i := range l.entries {
		l.entries[i].Active = l.entries[i].ID == id
		if l.entries[i].Active {
			found = true
		}
	}
	return found
}

// Remove drops id from the list and reports whether it was present.
func (l *List) Remove(id string) bool {
	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// First returns the first entry.
func (l *List) First() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[0], true
}

// Active returns the active entry.
func (l *List) Active() (Entry, bool) {
	for _, e := range l.entries {
		if e.Active {
			return e, true
		}
	}
	return Entry{}, false
}

// Contains reports whether id is in the list.
func (l *List) Contains(id string) bool {
	for _, e := range l.entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Ensure puts an entry for id at the top of the list unless it is already
// there. It reports whether it added one.
func (l *List) Ensure(id, title string) bool {
	if l.Contains(id) {
		return false
	}
	l.entries = append([]Entry{{ID: id, Title: title}}, l.entries...)
	return true
}

// Entries returns a copy of the rows.
func (l *List) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}
