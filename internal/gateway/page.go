package gateway

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element ids and classes the home page uses to mark up the session list.
const (
	sessionListID   = "session-list"
	sessionItemCls  = "session-item"
	deleteButtonCls = "delete-btn"
	sessionIDAttr   = "data-session-id"
	voiceSelectID   = "voice-select"
)

// Page is what the client extracts from the server-rendered home page.
type Page struct {
	Sessions []Session
	Voices   []Voice
}

// ParsePage parses the home page HTML. It fails with ErrNoSessionList when the
// session-list fragment is missing; a missing voice selector is not an error.
func ParsePage(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse home page: %w", err)
	}
	list := findByID(doc, sessionListID)
	if list == nil {
		return nil, ErrNoSessionList
	}
	page := &Page{Sessions: parseSessionList(list)}
	if sel := findByID(doc, voiceSelectID); sel != nil {
		page.Voices = parseVoices(sel)
	}
	return page, nil
}

func parseSessionList(list *html.Node) []Session {
	sessions := []Session{}
	walk(list, func(n *html.Node) bool {
		if !hasClass(n, sessionItemCls) {
			return true
		}
		id, ok := attr(n, sessionIDAttr)
		if !ok || id == "" {
			return true
		}
		sessions = append(sessions, Session{ID: id, Title: itemTitle(n)})
		// Items do not nest.
		return false
	})
	return sessions
}

func parseVoices(sel *html.Node) []Voice {
	var voices []Voice
	walk(sel, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Option {
			return true
		}
		name := collapse(textContent(n, nil))
		value, ok := attr(n, "value")
		if !ok {
			value = name
		}
		voices = append(voices, Voice{ID: value, Name: name})
		return false
	})
	return voices
}

// itemTitle is the visible text of a session entry minus its delete button.
func itemTitle(item *html.Node) string {
	return collapse(textContent(item, func(n *html.Node) bool {
		return hasClass(n, deleteButtonCls)
	}))
}

// walk visits n and its descendants depth first. When visit returns false the
// children of that node are skipped.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode {
			if v, ok := attr(n, "id"); ok && v == id {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

func textContent(n *html.Node, skip func(*html.Node) bool) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if skip != nil && c.Type == html.ElementNode && skip(c) {
			return false
		}
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
		return true
	})
	return sb.String()
}

func attr(n *html.Node, key string) (string, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
