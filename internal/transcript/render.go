package transcript

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/tutor/internal/gateway"
)

// DefaultGlamourStyle is the markdown theme for assistant turns.
const DefaultGlamourStyle = "dark"

var (
	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	userBodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingLeft(2)

	welcomeTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))

	welcomeHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	audioStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))
)

// Renderer turns a transcript into terminal text of a given width.
type Renderer struct {
	width int
	md    *glamour.TermRenderer
}

// NewRenderer builds a Renderer. Markdown rendering is best effort: when
// glamour cannot be set up, assistant turns are shown as plain text.
func NewRenderer(width int) *Renderer {
	if width < 20 {
		width = 20
	}
	r := &Renderer{width: width}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(DefaultGlamourStyle),
		glamour.WithWordWrap(width-4),
	)
	if err == nil {
		r.md = md
	}
	return r
}

// Width is the wrap width the renderer was built for.
func (r *Renderer) Width() int { return r.width }

// Render draws entries, or the welcome placeholder when welcome is set.
func (r *Renderer) Render(entries []Entry, welcome bool) string {
	if welcome || len(entries) == 0 {
		return r.renderWelcome()
	}
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(r.renderEntry(e))
	}
	return sb.String()
}

func (r *Renderer) renderWelcome() string {
	block := lipgloss.JoinVertical(lipgloss.Center,
		welcomeTitleStyle.Render(WelcomeTitle),
		welcomeHintStyle.Render(WelcomeHint),
	)
	return lipgloss.PlaceHorizontal(r.width, lipgloss.Center, block)
}

func (r *Renderer) renderEntry(e Entry) string {
	var label string
	if e.Role == gateway.RoleUser {
		label = userLabelStyle.Render("You")
	} else {
		label = assistantLabelStyle.Render("Tutor")
	}
	header := label
	if tl := e.TimeLabel(); tl != "" {
		header += " " + timeStyle.Render(tl)
	}
	if e.AudioURL != "" {
		header += " " + audioStyle.Render("♪")
	}

	body := r.renderBody(e)
	return header + "\n" + body + "\n"
}

func (r *Renderer) renderBody(e Entry) string {
	if e.Role == gateway.RoleAssistant && r.md != nil {
		if out, err := r.md.Render(e.Content); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return userBodyStyle.Width(r.width - 2).Render(e.Content)
}

// Plain renders entries without styling, one "role [time]: text" block per
// turn. It is what the one-shot commands print.
func Plain(entries []Entry, welcome bool) string {
	if welcome || len(entries) == 0 {
		return WelcomeTitle + "\n" + WelcomeHint + "\n"
	}
	var sb strings.Builder
	for _, e := range entries {
		who := "you"
		if e.Role == gateway.RoleAssistant {
			who = "tutor"
		}
		sb.WriteString(who)
		if tl := e.TimeLabel(); tl != "" {
			sb.WriteString(" [" + tl + "]")
		}
		sb.WriteString(": ")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
