package tui

import (
	"fmt"
	"strings"

	"github.com/MrWong99/phantomlink/internal/input"
	"github.com/MrWong99/phantomlink/internal/lifecycle"
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("PhantomLink"))
	if u := m.snap.Flags.Username; u != "" {
		b.WriteString(m.styles.Muted.Render("  " + u))
	}
	if !m.snap.Location.IsZero() {
		b.WriteString(m.styles.Muted.Render("  " + m.snap.Location.String()))
	}
	b.WriteString("\n\n")

	switch m.screen {
	case screenGhosts:
		b.WriteString(m.viewGhosts())
	case screenHistory:
		b.WriteString(m.viewHistory())
	default:
		b.WriteString(m.viewSession())
	}

	if m.pending != "" {
		b.WriteString("\n" + m.spinner.View() + " " + m.styles.Muted.Render(m.pending+"..."))
	}
	if m.status != "" {
		b.WriteString("\n" + m.styles.Error.Render(m.status))
	}
	return b.String() + "\n"
}

func (m Model) keys(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, m.styles.Key.Render("["+pairs[i]+"]")+" "+m.styles.Muted.Render(pairs[i+1]))
	}
	return strings.Join(parts, "  ")
}

func (m Model) viewSession() string {
	s := m.snap
	switch s.State {
	case lifecycle.Entering:
		return m.styles.Muted.Render("Connecting to the other side...")

	case lifecycle.Unauthenticated:
		return "You are not signed in. Sign in on the PhantomLink website, then start phantomlink again.\n\n" +
			m.keys("q", "quit")

	case lifecycle.AwaitingLocation:
		return "Ghosts are bound to places. Share your location to find the ones near you.\n\n" +
			m.text.View() + "\n\n" + m.keys("enter", "share", "ctrl+c", "quit")

	case lifecycle.ModeSelection:
		return m.viewModeSelection("How do you want to reach the other side?")

	case lifecycle.Searching:
		msg := s.Search.Message
		if !s.Search.Found {
			msg += strings.Repeat(".", s.Search.Dots)
		}
		out := m.styles.Ghost.Render(msg)
		if s.Search.Hint != "" {
			out += "\n\n" + m.styles.Hint.Render(s.Search.Hint)
		}
		return out

	case lifecycle.InConversation:
		return m.viewConversation()

	case lifecycle.Ended:
		return m.viewModeSelection("Your conversation has been saved.")
	}
	return ""
}

func (m Model) viewModeSelection(heading string) string {
	out := heading + "\n"
	if g := m.snap.Ghost; g.Name != "" {
		out += m.styles.Muted.Render("Selected ghost: "+g.Name) + "\n"
	}
	pairs := []string{"t", "type"}
	if m.spoken != nil && m.spoken.Available() {
		pairs = append(pairs, "s", "speak")
	}
	pairs = append(pairs, "g", "ghosts", "h", "history", "l", "log out", "q", "quit")
	return out + "\n" + m.keys(pairs...)
}

func (m Model) viewConversation() string {
	s := m.snap
	var b strings.Builder

	name := "Ghost"
	if s.Ghost.Name != "" {
		name = s.Ghost.Name
	}
	speech := s.Display
	if s.Reply.IsTyping {
		speech += m.styles.Cursor.Render("▌")
	}
	if speech == "" {
		speech = m.styles.Muted.Render("...")
	}
	b.WriteString(m.styles.Muted.Render(name) + "\n")
	b.WriteString(m.styles.speechBox(s.Ambient.Color, m.width).Render(m.styles.Ghost.Render(speech)))
	b.WriteString("\n")

	if s.Echo != "" {
		b.WriteString(m.styles.User.Render("You: "+s.Echo) + "\n")
	}
	b.WriteString("\n")

	if s.Mode == input.Speech {
		switch m.listening {
		case input.Listening:
			b.WriteString(m.styles.Hint.Render("Listening..."))
		case input.Processing:
			b.WriteString(m.styles.Hint.Render("The ghost is answering..."))
		default:
			b.WriteString(m.keys("space", "speak", "ctrl+e", "end conversation"))
		}
		return b.String()
	}

	b.WriteString(m.text.View() + "\n\n")
	b.WriteString(m.keys("enter", "send", "ctrl+e", "end conversation"))
	return b.String()
}

func (m Model) viewGhosts() string {
	var b strings.Builder
	b.WriteString("Ghosts nearby\n\n")
	if len(m.ghosts) == 0 && m.pending == "" {
		b.WriteString(m.styles.Muted.Render("No ghosts are haunting this area.") + "\n")
	}
	for i, g := range m.ghosts {
		line := fmt.Sprintf("%s (%s)", g.Name, placeOf(g.City, g.State))
		if i == m.cursor {
			b.WriteString(m.styles.Cursor.Render("> ") + m.styles.Ghost.Render(line) + "\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}
	b.WriteString("\n" + m.keys("enter", "select", "r", "refresh", "esc", "back", "q", "quit"))
	return b.String()
}

func (m Model) viewHistory() string {
	return m.history.View() + "\n\n" + m.keys("↑/↓", "scroll", "esc", "back", "q", "quit")
}

func (m Model) renderHistory() string {
	if len(m.convs) == 0 {
		return m.styles.Muted.Render("No saved conversations yet.")
	}
	var b strings.Builder
	for i, c := range m.convs {
		if i > 0 {
			b.WriteString("\n")
		}
		head := c.GhostName
		if c.Location != "" {
			head += " in " + c.Location
		}
		if !c.Timestamp.IsZero() {
			head += m.styles.Muted.Render("  " + c.Timestamp.Local().Format("2006-01-02 15:04"))
		}
		b.WriteString(m.styles.Title.Render(head) + "\n")
		for line := range strings.SplitSeq(c.ChatLog, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				b.WriteString("  " + line + "\n")
			}
		}
	}
	return b.String()
}

func placeOf(city, state string) string {
	if state == "" {
		return city
	}
	return city + ", " + state
}
