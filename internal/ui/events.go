package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"botdeck/internal/progress"
	"botdeck/internal/ui/textutil"
)

// maxEvents bounds the in-memory event history.
const maxEvents = 200

// EventLog accumulates engine events for display. Oldest events are dropped
// once the cap is reached.
type EventLog struct {
	events []progress.Event
}

// Add appends an event, trimming history beyond the cap.
func (l *EventLog) Add(ev progress.Event) {
	l.events = append(l.events, ev)
	if len(l.events) > maxEvents {
		l.events = l.events[len(l.events)-maxEvents:]
	}
}

// Len returns the number of retained events.
func (l *EventLog) Len() int { return len(l.events) }

// Lines renders the newest n events, oldest first, truncated to width
// columns. An empty botID shows all bots; otherwise only that bot's events.
func (l *EventLog) Lines(botID string, n, width int) []string {
	if n <= 0 {
		return nil
	}

	var matched []progress.Event
	for _, ev := range l.events {
		if botID == "" || ev.BotID == botID {
			matched = append(matched, ev)
		}
	}
	if len(matched) > n {
		matched = matched[len(matched)-n:]
	}

	// "15:04:05" + space + icon + space
	const prefixWidth = 11

	lines := make([]string, 0, len(matched))
	for _, ev := range matched {
		msg := ev.Message
		if width > prefixWidth {
			msg = textutil.Truncate(msg, width-prefixWidth)
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			ev.Timestamp.Format("15:04:05"), kindIcon(ev.Kind), msg))
	}
	return lines
}

// Render returns the event pane for one bot: a section header plus the
// newest events, or an empty-state hint.
func (l *EventLog) Render(botID string, n, width int) string {
	header := Styles.Section.Render("Activity")
	lines := l.Lines(botID, n, width)
	if len(lines) == 0 {
		return header + "\n" + Styles.Empty.Render("no activity yet")
	}

	styled := make([]string, len(lines))
	for i, line := range lines {
		styled[i] = Styles.Normal.Render(line)
	}
	return header + "\n" + strings.Join(styled, "\n")
}

func kindIcon(k progress.Kind) string {
	switch k {
	case progress.KindTrade:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)).Render("▲")
	case progress.KindSignal:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHighlight)).Render("●")
	case progress.KindSkip:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarning)).Render("−")
	case progress.KindError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDanger)).Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDim)).Render("•")
	}
}
