package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"botdeck/internal/bot"
)

// TabVariant is the visual state of a single tab.
type TabVariant int

const (
	TabInactive TabVariant = iota
	TabActive
)

// Variant returns the visual state for a tab given the selected bot ID.
// Pure: active iff the IDs are equal, so at most one tab can be active and a
// stale or empty selection yields zero active tabs.
func Variant(tabID, selectedID string) TabVariant {
	if tabID != "" && tabID == selectedID {
		return TabActive
	}
	return TabInactive
}

// TabBar renders one tab per bot config in registry order and requests
// selection changes through OnSelect. It holds no state of its own: the
// selected ID is owned by the parent and read fresh each render, and
// re-rendering with identical inputs produces identical output.
type TabBar struct {
	Configs  []bot.Config
	Selected string
	OnSelect func(id string)
}

var (
	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorText)).
			Background(lipgloss.Color(ColorHighlight)).
			Padding(0, 2)
	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorMuted)).
				Padding(0, 2)
	tabDescActiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorText)).
				Padding(0, 2)
	tabDescInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorDim)).
				Padding(0, 2)
)

// View renders the tab bar. Zero configs render as an empty string.
func (t TabBar) View() string {
	if len(t.Configs) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(t.Configs))
	for _, c := range t.Configs {
		var name, desc string
		if Variant(c.ID, t.Selected) == TabActive {
			name = tabActiveStyle.Render(c.Name)
			desc = tabDescActiveStyle.Render(c.Description)
		} else {
			name = tabInactiveStyle.Render(c.Name)
			desc = tabDescInactiveStyle.Render(c.Description)
		}
		blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left, name, desc))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, blocks...)
}

// Handle processes a key press. Number keys 1-9 select the nth tab; h/left
// and l/right select the previous/next tab relative to the current selection.
// Returns true when the key was consumed. Selection changes go through
// OnSelect exactly once; the bar itself never mutates the selection.
func (t TabBar) Handle(msg tea.KeyMsg) bool {
	if len(t.Configs) == 0 {
		return false
	}
	s := msg.String()

	if len(s) == 1 && s >= "1" && s <= "9" {
		idx := int(s[0] - '1')
		if idx < len(t.Configs) {
			t.activate(t.Configs[idx].ID)
			return true
		}
		return false
	}

	switch s {
	case "l", "right":
		t.activate(t.Configs[t.step(+1)].ID)
		return true
	case "h", "left":
		t.activate(t.Configs[t.step(-1)].ID)
		return true
	}
	return false
}

// step returns the index of the tab delta positions away from the selected
// one, wrapping around. An unknown selection starts from the first tab.
func (t TabBar) step(delta int) int {
	cur := -1
	for i, c := range t.Configs {
		if Variant(c.ID, t.Selected) == TabActive {
			cur = i
			break
		}
	}
	if cur < 0 {
		return 0
	}
	n := len(t.Configs)
	return ((cur+delta)%n + n) % n
}

func (t TabBar) activate(id string) {
	if t.OnSelect != nil {
		t.OnSelect(id)
	}
}

// TabIDs returns the IDs in render order, for keybind help.
func (t TabBar) TabIDs() []string {
	ids := make([]string, 0, len(t.Configs))
	for _, c := range t.Configs {
		ids = append(ids, c.ID)
	}
	return ids
}
