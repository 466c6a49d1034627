package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"botdeck/internal/bot"
)

func testBots() []bot.Config {
	return []bot.Config{
		{ID: "a", Name: "Alpha", Description: "d1"},
		{ID: "b", Name: "Beta", Description: "d2"},
	}
}

// stripANSI removes style escape sequences so assertions see plain content.
func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case inEsc:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEsc = false
			}
		case r == '\x1b':
			inEsc = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func TestVariant(t *testing.T) {
	if Variant("a", "a") != TabActive {
		t.Error("matching id should be active")
	}
	if Variant("a", "b") != TabInactive {
		t.Error("mismatched id should be inactive")
	}
	if Variant("a", "") != TabInactive {
		t.Error("empty selection should be inactive")
	}
}

func TestVariant_EmptyTabID(t *testing.T) {
	if Variant("", "") == TabActive {
		t.Error("empty tab id should never be active")
	}
}

func TestTabBar_RendersAllConfigsInOrder(t *testing.T) {
	bar := TabBar{Configs: testBots(), Selected: "b"}
	out := stripANSI(bar.View())

	for _, want := range []string{"Alpha", "Beta", "d1", "d2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in tab bar output", want)
		}
	}
	if strings.Index(out, "Alpha") > strings.Index(out, "Beta") {
		t.Error("expected Alpha before Beta (registry order)")
	}
}

func TestTabBar_ExactlyOneActive(t *testing.T) {
	bar := TabBar{Configs: testBots(), Selected: "b"}
	active := 0
	for _, c := range bar.Configs {
		if Variant(c.ID, bar.Selected) == TabActive {
			active++
			if c.ID != "b" {
				t.Errorf("expected b active, got %s", c.ID)
			}
		}
	}
	if active != 1 {
		t.Errorf("expected exactly one active tab, got %d", active)
	}
}

func TestTabBar_UnknownSelectionNoActive(t *testing.T) {
	bar := TabBar{Configs: testBots(), Selected: "zzz"}
	for _, c := range bar.Configs {
		if Variant(c.ID, bar.Selected) == TabActive {
			t.Errorf("expected no active tabs, %s is active", c.ID)
		}
	}
	// Rendering still succeeds.
	if stripANSI(bar.View()) == "" {
		t.Error("expected non-empty render with unknown selection")
	}
}

func TestTabBar_EmptyConfigsRendersNothing(t *testing.T) {
	bar := TabBar{Selected: "a"}
	if bar.View() != "" {
		t.Error("expected empty render for zero configs")
	}
	if bar.Handle(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'1'}}) {
		t.Error("expected keys to be ignored with zero configs")
	}
}

func TestTabBar_NumberKeySelects(t *testing.T) {
	var got []string
	bar := TabBar{
		Configs:  testBots(),
		Selected: "b",
		OnSelect: func(id string) { got = append(got, id) },
	}
	if !bar.Handle(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'1'}}) {
		t.Fatal("expected 1 to be consumed")
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("expected exactly one callback with a, got %v", got)
	}
}

func TestTabBar_NumberKeyOutOfRange(t *testing.T) {
	called := false
	bar := TabBar{
		Configs:  testBots(),
		OnSelect: func(string) { called = true },
	}
	if bar.Handle(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'5'}}) {
		t.Error("expected out-of-range number to be unconsumed")
	}
	if called {
		t.Error("expected no callback for out-of-range number")
	}
}

func TestTabBar_CycleRight(t *testing.T) {
	var got []string
	bar := TabBar{
		Configs:  testBots(),
		Selected: "a",
		OnSelect: func(id string) { got = append(got, id) },
	}
	bar.Handle(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'l'}})
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("l from a: expected [b], got %v", got)
	}

	// Wraps from the last tab back to the first.
	got = nil
	bar.Selected = "b"
	bar.Handle(tea.KeyMsg{Type: tea.KeyRight})
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("right from b: expected [a], got %v", got)
	}
}

func TestTabBar_CycleLeftWraps(t *testing.T) {
	var got []string
	bar := TabBar{
		Configs:  testBots(),
		Selected: "a",
		OnSelect: func(id string) { got = append(got, id) },
	}
	bar.Handle(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'h'}})
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("h from a: expected wrap to [b], got %v", got)
	}
}

func TestTabBar_CycleWithUnknownSelectionStartsAtFirst(t *testing.T) {
	var got []string
	bar := TabBar{
		Configs:  testBots(),
		Selected: "zzz",
		OnSelect: func(id string) { got = append(got, id) },
	}
	bar.Handle(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'l'}})
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("l with unknown selection: expected [a], got %v", got)
	}
}

func TestTabBar_NilCallbackDoesNotPanic(t *testing.T) {
	bar := TabBar{Configs: testBots(), Selected: "a"}
	if !bar.Handle(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}}) {
		t.Error("expected key to be consumed even without callback")
	}
}

func TestTabBar_IdenticalInputsIdenticalRender(t *testing.T) {
	a := TabBar{Configs: testBots(), Selected: "b"}
	b := TabBar{Configs: testBots(), Selected: "b"}
	if a.View() != b.View() {
		t.Error("expected identical renders for identical inputs")
	}
}
