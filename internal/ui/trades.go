package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"botdeck/internal/store"
)

// tradeItem implements list.Item for a stored trade.
type tradeItem struct {
	store.Trade
}

func (t tradeItem) FilterValue() string { return t.Symbol }

func (t tradeItem) Title() string {
	line := fmt.Sprintf("%s %s @ %g", strings.ToUpper(t.Side), t.Symbol, t.Entry)
	if t.Score > 0 {
		line += fmt.Sprintf("  score %.0f", t.Score)
	}
	line += "  [" + string(t.Status) + "]"
	if t.DryRun {
		line += " dry"
	}
	return line
}

func (t tradeItem) Description() string { return "" }

// TradesView lists the trade history of one bot.
type TradesView struct {
	BotID   string
	BotName string

	list   list.Model
	trades []store.Trade
}

// Ensure TradesView implements View.
var _ View = (*TradesView)(nil)

// NewTradesView creates a trade list for the given bot. Trades arrive via
// SetTrades once loaded.
func NewTradesView(botID, botName string) *TradesView {
	l := list.New(nil, NewCompactListDelegate(), 0, 0)
	l.Title = botName
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent))

	return &TradesView{BotID: botID, BotName: botName, list: l}
}

// SetTrades replaces the listed trades.
func (v *TradesView) SetTrades(trades []store.Trade) {
	v.trades = trades
	items := make([]list.Item, len(trades))
	for i, t := range trades {
		items[i] = tradeItem{Trade: t}
	}
	v.list.SetItems(items)
}

// SelectedTrade returns the highlighted trade, if any.
func (v *TradesView) SelectedTrade() (store.Trade, bool) {
	if len(v.trades) == 0 {
		return store.Trade{}, false
	}
	i := v.list.Index()
	if i < 0 || i >= len(v.trades) {
		return store.Trade{}, false
	}
	return v.trades[i], true
}

// Init implements View.
func (v *TradesView) Init() tea.Cmd {
	return nil
}

// Update implements View.
func (v *TradesView) Update(msg tea.Msg) (View, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		v.list.SetWidth(size.Width)
		v.list.SetHeight(size.Height - 4) // Reserve space for header and detail line
		return v, nil
	}

	// list.Model handles j/k/g/G navigation natively.
	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return v, cmd
}

// View implements View.
func (v *TradesView) View() string {
	// Set default dimensions if not set (for tests)
	if v.list.Width() == 0 {
		v.list.SetWidth(80)
	}
	if v.list.Height() == 0 {
		v.list.SetHeight(20)
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render(fmt.Sprintf("%s trades (%d)", v.BotName, len(v.trades))) + "\n")
	b.WriteString(Styles.Hint.Render("esc back · j/k navigate") + "\n\n")

	if len(v.trades) == 0 {
		b.WriteString(Styles.Empty.Render("no trades yet"))
		return b.String()
	}
	b.WriteString(v.list.View())

	if t, ok := v.SelectedTrade(); ok {
		b.WriteString("\n" + v.renderDetail(t))
	}
	return b.String()
}

// renderDetail shows the levels of the highlighted trade.
func (v *TradesView) renderDetail(t store.Trade) string {
	parts := []string{fmt.Sprintf("entry %g", t.Entry)}
	if t.SL != 0 {
		parts = append(parts, fmt.Sprintf("sl %g", t.SL))
	}
	for i, tp := range t.TPs {
		parts = append(parts, fmt.Sprintf("tp%d %g", i+1, tp))
	}
	for i, dca := range t.DCAs {
		parts = append(parts, fmt.Sprintf("dca%d %g", i+1, dca))
	}
	if t.Leverage > 0 {
		parts = append(parts, fmt.Sprintf("%dx", t.Leverage))
	}
	if t.Timeframe != "" {
		parts = append(parts, t.Timeframe)
	}
	return Styles.Muted.Render(strings.Join(parts, " · "))
}
