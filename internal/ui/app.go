package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"botdeck/internal/bot"
	"botdeck/internal/progress"
	"botdeck/internal/store"
)

// SelectBotMsg is sent when the user switches the active bot tab.
type SelectBotMsg struct {
	ID string
}

// ShowTradesMsg switches to the trade list of the active bot (SPC t).
type ShowTradesMsg struct{}

// RefreshMsg reloads counters and trades for the active bot (SPC r).
type RefreshMsg struct{}

type tradesLoadedMsg struct {
	botID  string
	trades []store.Trade
}

type statusLoadedMsg struct {
	botID  string
	status BotStatus
}

type loadErrMsg struct {
	err error
}

// TradeSource reads trade state for display. Implemented by store.Store.
type TradeSource interface {
	ByBot(ctx context.Context, botID string, limit int) ([]store.Trade, error)
	CountActive(ctx context.Context, botID string) (int, error)
	CountSince(ctx context.Context, botID string, cutoff time.Time) (int, error)
}

// AppModel is the root model: a bot tab bar over Dashboard and Trades modes.
// It owns the selected bot ID; the tab bar only reports selection requests.
type AppModel struct {
	Mode       AppMode
	Bots       *bot.Registry
	Dashboard  *DashboardView
	Trades     *TradesView
	KeyHandler *KeyHandler
	Source     TradeSource
	Events     <-chan progress.Event
	Log        *EventLog

	selected string
}

// Ensure AppModel can be used as tea.Model via adapter.
var _ tea.Model = (*appModelAdapter)(nil)

// appModelAdapter wraps AppModel to implement tea.Model.
type appModelAdapter struct {
	*AppModel
}

// Init implements tea.Model.
func (a *appModelAdapter) Init() tea.Cmd {
	cmds := []tea.Cmd{a.Dashboard.Init(), a.waitForEvent()}
	if a.selected != "" {
		cmds = append(cmds, a.loadStatus(a.selected), a.loadTrades(a.selected))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (a *appModelAdapter) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progress.Event:
		a.Log.Add(msg)
		cmds := []tea.Cmd{a.waitForEvent()}
		if msg.Kind == progress.KindTrade && msg.BotID != "" {
			cmds = append(cmds, a.loadStatus(msg.BotID), a.loadTrades(msg.BotID))
		}
		return a, tea.Batch(cmds...)

	case SelectBotMsg:
		return a, a.selectBot(msg.ID)

	case ShowTradesMsg:
		if a.selected == "" {
			return a, nil
		}
		cfg, _ := a.Bots.Get(a.selected)
		a.Mode = ModeTrades
		a.Trades = NewTradesView(cfg.ID, cfg.Name)
		return a, tea.Batch(a.Trades.Init(), a.loadTrades(cfg.ID))

	case RefreshMsg:
		if a.selected == "" {
			return a, nil
		}
		return a, tea.Batch(a.loadStatus(a.selected), a.loadTrades(a.selected),
			a.Dashboard.SetLoading(true))

	case tradesLoadedMsg:
		a.Dashboard.SetLoading(false)
		if a.Trades != nil && a.Trades.BotID == msg.botID {
			a.Trades.SetTrades(msg.trades)
		}
		return a, nil

	case statusLoadedMsg:
		a.Dashboard.Statuses[msg.botID] = msg.status
		return a, nil

	case loadErrMsg:
		a.Dashboard.SetLoading(false)
		a.Log.Add(progress.Event{
			Kind: progress.KindError, Message: msg.err.Error(), Timestamp: time.Now(),
		})
		return a, nil

	case tea.KeyMsg:
		// Keybind system (leader key, SPC-prefixed commands)
		if a.KeyHandler != nil {
			if consumed, keyCmd := a.KeyHandler.Handle(msg); consumed {
				return a, keyCmd
			}
		}
		// App-level navigation
		if a.Mode == ModeTrades && msg.String() == "esc" {
			a.Mode = ModeDashboard
			a.Trades = nil
			return a, nil
		}
		if a.Mode == ModeDashboard {
			if msg.String() == "enter" && a.selected != "" {
				return a, func() tea.Msg { return ShowTradesMsg{} }
			}
			var picked string
			tb := a.Dashboard.Tabs()
			tb.OnSelect = func(id string) { picked = id }
			if tb.Handle(msg) {
				if picked != "" && picked != a.selected {
					return a, a.selectBot(picked)
				}
				return a, nil
			}
		}
	}

	v, cmd := a.currentView().Update(msg)
	a.setCurrentView(v)
	return a, cmd
}

// View implements tea.Model.
func (a *appModelAdapter) View() string {
	base := a.currentView().View()
	if a.KeyHandler != nil && a.KeyHandler.LeaderWaiting {
		base += "\n" + RenderKeybindHelp(a.KeyHandler, a.Mode)
	}
	return base
}

func (a *appModelAdapter) currentView() View {
	if a.Mode == ModeTrades && a.Trades != nil {
		return a.Trades
	}
	return a.Dashboard
}

func (a *appModelAdapter) setCurrentView(v View) {
	switch a.Mode {
	case ModeDashboard:
		if d, ok := v.(*DashboardView); ok {
			a.Dashboard = d
		}
	case ModeTrades:
		if t, ok := v.(*TradesView); ok {
			a.Trades = t
		}
	}
}

// selectBot updates the owned selection and reloads the new bot's data.
func (a *AppModel) selectBot(id string) tea.Cmd {
	if _, ok := a.Bots.Get(id); !ok {
		return nil
	}
	a.selected = id
	a.Dashboard.Selected = id

	cmds := []tea.Cmd{a.loadStatus(id)}
	if a.Mode == ModeTrades {
		cfg, _ := a.Bots.Get(id)
		a.Trades = NewTradesView(cfg.ID, cfg.Name)
		cmds = append(cmds, a.loadTrades(id))
	}
	return tea.Batch(cmds...)
}

// stepBotCmd returns a command selecting the neighbor of the active bot,
// wrapping at either end.
func (a *AppModel) stepBotCmd(delta int) tea.Cmd {
	return func() tea.Msg {
		configs := a.Bots.All()
		if len(configs) == 0 {
			return nil
		}
		idx := 0
		for i, c := range configs {
			if c.ID == a.selected {
				idx = i
				break
			}
		}
		next := (idx + delta + len(configs)) % len(configs)
		return SelectBotMsg{ID: configs[next].ID}
	}
}

// SelectedBot returns the active bot ID.
func (a *AppModel) SelectedBot() string {
	return a.selected
}

func (a *AppModel) waitForEvent() tea.Cmd {
	ch := a.Events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return ev
	}
}

func (a *AppModel) loadTrades(botID string) tea.Cmd {
	src := a.Source
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		trades, err := src.ByBot(ctx, botID, 100)
		if err != nil {
			return loadErrMsg{err: err}
		}
		return tradesLoadedMsg{botID: botID, trades: trades}
	}
}

func (a *AppModel) loadStatus(botID string) tea.Cmd {
	src := a.Source
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		active, err := src.CountActive(ctx, botID)
		if err != nil {
			return loadErrMsg{err: err}
		}
		dayStart := time.Now().UTC().Truncate(24 * time.Hour)
		today, err := src.CountSince(ctx, botID, dayStart)
		if err != nil {
			return loadErrMsg{err: err}
		}
		return statusLoadedMsg{botID: botID, status: BotStatus{Active: active, Today: today}}
	}
}

// NewAppModel creates the root application model. The first bot starts
// selected; events from the engines stream into the activity log.
func NewAppModel(bots *bot.Registry, src TradeSource, events <-chan progress.Event) *AppModel {
	log := &EventLog{}

	m := &AppModel{
		Mode:   ModeDashboard,
		Bots:   bots,
		Source: src,
		Events: events,
		Log:    log,
	}

	m.Dashboard = NewDashboardView(bots.All(), log)
	if bots.Len() > 0 {
		m.selected = bots.All()[0].ID
		m.Dashboard.Selected = m.selected
	}

	reg := NewKeybindRegistry()
	reg.BindWithDesc("q", tea.Quit, "Quit")
	reg.BindWithDesc("ctrl+c", tea.Quit, "Quit")
	reg.BindWithDesc("SPC q", tea.Quit, "Quit")
	reg.BindWithDescForMode("SPC t", func() tea.Msg { return ShowTradesMsg{} }, "Trades", []AppMode{ModeDashboard})
	reg.BindWithDesc("SPC r", func() tea.Msg { return RefreshMsg{} }, "Refresh")
	reg.BindWithDesc("SPC b n", m.stepBotCmd(1), "Next bot")
	reg.BindWithDesc("SPC b p", m.stepBotCmd(-1), "Previous bot")
	m.KeyHandler = NewKeyHandler(reg)

	return m
}

// AsTeaModel returns a tea.Model adapter for use with tea.NewProgram.
func (m *AppModel) AsTeaModel() tea.Model {
	return &appModelAdapter{AppModel: m}
}
