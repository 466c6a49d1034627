package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"botdeck/internal/bot"
)

// BotStatus holds the live counters shown for a bot on the dashboard.
type BotStatus struct {
	Active int // pending + open trades
	Today  int // trades opened since UTC midnight
}

// DashboardView shows the bot tab bar with the selected bot's configuration,
// counters, and recent activity.
type DashboardView struct {
	Bots     []bot.Config
	Selected string
	Statuses map[string]BotStatus
	Events   *EventLog

	OnSelect func(id string)

	width   int
	spinner spinner.Model
	loading bool
}

// Ensure DashboardView implements View.
var _ View = (*DashboardView)(nil)

// NewDashboardView creates a dashboard over the given bot configs.
func NewDashboardView(bots []bot.Config, events *EventLog) *DashboardView {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	if events == nil {
		events = &EventLog{}
	}
	return &DashboardView{
		Bots:     bots,
		Statuses: map[string]BotStatus{},
		Events:   events,
		spinner:  s,
	}
}

// Init implements View.
func (d *DashboardView) Init() tea.Cmd {
	return d.spinner.Tick
}

// SetLoading sets the refresh state and returns a command to run the spinner.
func (d *DashboardView) SetLoading(loading bool) tea.Cmd {
	d.loading = loading
	if loading {
		return d.spinner.Tick
	}
	return nil
}

// Tabs returns the tab bar bound to this dashboard's state.
func (d *DashboardView) Tabs() TabBar {
	return TabBar{Configs: d.Bots, Selected: d.Selected, OnSelect: d.OnSelect}
}

// Update implements View.
func (d *DashboardView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		return d, nil
	case spinner.TickMsg:
		if d.loading {
			var cmd tea.Cmd
			d.spinner, cmd = d.spinner.Update(msg)
			return d, cmd
		}
		return d, nil
	case tea.KeyMsg:
		if d.Tabs().Handle(msg) {
			return d, nil
		}
	}
	return d, nil
}

// View implements View.
func (d *DashboardView) View() string {
	width := d.width
	if width == 0 {
		width = 80
	}

	title := fmt.Sprintf("Bots (%d)", len(d.Bots))
	if d.loading {
		title += " " + d.spinner.View()
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render(title) + "\n")
	b.WriteString(Styles.Hint.Render("1-9/h/l switch bot · enter trades · [SPC] commands") + "\n\n")
	b.WriteString(d.Tabs().View())

	if cfg, ok := d.selectedConfig(); ok {
		b.WriteString("\n\n" + d.renderSummary(cfg))
		b.WriteString("\n\n" + d.Events.Render(cfg.ID, 8, width))
	} else if len(d.Bots) > 0 {
		b.WriteString("\n\n" + Styles.Empty.Render("no bot selected"))
	} else {
		b.WriteString(Styles.Empty.Render("no bots configured"))
	}
	return b.String()
}

func (d *DashboardView) selectedConfig() (bot.Config, bool) {
	for _, c := range d.Bots {
		if Variant(c.ID, d.Selected) == TabActive {
			return c, true
		}
	}
	return bot.Config{}, false
}

func (d *DashboardView) renderSummary(cfg bot.Config) string {
	st := d.Statuses[cfg.ID]

	mode := "live"
	if cfg.DryRun {
		mode = "dry-run"
	}

	rows := []string{
		Styles.Section.Render(cfg.Name) + Styles.Muted.Render("  "+mode),
		Styles.Normal.Render(fmt.Sprintf("format %-8s quote %-6s timeframes %s",
			cfg.Format, cfg.Quote, strings.Join(cfg.Timeframes, " "))),
		Styles.Normal.Render(fmt.Sprintf("risk %.1f%%/trade · max %d open · max %d/day",
			cfg.RiskPerTradePct, cfg.MaxConcurrent, cfg.MaxPerDay)),
		Styles.Status.Render(fmt.Sprintf("%d active · %d today", st.Active, st.Today)),
	}
	return strings.Join(rows, "\n")
}
