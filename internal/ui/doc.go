// Package ui implements the terminal dashboard with Bubble Tea.
//
// Core pieces:
//   - AppModel: root model owning the selected bot and the current mode
//   - TabBar: stateless tab strip over the configured bots
//   - DashboardView: selected bot's config, counters, and recent activity
//   - TradesView: trade history list for one bot
//   - KeybindRegistry/KeyHandler: spacemacs-style SPC leader sequences
//
// Views are stateless renderers where possible; the parent owns selection
// and pushes it down on each render.
package ui
