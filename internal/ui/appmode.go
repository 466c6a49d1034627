package ui

// AppMode represents the top-level application mode (Dashboard + Trades).
type AppMode int

const (
	ModeDashboard AppMode = iota
	ModeTrades
)

func (m AppMode) String() string {
	switch m {
	case ModeDashboard:
		return "Dashboard"
	case ModeTrades:
		return "Trades"
	default:
		return "Unknown"
	}
}
