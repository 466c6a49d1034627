package progress

import "time"

// Kind categorizes engine activity for the live event pane.
type Kind string

const (
	KindPoll   Kind = "poll"
	KindSignal Kind = "signal"
	KindTrade  Kind = "trade"
	KindSkip   Kind = "skip"
	KindError  Kind = "error"
)

// Event is one engine activity record: a poll cycle result, a parsed signal,
// a trade action, or an error.
type Event struct {
	BotID     string
	Kind      Kind
	Message   string
	Timestamp time.Time
	Fields    map[string]string // optional: symbol, score, etc.
}

// Emitter receives engine events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// ChanEmitter emits events to a channel for the UI to consume.
type ChanEmitter struct {
	Ch chan<- Event
}

// Emit sends the event to the channel (non-blocking; drops if full).
func (e *ChanEmitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case e.Ch <- ev:
	default:
		// Channel full; drop to avoid blocking the engine
	}
}

// Nop discards all events.
type Nop struct{}

func (Nop) Emit(Event) {}
