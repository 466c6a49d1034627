// Package engine runs the per-bot signal loop: poll the bot's channel, parse
// and dedupe fresh signals, score them against the trend, and record (or
// place) the best entries within the bot's risk caps. A second, slower pass
// re-reads the messages of active trades to pick up SL/TP edits and
// cancellations.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"botdeck/internal/bot"
	"botdeck/internal/exchange"
	"botdeck/internal/feed"
	"botdeck/internal/progress"
	"botdeck/internal/score"
	"botdeck/internal/signal"
	"botdeck/internal/store"
)

// Feed reads channel messages.
type Feed interface {
	FetchAfter(ctx context.Context, channelID, afterID string, limit int) ([]feed.Message, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (feed.Message, error)
}

// Exchange provides market data and order placement.
type Exchange interface {
	score.KlineSource
	LastPrice(ctx context.Context, symbol string) (float64, error)
	Equity(ctx context.Context) (float64, error)
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// maxSignalLag is the oldest a message may be and still produce an entry.
const maxSignalLag = 30 * time.Minute

// Options tune the loop cadence.
type Options struct {
	PollBuffer     time.Duration // delay after the quarter-hour before polling
	BatchWindow    time.Duration // second fetch delay to catch signal bursts
	UpdateInterval time.Duration // cadence of the trade-update pass
}

func (o Options) withDefaults() Options {
	if o.PollBuffer <= 0 {
		o.PollBuffer = 5 * time.Second
	}
	if o.UpdateInterval <= 0 {
		o.UpdateInterval = 5 * time.Minute
	}
	return o
}

// Engine drives one bot.
type Engine struct {
	cfg   bot.Config
	opts  Options
	feed  Feed
	exch  Exchange
	store *store.Store
	emit  progress.Emitter
	log   *slog.Logger

	mu      sync.Mutex
	cursor  string                  // last processed message ID
	tracked map[string]trackedTrade // message ID -> trade
}

type trackedTrade struct {
	TradeID string
	Symbol  string
	OrderID string // exchange order, empty for dry runs
}

// New builds an engine for one bot config.
func New(cfg bot.Config, opts Options, f Feed, ex Exchange, st *store.Store, emit progress.Emitter, log *slog.Logger) *Engine {
	if emit == nil {
		emit = progress.Nop{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		cfg:     cfg,
		opts:    opts.withDefaults(),
		feed:    f,
		exch:    ex,
		store:   st,
		emit:    emit,
		log:     log.With("bot", cfg.ID),
		tracked: map[string]trackedTrade{},
	}
}

// Run polls until the context is cancelled. Signal cycles fire shortly after
// each quarter-hour, when new candles are closed; trade updates run on their
// own interval.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine started", "format", e.cfg.Format, "dry_run", e.cfg.DryRun)

	updates := time.NewTicker(e.opts.UpdateInterval)
	defer updates.Stop()

	for {
		wait := time.Until(NextQuarter(time.Now(), e.opts.PollBuffer))
		cycleTimer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			cycleTimer.Stop()
			return ctx.Err()
		case <-cycleTimer.C:
			if err := e.Cycle(ctx); err != nil && ctx.Err() == nil {
				e.log.Error("poll cycle failed", "error", err)
				e.emit.Emit(progress.Event{BotID: e.cfg.ID, Kind: progress.KindError, Message: err.Error()})
			}
		case <-updates.C:
			cycleTimer.Stop()
			if err := e.UpdateTrades(ctx); err != nil && ctx.Err() == nil {
				e.log.Error("trade update failed", "error", err)
			}
		}
	}
}

// NextQuarter returns the next quarter-hour boundary plus buffer after now.
func NextQuarter(now time.Time, buffer time.Duration) time.Time {
	q := now.Truncate(15 * time.Minute).Add(15 * time.Minute)
	return q.Add(buffer)
}

// Cycle runs one poll: fetch, parse, dedupe, score, trade, expire.
func (e *Engine) Cycle(ctx context.Context) error {
	tracer := otel.Tracer("botdeck/engine")
	ctx, span := tracer.Start(ctx, "poll_cycle",
		oteltrace.WithAttributes(attribute.String("bot.id", e.cfg.ID)))
	defer span.End()

	batch, err := e.collectSignals(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("signals.fresh", len(batch)))
	e.emit.Emit(progress.Event{
		BotID: e.cfg.ID, Kind: progress.KindPoll,
		Message: fmt.Sprintf("poll: %d fresh signal(s)", len(batch)),
	})

	if len(batch) > 0 {
		if err := e.tradeBatch(ctx, batch); err != nil {
			return err
		}
	}
	if err := e.ExpirePending(ctx, time.Now()); err != nil {
		e.log.Warn("expiration pass failed", "error", err)
	}
	return nil
}

// incoming pairs a fresh signal with the message that carried it.
type incoming struct {
	sig   signal.Signal
	msgID string
}

// collectSignals fetches new messages and returns fresh, deduplicated
// signals. When a batch window is set, a second fetch catches providers that
// post several signals seconds apart.
func (e *Engine) collectSignals(ctx context.Context) ([]incoming, error) {
	batch, err := e.fetchAndParse(ctx)
	if err != nil {
		return nil, err
	}
	if len(batch) > 0 && e.opts.BatchWindow > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.opts.BatchWindow):
		}
		more, err := e.fetchAndParse(ctx)
		if err != nil {
			e.log.Warn("batch re-fetch failed", "error", err)
		} else {
			batch = append(batch, more...)
		}
	}
	return batch, nil
}

func (e *Engine) fetchAndParse(ctx context.Context) ([]incoming, error) {
	e.mu.Lock()
	cursor := e.cursor
	e.mu.Unlock()

	msgs, err := e.feed.FetchAfter(ctx, e.cfg.ChannelID, cursor, 50)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	e.cursor = msgs[len(msgs)-1].ID
	e.mu.Unlock()

	recent, err := e.store.RecentSummaries(ctx, e.cfg.ID, 30)
	if err != nil {
		e.log.Warn("load recent summaries", "error", err)
	}

	var fresh []incoming
	for _, msg := range msgs {
		// A backlog after downtime must not fire stale entries.
		if ts := feed.SnowflakeTime(msg.ID); !ts.IsZero() && time.Since(ts) > maxSignalLag {
			e.log.Debug("stale message skipped", "message", msg.ID, "age", time.Since(ts))
			continue
		}
		text := feed.Text(msg)
		for _, sig := range signal.ParseAll(signal.Format(e.cfg.Format), text, e.cfg.Quote, e.cfg.Timeframes) {
			sig.Raw = text
			if !e.admit(ctx, sig, recent, msg.ID) {
				continue
			}
			fresh = append(fresh, incoming{sig: sig, msgID: msg.ID})
		}
	}
	return fresh, nil
}

// admit applies hash and fuzzy dedup. Fresh signals are recorded as seen so
// reposts are dropped even before any trade opens.
func (e *Engine) admit(ctx context.Context, sig signal.Signal, recent []string, msgID string) bool {
	for _, sum := range recent {
		if signal.NearDuplicateSummary(sum, sig) {
			e.log.Debug("near-duplicate signal dropped", "symbol", sig.Symbol, "message", msgID)
			return false
		}
	}
	fresh, err := e.store.MarkSeen(ctx, e.cfg.ID, signal.Hash(sig), signal.Summary(sig))
	if err != nil {
		e.log.Warn("dedup store failed", "error", err)
		return true
	}
	if !fresh {
		e.log.Debug("duplicate signal dropped", "symbol", sig.Symbol, "message", msgID)
		return false
	}
	e.emit.Emit(progress.Event{
		BotID: e.cfg.ID, Kind: progress.KindSignal,
		Message: fmt.Sprintf("%s %s @ %g", strings.ToUpper(string(sig.Side)), sig.Symbol, sig.Trigger),
		Fields:  map[string]string{"symbol": sig.Symbol},
	})
	return true
}

// tradeBatch scores the batch and opens the best entries within the bot's
// concurrency and daily caps.
func (e *Engine) tradeBatch(ctx context.Context, batch []incoming) error {
	signals := make([]signal.Signal, len(batch))
	msgByKey := make(map[string]string, len(batch))
	for i, in := range batch {
		signals[i] = in.sig
		msgByKey[in.sig.Symbol+"|"+string(in.sig.Side)] = in.msgID
	}

	scored := score.Batch(ctx, signals, e.exch, score.Options{}, e.log)
	for _, sc := range scored {
		if sc.SkipReason != "" {
			e.emit.Emit(progress.Event{
				BotID: e.cfg.ID, Kind: progress.KindSkip,
				Message: fmt.Sprintf("%s skipped: %s", sc.Signal.Symbol, sc.SkipReason),
			})
		}
	}

	capacity, err := e.capacity(ctx)
	if err != nil {
		return err
	}
	if capacity <= 0 {
		e.log.Info("trade caps reached, batch dropped", "signals", len(signals))
		return nil
	}

	best := score.SelectBest(scored, capacity)
	for _, sig := range best {
		var sc *score.Scored
		for i := range scored {
			if scored[i].Signal.Symbol == sig.Symbol && scored[i].Signal.Side == sig.Side {
				sc = &scored[i]
				break
			}
		}
		msgID := msgByKey[sig.Symbol+"|"+string(sig.Side)]
		if err := e.openTrade(ctx, sig, sc, msgID); err != nil {
			e.log.Error("open trade failed", "symbol", sig.Symbol, "error", err)
			e.emit.Emit(progress.Event{BotID: e.cfg.ID, Kind: progress.KindError,
				Message: fmt.Sprintf("%s: %v", sig.Symbol, err)})
		}
	}
	return nil
}

func (e *Engine) capacity(ctx context.Context) (int, error) {
	active, err := e.store.CountActive(ctx, e.cfg.ID)
	if err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	today, err := e.store.CountSince(ctx, e.cfg.ID, dayStart)
	if err != nil {
		return 0, fmt.Errorf("count today: %w", err)
	}

	capacity := e.cfg.MaxConcurrent - active
	if rest := e.cfg.MaxPerDay - today; rest < capacity {
		capacity = rest
	}
	return capacity, nil
}

func (e *Engine) openTrade(ctx context.Context, sig signal.Signal, sc *score.Scored, msgID string) error {
	trade := &store.Trade{
		BotID:     e.cfg.ID,
		Symbol:    sig.Symbol,
		Side:      string(sig.Side),
		Entry:     sig.Trigger,
		TPs:       sig.TPs,
		DCAs:      sig.DCAs,
		SL:        sig.SL,
		Leverage:  sig.Leverage,
		Timeframe: sig.Timeframe,
		Trader:    sig.Trader,
		DryRun:    e.cfg.DryRun,
	}
	if sc != nil {
		trade.Score = sc.Score
	}

	var orderID string
	if !e.cfg.DryRun {
		equity, err := e.exch.Equity(ctx)
		if err != nil {
			return fmt.Errorf("fetch equity: %w", err)
		}
		trade.Qty = PositionSize(equity, e.cfg.RiskPerTradePct, sig.Trigger, sig.SL)
		if trade.Qty <= 0 {
			return fmt.Errorf("cannot size position for %s (entry %g, sl %g)", sig.Symbol, sig.Trigger, sig.SL)
		}

		side := "Buy"
		if sig.Side == signal.Sell {
			side = "Sell"
		}
		var tp1 float64
		if len(sig.TPs) > 0 {
			tp1 = sig.TPs[0]
		}
		orderID, err = e.exch.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol: sig.Symbol, Side: side, Qty: trade.Qty,
			Price: sig.Trigger, TakeProfit: tp1, StopLoss: sig.SL,
		})
		if err != nil {
			return err
		}
	}

	if err := e.store.Insert(ctx, trade); err != nil {
		return err
	}
	if msgID != "" {
		e.Track(msgID, trade.ID, trade.Symbol, orderID)
	}
	e.log.Info("trade recorded", "symbol", trade.Symbol, "side", trade.Side,
		"entry", trade.Entry, "score", trade.Score, "dry_run", trade.DryRun)
	e.emit.Emit(progress.Event{
		BotID: e.cfg.ID, Kind: progress.KindTrade,
		Message: fmt.Sprintf("%s %s @ %g (score %.0f)", trade.Side, trade.Symbol, trade.Entry, trade.Score),
		Fields:  map[string]string{"trade_id": trade.ID},
	})
	return nil
}

// Track associates a source message with a trade so the update pass can
// re-read edits.
func (e *Engine) Track(messageID, tradeID, symbol, orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracked[messageID] = trackedTrade{TradeID: tradeID, Symbol: symbol, OrderID: orderID}
}

// EntryExpiry returns how long an unfilled entry stays pending before it is
// written off. Tighter timeframes expire faster.
func EntryExpiry(timeframe string) time.Duration {
	switch strings.ToUpper(timeframe) {
	case "M15":
		return 30 * time.Minute
	case "H1":
		return 120 * time.Minute
	case "H4":
		return 480 * time.Minute
	default:
		return 180 * time.Minute
	}
}

// ExpirePending marks pending trades whose entry window has passed.
func (e *Engine) ExpirePending(ctx context.Context, now time.Time) error {
	active, err := e.store.Active(ctx, e.cfg.ID)
	if err != nil {
		return err
	}
	for _, t := range active {
		if t.Status != store.StatusPending {
			continue
		}
		if now.Sub(t.CreatedAt) < EntryExpiry(t.Timeframe) {
			continue
		}
		if err := e.store.SetStatus(ctx, t.ID, store.StatusExpired); err != nil {
			e.log.Warn("expire trade", "trade", t.ID, "error", err)
			continue
		}
		e.log.Info("entry expired", "symbol", t.Symbol, "age", now.Sub(t.CreatedAt).Round(time.Minute))
		e.emit.Emit(progress.Event{
			BotID: e.cfg.ID, Kind: progress.KindTrade,
			Message: fmt.Sprintf("%s entry expired", t.Symbol),
		})
	}
	return nil
}

// UpdateTrades re-reads the source messages of tracked trades, applying
// SL/TP revisions and cancellations.
func (e *Engine) UpdateTrades(ctx context.Context) error {
	e.mu.Lock()
	refs := make(map[string]trackedTrade, len(e.tracked))
	for id, tr := range e.tracked {
		refs[id] = tr
	}
	e.mu.Unlock()

	for msgID, ref := range refs {
		msg, err := e.feed.FetchMessage(ctx, e.cfg.ChannelID, msgID)
		if err != nil {
			e.log.Warn("re-fetch message", "message", msgID, "error", err)
			continue
		}
		text := feed.Text(msg)
		upper := strings.ToUpper(text)

		// "closed without entry" is a cancellation: the order never filled.
		// Check it before the closed branch, since the phrase contains
		// "TRADE CLOSED".
		if strings.Contains(upper, "TRADE CANCELLED") || strings.Contains(upper, "CLOSED WITHOUT ENTRY") {
			if err := e.store.SetStatus(ctx, ref.TradeID, store.StatusCancelled); err != nil {
				e.log.Warn("cancel trade", "trade", ref.TradeID, "error", err)
				continue
			}
			if ref.OrderID != "" && !e.cfg.DryRun {
				if err := e.exch.CancelOrder(ctx, ref.Symbol, ref.OrderID); err != nil {
					e.log.Warn("cancel exchange order", "order", ref.OrderID, "error", err)
				}
			}
			e.untrack(msgID)
			e.emit.Emit(progress.Event{BotID: e.cfg.ID, Kind: progress.KindTrade,
				Message: fmt.Sprintf("%s cancelled by provider", ref.Symbol)})
			continue
		}
		if strings.Contains(upper, "TRADE CLOSED") {
			if err := e.store.SetStatus(ctx, ref.TradeID, store.StatusClosed); err != nil {
				e.log.Warn("close trade", "trade", ref.TradeID, "error", err)
				continue
			}
			e.untrack(msgID)
			e.emit.Emit(progress.Event{BotID: e.cfg.ID, Kind: progress.KindTrade,
				Message: fmt.Sprintf("%s closed by provider", ref.Symbol)})
			continue
		}

		u := signal.ParseUpdate(signal.Format(e.cfg.Format), text)
		if u.SL == 0 && len(u.TPs) == 0 && len(u.DCAs) == 0 {
			continue
		}
		if err := e.store.UpdateLevels(ctx, ref.TradeID, u.TPs, u.DCAs, u.SL); err != nil {
			e.log.Warn("update trade levels", "trade", ref.TradeID, "error", err)
		}
	}
	return nil
}

func (e *Engine) untrack(messageID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tracked, messageID)
}

// PositionSize converts account risk into base quantity: the loss at the
// stop equals riskPct of equity. Zero when the stop distance is degenerate.
func PositionSize(equity, riskPct, entry, sl float64) float64 {
	if equity <= 0 || riskPct <= 0 || entry <= 0 || sl <= 0 {
		return 0
	}
	dist := math.Abs(entry - sl)
	if dist == 0 {
		return 0
	}
	return equity * riskPct / 100 / dist
}
