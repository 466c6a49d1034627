// Package score ranks signals that arrive in the same batch window so the
// engine can trade only the best entries. Ranking combines the trend-leg
// analysis with the signal's risk/reward ratio.
package score

import (
	"context"
	"log/slog"
	"sort"

	"botdeck/internal/signal"
	"botdeck/internal/trend"
)

// KlineSource fetches candles for trend analysis. Implemented by the
// exchange client; tests supply stubs.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]trend.Candle, error)
}

// Options tune the batch scorer.
type Options struct {
	MaxLeg        int // maximum allowed trend leg (default 3)
	SwingLookback int // swing detection window (default 5)
	Candles       int // candles fetched per symbol (default 200)
}

func (o Options) withDefaults() Options {
	if o.MaxLeg <= 0 {
		o.MaxLeg = 3
	}
	if o.SwingLookback <= 0 {
		o.SwingLookback = 5
	}
	if o.Candles <= 0 {
		o.Candles = 200
	}
	return o
}

// Scored pairs a signal with its analysis and score. SkipReason is empty for
// tradable signals.
type Scored struct {
	Signal     signal.Signal
	Analysis   *trend.Analysis
	Score      float64
	RRRatio    float64
	SkipReason string
}

// RRRatio returns reward/risk using TP1 and the stop loss. Zero when the
// signal lacks either level or the risk side is non-positive.
func RRRatio(sig signal.Signal) float64 {
	if sig.Trigger == 0 || sig.SL == 0 || len(sig.TPs) == 0 {
		return 0
	}
	tp1 := sig.TPs[0]
	var reward, risk float64
	if sig.Side == signal.Buy {
		reward = tp1 - sig.Trigger
		risk = sig.Trigger - sig.SL
	} else {
		reward = sig.Trigger - tp1
		risk = sig.SL - sig.Trigger
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// Score rates a signal against its trend analysis. Base 100 points, plus a
// leg bonus (earlier legs score higher), a pullback bonus, and an R:R bonus
// capped at 30; LATE entries lose 20. Returns 0 with a reason when the
// signal should be skipped.
func Score(sig signal.Signal, analysis *trend.Analysis, maxLeg int) (float64, string) {
	if maxLeg <= 0 {
		maxLeg = 3
	}
	if analysis == nil {
		return 0, "no trend analysis available"
	}
	if analysis.Recommendation == trend.Skip {
		return 0, analysis.Reason
	}

	score := 100.0

	leg := analysis.CurrentLeg
	switch {
	case leg > maxLeg:
		return 0, analysis.Reason
	case leg > 0:
		score += float64(maxLeg-leg+1) * 20
	}

	if analysis.InPullback {
		score += 15
	}

	rrBonus := RRRatio(sig) * 10
	if rrBonus > 30 {
		rrBonus = 30
	}
	score += rrBonus

	if analysis.Recommendation == trend.Late {
		score -= 20
	}
	return score, ""
}

// Batch analyzes and scores each signal, returning the batch sorted by score
// descending. Kline fetch failures degrade to a nil analysis (scored 0)
// rather than failing the batch.
func Batch(ctx context.Context, signals []signal.Signal, klines KlineSource, opts Options, log *slog.Logger) []Scored {
	opts = opts.withDefaults()
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	scored := make([]Scored, 0, len(signals))
	for _, sig := range signals {
		var analysis *trend.Analysis

		interval := trend.Interval(sig.Timeframe)
		candles, err := klines.Klines(ctx, sig.Symbol, interval, opts.Candles)
		if err != nil {
			log.Warn("trend analysis failed", "symbol", sig.Symbol, "error", err)
		} else if len(candles) >= 50 {
			a := trend.Analyze(candles, sig.Side, opts.MaxLeg, opts.SwingLookback)
			analysis = &a
		}

		s, skip := Score(sig, analysis, opts.MaxLeg)
		entry := Scored{
			Signal:     sig,
			Analysis:   analysis,
			Score:      s,
			RRRatio:    RRRatio(sig),
			SkipReason: skip,
		}
		scored = append(scored, entry)

		if skip != "" {
			log.Info("signal skipped", "symbol", sig.Symbol, "reason", skip)
		} else {
			log.Info("signal scored", "symbol", sig.Symbol, "score", s, "rr", entry.RRRatio)
		}
	}

	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
	return scored
}

// SelectBest filters skipped signals and returns up to max of the highest
// scored ones.
func SelectBest(scored []Scored, max int) []signal.Signal {
	if max <= 0 {
		max = 1
	}
	var best []signal.Signal
	for _, s := range scored {
		if s.SkipReason != "" || s.Score <= 0 {
			continue
		}
		best = append(best, s.Signal)
		if len(best) == max {
			break
		}
	}
	return best
}
