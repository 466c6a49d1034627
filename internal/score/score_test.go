package score

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botdeck/internal/signal"
	"botdeck/internal/trend"
)

func buySig(symbol string, trigger, tp1, sl float64) signal.Signal {
	return signal.Signal{
		Symbol: symbol, Side: signal.Buy,
		Trigger: trigger, TPs: []float64{tp1}, SL: sl,
		Timeframe: "H1",
	}
}

func TestRRRatio(t *testing.T) {
	// LONG: reward 10, risk 5 -> 2.0
	assert.Equal(t, 2.0, RRRatio(buySig("BTCUSDT", 100, 110, 95)))

	// SHORT: reward 5, risk 10 -> 0.5
	short := signal.Signal{Symbol: "ETHUSDT", Side: signal.Sell, Trigger: 100, TPs: []float64{95}, SL: 110}
	assert.Equal(t, 0.5, RRRatio(short))

	// Missing pieces score zero.
	assert.Zero(t, RRRatio(signal.Signal{Side: signal.Buy, Trigger: 100}))
	assert.Zero(t, RRRatio(signal.Signal{Side: signal.Buy, Trigger: 100, TPs: []float64{110}}))

	// Inverted SL (risk <= 0) scores zero.
	assert.Zero(t, RRRatio(buySig("X", 100, 110, 105)))
}

func TestScore_NoAnalysis(t *testing.T) {
	s, reason := Score(buySig("BTCUSDT", 100, 110, 95), nil, 3)
	assert.Zero(t, s)
	assert.NotEmpty(t, reason)
}

func TestScore_SkipPropagatesReason(t *testing.T) {
	a := &trend.Analysis{Recommendation: trend.Skip, Reason: "buy signal but trend is downtrend (need uptrend)"}
	s, reason := Score(buySig("BTCUSDT", 100, 110, 95), a, 3)
	assert.Zero(t, s)
	assert.Equal(t, a.Reason, reason)
}

func TestScore_Bonuses(t *testing.T) {
	sig := buySig("BTCUSDT", 100, 110, 95) // R:R 2.0 -> +20

	// Leg 1 pullback: 100 + 60 + 15 + 20 = 195
	a := &trend.Analysis{Recommendation: trend.Valid, CurrentLeg: 1, InPullback: true}
	s, reason := Score(sig, a, 3)
	require.Empty(t, reason)
	assert.Equal(t, 195.0, s)

	// Leg 3 impulse, LATE: 100 + 20 + 20 - 20 = 120
	a = &trend.Analysis{Recommendation: trend.Late, CurrentLeg: 3}
	s, _ = Score(sig, a, 3)
	assert.Equal(t, 120.0, s)
}

func TestScore_RRBonusCapped(t *testing.T) {
	sig := buySig("BTCUSDT", 100, 200, 99) // R:R 100 -> capped at +30
	a := &trend.Analysis{Recommendation: trend.Valid, CurrentLeg: 1}
	s, _ := Score(sig, a, 3)
	assert.Equal(t, 100.0+60+30, s)
}

func TestScore_LegPastCap(t *testing.T) {
	a := &trend.Analysis{Recommendation: trend.Late, CurrentLeg: 5, Reason: "late trend entry: leg 5 > max allowed 3"}
	s, reason := Score(buySig("BTCUSDT", 100, 110, 95), a, 3)
	assert.Zero(t, s)
	assert.NotEmpty(t, reason)
}

// stubKlines returns a fixed uptrend zigzag, or an error.
type stubKlines struct {
	err error
}

func (s stubKlines) Klines(_ context.Context, _, _ string, _ int) ([]trend.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	// Rising triangle wave, period 20, amplitude 50: peaks at bars 10/30/50
	// and troughs at 20/40 survive the default swing lookback, labeling
	// H L HH HL HH. That is an uptrend on leg 2, good for buys.
	path := make([]float64, 60)
	for i := range path {
		j := i % 20
		if j > 10 {
			j = 20 - j
		}
		path[i] = float64(i) + float64(j*5)
	}
	candles := make([]trend.Candle, len(path))
	for i, p := range path {
		candles[len(path)-1-i] = trend.Candle{Timestamp: int64(i) * 60_000, High: p, Low: p, Close: p}
	}
	return candles, nil
}

func TestBatch_SortsByScoreDescending(t *testing.T) {
	strong := buySig("AAAUSDT", 100, 110, 95)  // R:R 2
	weak := buySig("BBBUSDT", 100, 101, 95)    // R:R 0.2
	sell := signal.Signal{Symbol: "CCCUSDT", Side: signal.Sell, Trigger: 100, TPs: []float64{95}, SL: 110, Timeframe: "H1"}

	scored := Batch(context.Background(), []signal.Signal{weak, strong, sell}, stubKlines{}, Options{}, nil)
	require.Len(t, scored, 3)

	// Leg 2 uptrend: 100 base + 40 leg bonus + R:R bonus.
	assert.Equal(t, "AAAUSDT", scored[0].Signal.Symbol)
	assert.Equal(t, 160.0, scored[0].Score)
	assert.Equal(t, "BBBUSDT", scored[1].Signal.Symbol)
	// The sell fights the uptrend and is skipped.
	assert.Equal(t, "CCCUSDT", scored[2].Signal.Symbol)
	assert.NotEmpty(t, scored[2].SkipReason)
}

func TestBatch_KlineErrorDegrades(t *testing.T) {
	scored := Batch(context.Background(), []signal.Signal{buySig("AAAUSDT", 100, 110, 95)},
		stubKlines{err: errors.New("boom")}, Options{}, nil)
	require.Len(t, scored, 1)
	assert.Zero(t, scored[0].Score)
	assert.NotEmpty(t, scored[0].SkipReason)
}

func TestSelectBest(t *testing.T) {
	scored := []Scored{
		{Signal: signal.Signal{Symbol: "A"}, Score: 150},
		{Signal: signal.Signal{Symbol: "B"}, Score: 120},
		{Signal: signal.Signal{Symbol: "C"}, SkipReason: "late"},
		{Signal: signal.Signal{Symbol: "D"}, Score: 0},
	}
	best := SelectBest(scored, 1)
	require.Len(t, best, 1)
	assert.Equal(t, "A", best[0].Symbol)

	best = SelectBest(scored, 5)
	assert.Len(t, best, 2)

	assert.Empty(t, SelectBest([]Scored{{SkipReason: "x"}}, 1))
}
