// Package trend classifies recent price action into trend legs so the scorer
// can reject late entries. Swing highs/lows are detected with a symmetric
// lookback window, labeled HH/HL/LH/LL, and the impulse legs counted: entries
// on legs 1-3 (ideally during a pullback) are acceptable, later legs carry
// reversal risk.
package trend

import (
	"fmt"
	"sort"
	"strings"

	"botdeck/internal/signal"
)

// Candle is one OHLC bar. Timestamp is the bar open in unix milliseconds.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Direction of the prevailing trend.
type Direction string

const (
	Up      Direction = "uptrend"
	Down    Direction = "downtrend"
	Neutral Direction = "neutral"
)

// Recommendation for taking a signal against the analyzed trend.
type Recommendation string

const (
	Valid Recommendation = "VALID"
	Late  Recommendation = "LATE"
	Skip  Recommendation = "SKIP"
)

// SwingPoint is a confirmed swing high or low.
type SwingPoint struct {
	Index     int   // index into the oldest-first candle slice
	Price     float64
	Timestamp int64
	IsHigh    bool
}

// Analysis is the result of classifying a candle series against a signal side.
type Analysis struct {
	Direction      Direction
	CurrentLeg     int
	InPullback     bool
	Labels         []string // swing sequence: HH, HL, LH, LL (H/L for firsts)
	Recommendation Recommendation
	Reason         string
}

// DetectSwings finds swing highs and lows. Candles arrive newest-first (the
// exchange kline order); points are returned oldest-first. A swing is
// confirmed when its high/low strictly exceeds every candle within lookback
// bars on both sides.
func DetectSwings(candles []Candle, lookback int) []SwingPoint {
	ordered := make([]Candle, len(candles))
	for i, c := range candles {
		ordered[len(candles)-1-i] = c
	}

	var swings []SwingPoint
	for i := lookback; i < len(ordered)-lookback; i++ {
		c := ordered[i]
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if ordered[j].High >= c.High {
				isHigh = false
			}
			if ordered[j].Low <= c.Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			swings = append(swings, SwingPoint{Index: i, Price: c.High, Timestamp: c.Timestamp, IsHigh: true})
		}
		if isLow {
			swings = append(swings, SwingPoint{Index: i, Price: c.Low, Timestamp: c.Timestamp, IsHigh: false})
		}
	}
	sort.Slice(swings, func(a, b int) bool { return swings[a].Index < swings[b].Index })
	return swings
}

// Classify labels the swing sequence and derives the trend direction from the
// most recent eight labels: mostly HH+HL with at least one of each is an
// uptrend, mostly LH+LL a downtrend.
func Classify(swings []SwingPoint) (Direction, []string) {
	if len(swings) < 4 {
		return Neutral, nil
	}

	labels := make([]string, 0, len(swings))
	var lastHigh, lastLow float64
	var haveHigh, haveLow bool

	for _, sw := range swings {
		if sw.IsHigh {
			switch {
			case !haveHigh:
				labels = append(labels, "H")
			case sw.Price > lastHigh:
				labels = append(labels, "HH")
			default:
				labels = append(labels, "LH")
			}
			lastHigh, haveHigh = sw.Price, true
		} else {
			switch {
			case !haveLow:
				labels = append(labels, "L")
			case sw.Price > lastLow:
				labels = append(labels, "HL")
			default:
				labels = append(labels, "LL")
			}
			lastLow, haveLow = sw.Price, true
		}
	}

	recent := labels
	if len(recent) > 8 {
		recent = recent[len(recent)-8:]
	}
	counts := map[string]int{}
	for _, l := range recent {
		counts[l]++
	}

	upVotes := counts["HH"] + counts["HL"]
	downVotes := counts["LH"] + counts["LL"]
	if upVotes > downVotes && counts["HH"] >= 1 && counts["HL"] >= 1 {
		return Up, labels
	}
	if downVotes > upVotes && counts["LH"] >= 1 && counts["LL"] >= 1 {
		return Down, labels
	}
	return Neutral, labels
}

// CountLegs counts impulse legs in the trend direction. In an uptrend every
// HH extends a leg and an HL marks a pullback; mirrored for downtrends.
func CountLegs(labels []string, dir Direction) (leg int, inPullback bool) {
	if dir == Neutral {
		return 0, false
	}
	impulse, pullback := "HH", "HL"
	if dir == Down {
		impulse, pullback = "LL", "LH"
	}
	for _, l := range labels {
		switch l {
		case impulse:
			leg++
			inPullback = false
		case pullback:
			inPullback = true
		}
	}
	return leg, inPullback
}

// Analyze runs the full pipeline and validates the trend against the signal
// side: buys need an uptrend, sells a downtrend, and entries past maxLeg are
// skipped as late.
func Analyze(candles []Candle, side signal.Side, maxLeg, lookback int) Analysis {
	if maxLeg <= 0 {
		maxLeg = 3
	}
	if lookback <= 0 {
		lookback = 5
	}

	swings := DetectSwings(candles, lookback)
	if len(swings) < 4 {
		return Analysis{
			Direction:      Neutral,
			Recommendation: Skip,
			Reason:         fmt.Sprintf("not enough swing points (%d) to determine trend", len(swings)),
		}
	}

	dir, labels := Classify(swings)
	leg, inPullback := CountLegs(labels, dir)

	a := Analysis{
		Direction:  dir,
		CurrentLeg: leg,
		InPullback: inPullback,
		Labels:     labels,
	}

	if side == signal.Buy && dir != Up {
		a.Recommendation = Skip
		a.Reason = fmt.Sprintf("buy signal but trend is %s (need uptrend)", dir)
		return a
	}
	if side == signal.Sell && dir != Down {
		a.Recommendation = Skip
		a.Reason = fmt.Sprintf("sell signal but trend is %s (need downtrend)", dir)
		return a
	}

	if leg > maxLeg {
		a.Recommendation = Skip
		a.Reason = fmt.Sprintf("late trend entry: leg %d > max allowed %d", leg, maxLeg)
		return a
	}

	switch {
	case inPullback:
		a.Recommendation = Valid
		a.Reason = fmt.Sprintf("good entry: %s leg %d pullback", dir, leg)
	case leg <= 2:
		a.Recommendation = Valid
		a.Reason = fmt.Sprintf("acceptable entry: %s leg %d", dir, leg)
	default:
		a.Recommendation = Late
		a.Reason = fmt.Sprintf("caution: %s leg %d, not in pullback", dir, leg)
	}
	return a
}

// Interval maps a signal timeframe to the exchange kline interval.
func Interval(timeframe string) string {
	mapping := map[string]string{
		"M1": "1", "M3": "3", "M5": "5", "M15": "15", "M30": "30",
		"H1": "60", "H2": "120", "H4": "240", "H6": "360", "H12": "720",
		"D1": "D", "D": "D", "W1": "W", "W": "W",
	}
	if v, ok := mapping[strings.ToUpper(timeframe)]; ok {
		return v
	}
	return "60"
}
