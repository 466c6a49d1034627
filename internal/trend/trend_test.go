package trend

import (
	"strings"
	"testing"

	"botdeck/internal/signal"
)

// candlesFromPath builds a newest-first candle slice (exchange kline order)
// from an oldest-first price path. Each bar is a point: high=low=close.
func candlesFromPath(path []float64) []Candle {
	out := make([]Candle, len(path))
	for i, p := range path {
		out[len(path)-1-i] = Candle{
			Timestamp: int64(i) * 60_000,
			Open:      p, High: p, Low: p, Close: p,
		}
	}
	return out
}

// upPath zigzags with higher highs and higher lows; the final bar puts the
// series in a pullback.
var upPath = []float64{10, 20, 15, 30, 25, 40, 35, 50, 45, 48}

var downPath = []float64{50, 40, 45, 30, 35, 20, 25, 10, 15, 12}

func TestDetectSwings_Zigzag(t *testing.T) {
	swings := DetectSwings(candlesFromPath(upPath), 1)
	if len(swings) != 8 {
		t.Fatalf("expected 8 swing points, got %d", len(swings))
	}
	// Oldest-first ordering, alternating high/low starting with the 20 peak.
	if !swings[0].IsHigh || swings[0].Price != 20 {
		t.Errorf("first swing: expected high at 20, got %+v", swings[0])
	}
	if swings[1].IsHigh || swings[1].Price != 15 {
		t.Errorf("second swing: expected low at 15, got %+v", swings[1])
	}
	for i := 1; i < len(swings); i++ {
		if swings[i].Index <= swings[i-1].Index {
			t.Fatal("swings must be ordered oldest to newest")
		}
	}
}

func TestDetectSwings_TooFewCandles(t *testing.T) {
	if got := DetectSwings(candlesFromPath([]float64{1, 2}), 5); got != nil {
		t.Errorf("expected no swings, got %v", got)
	}
}

func TestClassify_Uptrend(t *testing.T) {
	dir, labels := Classify(DetectSwings(candlesFromPath(upPath), 1))
	if dir != Up {
		t.Fatalf("expected uptrend, got %s (labels %v)", dir, labels)
	}
	joined := strings.Join(labels, " ")
	if !strings.Contains(joined, "HH") || !strings.Contains(joined, "HL") {
		t.Errorf("expected HH and HL labels, got %v", labels)
	}
}

func TestClassify_Downtrend(t *testing.T) {
	dir, _ := Classify(DetectSwings(candlesFromPath(downPath), 1))
	if dir != Down {
		t.Fatalf("expected downtrend, got %s", dir)
	}
}

func TestClassify_TooFewSwings(t *testing.T) {
	dir, labels := Classify(nil)
	if dir != Neutral || labels != nil {
		t.Errorf("expected neutral with no labels, got %s %v", dir, labels)
	}
}

func TestCountLegs(t *testing.T) {
	labels := []string{"H", "L", "HH", "HL", "HH", "HL"}
	leg, pullback := CountLegs(labels, Up)
	if leg != 2 || !pullback {
		t.Errorf("expected leg 2 in pullback, got leg=%d pullback=%v", leg, pullback)
	}

	leg, pullback = CountLegs([]string{"L", "H", "LL", "LH", "LL"}, Down)
	if leg != 2 || pullback {
		t.Errorf("expected leg 2 impulse, got leg=%d pullback=%v", leg, pullback)
	}

	if leg, _ := CountLegs(labels, Neutral); leg != 0 {
		t.Errorf("neutral trend should have no legs, got %d", leg)
	}
}

func TestAnalyze_BuyInUptrendPullback(t *testing.T) {
	a := Analyze(candlesFromPath(upPath), signal.Buy, 3, 1)
	if a.Recommendation != Valid {
		t.Fatalf("expected VALID, got %s (%s)", a.Recommendation, a.Reason)
	}
	if a.Direction != Up || !a.InPullback || a.CurrentLeg != 3 {
		t.Errorf("unexpected analysis: %+v", a)
	}
}

func TestAnalyze_BuyAgainstDowntrend(t *testing.T) {
	a := Analyze(candlesFromPath(downPath), signal.Buy, 3, 1)
	if a.Recommendation != Skip {
		t.Fatalf("expected SKIP, got %s", a.Recommendation)
	}
	if !strings.Contains(a.Reason, "need uptrend") {
		t.Errorf("unexpected reason: %s", a.Reason)
	}
}

func TestAnalyze_SellInDowntrend(t *testing.T) {
	a := Analyze(candlesFromPath(downPath), signal.Sell, 3, 1)
	if a.Recommendation != Valid {
		t.Fatalf("expected VALID, got %s (%s)", a.Recommendation, a.Reason)
	}
}

func TestAnalyze_LateLegSkipped(t *testing.T) {
	a := Analyze(candlesFromPath(upPath), signal.Buy, 2, 1)
	if a.Recommendation != Skip {
		t.Fatalf("expected SKIP for leg past cap, got %s (%s)", a.Recommendation, a.Reason)
	}
}

func TestAnalyze_NotEnoughData(t *testing.T) {
	a := Analyze(candlesFromPath([]float64{1, 2, 3}), signal.Buy, 3, 1)
	if a.Recommendation != Skip {
		t.Fatalf("expected SKIP with too little data, got %s", a.Recommendation)
	}
	if !strings.Contains(a.Reason, "swing points") {
		t.Errorf("unexpected reason: %s", a.Reason)
	}
}

func TestInterval(t *testing.T) {
	cases := map[string]string{
		"H1": "60", "M15": "15", "H4": "240", "D1": "D", "m30": "30",
		"": "60", "X9": "60",
	}
	for tf, want := range cases {
		if got := Interval(tf); got != want {
			t.Errorf("Interval(%q) = %q, want %q", tf, got, want)
		}
	}
}
