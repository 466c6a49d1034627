// Package signal parses trading signals from provider messages. Three wire
// formats are supported: the embed format (LONG/SHORT SIGNAL headers), the
// plain-text format (BUY/SELL line with a TP ladder), and the crypto format
// (emoji header with a timeframe line). Parsed signals are deduplicated by a
// content hash plus a fuzzy near-duplicate check for reposts with cosmetic
// formatting changes.
package signal

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Format selects the parser for a provider's message format.
type Format string

const (
	FormatEmbed  Format = "embed"
	FormatPlain  Format = "plain"
	FormatCrypto Format = "crypto"
)

// Side is the trade direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Signal is one parsed trading signal. Prices are zero when the signal does
// not carry them (prices of real instruments are never zero).
type Signal struct {
	Base      string  // base asset, e.g. "ATOM"
	Symbol    string  // exchange symbol, e.g. "ATOMUSDT"
	Side      Side    // buy / sell
	Trigger   float64 // entry price
	TPs       []float64
	DCAs      []float64
	SL        float64 // 0 = no stop loss in signal
	Leverage  int     // 0 = not present in signal
	Timeframe string  // "H1", "M15", ... (crypto format only)
	Trader    string  // optional caller name (embed format only)
	Raw       string
}

// Update carries SL/TP/DCA revisions parsed from an edited message.
type Update struct {
	SL   float64 // 0 = not present
	TPs  []float64
	DCAs []float64
}

// Parse dispatches to the parser for format. ok is false when the text is not
// a fresh signal in that format (wrong header, closed trade, missing fields).
func Parse(format Format, text, quote string) (Signal, bool) {
	switch format {
	case FormatEmbed:
		return parseEmbed(text)
	case FormatPlain:
		return parsePlain(text)
	case FormatCrypto:
		return parseCrypto(text, quote, nil)
	}
	return Signal{}, false
}

// ParseAll extracts every signal from a message. Only the crypto format packs
// multiple signals into one message; the other formats yield at most one.
func ParseAll(format Format, text, quote string, timeframes []string) []Signal {
	if format == FormatCrypto {
		return parseCryptoAll(text, quote, timeframes)
	}
	if sig, ok := Parse(format, text, quote); ok {
		return []Signal{sig}
	}
	return nil
}

// ParseUpdate extracts SL/TP/DCA revisions without requiring a fresh-signal
// header. Used when re-reading messages of tracked trades.
func ParseUpdate(format Format, text string) Update {
	switch format {
	case FormatEmbed:
		return parseEmbedUpdate(text)
	case FormatPlain:
		return parsePlainUpdate(text)
	case FormatCrypto:
		return parseCryptoUpdate(text)
	}
	return Update{}
}

// Hash returns a stable digest for deduplication. Two signals with the same
// symbol, side, trigger and price ladders hash equal regardless of message
// formatting.
func Hash(sig Signal) string {
	core := fmt.Sprintf("%s|%s|%v|%v|%v", sig.Symbol, sig.Side, sig.Trigger, sig.TPs, sig.DCAs)
	sum := md5.Sum([]byte(core))
	return hex.EncodeToString(sum[:])
}

// Summary renders a normalized one-line form used for fuzzy matching.
func Summary(sig Signal) string {
	tp1 := 0.0
	if len(sig.TPs) > 0 {
		tp1 = sig.TPs[0]
	}
	return fmt.Sprintf("%s %s %.6g tp %.6g sl %.6g",
		strings.ToUpper(sig.Symbol), sig.Side, sig.Trigger, tp1, sig.SL)
}

// NearDuplicate reports whether two signals are close enough to be the same
// signal reposted with cosmetic differences. Exact hash equality is checked
// first by callers; this catches small price-formatting drift.
func NearDuplicate(a, b Signal) bool {
	if a.Symbol != b.Symbol || a.Side != b.Side {
		return false
	}
	return levenshtein.ComputeDistance(Summary(a), Summary(b)) <= 3
}

// NearDuplicateSummary compares a previously stored summary line against a
// new signal, for dedup across restarts where only summaries persist.
func NearDuplicateSummary(stored string, sig Signal) bool {
	prefix := fmt.Sprintf("%s %s ", strings.ToUpper(sig.Symbol), sig.Side)
	if !strings.HasPrefix(stored, prefix) {
		return false
	}
	return levenshtein.ComputeDistance(stored, Summary(sig)) <= 3
}
