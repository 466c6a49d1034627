package signal

import (
	"regexp"
	"strconv"
	"strings"
)

// Embed format, as posted by the leverage-ladder provider:
//
//	🔴 **SHORT SIGNAL - ICNT/USDT**
//	**Leverage:** 25x • **Trader:** haseeb1111
//	📊 Entry: `0.52100` ⏳ *Pending*
//	🎯 **TP1:** `0.51475` **→ NEXT**
//	⏳ **TP2:** `0.50850` *Pending*
//	🛡️ **Stop Loss:** `0.53000`
//
// Bold markers, backticks and dollar signs are all optional.

const num = `([0-9]+(?:\.[0-9]+)?)`

var (
	reEmbedSymbolSide = regexp.MustCompile(`(?i)\*{0,2}(LONG|SHORT)\s+SIGNAL\s*[-–—]\s*([A-Z0-9]+)/([A-Z]+)\*{0,2}`)
	reEmbedEntry      = regexp.MustCompile(`(?i)Entry\s*:\s*` + "`?" + `\$?` + num + "`?")
	reEmbedTP         = regexp.MustCompile(`(?i)\*{0,2}TP(\d+)\s*:\s*\*{0,2}\s*` + "`?" + `\$?` + num + "`?")
	reEmbedDCA        = regexp.MustCompile(`(?i)\*{0,2}DCA\s*#?\s*(\d+)\s*:\s*\*{0,2}\s*` + "`?" + `\$?` + num + "`?")
	reEmbedSL         = regexp.MustCompile(`(?i)\*{0,2}Stop\s*Loss\s*:\s*\*{0,2}\s*` + "`?" + `\$?` + num + "`?")
	reEmbedLeverage   = regexp.MustCompile(`(?i)\*{0,2}Leverage\s*:\s*\*{0,2}\s*(\d+)x`)
	reEmbedTrader     = regexp.MustCompile(`(?i)\*{0,2}(?:Trader|Caller)\s*:\s*\*{0,2}\s*(\w+)`)
	reClosed          = regexp.MustCompile(`(?i)TRADE\s+CLOSED|CLOSED\s+AT\s+BREAKEVEN|TRADE\s+CANCELLED|Trade closed without entry`)
)

// parseEmbed parses the embed format. Only fresh "NEW SIGNAL" posts are
// accepted; closed or cancelled summaries are rejected.
func parseEmbed(text string) (Signal, bool) {
	if !strings.Contains(strings.ToUpper(text), "NEW SIGNAL") {
		return Signal{}, false
	}
	if reClosed.MatchString(text) {
		return Signal{}, false
	}

	ms := reEmbedSymbolSide.FindStringSubmatch(text)
	if ms == nil {
		return Signal{}, false
	}
	side := Buy
	if strings.EqualFold(ms[1], "SHORT") {
		side = Sell
	}
	base := strings.ToUpper(ms[2])
	quote := strings.ToUpper(ms[3])

	me := reEmbedEntry.FindStringSubmatch(text)
	if me == nil {
		return Signal{}, false
	}
	trigger, _ := strconv.ParseFloat(me[1], 64)

	sig := Signal{
		Base:    base,
		Symbol:  base + quote,
		Side:    side,
		Trigger: trigger,
		TPs:     indexedPrices(reEmbedTP, text),
		DCAs:    indexedPrices(reEmbedDCA, text),
		Raw:     text,
	}
	if msl := reEmbedSL.FindStringSubmatch(text); msl != nil {
		sig.SL, _ = strconv.ParseFloat(msl[1], 64)
	}
	if mlev := reEmbedLeverage.FindStringSubmatch(text); mlev != nil {
		sig.Leverage, _ = strconv.Atoi(mlev[1])
	}
	if mtr := reEmbedTrader.FindStringSubmatch(text); mtr != nil {
		sig.Trader = mtr[1]
	}
	return sig, true
}

// parseEmbedUpdate extracts SL/DCA revisions from an edited embed message.
func parseEmbedUpdate(text string) Update {
	var u Update
	if msl := reEmbedSL.FindStringSubmatch(text); msl != nil {
		u.SL, _ = strconv.ParseFloat(msl[1], 64)
	}
	u.DCAs = indexedPrices(reEmbedDCA, text)
	u.TPs = indexedPrices(reEmbedTP, text)
	return u
}

// indexedPrices collects "<label><n>: <price>" matches into a slice ordered
// by the label index, dropping gaps.
func indexedPrices(re *regexp.Regexp, text string) []float64 {
	var prices []float64
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 {
			continue
		}
		price, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		for len(prices) < idx {
			prices = append(prices, 0)
		}
		prices[idx-1] = price
	}
	out := prices[:0]
	for _, p := range prices {
		if p > 0 {
			out = append(out, p)
		}
	}
	return out
}
