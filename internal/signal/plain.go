package signal

import (
	"regexp"
	"strconv"
	"strings"
)

// Plain-text format, no embeds:
//
//	📊 NEW SIGNAL • SAPIEN • Entry $0.13236
//
//	BUY SAPIENUSDT Entry: 0.13236 CMP 25x LEVERAGE
//
//	**SL:** `0.12500` ⏳ *Active*
//	🎯 **TP1:** `0.13501` **→ NEXT**
//	⏳ **TP2:** `0.13765` *Pending*
//
// The TP ladder is dynamic (3 to 5 levels).

var (
	rePlainSideSymbol = regexp.MustCompile(`(?i)(BUY|SELL)\s+([A-Z0-9]+)(USDT|USDC|BUSD)\s+Entry\s*:\s*` + num)
	rePlainTP         = regexp.MustCompile(`(?i)\*{0,2}TP(\d+)\s*:\s*\*{0,2}\s*` + "`?" + `\$?` + num + "`?")
	rePlainDCA        = regexp.MustCompile(`(?i)\*{0,2}DCA\s*#?\s*(\d+)\s*:\s*\*{0,2}\s*` + "`?" + `\$?` + num + "`?")
	rePlainSL         = regexp.MustCompile(`(?i)\*{0,2}SL\s*:\s*\*{0,2}\s*` + "`?" + `\$?` + num + "`?")
	rePlainLeverage   = regexp.MustCompile(`(?i)(\d+)x\s+LEVERAGE`)
)

// parsePlain parses the plain-text format. Only fresh "NEW SIGNAL" posts are
// accepted; closed, cancelled and never-entered summaries are rejected.
func parsePlain(text string) (Signal, bool) {
	if !strings.Contains(strings.ToUpper(text), "NEW SIGNAL") {
		return Signal{}, false
	}
	if reClosed.MatchString(text) {
		return Signal{}, false
	}

	ms := rePlainSideSymbol.FindStringSubmatch(text)
	if ms == nil {
		// The header line alone carries no side; without the BUY/SELL line
		// the signal cannot be traded.
		return Signal{}, false
	}
	side := Buy
	if strings.EqualFold(ms[1], "SELL") {
		side = Sell
	}
	base := strings.ToUpper(ms[2])
	quote := strings.ToUpper(ms[3])
	trigger, _ := strconv.ParseFloat(ms[4], 64)

	sig := Signal{
		Base:    base,
		Symbol:  base + quote,
		Side:    side,
		Trigger: trigger,
		TPs:     indexedPrices(rePlainTP, text),
		DCAs:    indexedPrices(rePlainDCA, text),
		Raw:     text,
	}
	if msl := rePlainSL.FindStringSubmatch(text); msl != nil {
		sig.SL, _ = strconv.ParseFloat(msl[1], 64)
	}
	if mlev := rePlainLeverage.FindStringSubmatch(text); mlev != nil {
		sig.Leverage, _ = strconv.Atoi(mlev[1])
	}
	return sig, true
}

// parsePlainUpdate extracts SL/TP/DCA revisions from an edited message.
func parsePlainUpdate(text string) Update {
	var u Update
	if msl := rePlainSL.FindStringSubmatch(text); msl != nil {
		u.SL, _ = strconv.ParseFloat(msl[1], 64)
	}
	u.DCAs = indexedPrices(rePlainDCA, text)
	u.TPs = indexedPrices(rePlainTP, text)
	return u
}
