package signal

import (
	"regexp"
	"strconv"
	"strings"
)

// Crypto signals format, emoji header plus a timeframe line:
//
//	🎯 Trading Signals 🎯
//	BUY 📈 on ATOM/USD at Price: 2.576
//	✅ TP 1: 2.657
//	✅ TP 2: 2.676
//	❌ SL : 2.477
//	Timeframe: H1
//
// One message may contain several of these blocks.

var (
	reCryptoHeader     = regexp.MustCompile(`(?i)🎯\s*Trading\s+Signals\s*🎯`)
	reCryptoSideSymbol = regexp.MustCompile(`(?i)(BUY|SELL)\s*[📈📉]?\s*on\s+([A-Z0-9]+)/([A-Z]+)\s+at\s+Price\s*:\s*` + num)
	reCryptoTP         = regexp.MustCompile(`(?i)(?:✅\s*)?TP\s*(\d+)\s*:\s*` + num)
	reCryptoSL         = regexp.MustCompile(`(?i)(?:❌\s*)?SL\s*:\s*` + num)
	reCryptoTimeframe  = regexp.MustCompile(`(?i)Timeframe\s*:\s*([A-Z0-9]+)`)
)

// defaultTimeframes are accepted when the caller passes none.
var defaultTimeframes = []string{"H1", "M15", "H4"}

// allowedQuotes filters out BTC/ETH-quoted pairs the exchange side cannot trade.
var allowedQuotes = map[string]bool{"USD": true, "USDT": true}

// symbolMap remaps bases that trade under a different name on the exchange.
var symbolMap = map[string]string{
	"LUNA": "LUNA2",
}

// parseCrypto parses a single crypto-format block. quote is the exchange
// quote currency used to build the symbol (the pair in the message is always
// USD or USDT regardless of the tradable contract).
func parseCrypto(text, quote string, timeframes []string) (Signal, bool) {
	if quote == "" {
		quote = "USDT"
	}
	if len(timeframes) == 0 {
		timeframes = defaultTimeframes
	}
	if !reCryptoHeader.MatchString(text) {
		return Signal{}, false
	}

	mtf := reCryptoTimeframe.FindStringSubmatch(text)
	if mtf == nil {
		return Signal{}, false
	}
	timeframe := strings.ToUpper(mtf[1])
	if !containsFold(timeframes, timeframe) {
		return Signal{}, false
	}

	ms := reCryptoSideSymbol.FindStringSubmatch(text)
	if ms == nil {
		return Signal{}, false
	}
	side := Buy
	if strings.EqualFold(ms[1], "SELL") {
		side = Sell
	}
	base := strings.ToUpper(ms[2])
	if !allowedQuotes[strings.ToUpper(ms[3])] {
		return Signal{}, false
	}
	trigger, _ := strconv.ParseFloat(ms[4], 64)

	if mapped, ok := symbolMap[base]; ok {
		base = mapped
	}

	sig := Signal{
		Base:      base,
		Symbol:    base + strings.ToUpper(quote),
		Side:      side,
		Trigger:   trigger,
		TPs:       indexedPrices(reCryptoTP, text),
		Timeframe: timeframe,
		Raw:       text,
	}
	if msl := reCryptoSL.FindStringSubmatch(text); msl != nil {
		sig.SL, _ = strconv.ParseFloat(msl[1], 64)
	}
	return sig, true
}

// parseCryptoAll splits a message on signal headers and parses each block.
func parseCryptoAll(text, quote string, timeframes []string) []Signal {
	locs := reCryptoHeader.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	var sigs []Signal
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if sig, ok := parseCrypto(text[loc[0]:end], quote, timeframes); ok {
			sigs = append(sigs, sig)
		}
	}
	return sigs
}

// parseCryptoUpdate extracts SL/TP revisions; this format carries no DCAs.
func parseCryptoUpdate(text string) Update {
	var u Update
	if msl := reCryptoSL.FindStringSubmatch(text); msl != nil {
		u.SL, _ = strconv.ParseFloat(msl[1], 64)
	}
	u.TPs = indexedPrices(reCryptoTP, text)
	return u
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
