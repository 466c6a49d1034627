package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const freshPlainBuy = `<@&1428362286581551125> 📊 NEW SIGNAL • BTC • Entry $95000.50

BUY BTCUSDT Entry: 95000.50 CMP 25x LEVERAGE

**SL:** ` + "`93500.00`" + ` ⏳ *Active*

**TPs:**
🎯 **TP1:** ` + "`96000.00`" + ` **→ NEXT**
⏳ **TP2:** ` + "`97500.00`" + ` *Pending*
⏳ **TP3:** ` + "`99000.00`" + ` *Pending*`

const freshPlainSell = `📊 NEW SIGNAL • ETH • Entry $3450.25

SELL ETHUSDT Entry: 3450.25 CMP 25x LEVERAGE

**SL:** ` + "`3550.00`" + ` ⏳ *Active*

**TPs:**
🎯 **TP1:** ` + "`3400.00`" + ` **→ NEXT**
⏳ **TP2:** ` + "`3350.00`" + ` *Pending*
⏳ **TP3:** ` + "`3300.00`" + ` *Pending*
⏳ **TP4:** ` + "`3200.00`" + ` *Pending*
⏳ **TP5:** ` + "`3000.00`" + ` *Pending*`

const closedPlain = `📊 NEW SIGNAL • SAPIEN • Entry $0.13236

BUY SAPIENUSDT Entry: 0.13236 CMP 25x LEVERAGE

✅ **Final P&L:** ` + "`+479.56%`" + `

**TPs:**
✅ **TP1:** ` + "`0.13501`" + ` *HIT* (+50.00%)

` + "`✅ TRADE CLOSED - 4/5 TPs hit, Final profit: +243.65%`"

const cancelledPlain = `📊 NEW SIGNAL • LIGHT • Entry $0.92650

BUY LIGHTUSDT Entry: 0.92650 CMP 25x LEVERAGE

🚫 **Trade closed without entry**

` + "`❌ TRADE CANCELLED - Entry not triggered`"

func TestParsePlain_FreshBuy(t *testing.T) {
	sig, ok := Parse(FormatPlain, freshPlainBuy, "USDT")
	require.True(t, ok, "fresh signal should parse")

	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, Buy, sig.Side)
	assert.Equal(t, 95000.50, sig.Trigger)
	assert.Equal(t, 93500.00, sig.SL)
	assert.Equal(t, []float64{96000, 97500, 99000}, sig.TPs)
	assert.Empty(t, sig.DCAs)
	assert.Equal(t, 25, sig.Leverage)
}

func TestParsePlain_FreshSellFiveTPs(t *testing.T) {
	sig, ok := Parse(FormatPlain, freshPlainSell, "USDT")
	require.True(t, ok)

	assert.Equal(t, "ETHUSDT", sig.Symbol)
	assert.Equal(t, Sell, sig.Side)
	assert.Len(t, sig.TPs, 5)
	assert.Equal(t, 3400.00, sig.TPs[0])
	assert.Equal(t, 3000.00, sig.TPs[4])
}

func TestParsePlain_RejectsClosedAndCancelled(t *testing.T) {
	for name, text := range map[string]string{
		"closed":    closedPlain,
		"cancelled": cancelledPlain,
	} {
		if _, ok := Parse(FormatPlain, text, "USDT"); ok {
			t.Errorf("%s trade should be rejected", name)
		}
	}
}

func TestParsePlain_RejectsNonSignal(t *testing.T) {
	if _, ok := Parse(FormatPlain, "gm everyone, market looks choppy", "USDT"); ok {
		t.Error("chatter should not parse")
	}
}

const freshEmbed = `📊 NEW SIGNAL
🔴 **SHORT SIGNAL - ICNT/USDT**
**Leverage:** 25x • **Trader:** haseeb1111
📊 Entry: ` + "`0.52100`" + ` ⏳ *Pending*
🎯 **TP1:** ` + "`0.51475`" + ` **→ NEXT**
⏳ **TP2:** ` + "`0.50850`" + ` *Pending*
⏳ **TP3:** ` + "`0.50016`" + ` *Pending*
⏳ **DCA1:** ` + "`0.53500`" + ` *Pending*
🛡️ **Stop Loss:** ` + "`0.53000`"

func TestParseEmbed_Short(t *testing.T) {
	sig, ok := Parse(FormatEmbed, freshEmbed, "USDT")
	require.True(t, ok)

	assert.Equal(t, "ICNTUSDT", sig.Symbol)
	assert.Equal(t, Sell, sig.Side)
	assert.Equal(t, 0.521, sig.Trigger)
	assert.Equal(t, []float64{0.51475, 0.5085, 0.50016}, sig.TPs)
	assert.Equal(t, []float64{0.535}, sig.DCAs)
	assert.Equal(t, 0.53, sig.SL)
	assert.Equal(t, 25, sig.Leverage)
	assert.Equal(t, "haseeb1111", sig.Trader)
}

const freshCrypto = `@Crypto Signal H1
🎯 Trading Signals 🎯
BUY 📈 on ATOM/USD at Price: 2.576
✅ TP 1: 2.657
✅ TP 2: 2.676
❌ SL : 2.477
Timeframe: H1`

func TestParseCrypto_Buy(t *testing.T) {
	sig, ok := Parse(FormatCrypto, freshCrypto, "USDT")
	require.True(t, ok)

	assert.Equal(t, "ATOM", sig.Base)
	assert.Equal(t, "ATOMUSDT", sig.Symbol)
	assert.Equal(t, Buy, sig.Side)
	assert.Equal(t, 2.576, sig.Trigger)
	assert.Equal(t, []float64{2.657, 2.676}, sig.TPs)
	assert.Equal(t, 2.477, sig.SL)
	assert.Equal(t, "H1", sig.Timeframe)
}

func TestParseCrypto_RejectsDisallowedTimeframe(t *testing.T) {
	text := `🎯 Trading Signals 🎯
SELL 📉 on AVAX/USD at Price: 13.92
✅ TP 1: 13.79
❌ SL : 14.07
Timeframe: M5`
	if _, ok := Parse(FormatCrypto, text, "USDT"); ok {
		t.Error("M5 timeframe should be rejected")
	}
}

func TestParseCrypto_RejectsNonUSDQuote(t *testing.T) {
	text := `🎯 Trading Signals 🎯
BUY 📈 on AVAX/BTC at Price: 0.00042
✅ TP 1: 0.00044
Timeframe: H1`
	if _, ok := Parse(FormatCrypto, text, "USDT"); ok {
		t.Error("BTC-quoted pair should be rejected")
	}
}

func TestParseCrypto_SymbolRemap(t *testing.T) {
	text := `🎯 Trading Signals 🎯
BUY 📈 on LUNA/USD at Price: 0.55
✅ TP 1: 0.60
Timeframe: H4`
	sig, ok := Parse(FormatCrypto, text, "USDT")
	require.True(t, ok)
	assert.Equal(t, "LUNA2USDT", sig.Symbol)
}

func TestParseAll_CryptoMultiSignal(t *testing.T) {
	text := freshCrypto + "\n\n" + `🎯 Trading Signals 🎯
SELL 📉 on AVAX/USD at Price: 13.92
✅ TP 1: 13.79
❌ SL : 14.07
Timeframe: M15`

	sigs := ParseAll(FormatCrypto, text, "USDT", nil)
	require.Len(t, sigs, 2)
	assert.Equal(t, "ATOMUSDT", sigs[0].Symbol)
	assert.Equal(t, "AVAXUSDT", sigs[1].Symbol)
	assert.Equal(t, Sell, sigs[1].Side)
}

func TestParseAll_PlainSingle(t *testing.T) {
	sigs := ParseAll(FormatPlain, freshPlainBuy, "USDT", nil)
	require.Len(t, sigs, 1)
	assert.Equal(t, "BTCUSDT", sigs[0].Symbol)

	assert.Empty(t, ParseAll(FormatPlain, closedPlain, "USDT", nil))
}

func TestParseUpdate_Plain(t *testing.T) {
	text := "**SL:** `0.15000` ⏳ *Active*\n\n**TPs:**\n🎯 **TP1:** `0.16000` **→ NEXT**\n⏳ **TP2:** `0.17000` *Pending*\n⏳ **TP3:** `0.18000` *Pending*"

	u := ParseUpdate(FormatPlain, text)
	assert.Equal(t, 0.15, u.SL)
	assert.Equal(t, []float64{0.16, 0.17, 0.18}, u.TPs)
	assert.Empty(t, u.DCAs)
}

func TestParseUpdate_CryptoNoHeaderRequired(t *testing.T) {
	u := ParseUpdate(FormatCrypto, "✅ TP 1: 2.7\n❌ SL : 2.4")
	assert.Equal(t, 2.4, u.SL)
	assert.Equal(t, []float64{2.7}, u.TPs)
}

func TestHash_StableAndDistinct(t *testing.T) {
	a, ok := Parse(FormatCrypto, freshCrypto, "USDT")
	require.True(t, ok)
	b := a
	assert.Equal(t, Hash(a), Hash(b))

	b.Trigger = 2.6
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestNearDuplicate(t *testing.T) {
	a, ok := Parse(FormatCrypto, freshCrypto, "USDT")
	require.True(t, ok)

	// Same signal with trailing-zero price drift.
	b := a
	b.Trigger = 2.5760
	assert.True(t, NearDuplicate(a, b))

	// Different symbol is never a duplicate.
	c := a
	c.Symbol = "AVAXUSDT"
	assert.False(t, NearDuplicate(a, c))

	// Materially different prices are not duplicates.
	d := a
	d.Trigger = 9.99
	d.SL = 9.0
	d.TPs = []float64{12.5}
	assert.False(t, NearDuplicate(a, d))
}
