package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botdeck/internal/bot"
	"botdeck/internal/store"
)

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	reg, err := bot.NewRegistry([]bot.Config{
		{ID: "alpha", Name: "Alpha", Format: bot.FormatCrypto, Quote: "USDT", DryRun: true},
		{ID: "beta", Name: "Beta", Format: bot.FormatPlain, Quote: "USDT"},
	})
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return NewServer(reg, st, nil), st
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestListBots(t *testing.T) {
	s, st := testServer(t)
	require.NoError(t, st.Insert(context.Background(),
		&store.Trade{BotID: "alpha", Symbol: "BTCUSDT", Side: "buy", Entry: 95000}))

	rec := get(t, s, "/api/bots")
	require.Equal(t, http.StatusOK, rec.Code)

	var bots []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bots))
	require.Len(t, bots, 2)

	// Registry order is preserved.
	assert.Equal(t, "alpha", bots[0]["id"])
	assert.Equal(t, "beta", bots[1]["id"])
	assert.Equal(t, float64(1), bots[0]["active_trades"])
	assert.Equal(t, float64(0), bots[1]["active_trades"])
}

func TestGetBot(t *testing.T) {
	s, _ := testServer(t)

	rec := get(t, s, "/api/bots/alpha")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"crypto"`)

	rec = get(t, s, "/api/bots/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTrades(t *testing.T) {
	s, st := testServer(t)
	ctx := context.Background()

	tr := &store.Trade{BotID: "alpha", Symbol: "ATOMUSDT", Side: "buy",
		Entry: 2.576, TPs: []float64{2.657}, Score: 160}
	require.NoError(t, st.Insert(ctx, tr))

	rec := get(t, s, "/api/bots/alpha/trades")
	require.Equal(t, http.StatusOK, rec.Code)

	var trades []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "ATOMUSDT", trades[0]["symbol"])
	assert.Equal(t, "pending", trades[0]["status"])

	rec = get(t, s, "/api/bots/nope/trades")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s, "/api/bots/alpha/trades?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
