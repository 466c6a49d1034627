// Package exchange is a minimal Bybit v5 REST client: public market data for
// trend analysis plus signed order placement for live bots. Dry-run bots
// never touch the signed endpoints.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"botdeck/internal/jsonutil"
	"botdeck/internal/trend"
)

// DefaultBaseURL is the Bybit mainnet REST endpoint.
const DefaultBaseURL = "https://api.bybit.com"

const recvWindow = "5000"

// Client talks to the Bybit v5 API. Key and secret may be empty for bots
// that only read public market data.
type Client struct {
	// BaseURL can be pointed at a test server or the testnet.
	BaseURL string

	key    string
	secret string
	http   *http.Client
	log    *slog.Logger

	// nowMillis is stubbed in signing tests.
	nowMillis func() int64
}

// NewClient builds a client. Pass empty credentials for public-data-only use.
func NewClient(key, secret string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		BaseURL:   DefaultBaseURL,
		key:       key,
		secret:    secret,
		http:      &http.Client{Timeout: 15 * time.Second},
		log:       log,
		nowMillis: func() int64 { return time.Now().UnixMilli() },
	}
}

// envelope is the common Bybit response wrapper.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	var qs string
	if query != nil {
		qs = query.Encode()
	}

	var reqBody io.Reader
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	reqURL := c.BaseURL + path
	if qs != "" {
		reqURL += "?" + qs
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.key != "" {
		ts := strconv.FormatInt(c.nowMillis(), 10)
		payload := qs
		if bodyBytes != nil {
			payload = string(bodyBytes)
		}
		req.Header.Set("X-BAPI-API-KEY", c.key)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
		req.Header.Set("X-BAPI-SIGN", c.sign(ts+c.key+recvWindow+payload))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bybit status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var env envelope
	if err := jsonutil.UnmarshalWithContext(respBody, &env, "decode response"); err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("bybit error %d: %s", env.RetCode, env.RetMsg)
	}
	if result != nil {
		return jsonutil.UnmarshalWithContext(env.Result, result, "decode result")
	}
	return nil
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Klines fetches linear-perp candles, newest first, as Bybit returns them.
// Satisfies the scorer's kline source.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]trend.Candle, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q := url.Values{
		"category": {"linear"},
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.call(ctx, http.MethodGet, "/v5/market/kline", q, nil, &result); err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}

	candles := make([]trend.Candle, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candle := trend.Candle{Timestamp: ts}
		for i, dst := range []*float64{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume} {
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("klines %s: bad value %q", symbol, row[i+1])
			}
			*dst = v
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// LastPrice returns the latest traded price for a linear-perp symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{"category": {"linear"}, "symbol": {symbol}}

	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := c.call(ctx, http.MethodGet, "/v5/market/tickers", q, nil, &result); err != nil {
		return 0, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("ticker %s: no data", symbol)
	}
	p, err := strconv.ParseFloat(result.List[0].LastPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("ticker %s: bad price %q", symbol, result.List[0].LastPrice)
	}
	return p, nil
}

// Equity returns the unified-account total equity in USD.
func (c *Client) Equity(ctx context.Context) (float64, error) {
	q := url.Values{"accountType": {"UNIFIED"}}

	var result struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := c.call(ctx, http.MethodGet, "/v5/account/wallet-balance", q, nil, &result); err != nil {
		return 0, fmt.Errorf("wallet balance: %w", err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("wallet balance: no account data")
	}
	eq, err := strconv.ParseFloat(result.List[0].TotalEquity, 64)
	if err != nil {
		return 0, fmt.Errorf("wallet balance: bad equity %q", result.List[0].TotalEquity)
	}
	return eq, nil
}

// OrderRequest describes a limit entry order with optional TP/SL.
type OrderRequest struct {
	Symbol     string
	Side       string // "Buy" or "Sell"
	Qty        float64
	Price      float64 // 0 = market order
	TakeProfit float64
	StopLoss   float64
}

// PlaceOrder submits a linear-perp order and returns the exchange order ID.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if c.key == "" {
		return "", fmt.Errorf("place order: no API credentials")
	}

	body := map[string]string{
		"category": "linear",
		"symbol":   req.Symbol,
		"side":     req.Side,
		"qty":      strconv.FormatFloat(req.Qty, 'f', -1, 64),
	}
	if req.Price > 0 {
		body["orderType"] = "Limit"
		body["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	} else {
		body["orderType"] = "Market"
	}
	if req.TakeProfit > 0 {
		body["takeProfit"] = strconv.FormatFloat(req.TakeProfit, 'f', -1, 64)
	}
	if req.StopLoss > 0 {
		body["stopLoss"] = strconv.FormatFloat(req.StopLoss, 'f', -1, 64)
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := c.call(ctx, http.MethodPost, "/v5/order/create", nil, body, &result); err != nil {
		return "", fmt.Errorf("place order %s: %w", req.Symbol, err)
	}
	c.log.Info("order placed", "symbol", req.Symbol, "side", req.Side, "qty", req.Qty, "order_id", result.OrderID)
	return result.OrderID, nil
}

// CancelOrder cancels an open order by exchange ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if c.key == "" {
		return fmt.Errorf("cancel order: no API credentials")
	}
	body := map[string]string{"category": "linear", "symbol": symbol, "orderId": orderID}
	if err := c.call(ctx, http.MethodPost, "/v5/order/cancel", nil, body, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}
