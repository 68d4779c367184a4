// Package refbroker is a reference REST transport implementing
// broker.Broker. It is not part of the core: the core only ever depends on
// the broker.Broker interface. This package exists to show how a concrete
// brokerage transport is wired — JSON-over-HTTP, per-endpoint-category rate
// limiting, and the usual plumbing a real adapter needs.
package refbroker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/tradecore/enginecore/internal/domain"
)

// RateLimits bounds requests/second for each endpoint category, grounded on
// the per-endpoint limiter pattern a broker transport needs when historical
// queries and order placement share one account's API quota.
type RateLimits struct {
	MarketData rate.Limit // get_ohlcv
	Trading    rate.Limit // send_market_order
	Standard   rate.Limit // get_open_positions, get_closed_trades
}

// DefaultRateLimits is a conservative placeholder; real deployments
// configure this from the broker's published API limits.
var DefaultRateLimits = RateLimits{
	MarketData: rate.Limit(1),
	Trading:    rate.Limit(2),
	Standard:   rate.Limit(2),
}

// Client is a reference implementation of broker.Broker over a JSON REST
// API. The wire format below is intentionally generic (not any specific
// vendor's), since the concrete brokerage transport is an external
// collaborator per the core's scope.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string

	marketDataLimiter *rate.Limiter
	tradingLimiter    *rate.Limiter
	standardLimiter   *rate.Limiter
}

// New builds a reference REST broker client.
func New(baseURL, apiKey string, limits RateLimits) *Client {
	if limits.MarketData <= 0 {
		limits = DefaultRateLimits
	}
	return &Client{
		http:              &http.Client{Timeout: 15 * time.Second},
		baseURL:           baseURL,
		apiKey:            apiKey,
		marketDataLimiter: rate.NewLimiter(limits.MarketData, 1),
		tradingLimiter:    rate.NewLimiter(limits.Trading, 1),
		standardLimiter:   rate.NewLimiter(limits.Standard, 1),
	}
}

// Connect performs a cheap authenticated round trip to confirm the API key
// and base URL are usable before the cycle engine starts calling it.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.standardLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/v1/ping", &out); err != nil {
		return fmt.Errorf("%w: connect: %v", domain.ErrTransport, err)
	}
	return nil
}

type ohlcvResponse struct {
	Bars []struct {
		Time   time.Time `json:"time"`
		Open   float64   `json:"open"`
		High   float64   `json:"high"`
		Low    float64   `json:"low"`
		Close  float64   `json:"close"`
		Volume float64   `json:"volume"`
	} `json:"bars"`
}

// GetOHLCV fetches the base-timeframe series for symbol over [start, end].
func (c *Client) GetOHLCV(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) (domain.BarSeries, error) {
	if err := c.marketDataLimiter.Wait(ctx); err != nil {
		return domain.BarSeries{}, fmt.Errorf("%w: rate limit wait: %v", domain.ErrTransport, err)
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", string(tf))
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	var resp ohlcvResponse
	if err := c.get(ctx, "/v1/markets/history?"+q.Encode(), &resp); err != nil {
		return domain.BarSeries{}, fmt.Errorf("%w: get_ohlcv %s: %v", domain.ErrData, symbol, err)
	}

	series := domain.BarSeries{Symbol: symbol, Timeframe: tf, Bars: make([]domain.Bar, 0, len(resp.Bars))}
	for _, b := range resp.Bars {
		series.Bars = append(series.Bars, domain.Bar{
			Timestamp: b.Time.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return series, nil
}

// SendMarketOrder dispatches req to the broker.
func (c *Client) SendMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := c.tradingLimiter.Wait(ctx); err != nil {
		return domain.OrderResult{}, fmt.Errorf("%w: rate limit wait: %v", domain.ErrTransport, err)
	}

	var magic int32
	if req.MagicNumber != nil {
		magic = *req.MagicNumber
	}
	body := map[string]interface{}{
		"symbol":          req.Symbol,
		"volume":          req.Volume,
		"order_type":      string(req.Kind),
		"comment":         req.Comment,
		"magic_number":    magic,
		"client_order_id": req.ClientOrderID,
	}

	var resp struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/v1/accounts/orders", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("%w: send_market_order: %v", domain.ErrTransport, err)
	}
	if resp.Status != "ok" {
		return domain.OrderResult{Success: false, ErrorMessage: resp.Message}, nil
	}
	return domain.OrderResult{Success: true, OrderID: resp.OrderID}, nil
}

// GetOpenPositions returns every open position the broker reports.
func (c *Client) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	if err := c.standardLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", domain.ErrTransport, err)
	}
	var resp struct {
		Positions []struct {
			Symbol       string    `json:"symbol"`
			Volume       float64   `json:"volume"`
			EntryPrice   float64   `json:"entry_price"`
			StrategyName string    `json:"strategy_name"`
			OpenTime     time.Time `json:"open_time"`
			MagicNumber  *int32    `json:"magic_number"`
		} `json:"positions"`
	}
	if err := c.get(ctx, "/v1/accounts/positions", &resp); err != nil {
		return nil, fmt.Errorf("%w: get_open_positions: %v", domain.ErrTransport, err)
	}
	out := make([]domain.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		out = append(out, domain.Position{
			Symbol:       p.Symbol,
			Volume:       p.Volume,
			EntryPrice:   p.EntryPrice,
			StrategyName: p.StrategyName,
			OpenTime:     p.OpenTime.UTC(),
			MagicNumber:  p.MagicNumber,
		})
	}
	return out, nil
}

// GetClosedTrades returns completed round trips. Not every broker supports
// this; a 501/Not Implemented response is translated to
// ErrUnsupportedOperation.
func (c *Client) GetClosedTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	if err := c.standardLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", domain.ErrTransport, err)
	}
	var resp struct {
		Trades []struct {
			Symbol       string    `json:"symbol"`
			StrategyName string    `json:"strategy_name"`
			EntryTime    time.Time `json:"entry_time"`
			ExitTime     time.Time `json:"exit_time"`
			EntryPrice   float64   `json:"entry_price"`
			ExitPrice    float64   `json:"exit_price"`
			Size         float64   `json:"size"`
			PnL          float64   `json:"pnl"`
		} `json:"trades"`
	}
	err := c.get(ctx, "/v1/accounts/history", &resp)
	if isNotImplemented(err) {
		return nil, fmt.Errorf("%w: get_closed_trades", domain.ErrUnsupportedOperation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get_closed_trades: %v", domain.ErrTransport, err)
	}
	out := make([]domain.TradeRecord, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		out = append(out, domain.TradeRecord{
			Symbol:       t.Symbol,
			StrategyName: t.StrategyName,
			EntryTime:    t.EntryTime.UTC(),
			ExitTime:     t.ExitTime.UTC(),
			EntryPrice:   t.EntryPrice,
			ExitPrice:    t.ExitPrice,
			Size:         t.Size,
			PnL:          t.PnL,
		})
	}
	return out, nil
}

// notImplementedError marks a 501 response from the transport.
type notImplementedError struct{ body string }

func (e *notImplementedError) Error() string { return "not implemented: " + e.body }

func isNotImplemented(err error) bool {
	_, ok := err.(*notImplementedError)
	return ok
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotImplemented {
		return &notImplementedError{body: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
