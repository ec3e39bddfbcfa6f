// Package broker is the REST and streaming client for the equities brokerage
// API. It implements the market data, portfolio, fundamentals and order
// gateway interfaces of the domain package.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/equitybot/internal/domain"
)

// rateLimitKey is the shared budget every replica draws REST calls from.
const rateLimitKey = "broker:rest"

// ClientConfig holds the REST endpoint, credentials and throttling.
type ClientConfig struct {
	BaseURL    string
	ApiKey     string
	ApiSecret  string
	Timeout    time.Duration
	RateLimit  int
	RateWindow time.Duration
}

// Client is the brokerage REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	limiter    domain.RateLimiter
	rateLimit  int
	rateWindow time.Duration
	logger     *slog.Logger
}

// NewClient creates a REST client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var signer *Signer
	if cfg.ApiKey != "" {
		signer = &Signer{Key: cfg.ApiKey, Secret: cfg.ApiSecret}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		signer:     signer,
		rateLimit:  cfg.RateLimit,
		rateWindow: cfg.RateWindow,
		logger:     logger.With(slog.String("component", "broker_client")),
	}
}

// SetRateLimiter throttles every request through rl.
func (c *Client) SetRateLimiter(rl domain.RateLimiter) {
	c.limiter = rl
}

// ListInstruments returns the tradeable universe.
func (c *Client) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	var resp apiInstrumentList
	if err := c.do(ctx, http.MethodGet, "/v1/instruments", nil, &resp); err != nil {
		return nil, fmt.Errorf("broker: list instruments: %w", err)
	}
	out := make([]domain.Instrument, 0, len(resp.Instruments))
	for _, id := range resp.Instruments {
		out = append(out, domain.Instrument(id))
	}
	return out, nil
}

// Fundamentals returns the latest fundamentals of inst.
func (c *Client) Fundamentals(ctx context.Context, inst domain.Instrument) (domain.Fundamentals, error) {
	var resp apiFundamentals
	if err := c.do(ctx, http.MethodGet, instrumentPath(inst, "fundamentals"), nil, &resp); err != nil {
		return domain.Fundamentals{}, fmt.Errorf("broker: fundamentals %s: %w", inst, err)
	}
	f := resp.toDomain()
	f.Instrument = inst
	return f, nil
}

// History returns the last window bars of inst, oldest first. Fewer bars
// than requested yields domain.ErrInsufficientHistory.
func (c *Client) History(ctx context.Context, inst domain.Instrument, window int, unit domain.BarUnit) ([]domain.PriceBar, error) {
	if window <= 0 || !unit.Valid() {
		return nil, fmt.Errorf("broker: history %s: invalid window %d unit %q", inst, window, unit)
	}
	q := url.Values{}
	q.Set("window", strconv.Itoa(window))
	q.Set("unit", string(unit))

	var resp apiBars
	if err := c.do(ctx, http.MethodGet, instrumentPath(inst, "bars")+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("broker: history %s: %w", inst, err)
	}
	bars := resp.toDomain()
	if len(bars) < window {
		return nil, fmt.Errorf("broker: history %s: got %d of %d bars: %w",
			inst, len(bars), window, domain.ErrInsufficientHistory)
	}
	return bars[len(bars)-window:], nil
}

// Quote returns the latest trade of inst.
func (c *Client) Quote(ctx context.Context, inst domain.Instrument) (domain.Quote, error) {
	var resp apiQuote
	if err := c.do(ctx, http.MethodGet, instrumentPath(inst, "quote"), nil, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("broker: quote %s: %w", inst, err)
	}
	q := resp.toDomain()
	q.Instrument = inst
	return q, nil
}

// CurrentPrice returns the latest traded price of inst.
func (c *Client) CurrentPrice(ctx context.Context, inst domain.Instrument) (float64, error) {
	q, err := c.Quote(ctx, inst)
	if err != nil {
		return 0, err
	}
	return q.Price, nil
}

// Positions returns the held positions keyed by instrument.
func (c *Client) Positions(ctx context.Context) (map[domain.Instrument]domain.Position, error) {
	var resp apiPositions
	if err := c.do(ctx, http.MethodGet, "/v1/positions", nil, &resp); err != nil {
		return nil, fmt.Errorf("broker: positions: %w", err)
	}
	out := make(map[domain.Instrument]domain.Position, len(resp.Positions))
	for _, p := range resp.Positions {
		inst := domain.Instrument(p.Instrument)
		out[inst] = domain.Position{
			Instrument: inst,
			Quantity:   p.Quantity.InexactFloat64(),
			CostBasis:  p.CostBasis.InexactFloat64(),
		}
	}
	return out, nil
}

// HasOpenOrder reports whether inst has an order that is not yet final.
func (c *Client) HasOpenOrder(ctx context.Context, inst domain.Instrument) (bool, error) {
	q := url.Values{}
	q.Set("status", "open")
	q.Set("instrument", inst.String())

	var resp apiOrders
	if err := c.do(ctx, http.MethodGet, "/v1/orders?"+q.Encode(), nil, &resp); err != nil {
		return false, fmt.Errorf("broker: open orders %s: %w", inst, err)
	}
	for _, o := range resp.Orders {
		if o.Instrument == inst.String() {
			return true, nil
		}
	}
	return false, nil
}

// SubmitTargetValue orders inst to a signed notional position.
func (c *Client) SubmitTargetValue(ctx context.Context, inst domain.Instrument, target float64, clientOrderID string) (domain.OrderResult, error) {
	return c.submitTarget(ctx, inst, domain.TargetValue, decimal.NewFromFloat(target).Round(2), clientOrderID)
}

// SubmitTargetPercent orders inst to a signed fraction of portfolio value.
func (c *Client) SubmitTargetPercent(ctx context.Context, inst domain.Instrument, target float64, clientOrderID string) (domain.OrderResult, error) {
	return c.submitTarget(ctx, inst, domain.TargetPercent, decimal.NewFromFloat(target).Round(6), clientOrderID)
}

func (c *Client) submitTarget(ctx context.Context, inst domain.Instrument, kind domain.TargetKind, target decimal.Decimal, clientOrderID string) (domain.OrderResult, error) {
	req := apiTargetOrderRequest{
		Instrument:    inst.String(),
		Kind:          kind,
		Target:        target,
		ClientOrderID: clientOrderID,
	}
	var resp apiTargetOrderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders/target", req, &resp); err != nil {
		return domain.OrderResult{Status: domain.OrderStatusRejected, Message: err.Error()},
			fmt.Errorf("broker: submit %s target %s %s: %w", kind, target, inst, err)
	}
	res := resp.toDomain()
	if !res.Success {
		return res, fmt.Errorf("broker: order rejected for %s: %s", inst, res.Message)
	}
	c.logger.InfoContext(ctx, "target order accepted",
		slog.String("instrument", inst.String()),
		slog.String("kind", string(kind)),
		slog.String("target", target.String()),
		slog.String("order_id", res.OrderID),
	)
	return res, nil
}

// do sends a signed JSON request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, requestURI string, body, out any) error {
	if c.limiter != nil && c.rateLimit > 0 {
		if err := c.limiter.Wait(ctx, rateLimitKey, c.rateLimit, c.rateWindow); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(b)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestURI, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		for k, v := range c.signer.Headers(method, requestURI, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx status codes to domain errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	msg := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

func instrumentPath(inst domain.Instrument, resource string) string {
	return "/v1/instruments/" + url.PathEscape(inst.String()) + "/" + resource
}

func nan() float64 { return math.NaN() }

var (
	_ domain.MarketData         = (*Client)(nil)
	_ domain.OrderGateway       = (*Client)(nil)
	_ domain.PortfolioSource    = (*Client)(nil)
	_ domain.FundamentalsSource = (*Client)(nil)
)
