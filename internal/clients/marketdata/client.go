// Package marketdata provides the client for the end-of-day price provider.
// The provider is an external collaborator; everything here is boundary code:
// fetch bars, fail soft, let callers decide what a missing bar means.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/playbook/internal/domain"
)

// Client is an HTTP client for the EOD price API.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a new market data client. Requests are rate limited to
// keep a large evaluation batch from hammering the provider.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		log:     log.With().Str("client", "marketdata").Logger(),
	}
}

// barPayload mirrors the provider's JSON bar shape.
type barPayload struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type seriesResponse struct {
	Symbol string       `json:"symbol"`
	Bars   []barPayload `json:"bars"`
}

// GetDailyBars fetches EOD bars for symbol in [start, end], ordered by date
// ascending. An empty result is not an error; callers treat it as data
// unavailable.
func (c *Client) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.OHLC, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/eod/%s?start=%s&end=%s",
		c.baseURL,
		url.PathEscape(symbol),
		start.Format(domain.DateLayout),
		end.Format(domain.DateLayout),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("price provider returned %d for %s: %s", resp.StatusCode, symbol, string(body))
	}

	var payload seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode bars for %s: %w", symbol, err)
	}

	bars := make([]domain.OHLC, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		date, err := time.Parse(domain.DateLayout, b.Date)
		if err != nil {
			c.log.Warn().Str("symbol", symbol).Str("date", b.Date).Msg("Skipping bar with malformed date")
			continue
		}
		bars = append(bars, domain.OHLC{
			Symbol: symbol,
			Date:   date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	return bars, nil
}
