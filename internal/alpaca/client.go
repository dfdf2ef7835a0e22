package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"folio-optimizer/internal/config"
)

const barsPath = "/v2/stocks/bars"

// ErrNoData marks a ticker for which the provider returned zero bars.
// The pipeline never runs on an asset universe with missing columns.
var ErrNoData = errors.New("no price history")

// BarCache is a persistent cache for daily closes, keyed by ticker and
// the earliest date the caller needs covered.
type BarCache interface {
	GetDailyCloses(ticker, from string) ([]DailyClose, bool)
	SetDailyCloses(ticker, from string, closes []DailyClose)
}

// Client is a rate-limited Alpaca market-data client with a circuit
// breaker around the upstream and an optional persistent bar cache.
type Client struct {
	http    *http.Client
	baseURL string
	key     string
	secret  string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   BarCache
}

// NewClient creates a market-data client from the app config.
func NewClient(cfg *config.Config, cache BarCache) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(cfg.MarketDataURL, "/"),
		key:     cfg.AlpacaKey,
		secret:  cfg.AlpacaSecret,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "alpaca",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
		cache: cache,
	}
}

// History fetches daily closes for every ticker from start until today and
// assembles them into a PriceHistory sampled at every step-th trading day.
// Column order follows the tickers argument exactly.
func (c *Client) History(ctx context.Context, tickers []string, start time.Time, step int) (*PriceHistory, error) {
	from := start.UTC().Format("2006-01-02")
	closes := make(map[string][]DailyClose, len(tickers))

	var uncached []string
	for _, tk := range tickers {
		if c.cache != nil {
			if cs, ok := c.cache.GetDailyCloses(tk, from); ok {
				closes[tk] = cs
				continue
			}
		}
		uncached = append(uncached, tk)
	}

	if len(uncached) > 0 {
		fetched, err := c.fetchBars(ctx, uncached, start)
		if err != nil {
			return nil, err
		}
		for _, tk := range uncached {
			closes[tk] = fetched[tk]
			if c.cache != nil && len(fetched[tk]) > 0 {
				c.cache.SetDailyCloses(tk, from, fetched[tk])
			}
		}
	}

	var empty []string
	for _, tk := range tickers {
		if len(closes[tk]) == 0 {
			empty = append(empty, tk)
		}
	}
	if len(empty) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, strings.Join(empty, ", "))
	}
	return buildHistory(tickers, closes, step), nil
}

// fetchBars pulls all pages of the multi-symbol daily bars endpoint.
func (c *Client) fetchBars(ctx context.Context, tickers []string, start time.Time) (map[string][]DailyClose, error) {
	base := fmt.Sprintf("%s%s?symbols=%s&timeframe=1Day&adjustment=raw&limit=10000&start=%s",
		c.baseURL, barsPath,
		url.QueryEscape(strings.Join(tickers, ",")),
		url.QueryEscape(start.UTC().Format(time.RFC3339)))

	out := make(map[string][]DailyClose, len(tickers))
	pageToken := ""
	for {
		u := base
		if pageToken != "" {
			u += "&page_token=" + url.QueryEscape(pageToken)
		}
		var page barsResponse
		if err := c.getJSON(ctx, u, &page); err != nil {
			return nil, fmt.Errorf("fetch bars: %w", err)
		}
		for sym, bars := range page.Bars {
			for _, b := range bars {
				out[sym] = append(out[sym], DailyClose{Date: barDate(b.Time), Close: b.Close})
			}
		}
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		pageToken = *page.NextPageToken
	}

	for sym := range out {
		cs := out[sym]
		sort.Slice(cs, func(i, j int) bool { return cs[i].Date < cs[j].Date })
	}
	return out, nil
}

// getJSON fetches a URL and decodes JSON into dst, respecting the rate
// limiter and the circuit breaker.
func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("APCA-API-KEY-ID", c.key)
		req.Header.Set("APCA-API-SECRET-KEY", c.secret)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("alpaca %d: %s", resp.StatusCode, string(body))
		}
		return nil, json.NewDecoder(resp.Body).Decode(dst)
	})
	return err
}

// buildHistory joins per-ticker closes on a shared calendar. A date with a
// close missing for any ticker is dropped entirely so every column keeps
// the same row count, then the table is sampled at the horizon's step.
func buildHistory(tickers []string, closes map[string][]DailyClose, step int) *PriceHistory {
	byTicker := make([]map[string]float64, len(tickers))
	dateSet := make(map[string]struct{})
	for i, tk := range tickers {
		m := make(map[string]float64, len(closes[tk]))
		for _, dc := range closes[tk] {
			m[dc.Date] = dc.Close
			dateSet[dc.Date] = struct{}{}
		}
		byTicker[i] = m
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	h := &PriceHistory{Tickers: append([]string(nil), tickers...)}
	for _, d := range dates {
		row := make([]float64, len(tickers))
		complete := true
		for i := range tickers {
			v, ok := byTicker[i][d]
			if !ok {
				complete = false
				break
			}
			row[i] = v
		}
		if !complete {
			continue
		}
		h.Dates = append(h.Dates, d)
		h.Rows = append(h.Rows, row)
	}
	return h.Sample(step)
}

// barDate truncates an RFC3339 bar timestamp to its trading day.
func barDate(t string) string {
	if len(t) >= 10 {
		return t[:10]
	}
	return t
}
