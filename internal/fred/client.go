package fred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"folio-optimizer/internal/config"
)

const observationsPath = "/fred/series/observations"

// seriesByHorizon maps the investment horizon to the treasury yield
// series of matching duration.
var seriesByHorizon = map[string]string{
	"short":  "DGS3MO",
	"medium": "DGS2",
	"long":   "DGS5",
}

// ErrUnknownHorizon is returned for a horizon outside short/medium/long.
var ErrUnknownHorizon = errors.New("unknown horizon")

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"` // "." when the series has no value that day
}

type observationsResponse struct {
	Observations []observation `json:"observations"`
}

type rateEntry struct {
	rate    float64
	fetched time.Time
}

// Client fetches the prevailing annualized risk-free rate from FRED.
// Rates move slowly, so values are reused for a short TTL and concurrent
// lookups for the same horizon are coalesced with singleflight.
type Client struct {
	http    *http.Client
	baseURL string
	key     string
	ttl     time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	mu      sync.RWMutex
	entries map[string]rateEntry
	group   singleflight.Group
}

// NewClient creates a treasury-yield client from the app config.
func NewClient(cfg *config.Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3
	}
	ttl := time.Duration(cfg.RateCacheTTLMinutes) * time.Minute
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimSuffix(cfg.TreasuryURL, "/"),
		key:     cfg.FredKey,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "fred",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
		entries: make(map[string]rateEntry),
	}
}

// Rate returns the annualized risk-free rate for a horizon as a fraction
// (0.05 for 5%), taken from the most recent observation in a trailing
// 7-day window.
func (c *Client) Rate(ctx context.Context, horizon string) (float64, error) {
	series, ok := seriesByHorizon[horizon]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownHorizon, horizon)
	}

	c.mu.RLock()
	e, hit := c.entries[series]
	c.mu.RUnlock()
	if hit && time.Since(e.fetched) < c.ttl {
		return e.rate, nil
	}

	v, err, _ := c.group.Do(series, func() (any, error) {
		r, err := c.fetchRate(ctx, series)
		if err != nil {
			return 0.0, err
		}
		c.mu.Lock()
		c.entries[series] = rateEntry{rate: r, fetched: time.Now()}
		c.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (c *Client) fetchRate(ctx context.Context, series string) (float64, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -7)

	q := url.Values{}
	q.Set("series_id", series)
	q.Set("api_key", c.key)
	q.Set("file_type", "json")
	q.Set("observation_start", start.Format("2006-01-02"))
	q.Set("observation_end", end.Format("2006-01-02"))

	var resp observationsResponse
	if err := c.getJSON(ctx, c.baseURL+observationsPath+"?"+q.Encode(), &resp); err != nil {
		return 0, fmt.Errorf("fetch treasury yield %s: %w", series, err)
	}

	// Most recent non-missing value wins; FRED encodes gaps as ".".
	for i := len(resp.Observations) - 1; i >= 0; i-- {
		v := strings.TrimSpace(resp.Observations[i].Value)
		if v == "" || v == "." {
			continue
		}
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		return pct / 100, nil
	}
	return 0, fmt.Errorf("treasury yield %s: no observation in trailing window", series)
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("fred %d: %s", resp.StatusCode, string(body))
		}
		return nil, json.NewDecoder(resp.Body).Decode(dst)
	})
	return err
}
