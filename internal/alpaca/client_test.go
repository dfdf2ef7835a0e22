package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"folio-optimizer/internal/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.MarketDataURL = baseURL
	cfg.AlpacaKey = "test-key"
	cfg.AlpacaSecret = "test-secret"
	cfg.RequestsPerSecond = 1000 // keep tests fast
	return cfg
}

// memCache is a minimal in-memory BarCache for testing.
type memCache struct {
	mu sync.Mutex
	m  map[string][]DailyClose
}

func (c *memCache) GetDailyCloses(ticker, from string) ([]DailyClose, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.m[ticker+"|"+from]
	return cs, ok
}

func (c *memCache) SetDailyCloses(ticker, from string, closes []DailyClose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string][]DailyClose)
	}
	c.m[ticker+"|"+from] = closes
}

func barsPage(bars map[string][]Bar, next string) string {
	resp := map[string]any{"bars": bars}
	if next != "" {
		resp["next_page_token"] = next
	} else {
		resp["next_page_token"] = nil
	}
	raw, _ := json.Marshal(resp)
	return string(raw)
}

func TestHistory_PaginatesAndAligns(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.Header.Get("APCA-API-KEY-ID"); got != "test-key" {
			t.Errorf("key header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page_token") == "" {
			// Page 1: AAA has an extra date BBB is missing.
			w.Write([]byte(barsPage(map[string][]Bar{
				"AAA": {
					{Time: "2024-01-02T05:00:00Z", Close: 100},
					{Time: "2024-01-03T05:00:00Z", Close: 101},
				},
				"BBB": {
					{Time: "2024-01-02T05:00:00Z", Close: 50},
				},
			}, "tok-2")))
			return
		}
		w.Write([]byte(barsPage(map[string][]Bar{
			"AAA": {{Time: "2024-01-04T05:00:00Z", Close: 102}},
			"BBB": {{Time: "2024-01-04T05:00:00Z", Close: 51}},
		}, "")))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h, err := c.History(context.Background(), []string{"AAA", "BBB"}, start, 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2 (pagination)", requests)
	}
	if len(h.Tickers) != 2 || h.Tickers[0] != "AAA" || h.Tickers[1] != "BBB" {
		t.Fatalf("Tickers = %v", h.Tickers)
	}
	// 2024-01-03 is incomplete (BBB missing) and must be dropped.
	wantDates := []string{"2024-01-02", "2024-01-04"}
	if len(h.Dates) != 2 || h.Dates[0] != wantDates[0] || h.Dates[1] != wantDates[1] {
		t.Fatalf("Dates = %v, want %v", h.Dates, wantDates)
	}
	if h.Rows[0][0] != 100 || h.Rows[0][1] != 50 || h.Rows[1][0] != 102 || h.Rows[1][1] != 51 {
		t.Errorf("Rows = %v", h.Rows)
	}
}

func TestHistory_MissingTickerFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(barsPage(map[string][]Bar{
			"AAA": {{Time: "2024-01-02T05:00:00Z", Close: 100}},
		}, "")))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.History(context.Background(), []string{"AAA", "GONE"}, start, 1)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestHistory_UsesCache(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(barsPage(map[string][]Bar{
			"AAA": {
				{Time: "2024-01-02T05:00:00Z", Close: 100},
				{Time: "2024-01-03T05:00:00Z", Close: 101},
			},
		}, "")))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), &memCache{})
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		h, err := c.History(context.Background(), []string{"AAA"}, start, 1)
		if err != nil {
			t.Fatalf("History #%d: %v", i+1, err)
		}
		if len(h.Rows) != 2 {
			t.Fatalf("History #%d rows = %d, want 2", i+1, len(h.Rows))
		}
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1 (second call served from cache)", requests)
	}
}

func TestHistory_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"forbidden"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.History(context.Background(), []string{"AAA"}, start, 1)
	if err == nil {
		t.Fatal("History should fail on upstream 403")
	}
}
