package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"folio-optimizer/internal/alpaca"
	"folio-optimizer/internal/config"
	"folio-optimizer/internal/engine"
	"folio-optimizer/internal/factors"
)

type staticPrices struct {
	history *alpaca.PriceHistory
	err     error
}

func (s *staticPrices) History(ctx context.Context, tickers []string, start time.Time, step int) (*alpaca.PriceHistory, error) {
	return s.history, s.err
}

type staticRates struct {
	rate float64
	err  error
}

func (s *staticRates) Rate(ctx context.Context, horizon string) (float64, error) {
	return s.rate, s.err
}

func testHistory() *alpaca.PriceHistory {
	return &alpaca.PriceHistory{
		Tickers: []string{"AAPL", "MSFT"},
		Dates: []string{
			"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05",
			"2024-01-08", "2024-01-09", "2024-01-10",
		},
		Rows: [][]float64{
			{100, 50},
			{101, 49.5},
			{100.5, 50.2},
			{102, 50.1},
			{101, 50.8},
			{103, 50.3},
			{102.5, 51},
		},
	}
}

func testFactorStore(dates []string) *factors.Store {
	var daily []factors.Row
	for i, d := range dates {
		daily = append(daily, factors.Row{
			Date:  d,
			MktRF: 0.3 * float64(i%3),
			SMB:   0.1 * float64(i%2),
			HML:   -0.05 * float64((i+1)%3),
			RF:    0.01,
		})
	}
	return factors.NewStore(
		factors.NewSet(factors.Daily, daily),
		factors.NewSet(factors.Weekly, nil),
	)
}

func readyServer(prices engine.PriceSource, rates engine.RateSource) *Server {
	h := testHistory()
	srv := NewServer(config.Default(), "test")
	srv.SetOptimizer(engine.NewOptimizer(prices, rates, testFactorStore(h.Dates[1:])))
	return srv
}

func postOptimize(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/optimize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const validBody = `{"capital": 10000, "horizon": "short", "tickers": ["AAPL", "MSFT"], "desired_return": 0.05}`

func TestHandleOptimize_HappyPath(t *testing.T) {
	srv := readyServer(&staticPrices{history: testHistory()}, &staticRates{rate: 0.02})

	rec := postOptimize(t, srv, validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var alloc map[string]float64
	if err := json.NewDecoder(rec.Body).Decode(&alloc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alloc) != 3 {
		t.Fatalf("got %d entries, want 3: %v", len(alloc), alloc)
	}
	for _, k := range []string{"AAPL", "MSFT", engine.RiskFreeKey} {
		if _, ok := alloc[k]; !ok {
			t.Errorf("missing key %q in %v", k, alloc)
		}
	}
	var sum float64
	for _, v := range alloc {
		sum += v
	}
	if math.Abs(sum-10000) > 0.03 {
		t.Errorf("allocations sum to %v, want 10000 within rounding", sum)
	}
}

func TestHandleOptimize_ValidationErrors(t *testing.T) {
	srv := readyServer(&staticPrices{history: testHistory()}, &staticRates{rate: 0.02})

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing capital", `{"horizon": "short", "tickers": ["AAPL"], "desired_return": 0.05}`},
		{"zero capital", `{"capital": 0, "horizon": "short", "tickers": ["AAPL"], "desired_return": 0.05}`},
		{"negative capital", `{"capital": -100, "horizon": "short", "tickers": ["AAPL"], "desired_return": 0.05}`},
		{"missing horizon", `{"capital": 10000, "tickers": ["AAPL"], "desired_return": 0.05}`},
		{"unknown horizon", `{"capital": 10000, "horizon": "decade", "tickers": ["AAPL"], "desired_return": 0.05}`},
		{"missing tickers", `{"capital": 10000, "horizon": "short", "desired_return": 0.05}`},
		{"empty tickers", `{"capital": 10000, "horizon": "short", "tickers": [], "desired_return": 0.05}`},
		{"blank ticker", `{"capital": 10000, "horizon": "short", "tickers": ["AAPL", "  "], "desired_return": 0.05}`},
		{"missing desired_return", `{"capital": 10000, "horizon": "short", "tickers": ["AAPL"]}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := postOptimize(t, srv, c.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleOptimize_NotReady(t *testing.T) {
	srv := NewServer(config.Default(), "test")

	rec := postOptimize(t, srv, validBody)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleOptimize_DegenerateUniverse(t *testing.T) {
	// Two identical columns make the covariance singular.
	h := testHistory()
	for _, row := range h.Rows {
		row[1] = row[0]
	}
	srv := readyServer(&staticPrices{history: h}, &staticRates{rate: 0.02})

	rec := postOptimize(t, srv, validBody)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleOptimize_MissingMarketData(t *testing.T) {
	srv := readyServer(&staticPrices{err: alpaca.ErrNoData}, &staticRates{rate: 0.02})

	rec := postOptimize(t, srv, validBody)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleOptimize_UpstreamFailure(t *testing.T) {
	srv := readyServer(&staticPrices{history: testHistory()}, &staticRates{err: errors.New("connection refused")})

	rec := postOptimize(t, srv, validBody)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	srv := NewServer(config.Default(), "1.2.3")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out struct {
		Ready    bool     `json:"ready"`
		Version  string   `json:"version"`
		Horizons []string `json:"horizons"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Ready || out.Version != "1.2.3" {
		t.Errorf("status = %+v, want not ready with version 1.2.3", out)
	}

	srv.SetOptimizer(engine.NewOptimizer(&staticPrices{history: testHistory()}, &staticRates{rate: 0.02}, testFactorStore(nil)))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Ready || len(out.Horizons) != 3 {
		t.Errorf("status = %+v, want ready with 3 horizons", out)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(config.Default(), "test")

	req := httptest.NewRequest(http.MethodOptions, "/api/optimize", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != 204 {
		t.Errorf("OPTIONS status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}
