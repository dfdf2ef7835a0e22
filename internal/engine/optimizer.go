package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"folio-optimizer/internal/alpaca"
	"folio-optimizer/internal/factors"
)

// Lookback describes one horizon bucket: how far back to fetch prices,
// the sampling step in trading days, and the per-year period count used
// to annualize both the covariance and the expected-return compounding.
type Lookback struct {
	Years     int
	Step      int
	Annualize int
}

// DefaultLookbacks returns the horizon table: short samples every trading
// day over 2 years, medium every 5th day over 5 years, long every 20th
// day over 10 years.
func DefaultLookbacks() map[string]Lookback {
	return map[string]Lookback{
		"short":  {Years: 2, Step: 1, Annualize: 252},
		"medium": {Years: 5, Step: 5, Annualize: 52},
		"long":   {Years: 10, Step: 20, Annualize: 12},
	}
}

// PriceSource supplies sampled closing-price history for an asset universe.
type PriceSource interface {
	History(ctx context.Context, tickers []string, start time.Time, step int) (*alpaca.PriceHistory, error)
}

// RateSource supplies the annualized risk-free rate for a horizon.
type RateSource interface {
	Rate(ctx context.Context, horizon string) (float64, error)
}

// Request is one allocation job. Ticker order is significant: every
// vector and matrix downstream is positionally bound to it, and the
// response keys preserve it through the tickers themselves.
type Request struct {
	Capital       float64
	Horizon       string
	Tickers       []string
	DesiredReturn float64
}

// Optimizer runs the allocation pipeline. It holds only immutable
// collaborators; every request recomputes everything from fresh data, so
// concurrent Run calls are independent.
type Optimizer struct {
	Market    PriceSource
	Rates     RateSource
	Factors   *factors.Store
	Lookbacks map[string]Lookback
}

// NewOptimizer wires the pipeline with the default horizon table.
func NewOptimizer(market PriceSource, rates RateSource, fs *factors.Store) *Optimizer {
	return &Optimizer{
		Market:    market,
		Rates:     rates,
		Factors:   fs,
		Lookbacks: DefaultLookbacks(),
	}
}

// Run executes one request end to end: fetch, estimate, solve. Any error
// aborts the whole request; there is no partial allocation.
func (o *Optimizer) Run(ctx context.Context, req Request) (map[string]float64, error) {
	lb, ok := o.Lookbacks[req.Horizon]
	if !ok {
		return nil, fmt.Errorf("unknown horizon %q", req.Horizon)
	}

	start := time.Now().UTC().AddDate(-lb.Years, 0, 0)

	var (
		history  *alpaca.PriceHistory
		riskFree float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := o.Market.History(gctx, req.Tickers, start, lb.Step)
		if err != nil {
			return err
		}
		history = h
		return nil
	})
	g.Go(func() error {
		r, err := o.Rates.Rate(gctx, req.Horizon)
		if err != nil {
			return err
		}
		riskFree = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cov, err := Covariance(history, lb.Annualize)
	if err != nil {
		return nil, err
	}

	s0 := history.Last()
	cadence := factors.Daily
	if req.Horizon != "short" {
		cadence = factors.Weekly
	}
	ev, err := ExpectedValue(history, s0, o.Factors.ForCadence(cadence), lb.Annualize)
	if err != nil {
		return nil, err
	}

	return Allocate(history.Tickers, s0, ev, cov, req.Capital, riskFree, req.DesiredReturn)
}
