package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"folio-optimizer/internal/alpaca"
	"folio-optimizer/internal/factors"
)

// intercept + Mkt-RF + SMB + HML
const regressors = 4

// ExpectedValue projects each asset's price at the end of the horizon
// using a three-factor model.
//
// Per-period simple returns are regressed (OLS, per asset) on the factor
// returns of matching cadence; the intercept is estimated but discarded.
// The expected per-period return is the mean risk-free rate plus the
// loadings dotted with the historical factor means, compounded over
// annualize periods on top of the current price.
//
// Only dates present in both series participate; market holidays and
// vendor-calendar mismatches silently drop rows, which is normal
// operation. Factor inputs arrive in percentage points and are rescaled
// to fractions here.
func ExpectedValue(h *alpaca.PriceHistory, s0 []float64, fs *factors.Set, annualize int) ([]float64, error) {
	returns := h.PctChange()
	if fs.Cadence == factors.Weekly {
		returns = resampleWeeklyFriday(returns)
	}

	var (
		frows []factors.Row
		rrows [][]float64
	)
	for t, d := range returns.Dates {
		fr, ok := fs.Lookup(d)
		if !ok {
			continue
		}
		frows = append(frows, fr)
		rrows = append(rrows, returns.Rows[t])
	}

	obs := len(frows)
	if obs < regressors+1 {
		return nil, fmt.Errorf("%w: %d aligned observations, need at least %d for the regression", ErrInsufficientData, obs, regressors+1)
	}

	design := mat.NewDense(obs, regressors, nil)
	mkt := make([]float64, obs)
	smb := make([]float64, obs)
	hml := make([]float64, obs)
	rf := make([]float64, obs)
	for t, fr := range frows {
		mkt[t] = fr.MktRF / 100
		smb[t] = fr.SMB / 100
		hml[t] = fr.HML / 100
		rf[t] = fr.RF / 100
		design.Set(t, 0, 1)
		design.Set(t, 1, mkt[t])
		design.Set(t, 2, smb[t])
		design.Set(t, 3, hml[t])
	}
	factorMeans := []float64{stat.Mean(mkt, nil), stat.Mean(smb, nil), stat.Mean(hml, nil)}
	rfMean := stat.Mean(rf, nil)

	ev := make([]float64, len(h.Tickers))
	y := mat.NewVecDense(obs, nil)
	for i, ticker := range h.Tickers {
		for t := range rrows {
			y.SetVec(t, rrows[t][i])
		}
		var beta mat.VecDense
		if err := beta.SolveVec(design, y); err != nil {
			return nil, fmt.Errorf("%w: factor regression for %s: %v", ErrInsufficientData, ticker, err)
		}
		periodReturn := rfMean
		for k := 0; k < 3; k++ {
			periodReturn += beta.AtVec(k+1) * factorMeans[k]
		}
		ev[i] = s0[i] * math.Pow(1+periodReturn, float64(annualize))
	}
	return ev, nil
}

// resampleWeeklyFriday sums per-period returns into weekly buckets labeled
// by the Friday ending each week, matching the weekly factor dataset's
// period-end convention.
func resampleWeeklyFriday(h *alpaca.PriceHistory) *alpaca.PriceHistory {
	n := len(h.Tickers)
	sums := make(map[string][]float64)
	for t, d := range h.Dates {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		label := weekEndingFriday(day).Format("2006-01-02")
		row, ok := sums[label]
		if !ok {
			row = make([]float64, n)
			sums[label] = row
		}
		for i := 0; i < n; i++ {
			row[i] += h.Rows[t][i]
		}
	}

	labels := make([]string, 0, len(sums))
	for l := range sums {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	out := &alpaca.PriceHistory{Tickers: append([]string(nil), h.Tickers...)}
	for _, l := range labels {
		out.Dates = append(out.Dates, l)
		out.Rows = append(out.Rows, sums[l])
	}
	return out
}

// weekEndingFriday maps a date to the Friday closing its week; Saturday
// and Sunday roll forward into the next week.
func weekEndingFriday(t time.Time) time.Time {
	offset := (int(time.Friday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset)
}
