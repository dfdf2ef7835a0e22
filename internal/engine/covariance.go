package engine

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"folio-optimizer/internal/alpaca"
)

// Covariance estimates the annualized covariance matrix of per-period
// dollar price changes. Entry (i,j) pairs the tickers at positions i and j
// of the history; the result is not yet normalized by price (the solver
// does that, since it owns the current price vector).
func Covariance(h *alpaca.PriceHistory, annualize int) (*mat.SymDense, error) {
	d := h.Diff()
	if len(d.Rows) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 price changes, have %d", ErrInsufficientData, len(d.Rows))
	}

	n := len(h.Tickers)
	cov := mat.NewSymDense(n, nil)
	cols := make([][]float64, n)
	for i := 0; i < n; i++ {
		cols[i] = d.Column(i)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, stat.Covariance(cols[i], cols[j], nil)*float64(annualize))
		}
	}
	return cov, nil
}
