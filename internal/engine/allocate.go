package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RiskFreeKey is the output key for the cash/borrowing leg.
const RiskFreeKey = "risk-free asset"

// maxConditionNumber rejects factorizations that technically succeed but
// sit too close to singular to trust the solve.
const maxConditionNumber = 1e12

// Allocate computes the tangency-portfolio dollar allocation.
//
// rawCov is the annualized dollar-change covariance from Covariance; it is
// normalized here by s0_i*s0_j into return space ("risk per dollar")
// without mutating the input. The tangency direction y solves cov·y =
// (mu - riskFree), and lambda scales it so the portfolio's expected excess
// return equals desired - riskFree. Whatever capital the risky legs don't
// use (possibly negative, i.e. borrowing) goes to RiskFreeKey.
func Allocate(tickers []string, s0, ev []float64, rawCov *mat.SymDense, capital, riskFree, desired float64) (map[string]float64, error) {
	n := len(tickers)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty asset universe", ErrInsufficientData)
	}
	if len(s0) != n || len(ev) != n || rawCov.SymmetricDim() != n {
		return nil, fmt.Errorf("allocate: dimension mismatch: %d tickers, %d prices, %d projections, %d×%d covariance",
			n, len(s0), len(ev), rawCov.SymmetricDim(), rawCov.SymmetricDim())
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, rawCov.At(i, j)/(s0[i]*s0[j]))
		}
	}

	excess := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		mu := (ev[i] - s0[i]) / s0[i]
		excess.SetVec(i, mu-riskFree)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, fmt.Errorf("%w: check for duplicate or perfectly correlated tickers", ErrSingularCovariance)
	}
	if chol.Cond() > maxConditionNumber {
		return nil, fmt.Errorf("%w: condition number %.3g", ErrSingularCovariance, chol.Cond())
	}

	var y mat.VecDense
	if err := chol.SolveVecTo(&y, excess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularCovariance, err)
	}

	denom := mat.Dot(excess, &y)
	if math.Abs(denom) < 1e-12 {
		return nil, fmt.Errorf("%w: tangency direction has zero excess return", ErrUnachievableReturn)
	}
	lambda := capital * (desired - riskFree) / denom

	alloc := make(map[string]float64, n+1)
	var riskySum float64
	for i, tk := range tickers {
		x := lambda * y.AtVec(i)
		riskySum += x
		alloc[tk] = roundCents(x)
	}
	alloc[RiskFreeKey] = roundCents(capital - riskySum)
	return alloc, nil
}

// roundCents rounds to currency-cent precision, normalizing negative zero
// so a flat allocation serializes as 0, not -0.
func roundCents(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
