package engine

import "errors"

var (
	// ErrInsufficientData: too few aligned observations for covariance or
	// regression. The whole request fails; there is no partial result.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrSingularCovariance: the risk matrix cannot be factorized, which
	// means the asset set is degenerate (duplicate or collinear tickers).
	ErrSingularCovariance = errors.New("covariance matrix is singular")

	// ErrUnachievableReturn: the tangency direction carries no excess
	// return, so no scaling reaches the desired portfolio return.
	ErrUnachievableReturn = errors.New("desired return unachievable")
)
