// Package ml holds the three fitted predictors and their shared registry.
package ml

import "errors"

var (
	// ErrNotFitted is returned when predict is called on an unfit model.
	ErrNotFitted = errors.New("model not fitted")

	// ErrUnknownHour is returned when the congestion table has no entry
	// for the requested hour.
	ErrUnknownHour = errors.New("unknown hour")

	// ErrInvalidInput is returned when a fit input is missing required
	// columns.
	ErrInvalidInput = errors.New("invalid fit input")

	// ErrFit marks a degenerate training window: too few rows after
	// cleaning or zero-variance inputs.
	ErrFit = errors.New("fit failed")
)
