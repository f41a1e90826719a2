package ml

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	// minFareAmount excludes degenerate and flat-rate fares from the fit.
	minFareAmount = 3.0

	// ratioQuantile keeps only the lowest tail of the fare-per-distance
	// ratio, isolating the fare-vs-distance relationship from surcharges,
	// waiting time and multi-stop trips.
	ratioQuantile = 0.03
)

// FareModel is a line fit of fare on trip distance.
type FareModel struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`

	fitted bool
}

// FitFare fits ordinary least squares of fare on distance over the
// low-ratio tail of fare-per-distance.
func FitFare(distances, fares []float64) (*FareModel, error) {
	if len(distances) != len(fares) {
		return nil, fmt.Errorf("%w: distance/fare length mismatch", ErrInvalidInput)
	}

	var dists, amounts, ratios []float64
	for i, fare := range fares {
		if fare < minFareAmount || distances[i] <= 0 {
			continue
		}
		dists = append(dists, distances[i])
		amounts = append(amounts, fare)
		ratios = append(ratios, fare/distances[i])
	}
	if len(dists) < 2 {
		return nil, fmt.Errorf("%w: %d usable fares", ErrFit, len(dists))
	}

	sorted := append([]float64(nil), ratios...)
	sort.Float64s(sorted)
	cutoff := stat.Quantile(ratioQuantile, stat.Empirical, sorted, nil)

	var x, y []float64
	for i, ratio := range ratios {
		if ratio <= cutoff {
			x = append(x, dists[i])
			y = append(y, amounts[i])
		}
	}
	if len(x) < 2 {
		return nil, fmt.Errorf("%w: low-ratio tail too small", ErrFit)
	}
	if !hasSpread(x) {
		return nil, fmt.Errorf("%w: zero variance in distances", ErrFit)
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	return &FareModel{Intercept: intercept, Slope: slope, fitted: true}, nil
}

// Predict returns slope*distance + intercept.
func (m *FareModel) Predict(distance float64) (float64, error) {
	if m == nil || !m.fitted {
		return 0, ErrNotFitted
	}
	return m.Slope*distance + m.Intercept, nil
}

// Fitted reports whether the coefficients have been estimated.
func (m *FareModel) Fitted() bool {
	return m != nil && m.fitted
}

func hasSpread(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return true
		}
	}
	return false
}
