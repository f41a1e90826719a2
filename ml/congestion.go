package ml

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"farecast/pipeline"
)

// CongestionModel maps hour-of-day to a multiplicative congestion factor.
// The table is immutable after fit.
type CongestionModel struct {
	multipliers map[int]float64
}

// FitCongestion builds the hour table from the positive congestion signal:
// per-hour mean congestion, z-scores across the hourly means, negative
// scores clamped to zero, passed through a logistic sigmoid. A sigmoid of
// exactly 0.5 (no signal) contributes a correction of 0, not 0.5, so quiet
// hours get a multiplier of exactly 1.
func FitCongestion(rows []pipeline.FeatureRow) (*CongestionModel, error) {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, row := range rows {
		if row.Congestion <= 0 {
			continue
		}
		sums[row.Hour] += row.Congestion
		counts[row.Hour]++
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: no positive congestion signal", ErrFit)
	}

	hours := make([]int, 0, len(counts))
	means := make([]float64, 0, len(counts))
	for hour := 0; hour < 24; hour++ {
		if counts[hour] > 0 {
			hours = append(hours, hour)
			means = append(means, sums[hour]/float64(counts[hour]))
		}
	}

	// Population deviation: the hourly means are the whole population of
	// hours, not a sample from one.
	mean := stat.Mean(means, nil)
	std := stat.PopStdDev(means, nil)

	multipliers := make(map[int]float64, len(hours))
	for i, hour := range hours {
		z := 0.0
		if std > 0 {
			z = (means[i] - mean) / std
		}
		if z < 0 {
			z = 0
		}
		correction := 1 / (1 + math.Exp(-z))
		if correction == 0.5 {
			correction = 0
		}
		multipliers[hour] = 1 + correction
	}

	return &CongestionModel{multipliers: multipliers}, nil
}

// Predict looks up the multiplier for the timestamp's hour.
func (m *CongestionModel) Predict(t time.Time) (float64, error) {
	if m == nil || m.multipliers == nil {
		return 0, ErrUnknownHour
	}
	multiplier, ok := m.multipliers[t.Hour()]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownHour, t.Hour())
	}
	return multiplier, nil
}

// Fitted reports whether the table has been built.
func (m *CongestionModel) Fitted() bool {
	return m != nil && len(m.multipliers) > 0
}

// Multipliers returns a copy of the hour table.
func (m *CongestionModel) Multipliers() map[int]float64 {
	out := make(map[int]float64, len(m.multipliers))
	for hour, v := range m.multipliers {
		out[hour] = v
	}
	return out
}
