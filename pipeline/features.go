// Package pipeline derives per-trip features and cleans training batches.
package pipeline

import (
	"math"
	"sort"

	"farecast/trips"
)

const (
	// EarthRadiusMiles is the great-circle radius used for straight-line
	// trip distances.
	EarthRadiusMiles = 3956.0

	// FreeFlowMilesPerSec is the assumed cruise speed used to estimate the
	// free-flow trip time from the straight-line distance.
	FreeFlowMilesPerSec = 0.007

	// robustZFactor rescales the MAD so the robust z-score is comparable to
	// a standard-deviation z-score under normality.
	robustZFactor = 0.6745
)

// FeatureRow is a trip record enriched with the derived predictive signals.
type FeatureRow struct {
	trips.TripRecord

	TripTimeSecs      float64
	FarePerSec        float64
	TripTimeZ         float64
	Hour              int
	Weekday           string
	StraightLineMiles float64
	Congestion        float64
}

// Derive computes the feature set for a whole training batch. Rows whose
// trip duration is not positive are dropped before the fare-per-second
// divide; the duration z-score is computed over the rows that remain. When
// the MAD of durations is zero the z-score is undefined and no rows survive.
func Derive(records []trips.TripRecord) []FeatureRow {
	rows := make([]FeatureRow, 0, len(records))
	for _, r := range records {
		secs := r.DropoffTime.Sub(r.PickupTime).Seconds()
		if secs <= 0 {
			continue
		}
		straight := Haversine(r.PickupLat, r.PickupLon, r.DropoffLat, r.DropoffLon)
		rows = append(rows, FeatureRow{
			TripRecord:        r,
			TripTimeSecs:      secs,
			FarePerSec:        r.FareAmount / secs,
			Hour:              r.PickupTime.Hour(),
			Weekday:           r.PickupTime.Weekday().String(),
			StraightLineMiles: straight,
			Congestion:        secs - straight/FreeFlowMilesPerSec,
		})
	}

	durations := make([]float64, len(rows))
	for i, row := range rows {
		durations[i] = row.TripTimeSecs
	}
	zscores, ok := RobustZScores(durations)
	if !ok {
		return nil
	}
	for i := range rows {
		rows[i].TripTimeZ = zscores[i]
	}
	return rows
}

// RobustZScores computes median/MAD z-scores over the batch. The second
// return is false when the MAD is zero and the scores are undefined.
func RobustZScores(values []float64) ([]float64, bool) {
	if len(values) == 0 {
		return nil, false
	}
	med := median(values)

	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)
	if mad == 0 {
		return nil, false
	}

	scores := make([]float64, len(values))
	for i, v := range values {
		scores[i] = robustZFactor * (v - med) / mad
	}
	return scores, true
}

// Haversine returns the great-circle distance in miles between two
// lat/lon points given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return c * EarthRadiusMiles
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
