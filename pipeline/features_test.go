package pipeline

import (
	"math"
	"testing"
	"time"

	"farecast/trips"
)

func TestHaversineSymmetry(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
	}{
		{"manhattan to jfk", 40.7580, -73.9855, 40.6413, -73.7781},
		{"crosstown", 40.7484, -73.9857, 40.7527, -73.9772},
		{"equator crossing", -1.0, 10.0, 1.0, -10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			ba := Haversine(tt.lat2, tt.lon2, tt.lat1, tt.lon1)
			if math.Abs(ab-ba) > 1e-12 {
				t.Errorf("Haversine not symmetric: %v vs %v", ab, ba)
			}
			if ab <= 0 {
				t.Errorf("Haversine between distinct points = %v, want > 0", ab)
			}
		})
	}
}

func TestHaversineZeroForSamePoint(t *testing.T) {
	if d := Haversine(40.7580, -73.9855, 40.7580, -73.9855); d != 0 {
		t.Errorf("Haversine(A, A) = %v, want 0", d)
	}
}

func TestRobustZScoresScaleInvariant(t *testing.T) {
	values := []float64{300, 420, 510, 620, 900, 1200, 450, 380}
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = v * 7.5
	}

	base, ok := RobustZScores(values)
	if !ok {
		t.Fatal("RobustZScores returned not ok for spread data")
	}
	rescaled, ok := RobustZScores(scaled)
	if !ok {
		t.Fatal("RobustZScores returned not ok for scaled data")
	}

	for i := range base {
		if math.Abs(base[i]-rescaled[i]) > 1e-9 {
			t.Errorf("z-score %d changed under scaling: %v vs %v", i, base[i], rescaled[i])
		}
	}
}

func TestRobustZScoresZeroMAD(t *testing.T) {
	if _, ok := RobustZScores([]float64{600, 600, 600, 600}); ok {
		t.Error("expected not ok when MAD is zero")
	}
}

func TestDeriveDropsNonPositiveDurations(t *testing.T) {
	pickup := time.Date(2023, 6, 15, 14, 0, 0, 0, time.UTC)
	records := []trips.TripRecord{
		tripAt(pickup, 600, 2.0),
		tripAt(pickup, 0, 2.0),    // zero duration: undefined fare/sec
		tripAt(pickup, -120, 2.0), // clock skew
		tripAt(pickup, 720, 3.0),
		tripAt(pickup, 480, 1.5),
	}

	rows := Derive(records)
	if len(rows) != 3 {
		t.Fatalf("Derive kept %d rows, want 3", len(rows))
	}
	for _, row := range rows {
		if row.TripTimeSecs <= 0 {
			t.Errorf("kept row with duration %v", row.TripTimeSecs)
		}
		if math.IsInf(row.FarePerSec, 0) || math.IsNaN(row.FarePerSec) {
			t.Errorf("invalid fare per second %v", row.FarePerSec)
		}
	}
}

func TestDeriveFeatures(t *testing.T) {
	pickup := time.Date(2023, 6, 15, 14, 30, 0, 0, time.UTC)
	records := []trips.TripRecord{
		tripAt(pickup, 600, 2.0),
		tripAt(pickup, 900, 2.5),
		tripAt(pickup, 720, 3.0),
	}

	rows := Derive(records)
	if len(rows) != 3 {
		t.Fatalf("Derive kept %d rows, want 3", len(rows))
	}

	row := rows[0]
	if row.Hour != 14 {
		t.Errorf("Hour = %d, want 14", row.Hour)
	}
	if row.Weekday != "Thursday" {
		t.Errorf("Weekday = %q, want Thursday", row.Weekday)
	}

	wantCongestion := row.TripTimeSecs - row.StraightLineMiles/FreeFlowMilesPerSec
	if math.Abs(row.Congestion-wantCongestion) > 1e-9 {
		t.Errorf("Congestion = %v, want %v", row.Congestion, wantCongestion)
	}
}

// tripAt builds a plausible trip starting at pickup with the given duration
// in seconds and distance in miles.
func tripAt(pickup time.Time, durationSecs, distance float64) trips.TripRecord {
	fare := 2.5*distance + 3
	tip := fare * 0.2
	return trips.TripRecord{
		PickupTime:     pickup,
		DropoffTime:    pickup.Add(time.Duration(durationSecs) * time.Second),
		PickupLat:      40.7580,
		PickupLon:      -73.9855,
		DropoffLat:     40.7680,
		DropoffLon:     -73.9755,
		PassengerCount: 1,
		TripDistance:   distance,
		FareAmount:     fare,
		TipAmount:      tip,
		TollsAmount:    1.0,
		TotalAmount:    fare + tip + 1.0,
	}
}
