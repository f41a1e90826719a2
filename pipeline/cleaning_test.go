package pipeline

import (
	"math"
	"testing"
	"time"

	"farecast/trips"
)

func featureRow(distance, passengers, durationSecs, fare float64) FeatureRow {
	pickup := time.Date(2023, 6, 15, 9, 0, 0, 0, time.UTC)
	return FeatureRow{
		TripRecord: trips.TripRecord{
			PickupTime:     pickup,
			DropoffTime:    pickup.Add(time.Duration(durationSecs) * time.Second),
			PassengerCount: passengers,
			TripDistance:   distance,
			FareAmount:     fare,
			TipAmount:      1.0,
			TollsAmount:    0.5,
			TotalAmount:    fare + 1.5,
		},
		TripTimeSecs: durationSecs,
		FarePerSec:   fare / durationSecs,
		Hour:         9,
	}
}

func TestMissingFieldsRule(t *testing.T) {
	good := featureRow(2.0, 1, 600, 9.5)
	missingTip := featureRow(2.0, 1, 600, 9.5)
	missingTip.TipAmount = math.NaN()

	kept := MissingFieldsRule{}.Apply([]FeatureRow{good, missingTip})
	if len(kept) != 1 {
		t.Fatalf("kept %d rows, want 1", len(kept))
	}
}

func TestPlausibilityRule(t *testing.T) {
	tests := []struct {
		name string
		row  FeatureRow
		keep bool
	}{
		{"valid", featureRow(2.0, 1, 600, 9.5), true},
		{"zero distance", featureRow(0, 1, 600, 9.5), false},
		{"too far", featureRow(40, 1, 600, 9.5), false},
		{"too short", featureRow(0.05, 1, 600, 9.5), false},
		{"too many passengers", featureRow(2.0, 6, 600, 9.5), false},
		{"too quick", featureRow(2.0, 1, 120, 9.5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := PlausibilityRule{}.Apply([]FeatureRow{tt.row})
			if (len(kept) == 1) != tt.keep {
				t.Errorf("keep = %v, want %v", len(kept) == 1, tt.keep)
			}
		})
	}
}

func TestPlausibilityRuleDurationZScore(t *testing.T) {
	outlier := featureRow(2.0, 1, 600, 9.5)
	outlier.TripTimeZ = 2.5

	kept := PlausibilityRule{}.Apply([]FeatureRow{outlier})
	if len(kept) != 0 {
		t.Error("row with |z| >= 2 should be dropped")
	}
}

func TestNonPositiveRule(t *testing.T) {
	good := featureRow(2.0, 1, 600, 9.5)
	negativeFare := featureRow(2.0, 1, 600, -4.0)
	zeroTip := featureRow(2.0, 1, 600, 9.5)
	zeroTip.TipAmount = 0

	kept := NonPositiveRule{}.Apply([]FeatureRow{good, negativeFare, zeroTip})
	if len(kept) != 1 {
		t.Fatalf("kept %d rows, want 1", len(kept))
	}
}

func TestCleanerIdempotent(t *testing.T) {
	rows := []FeatureRow{
		featureRow(2.0, 1, 600, 9.5),
		featureRow(5.0, 2, 900, 15.5),
		featureRow(0, 1, 600, 9.5),    // dropped: zero distance
		featureRow(2.0, 1, 120, 9.5),  // dropped: too quick
		featureRow(2.0, 1, 600, -1.0), // dropped: negative fare
	}

	first := NewCleaner(false).Clean(rows)
	if len(first) != 2 {
		t.Fatalf("first pass kept %d rows, want 2", len(first))
	}

	second := NewCleaner(false).Clean(first)
	if len(second) != len(first) {
		t.Errorf("second pass changed the batch: %d -> %d rows", len(first), len(second))
	}
}

func TestCleanerStats(t *testing.T) {
	cleaner := NewCleaner(false)
	cleaner.Clean([]FeatureRow{
		featureRow(2.0, 1, 600, 9.5),
		featureRow(0, 1, 600, 9.5),
	})

	stats := cleaner.Stats()
	if stats.TotalIn != 2 {
		t.Errorf("TotalIn = %d, want 2", stats.TotalIn)
	}
	if stats.Kept != 1 {
		t.Errorf("Kept = %d, want 1", stats.Kept)
	}
	if stats.DroppedByRule["plausibility"] != 1 {
		t.Errorf("plausibility drops = %d, want 1", stats.DroppedByRule["plausibility"])
	}
}

func TestClusterOutlierRuleKeepsMajority(t *testing.T) {
	var rows []FeatureRow
	// Tight majority around 0.015 $/s plus a small far-away cluster.
	for i := 0; i < 40; i++ {
		row := featureRow(2.0, 1, 600, 9.0+float64(i%5)*0.1)
		rows = append(rows, row)
	}
	for i := 0; i < 4; i++ {
		row := featureRow(2.0, 1, 600, 9.5)
		row.FarePerSec = 5.0 + float64(i)*0.1
		rows = append(rows, row)
	}

	kept := ClusterOutlierRule{}.Apply(rows)
	if len(kept) != 40 {
		t.Fatalf("kept %d rows, want the 40-row majority cluster", len(kept))
	}
	for _, row := range kept {
		if row.FarePerSec > 1 {
			t.Errorf("outlier survived with fare/sec %v", row.FarePerSec)
		}
	}
}

func TestClusterOutlierRuleUnimodalPassThrough(t *testing.T) {
	var rows []FeatureRow
	for i := 0; i < 40; i++ {
		rows = append(rows, featureRow(2.0, 1, 600, 9.0+float64(i%5)*0.1))
	}

	kept := ClusterOutlierRule{}.Apply(rows)
	if len(kept) != len(rows) {
		t.Errorf("unimodal batch split: kept %d of %d rows", len(kept), len(rows))
	}
}

func TestCleanerWithClusterFilterIdempotent(t *testing.T) {
	var rows []FeatureRow
	for i := 0; i < 40; i++ {
		rows = append(rows, featureRow(2.0, 1, 600, 9.0+float64(i%5)*0.1))
	}
	for i := 0; i < 4; i++ {
		row := featureRow(2.0, 1, 600, 9.5)
		row.FarePerSec = 5.0 + float64(i)*0.1
		rows = append(rows, row)
	}

	first := NewCleaner(true).Clean(rows)
	if len(first) != 40 {
		t.Fatalf("first pass kept %d rows, want 40", len(first))
	}
	second := NewCleaner(true).Clean(first)
	if len(second) != len(first) {
		t.Errorf("chain not idempotent: %d -> %d rows", len(first), len(second))
	}
}

func TestClusterOutlierRuleNoSpread(t *testing.T) {
	rows := []FeatureRow{
		featureRow(2.0, 1, 600, 9.5),
		featureRow(2.0, 1, 600, 9.5),
	}
	kept := ClusterOutlierRule{}.Apply(rows)
	if len(kept) != 2 {
		t.Errorf("zero-spread batch should pass through, kept %d", len(kept))
	}
}
