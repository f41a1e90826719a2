package ml

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"farecast/trips"
)

func tipColumns(n int) trips.Columns {
	distances := make([]float64, n)
	tips := make([]float64, n)
	for i := 0; i < n; i++ {
		d := 0.5 + 0.05*float64(i)
		distances[i] = d
		tips[i] = 0.5*d + 1
	}
	return trips.Columns{"trip_distance": distances, "tip_amount": tips}
}

func TestFitTipsMissingColumns(t *testing.T) {
	tests := []struct {
		name string
		cols trips.Columns
	}{
		{"no distance", trips.Columns{"tip_amount": {1, 2, 3}}},
		{"no tip", trips.Columns{"trip_distance": {1, 2, 3}}},
		{"empty", trips.Columns{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FitTips(tt.cols); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestFitTipsLengthMismatch(t *testing.T) {
	cols := trips.Columns{
		"trip_distance": {1, 2, 3},
		"tip_amount":    {1, 2},
	}
	if _, err := FitTips(cols); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestFitTipsTooFewRows(t *testing.T) {
	cols := trips.Columns{
		"trip_distance": {1, 2},
		"tip_amount":    {1, 2},
	}
	if _, err := FitTips(cols); !errors.Is(err, ErrFit) {
		t.Errorf("err = %v, want ErrFit", err)
	}
}

func TestTipModelLearnsIncreasingTips(t *testing.T) {
	model, err := FitTips(tipColumns(200))
	if err != nil {
		t.Fatalf("FitTips: %v", err)
	}

	short, err := model.Predict(1.0)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	long, err := model.Predict(9.0)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if short <= 0 || long <= 0 {
		t.Errorf("predictions should be positive: short=%v long=%v", short, long)
	}
	if long <= short {
		t.Errorf("tip should grow with distance: short=%v long=%v", short, long)
	}
	// The boosted ensemble should land near the generating relation.
	if math.Abs(short-1.5) > 0.5 {
		t.Errorf("Predict(1.0) = %v, want near 1.5", short)
	}
	if math.Abs(long-5.5) > 0.75 {
		t.Errorf("Predict(9.0) = %v, want near 5.5", long)
	}
}

func TestTipModelPredictNotFitted(t *testing.T) {
	var model *TipModel
	if _, err := model.Predict(5); !errors.Is(err, ErrNotFitted) {
		t.Errorf("err = %v, want ErrNotFitted", err)
	}
	empty := &TipModel{}
	if _, err := empty.Predict(5); !errors.Is(err, ErrNotFitted) {
		t.Errorf("err = %v, want ErrNotFitted", err)
	}
}

func TestTipModelSaveLoad(t *testing.T) {
	model, err := FitTips(tipColumns(100))
	if err != nil {
		t.Fatalf("FitTips: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tips.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := &TipModel{}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	want, _ := model.Predict(4.2)
	got, err := loaded.Predict(4.2)
	if err != nil {
		t.Fatalf("Predict after load: %v", err)
	}
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("loaded model predicts %v, original %v", got, want)
	}
}
