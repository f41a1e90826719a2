package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"farecast/ml"
	"farecast/pipeline"
	"farecast/trips"
)

// minTrainingRows is the smallest cleaned batch the models will fit on.
const minTrainingRows = 10

// Trainer runs the INIT path: pull the window, clean it, fit all three
// models and swap the registry. Failures leave the prior snapshot
// installed. Concurrent INITs are serialized; the last completed writer
// wins.
type Trainer struct {
	source   trips.Puller
	registry *ml.Registry
	cleaner  *pipeline.Cleaner
	log      *zap.Logger

	mu sync.Mutex
}

// NewTrainer wires a trainer against a trip source and the shared registry.
func NewTrainer(source trips.Puller, registry *ml.Registry, cleaner *pipeline.Cleaner, log *zap.Logger) *Trainer {
	return &Trainer{
		source:   source,
		registry: registry,
		cleaner:  cleaner,
		log:      log,
	}
}

// Train executes one end-to-end training run.
func (t *Trainer) Train(ctx context.Context, req InitRequest) (*TrainingResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	started := time.Now()
	t.log.Info("training started",
		zap.Time("tr_start", req.TrStart),
		zap.Time("tr_end", req.TrEnd),
		zap.String("db_host", req.Conn.Host),
		zap.String("db_name", req.Conn.Name))

	records, err := t.source.Pull(ctx, req.Conn, req.TrStart, req.TrEnd)
	if err != nil {
		return nil, err
	}

	rows := t.cleaner.Clean(pipeline.Derive(records))
	if len(rows) < minTrainingRows {
		return nil, fmt.Errorf("%w: %d rows after cleaning, need %d",
			ml.ErrFit, len(rows), minTrainingRows)
	}

	congestion, err := ml.FitCongestion(rows)
	if err != nil {
		return nil, err
	}

	distances := make([]float64, len(rows))
	fares := make([]float64, len(rows))
	cleaned := make([]trips.TripRecord, len(rows))
	for i, row := range rows {
		distances[i] = row.TripDistance
		fares[i] = row.FareAmount
		cleaned[i] = row.TripRecord
	}

	fare, err := ml.FitFare(distances, fares)
	if err != nil {
		return nil, err
	}

	tip, err := ml.FitTips(trips.Project(cleaned, "trip_distance", "tip_amount"))
	if err != nil {
		return nil, err
	}

	generation := t.registry.Swap(&ml.Snapshot{
		Congestion: congestion,
		Fare:       fare,
		Tip:        tip,
		FittedAt:   time.Now(),
	})

	result := &TrainingResult{
		Generation: generation,
		WindowFrom: req.TrStart,
		WindowTo:   req.TrEnd,
		RowsPulled: len(records),
		RowsKept:   len(rows),
		Duration:   time.Since(started),
		Cleaning:   t.cleaner.Stats(),
		FinishedAt: time.Now(),
	}
	t.log.Info("training completed",
		zap.Uint64("generation", generation),
		zap.Int("rows_pulled", result.RowsPulled),
		zap.Int("rows_kept", result.RowsKept),
		zap.Duration("duration", result.Duration))
	return result, nil
}
