package server

import (
	"sync/atomic"
	"time"

	"farecast/pipeline"
)

// Metrics are the server's runtime counters, read by the monitoring hub.
type Metrics struct {
	activeSessions     atomic.Int64
	totalSessions      atomic.Int64
	rejectedSessions   atomic.Int64
	trainings          atomic.Int64
	trainingFailures   atomic.Int64
	predictions        atomic.Int64
	predictionFailures atomic.Int64
	cacheHits          atomic.Int64

	lastTraining atomic.Pointer[TrainingResult]
}

// TrainingResult describes one completed training run.
type TrainingResult struct {
	Generation uint64                 `json:"generation"`
	WindowFrom time.Time              `json:"window_from"`
	WindowTo   time.Time              `json:"window_to"`
	RowsPulled int                    `json:"rows_pulled"`
	RowsKept   int                    `json:"rows_kept"`
	Duration   time.Duration          `json:"duration"`
	Cleaning   pipeline.CleaningStats `json:"cleaning"`
	FinishedAt time.Time              `json:"finished_at"`
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	ActiveSessions     int64           `json:"active_sessions"`
	TotalSessions      int64           `json:"total_sessions"`
	RejectedSessions   int64           `json:"rejected_sessions"`
	Trainings          int64           `json:"trainings"`
	TrainingFailures   int64           `json:"training_failures"`
	Predictions        int64           `json:"predictions"`
	PredictionFailures int64           `json:"prediction_failures"`
	CacheHits          int64           `json:"cache_hits"`
	LastTraining       *TrainingResult `json:"last_training,omitempty"`
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		ActiveSessions:     m.activeSessions.Load(),
		TotalSessions:      m.totalSessions.Load(),
		RejectedSessions:   m.rejectedSessions.Load(),
		Trainings:          m.trainings.Load(),
		TrainingFailures:   m.trainingFailures.Load(),
		Predictions:        m.predictions.Load(),
		PredictionFailures: m.predictionFailures.Load(),
		CacheHits:          m.cacheHits.Load(),
		LastTraining:       m.lastTraining.Load(),
	}
}
