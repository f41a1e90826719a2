package ml

import (
	"sync/atomic"
	"time"
)

// Snapshot is one complete set of fitted predictors. Snapshots are built
// off to the side during training and installed whole, so readers never see
// a partially updated model set.
type Snapshot struct {
	Congestion *CongestionModel
	Fare       *FareModel
	Tip        *TipModel

	FittedAt   time.Time
	Generation uint64
}

// Ready reports whether all three predictors are fitted.
func (s *Snapshot) Ready() bool {
	return s != nil && s.Congestion.Fitted() && s.Fare.Fitted() && s.Tip.Fitted()
}

// Registry is the shared, atomically swapped model container. It starts
// empty; a successful INIT replaces the snapshot wholesale.
type Registry struct {
	current atomic.Pointer[Snapshot]
	gen     atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the installed snapshot, or nil before the first
// successful training.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Ready reports whether a complete snapshot is installed.
func (r *Registry) Ready() bool {
	return r.Current().Ready()
}

// Swap installs a fully fitted snapshot, stamping its generation, and
// returns that generation. Later swaps win over earlier ones.
func (r *Registry) Swap(s *Snapshot) uint64 {
	s.Generation = r.gen.Add(1)
	r.current.Store(s)
	return s.Generation
}
