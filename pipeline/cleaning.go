package pipeline

import (
	"math"
	"sync"
	"time"

	"farecast/trips"
)

// FilterRule removes rows from a feature batch. Rules see the whole batch
// because several filters depend on batch-level statistics.
type FilterRule interface {
	Apply([]FeatureRow) []FeatureRow
	Name() string
}

// CleaningStats summarizes what the filter chain removed.
type CleaningStats struct {
	TotalIn       int64            `json:"total_in"`
	Kept          int64            `json:"kept"`
	DroppedByRule map[string]int64 `json:"dropped_by_rule"`
	LastClean     time.Time        `json:"last_clean"`
}

// Cleaner applies an ordered chain of filter rules.
type Cleaner struct {
	rules []FilterRule

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewCleaner builds the standard chain: missing quantitative fields,
// implausible values, non-positive monetary fields. The optional two-cluster
// outlier partition is appended when withClusterFilter is set.
func NewCleaner(withClusterFilter bool) *Cleaner {
	cleaner := &Cleaner{
		stats: CleaningStats{DroppedByRule: make(map[string]int64)},
	}
	cleaner.AddRule(MissingFieldsRule{})
	cleaner.AddRule(PlausibilityRule{})
	cleaner.AddRule(NonPositiveRule{})
	if withClusterFilter {
		cleaner.AddRule(ClusterOutlierRule{})
	}
	return cleaner
}

// AddRule appends a rule to the chain.
func (c *Cleaner) AddRule(rule FilterRule) {
	c.rules = append(c.rules, rule)
}

// Clean runs the chain in order and records per-rule drop counts.
func (c *Cleaner) Clean(rows []FeatureRow) []FeatureRow {
	c.statsLock.Lock()
	defer c.statsLock.Unlock()

	c.stats.TotalIn += int64(len(rows))
	for _, rule := range c.rules {
		before := len(rows)
		rows = rule.Apply(rows)
		if dropped := before - len(rows); dropped > 0 {
			c.stats.DroppedByRule[rule.Name()] += int64(dropped)
		}
	}
	c.stats.Kept += int64(len(rows))
	c.stats.LastClean = time.Now()
	return rows
}

// Stats returns a copy of the accumulated cleaning statistics.
func (c *Cleaner) Stats() CleaningStats {
	c.statsLock.RLock()
	defer c.statsLock.RUnlock()

	out := c.stats
	out.DroppedByRule = make(map[string]int64, len(c.stats.DroppedByRule))
	for k, v := range c.stats.DroppedByRule {
		out.DroppedByRule[k] = v
	}
	return out
}

// MissingFieldsRule drops rows with a NaN in any quantitative field.
type MissingFieldsRule struct{}

func (MissingFieldsRule) Name() string { return "missing_fields" }

func (MissingFieldsRule) Apply(rows []FeatureRow) []FeatureRow {
	kept := make([]FeatureRow, 0, len(rows))
	for _, row := range rows {
		ok := true
		for _, field := range trips.QuantFields {
			if math.IsNaN(row.Quant(field)) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, row)
		}
	}
	return kept
}

// PlausibilityRule drops rows outside the physical bounds of a NYC taxi
// trip: distance in [0.1, 35) and nonzero, at most 5 passengers, at least
// 300 seconds of trip time, and a duration z-score magnitude under 2.
type PlausibilityRule struct{}

func (PlausibilityRule) Name() string { return "plausibility" }

func (PlausibilityRule) Apply(rows []FeatureRow) []FeatureRow {
	kept := make([]FeatureRow, 0, len(rows))
	for _, row := range rows {
		if row.TripDistance == 0 ||
			row.TripDistance >= 35 ||
			row.TripDistance < 0.1 ||
			row.PassengerCount > 5 ||
			row.TripTimeSecs < 300 ||
			math.Abs(row.TripTimeZ) >= 2 {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// NonPositiveRule drops rows where any quantitative field is zero or
// negative.
type NonPositiveRule struct{}

func (NonPositiveRule) Name() string { return "non_positive" }

func (NonPositiveRule) Apply(rows []FeatureRow) []FeatureRow {
	kept := make([]FeatureRow, 0, len(rows))
	for _, row := range rows {
		ok := true
		for _, field := range trips.QuantFields {
			if row.Quant(field) <= 0 {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, row)
		}
	}
	return kept
}
