package pipeline

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	clusterIterations = 25

	// minClusterSeparation is the smallest standardized centroid gap that
	// counts as two genuine clusters. Splitting a single mode in half lands
	// well under this; a detached outlier group lands well over it.
	minClusterSeparation = 2.5

	// maxOutlierShare bounds how much of the batch the minority cluster may
	// hold and still be treated as anomalous.
	maxOutlierShare = 0.25
)

// ClusterOutlierRule partitions the standardized fare-per-second values into
// exactly two clusters and keeps the majority cluster. It is a coarse
// anomaly filter, not a partitioner: the clusters carry no semantic labels,
// the tie-break is purely on size, and the drop only fires when the two
// centroids are far apart and the minority is small. A homogeneous batch
// passes through unchanged, which keeps the full chain idempotent.
type ClusterOutlierRule struct{}

func (ClusterOutlierRule) Name() string { return "cluster_outliers" }

func (ClusterOutlierRule) Apply(rows []FeatureRow) []FeatureRow {
	if len(rows) < 2 {
		return rows
	}

	values := make([]float64, len(rows))
	for i, row := range rows {
		values[i] = row.FarePerSec
	}
	standardized, ok := standardize(values)
	if !ok {
		return rows
	}

	assignments, centroids := twoMeans(standardized)

	var sizes [2]int
	for _, a := range assignments {
		sizes[a]++
	}
	majority := 0
	if sizes[1] > sizes[0] {
		majority = 1
	}
	minority := len(rows) - sizes[majority]
	if minority == 0 {
		return rows
	}

	gap := math.Abs(centroids[1] - centroids[0])
	share := float64(minority) / float64(len(rows))
	if gap < minClusterSeparation || share > maxOutlierShare {
		return rows
	}

	kept := make([]FeatureRow, 0, sizes[majority])
	for i, row := range rows {
		if assignments[i] == majority {
			kept = append(kept, row)
		}
	}
	return kept
}

// standardize maps values to zero mean and unit variance. Returns false when
// the values have no spread.
func standardize(values []float64) ([]float64, bool) {
	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 || math.IsNaN(std) {
		return nil, false
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out, true
}

// twoMeans runs Lloyd's algorithm with k=2 on a single dimension, seeding
// the centroids at the extremes. Returns the assignments and the final
// centroids.
func twoMeans(values []float64) ([]int, [2]float64) {
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	centroids := [2]float64{lo, hi}
	assignments := make([]int, len(values))

	for iter := 0; iter < clusterIterations; iter++ {
		changed := false
		for i, v := range values {
			cluster := 0
			if math.Abs(v-centroids[1]) < math.Abs(v-centroids[0]) {
				cluster = 1
			}
			if assignments[i] != cluster {
				assignments[i] = cluster
				changed = true
			}
		}

		var sums [2]float64
		var counts [2]int
		for i, v := range values {
			sums[assignments[i]] += v
			counts[assignments[i]]++
		}
		for c := 0; c < 2; c++ {
			if counts[c] > 0 {
				centroids[c] = sums[c] / float64(counts[c])
			}
		}
		if !changed && iter > 0 {
			break
		}
	}
	return assignments, centroids
}
