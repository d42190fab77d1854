package cluster

import "math/rand"

const (
	// maxIterations caps the final clustering run.
	maxIterations = 50

	// elbowIterations caps each exploratory run during k selection; elbow
	// trials only need a rough inertia, not a converged partition.
	elbowIterations = 10
)

// kmeans runs Lloyd's algorithm on normalized feature vectors and returns
// the per-point labels, the final centroids and the inertia (sum of squared
// point-to-centroid distances).
//
// Centroids start at k distinct row positions sampled without replacement.
// A centroid that loses all its points keeps its previous position. The
// loop stops early once an iteration leaves every assignment unchanged.
func kmeans(points [][]float64, k, maxIter int, rng *rand.Rand) (labels []int, centroids [][]float64, inertia float64) {
	dims := len(points[0])

	centroids = make([][]float64, k)
	for i, idx := range rng.Perm(len(points))[:k] {
		c := make([]float64, dims)
		copy(c, points[idx])
		centroids[i] = c
	}

	labels = make([]int, len(points))
	prev := make([]int, len(points))
	for i := range prev {
		prev[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		for i, p := range points {
			labels[i] = nearestCentroid(p, centroids)
		}

		stable := true
		for i := range labels {
			if labels[i] != prev[i] {
				stable = false
				break
			}
		}
		if stable {
			break
		}
		copy(prev, labels)

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dims)
		}
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	for i, p := range points {
		inertia += squaredDistance(p, centroids[labels[i]])
	}
	return labels, centroids, inertia
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best := 0
	bestDist := squaredDistance(p, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := squaredDistance(p, centroids[c]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// elbowK picks a cluster count by running bounded trials for each candidate
// k in [2, min(8, rowCount/5)] and locating the largest second difference
// of consecutive inertias. The returned k is clamped to [2, 6]; anything
// outside that range degenerates into one blob or confetti.
func elbowK(points [][]float64, seed int64) int {
	const (
		candidateMax = 8
		clampMin     = 2
		clampMax     = 6
		fallbackK    = 3
	)

	upper := len(points) / 5
	if upper > candidateMax {
		upper = candidateMax
	}

	k := fallbackK
	if upper >= 2 {
		var ks []int
		var inertias []float64
		for candidate := 2; candidate <= upper; candidate++ {
			rng := rand.New(rand.NewSource(seed + int64(candidate)))
			_, _, inertia := kmeans(points, candidate, elbowIterations, rng)
			ks = append(ks, candidate)
			inertias = append(inertias, inertia)
		}

		if len(inertias) >= 3 {
			bestIdx, bestDiff := 1, -1.0
			for i := 1; i < len(inertias)-1; i++ {
				drop := inertias[i-1] - inertias[i]
				next := inertias[i] - inertias[i+1]
				diff := drop - next
				if diff < 0 {
					diff = -diff
				}
				if diff > bestDiff {
					bestIdx, bestDiff = i, diff
				}
			}
			k = ks[bestIdx]
		}
	}

	if k < clampMin {
		k = clampMin
	}
	if k > clampMax {
		k = clampMax
	}
	if k > len(points) {
		k = len(points)
	}
	return k
}
