package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// KMeans is Lloyd's algorithm with k-means++ seeding.
type KMeans struct {
	K       int
	Seed    int64
	MaxIter int
	Tol     float64

	centers  [][]float64
	centerSq []float64
	inertia  float64
}

func NewKMeans(k int, seed int64) *KMeans {
	return &KMeans{K: k, Seed: seed, MaxIter: 300, Tol: 1e-4}
}

// Fit clusters the rows. labels are ignored; use FitPredict to get the
// training assignments.
func (km *KMeans) Fit(features [][]float64, labels []int) error {
	_, err := km.FitPredict(features)
	return err
}

// FitPredict clusters the rows and returns each row's cluster.
func (km *KMeans) FitPredict(features [][]float64) ([]int, error) {
	if len(features) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	width := len(features[0])
	if err := checkWidth(features, width); err != nil {
		return nil, err
	}
	if km.K <= 0 {
		return nil, fmt.Errorf("kmeans: k must be positive, got %d", km.K)
	}
	if len(features) < km.K {
		return nil, fmt.Errorf("%w: kmeans needs at least %d rows, got %d", ErrTooFewSamples, km.K, len(features))
	}
	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = 300
	}

	rows := toSparseRows(features)
	rng := rand.New(rand.NewSource(km.Seed))
	tol := km.Tol * meanVariance(features)

	centers := initPlusPlus(rows, width, km.K, rng)
	centerSq := make([]float64, km.K)
	assign := make([]int, len(rows))
	dist := make([]float64, len(rows))

	for iter := 0; iter < maxIter; iter++ {
		for c := range centers {
			centerSq[c] = squaredNorm(centers[c])
		}
		for i, row := range rows {
			assign[i], dist[i] = nearest(row, centers, centerSq)
		}
		next := recompute(rows, assign, dist, width, km.K)
		var shift float64
		for c := range centers {
			for j := range centers[c] {
				d := centers[c][j] - next[c][j]
				shift += d * d
			}
		}
		centers = next
		if shift <= tol {
			break
		}
	}

	var inertia float64
	for c := range centers {
		centerSq[c] = squaredNorm(centers[c])
	}
	for i, row := range rows {
		assign[i], dist[i] = nearest(row, centers, centerSq)
		inertia += dist[i]
	}
	km.centers = centers
	km.centerSq = centerSq
	km.inertia = inertia
	return append([]int(nil), assign...), nil
}

// Predict returns the nearest centre of each row.
func (km *KMeans) Predict(features [][]float64) ([]int, error) {
	if km.centers == nil {
		return nil, ErrNotTrained
	}
	if err := checkWidth(features, len(km.centers[0])); err != nil {
		return nil, err
	}
	out := make([]int, len(features))
	for i, row := range features {
		out[i], _ = nearest(toSparse(row), km.centers, km.centerSq)
	}
	return out, nil
}

// Inertia is the sum of squared distances to the closest centre.
func (km *KMeans) Inertia() float64 { return km.inertia }

func nearest(row sparseRow, centers [][]float64, centerSq []float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c := range centers {
		d := row.sqDist(centers[c], centerSq[c])
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// initPlusPlus picks centres with probability proportional to squared
// distance, keeping the best of several candidates per step.
func initPlusPlus(rows []sparseRow, width, k int, rng *rand.Rand) [][]float64 {
	trials := 2 + int(math.Log(float64(k)))
	centers := make([][]float64, 0, k)
	first := densify(rows[rng.Intn(len(rows))], width)
	centers = append(centers, first)

	closest := make([]float64, len(rows))
	firstSq := squaredNorm(first)
	var pot float64
	for i, row := range rows {
		closest[i] = row.sqDist(first, firstSq)
		pot += closest[i]
	}

	for len(centers) < k {
		bestCand, bestPot := -1, math.Inf(1)
		var bestDist []float64
		for t := 0; t < trials; t++ {
			cand := sampleIndex(closest, pot, rng)
			candDense := densify(rows[cand], width)
			candSq := squaredNorm(candDense)
			newDist := make([]float64, len(rows))
			var newPot float64
			for i, row := range rows {
				newDist[i] = math.Min(closest[i], row.sqDist(candDense, candSq))
				newPot += newDist[i]
			}
			if newPot < bestPot {
				bestCand, bestPot, bestDist = cand, newPot, newDist
			}
		}
		centers = append(centers, densify(rows[bestCand], width))
		closest, pot = bestDist, bestPot
	}
	return centers
}

func sampleIndex(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.Intn(len(weights))
	}
	r := rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}

// recompute averages each cluster's members. An empty cluster takes the
// point currently farthest from its centre.
func recompute(rows []sparseRow, assign []int, dist []float64, width, k int) [][]float64 {
	centers := make([][]float64, k)
	counts := make([]int, k)
	for c := range centers {
		centers[c] = make([]float64, width)
	}
	for i, row := range rows {
		c := assign[i]
		counts[c]++
		for j, idx := range row.idx {
			centers[c][idx] += row.val[j]
		}
	}
	taken := make(map[int]bool)
	for c := range centers {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i := range rows {
			if !taken[i] && counts[assign[i]] > 1 && dist[i] > farDist {
				far, farDist = i, dist[i]
			}
		}
		if far < 0 {
			continue
		}
		taken[far] = true
		old := assign[far]
		for j, idx := range rows[far].idx {
			centers[old][idx] -= rows[far].val[j]
			centers[c][idx] += rows[far].val[j]
		}
		counts[old]--
		counts[c]++
		assign[far] = c
	}
	for c := range centers {
		if counts[c] == 0 {
			continue
		}
		inv := 1 / float64(counts[c])
		for j := range centers[c] {
			centers[c][j] *= inv
		}
	}
	return centers
}

func densify(row sparseRow, width int) []float64 {
	out := make([]float64, width)
	for j, idx := range row.idx {
		out[idx] = row.val[j]
	}
	return out
}

func meanVariance(features [][]float64) float64 {
	n := float64(len(features))
	width := len(features[0])
	if width == 0 {
		return 0
	}
	mean := make([]float64, width)
	for _, row := range features {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	var total float64
	for _, row := range features {
		for j, v := range row {
			d := v - mean[j]
			total += d * d
		}
	}
	return total / n / float64(width)
}

// majorityLabels maps every cluster in [0,k) to the most frequent training
// label among its members. Ties go to the label seen first in row order.
// Clusters with no members take the overall majority.
func majorityLabels(assign []int, labels []int, k int) map[int]int {
	counts := make([]map[int]int, k)
	order := make([][]int, k)
	for c := range counts {
		counts[c] = make(map[int]int)
	}
	for i, c := range assign {
		l := labels[i]
		if counts[c][l] == 0 {
			order[c] = append(order[c], l)
		}
		counts[c][l]++
	}
	fallback := firstMajority(labels)
	out := make(map[int]int, k)
	for c := 0; c < k; c++ {
		if len(order[c]) == 0 {
			out[c] = fallback
			continue
		}
		best := order[c][0]
		for _, l := range order[c][1:] {
			if counts[c][l] > counts[c][best] {
				best = l
			}
		}
		out[c] = best
	}
	return out
}

func firstMajority(labels []int) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, l := range labels {
		counts[l]++
	}
	for _, l := range labels {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}
