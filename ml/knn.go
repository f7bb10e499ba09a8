package ml

import (
	"fmt"
	"sort"
)

// KNN votes among the K nearest training rows by Euclidean distance.
type KNN struct {
	K int

	rows    []sparseRow
	labels  []int
	classes int
	width   int
}

func NewKNN(k int) *KNN { return &KNN{K: k} }

func (m *KNN) Fit(features [][]float64, labels []int) error {
	width, err := validate(features, labels)
	if err != nil {
		return err
	}
	if m.K <= 0 {
		return fmt.Errorf("knn: k must be positive, got %d", m.K)
	}
	if m.K > len(features) {
		return fmt.Errorf("%w: knn needs k <= samples (k=%d, samples=%d)", ErrTooFewSamples, m.K, len(features))
	}
	m.rows = toSparseRows(features)
	m.labels = append([]int(nil), labels...)
	m.classes = numClasses(labels)
	m.width = width
	return nil
}

func (m *KNN) Predict(features [][]float64) ([]int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = argmax(p)
	}
	return out, nil
}

// PredictProba returns the vote share of each class among the neighbours.
func (m *KNN) PredictProba(features [][]float64) ([][]float64, error) {
	if m.rows == nil {
		return nil, ErrNotTrained
	}
	if err := checkWidth(features, m.width); err != nil {
		return nil, err
	}
	type neighbour struct {
		dist float64
		idx  int
	}
	out := make([][]float64, len(features))
	cand := make([]neighbour, len(m.rows))
	for i, q := range features {
		qSq := squaredNorm(q)
		for j, row := range m.rows {
			cand[j] = neighbour{dist: row.sqDist(q, qSq), idx: j}
		}
		sort.Slice(cand, func(a, b int) bool {
			if cand[a].dist != cand[b].dist {
				return cand[a].dist < cand[b].dist
			}
			return cand[a].idx < cand[b].idx
		})
		votes := make([]int, m.classes)
		for _, nb := range cand[:m.K] {
			votes[m.labels[nb.idx]]++
		}
		proba := make([]float64, m.classes)
		for c, v := range votes {
			proba[c] = float64(v) / float64(m.K)
		}
		out[i] = proba
	}
	return out, nil
}
