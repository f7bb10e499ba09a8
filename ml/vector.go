package ml

import (
	"fmt"
	"math"
)

// sparseRow keeps only the non-zero entries of a row plus its squared norm.
// Bag-of-words rows are mostly zeros.
type sparseRow struct {
	idx []int
	val []float64
	sq  float64
}

func toSparse(row []float64) sparseRow {
	var s sparseRow
	for i, v := range row {
		if v != 0 {
			s.idx = append(s.idx, i)
			s.val = append(s.val, v)
			s.sq += v * v
		}
	}
	return s
}

func toSparseRows(rows [][]float64) []sparseRow {
	out := make([]sparseRow, len(rows))
	for i, row := range rows {
		out[i] = toSparse(row)
	}
	return out
}

func (s sparseRow) dot(dense []float64) float64 {
	var sum float64
	for j, i := range s.idx {
		sum += s.val[j] * dense[i]
	}
	return sum
}

// sqDist is ||s - dense||^2 given the squared norm of dense.
func (s sparseRow) sqDist(dense []float64, denseSq float64) float64 {
	d := s.sq - 2*s.dot(dense) + denseSq
	if d < 0 {
		return 0
	}
	return d
}

func squaredNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return sum
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func maxValue(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[argmax(values)]
}

func validate(features [][]float64, labels []int) (int, error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, ErrEmptyTrainingSet
	}
	if len(features) != len(labels) {
		return 0, ErrShapeMismatch
	}
	for _, l := range labels {
		if l < 0 {
			return 0, fmt.Errorf("negative label %d", l)
		}
	}
	width := len(features[0])
	for _, row := range features {
		if len(row) != width {
			return 0, ErrShapeMismatch
		}
	}
	return width, nil
}

func numClasses(labels []int) int {
	n := 0
	for _, l := range labels {
		if l+1 > n {
			n = l + 1
		}
	}
	return n
}

func checkWidth(features [][]float64, width int) error {
	for _, row := range features {
		if len(row) != width {
			return ErrShapeMismatch
		}
	}
	return nil
}
