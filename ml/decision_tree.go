package ml

import (
	"errors"
	"math"
	"sort"
)

// DecisionTree is a CART classifier split on gini impurity. Nodes live in a
// flat slice; children are absolute indices.
type DecisionTree struct {
	// MaxDepth limits tree depth; 0 grows until leaves are pure.
	MaxDepth int
	// MinSamplesSplit is the smallest node that may be split.
	MinSamplesSplit int

	nodes   []TreeNode
	classes int
	width   int
}

type TreeNode struct {
	FeatureIdx int
	Threshold  float64
	LeftChild  int
	RightChild int
	ClassLabel int
	Proba      []float64
	IsLeaf     bool
}

func NewDecisionTree() *DecisionTree { return &DecisionTree{MinSamplesSplit: 2} }

func (dt *DecisionTree) Fit(features [][]float64, labels []int) error {
	width, err := validate(features, labels)
	if err != nil {
		return err
	}
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	dt.nodes = nil
	dt.classes = numClasses(labels)
	dt.width = width

	idx := make([]int, len(features))
	for i := range idx {
		idx[i] = i
	}
	dt.buildNode(features, labels, idx, 0)
	return nil
}

// Depth returns the length of the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := dt.nodes[i]
		if n.IsLeaf {
			return 0
		}
		return 1 + max(walk(n.LeftChild), walk(n.RightChild))
	}
	return walk(0)
}

// Leaves counts terminal nodes.
func (dt *DecisionTree) Leaves() int {
	n := 0
	for _, node := range dt.nodes {
		if node.IsLeaf {
			n++
		}
	}
	return n
}

func (dt *DecisionTree) Predict(features [][]float64) ([]int, error) {
	out := make([]int, len(features))
	for i, row := range features {
		leaf, err := dt.leaf(row)
		if err != nil {
			return nil, err
		}
		out[i] = leaf.ClassLabel
	}
	return out, nil
}

// PredictProba returns the class distribution of the leaf each row falls in.
func (dt *DecisionTree) PredictProba(features [][]float64) ([][]float64, error) {
	out := make([][]float64, len(features))
	for i, row := range features {
		leaf, err := dt.leaf(row)
		if err != nil {
			return nil, err
		}
		out[i] = append([]float64(nil), leaf.Proba...)
	}
	return out, nil
}

func (dt *DecisionTree) leaf(row []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, ErrNotTrained
	}
	if len(row) != dt.width {
		return TreeNode{}, ErrShapeMismatch
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if row[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
	}
}

// buildNode appends the subtree over idx and returns its root index.
func (dt *DecisionTree) buildNode(features [][]float64, labels []int, idx []int, depth int) int {
	counts := make([]int, dt.classes)
	for _, i := range idx {
		counts[labels[i]]++
	}
	self := len(dt.nodes)
	dt.nodes = append(dt.nodes, leafNode(counts, len(idx)))

	if isPure(counts) || len(idx) < dt.MinSamplesSplit || (dt.MaxDepth > 0 && depth >= dt.MaxDepth) {
		return self
	}
	feature, threshold, ok := findBestSplit(features, labels, idx, counts)
	if !ok {
		return self
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return self
	}

	leftIdx := dt.buildNode(features, labels, left, depth+1)
	rightIdx := dt.buildNode(features, labels, right, depth+1)
	node := &dt.nodes[self]
	node.IsLeaf = false
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	return self
}

func leafNode(counts []int, total int) TreeNode {
	proba := make([]float64, len(counts))
	best := 0
	for c, n := range counts {
		proba[c] = float64(n) / float64(total)
		if n > counts[best] {
			best = c
		}
	}
	return TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: best,
		Proba:      proba,
		IsLeaf:     true,
	}
}

// findBestSplit sweeps every non-constant feature in sorted order and keeps
// the threshold with the lowest weighted gini, even when it does not improve
// on the parent. Thresholds are midpoints between consecutive distinct values.
func findBestSplit(features [][]float64, labels []int, idx []int, counts []int) (int, float64, bool) {
	n := len(idx)
	width := len(features[idx[0]])
	bestFeature := -1
	bestThreshold := 0.0
	bestScore := math.Inf(1)

	order := make([]int, n)
	values := make([]float64, n)
	leftCounts := make([]int, len(counts))
	rightCounts := make([]int, len(counts))

	for f := 0; f < width; f++ {
		constant := true
		first := features[idx[0]][f]
		for _, i := range idx[1:] {
			if features[i][f] != first {
				constant = false
				break
			}
		}
		if constant {
			continue
		}

		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return features[order[a]][f] < features[order[b]][f] })
		for k, i := range order {
			values[k] = features[i][f]
		}

		for c := range leftCounts {
			leftCounts[c] = 0
			rightCounts[c] = counts[c]
		}
		var leftSq, rightSq float64
		for _, c := range counts {
			rightSq += float64(c * c)
		}

		for k := 0; k < n-1; k++ {
			l := labels[order[k]]
			leftSq += float64(2*leftCounts[l] + 1)
			rightSq -= float64(2*rightCounts[l] - 1)
			leftCounts[l]++
			rightCounts[l]--
			if values[k] == values[k+1] {
				continue
			}
			nl, nr := float64(k+1), float64(n-k-1)
			// Weighted gini times n: (nl - sum(l^2)/nl) + (nr - sum(r^2)/nr).
			score := (nl - leftSq/nl) + (nr - rightSq/nr)
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = values[k]/2 + values[k+1]/2
				if bestThreshold == values[k+1] {
					bestThreshold = values[k]
				}
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// giniScore is n times the gini impurity of counts.
func giniScore(counts []int, n int) float64 {
	var sq float64
	for _, c := range counts {
		sq += float64(c * c)
	}
	return float64(n) - sq/float64(n)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make([]int, numClasses(labels))
	for _, l := range labels {
		counts[l]++
	}
	return giniScore(counts, len(labels)) / float64(len(labels))
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}
