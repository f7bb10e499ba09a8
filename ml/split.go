package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// StratifiedSplit partitions row indices into train and test sets so each
// label keeps its share of rows in both. The test size is ceil(n*testRatio).
// The result is deterministic for a given seed.
func StratifiedSplit(labels []int, testRatio float64, seed int64) (train, test []int, err error) {
	n := len(labels)
	if n == 0 {
		return nil, nil, ErrEmptyTrainingSet
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0,1), got %v", testRatio)
	}
	nTest := int(math.Ceil(testRatio * float64(n)))
	nTrain := n - nTest

	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c, members := range byClass {
		if len(members) < 2 {
			return nil, nil, fmt.Errorf("%w: label %d has %d member; stratification needs at least 2", ErrTooFewSamples, c, len(members))
		}
		classes = append(classes, c)
	}
	sort.Ints(classes)
	if nTrain < len(classes) || nTest < len(classes) {
		return nil, nil, fmt.Errorf("%w: %d train / %d test rows cannot hold %d labels", ErrTooFewSamples, nTrain, nTest, len(classes))
	}

	counts := make([]int, len(classes))
	for ci, c := range classes {
		counts[ci] = len(byClass[c])
	}
	trainAlloc := allocate(counts, nTrain)

	rng := rand.New(rand.NewSource(seed))
	train = make([]int, 0, nTrain)
	test = make([]int, 0, nTest)
	for ci, c := range classes {
		members := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		train = append(train, members[:trainAlloc[ci]]...)
		test = append(test, members[trainAlloc[ci]:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

// allocate splits total across classes proportionally to counts. Floors
// are taken first; leftover rows go to the largest remainders, ties to the
// lower class position.
func allocate(counts []int, total int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}
	out := make([]int, len(counts))
	rem := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := float64(c) * float64(total) / float64(n)
		out[i] = int(math.Floor(exact))
		rem[i] = exact - float64(out[i])
		assigned += out[i]
	}
	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })
	for k := 0; assigned < total; k = (k + 1) % len(order) {
		i := order[k]
		if out[i] < counts[i] {
			out[i]++
			assigned++
		}
	}
	return out
}

// Take gathers rows and labels at idx.
func Take(features [][]float64, labels []int, idx []int) ([][]float64, []int) {
	x := make([][]float64, len(idx))
	y := make([]int, len(idx))
	for k, i := range idx {
		x[k] = features[i]
		y[k] = labels[i]
	}
	return x, y
}
