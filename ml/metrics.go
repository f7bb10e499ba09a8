package ml

import "sort"

// Scores are held-out evaluation results. Precision and recall are
// macro-averaged over every label seen in either truth or prediction.
type Scores struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Samples   int     `json:"samples"`
}

func Evaluate(truth, predicted []int) (Scores, error) {
	if len(truth) == 0 {
		return Scores{}, ErrEmptyTrainingSet
	}
	if len(truth) != len(predicted) {
		return Scores{}, ErrShapeMismatch
	}
	tp := make(map[int]int)
	predCount := make(map[int]int)
	trueCount := make(map[int]int)
	correct := 0
	for i := range truth {
		trueCount[truth[i]]++
		predCount[predicted[i]]++
		if truth[i] == predicted[i] {
			tp[truth[i]]++
			correct++
		}
	}
	seen := make(map[int]struct{})
	for l := range trueCount {
		seen[l] = struct{}{}
	}
	for l := range predCount {
		seen[l] = struct{}{}
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	var precision, recall float64
	for _, l := range labels {
		if predCount[l] > 0 {
			precision += float64(tp[l]) / float64(predCount[l])
		}
		if trueCount[l] > 0 {
			recall += float64(tp[l]) / float64(trueCount[l])
		}
	}
	k := float64(len(labels))
	return Scores{
		Accuracy:  float64(correct) / float64(len(truth)),
		Precision: precision / k,
		Recall:    recall / k,
		Samples:   len(truth),
	}, nil
}
