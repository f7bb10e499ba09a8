package vectorize

import "math"

// TfidfVectorizer weights counts by smoothed inverse document frequency
// idf = ln((1+n)/(1+df)) + 1 and scales each row to unit L2 norm.
type TfidfVectorizer struct {
	counts CountVectorizer
	idf    []float64
}

func (t *TfidfVectorizer) Fit(corpus []string) error {
	if err := t.counts.Fit(corpus); err != nil {
		return err
	}
	df := make([]float64, t.counts.Dimension())
	for _, doc := range corpus {
		seen := make(map[int]struct{})
		for _, tok := range analyze(doc) {
			if idx, ok := t.counts.vocab[tok]; ok {
				seen[idx] = struct{}{}
			}
		}
		for idx := range seen {
			df[idx]++
		}
	}
	n := float64(len(corpus))
	idf := make([]float64, len(df))
	for i, d := range df {
		idf[i] = math.Log((1+n)/(1+d)) + 1
	}
	t.idf = idf
	return nil
}

func (t *TfidfVectorizer) Transform(text string) ([]float64, error) {
	if t.idf == nil {
		return nil, ErrNotFitted
	}
	row, err := t.counts.Transform(text)
	if err != nil {
		return nil, err
	}
	for i, v := range row {
		if v != 0 {
			row[i] = v * t.idf[i]
		}
	}
	l2Normalize(row)
	return row, nil
}

func (t *TfidfVectorizer) Dimension() int { return t.counts.Dimension() }

// IDF returns the learned weight of column i.
func (t *TfidfVectorizer) IDF(i int) float64 { return t.idf[i] }

func l2Normalize(row []float64) {
	var sum float64
	for _, v := range row {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range row {
		row[i] /= norm
	}
}
