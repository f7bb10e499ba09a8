package ml

import "math"

// GaussianNB models each feature as an independent per-class normal.
type GaussianNB struct {
	// VarSmoothing is added to every variance as a fraction of the largest
	// feature variance.
	VarSmoothing float64

	classes  []int
	logPrior []float64
	theta    [][]float64
	variance [][]float64
	width    int
}

func NewGaussianNB() *GaussianNB { return &GaussianNB{VarSmoothing: 1e-9} }

func (nb *GaussianNB) Fit(features [][]float64, labels []int) error {
	width, err := validate(features, labels)
	if err != nil {
		return err
	}
	n := float64(len(features))

	var epsilon float64
	{
		mean := make([]float64, width)
		for _, row := range features {
			for j, v := range row {
				mean[j] += v
			}
		}
		maxVar := 0.0
		for j := range mean {
			mean[j] /= n
			var s float64
			for _, row := range features {
				d := row[j] - mean[j]
				s += d * d
			}
			maxVar = math.Max(maxVar, s/n)
		}
		epsilon = nb.VarSmoothing * maxVar
		if epsilon == 0 {
			epsilon = 1e-9
		}
	}

	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := 0; c < numClasses(labels); c++ {
		if _, ok := byClass[c]; ok {
			classes = append(classes, c)
		}
	}

	nb.classes = classes
	nb.width = width
	nb.logPrior = make([]float64, len(classes))
	nb.theta = make([][]float64, len(classes))
	nb.variance = make([][]float64, len(classes))
	for ci, c := range classes {
		members := byClass[c]
		cnt := float64(len(members))
		mean := make([]float64, width)
		for _, i := range members {
			for j, v := range features[i] {
				mean[j] += v
			}
		}
		for j := range mean {
			mean[j] /= cnt
		}
		variance := make([]float64, width)
		for _, i := range members {
			for j, v := range features[i] {
				d := v - mean[j]
				variance[j] += d * d
			}
		}
		for j := range variance {
			variance[j] = variance[j]/cnt + epsilon
		}
		nb.theta[ci] = mean
		nb.variance[ci] = variance
		nb.logPrior[ci] = math.Log(cnt / n)
	}
	return nil
}

func (nb *GaussianNB) jointLogLikelihood(row []float64) []float64 {
	out := make([]float64, len(nb.classes))
	for ci := range nb.classes {
		ll := nb.logPrior[ci]
		theta, variance := nb.theta[ci], nb.variance[ci]
		for j, v := range row {
			d := v - theta[j]
			ll -= 0.5 * (math.Log(2*math.Pi*variance[j]) + d*d/variance[j])
		}
		out[ci] = ll
	}
	return out
}

func (nb *GaussianNB) Predict(features [][]float64) ([]int, error) {
	if nb.classes == nil {
		return nil, ErrNotTrained
	}
	if err := checkWidth(features, nb.width); err != nil {
		return nil, err
	}
	out := make([]int, len(features))
	for i, row := range features {
		out[i] = nb.classes[argmax(nb.jointLogLikelihood(row))]
	}
	return out, nil
}

// PredictProba returns posteriors indexed by label id.
func (nb *GaussianNB) PredictProba(features [][]float64) ([][]float64, error) {
	if nb.classes == nil {
		return nil, ErrNotTrained
	}
	if err := checkWidth(features, nb.width); err != nil {
		return nil, err
	}
	size := nb.classes[len(nb.classes)-1] + 1
	out := make([][]float64, len(features))
	for i, row := range features {
		jll := nb.jointLogLikelihood(row)
		top := maxValue(jll)
		var sum float64
		for _, v := range jll {
			sum += math.Exp(v - top)
		}
		logNorm := top + math.Log(sum)
		proba := make([]float64, size)
		for ci, c := range nb.classes {
			proba[c] = math.Exp(jll[ci] - logNorm)
		}
		out[i] = proba
	}
	return out, nil
}
