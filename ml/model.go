// Package ml holds the classifier bank: k-means, k-nearest-neighbours,
// CART decision trees and Gaussian naive Bayes over dense feature rows.
package ml

import (
	"fmt"

	"pubclass/vectorize"
)

// Kind is a classifier family.
type Kind string

const (
	KindKMeans       Kind = "kmeans"
	KindKNN          Kind = "knn"
	KindDecisionTree Kind = "decision_tree"
	KindNaiveBayes   Kind = "naive_bayes"
)

// Confidence reported when a classifier has no posterior.
const (
	ClusterConfidence = 0.5
	DefaultConfidence = 1.0
	ErrorConfidence   = 0.0
)

var kinds = []Kind{KindKMeans, KindKNN, KindDecisionTree, KindNaiveBayes}

// posterior declares which kinds report a class posterior.
var posterior = map[Kind]bool{
	KindKMeans:       false,
	KindKNN:          true,
	KindDecisionTree: true,
	KindNaiveBayes:   true,
}

// Kinds returns every classifier family in serving order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind validates a model name.
func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// Probabilistic reports whether confidence is a max-class posterior.
func (k Kind) Probabilistic() bool { return posterior[k] }

func (k Kind) String() string { return string(k) }

// Key addresses one trained slot: a classifier over one representation.
type Key struct {
	Kind   Kind
	Method vectorize.Method
}

func (k Key) String() string { return string(k.Kind) + "_" + string(k.Method) }

// AllKeys enumerates the full classifier x method table.
func AllKeys() []Key {
	out := make([]Key, 0, len(kinds)*len(vectorize.Methods()))
	for _, m := range vectorize.Methods() {
		for _, k := range kinds {
			out = append(out, Key{Kind: k, Method: m})
		}
	}
	return out
}

// Result is the outcome of one slot's prediction.
type Result struct {
	Label      string
	Confidence float64
	Err        error
}

// Classifier is a supervised (or pseudo-supervised) model over dense rows.
type Classifier interface {
	Fit(features [][]float64, labels []int) error
	Predict(features [][]float64) ([]int, error)
}

// ProbabilisticClassifier also exposes per-class probabilities.
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(features [][]float64) ([][]float64, error)
}
