// Package vectorize turns normalized abstracts into numeric feature vectors.
package vectorize

import (
	"errors"
	"fmt"
)

// Method identifies a vectorization strategy.
type Method string

const (
	MethodBoW        Method = "bow"
	MethodTFIDF      Method = "tfidf"
	MethodEmbeddings Method = "embeddings"
)

var (
	ErrNotFitted         = errors.New("vectorizer is not fitted")
	ErrAlreadyFitted     = errors.New("vectorizers already fitted")
	ErrUnsupportedMethod = errors.New("unsupported vectorization method")
	ErrEmptyVocabulary   = errors.New("empty vocabulary")
)

var methods = []Method{MethodBoW, MethodTFIDF, MethodEmbeddings}

// Methods returns every method in serving order.
func Methods() []Method {
	out := make([]Method, len(methods))
	copy(out, methods)
	return out
}

// ParseMethod validates a method tag.
func ParseMethod(s string) (Method, error) {
	for _, m := range methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
}

func (m Method) String() string { return string(m) }
