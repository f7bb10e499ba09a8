package vectorize

import (
	"context"
	"fmt"

	"pubclass/embed"
)

// Set holds one vectorizer per method. Fit must be called exactly once and
// must complete before the set is shared between goroutines; afterwards the
// set is read-only.
type Set struct {
	bow       CountVectorizer
	tfidf     TfidfVectorizer
	embedding *EmbeddingVectorizer
	fitted    map[Method]bool
}

// NewSet builds an unfitted set. enc may be nil, in which case the
// embeddings method never becomes fitted.
func NewSet(enc embed.Encoder, opts EmbeddingOptions) *Set {
	s := &Set{fitted: make(map[Method]bool, len(methods))}
	if enc != nil {
		s.embedding = NewEmbeddingVectorizer(enc, opts)
	}
	return s
}

// Fit learns the counting vocabularies from the training corpus. The
// embedding method is marked fitted alongside them.
func (s *Set) Fit(corpus []string) error {
	if s.fitted[MethodBoW] || s.fitted[MethodTFIDF] {
		return ErrAlreadyFitted
	}
	if err := s.bow.Fit(corpus); err != nil {
		return fmt.Errorf("fit bow: %w", err)
	}
	if err := s.tfidf.Fit(corpus); err != nil {
		return fmt.Errorf("fit tfidf: %w", err)
	}
	s.fitted[MethodBoW] = true
	s.fitted[MethodTFIDF] = true
	s.fitted[MethodEmbeddings] = s.embedding != nil
	return nil
}

// IsFitted reports whether m accepts transforms.
func (s *Set) IsFitted(m Method) bool { return s.fitted[m] }

// Fitted returns the fitted flag of every method.
func (s *Set) Fitted() map[Method]bool {
	out := make(map[Method]bool, len(methods))
	for _, m := range methods {
		out[m] = s.fitted[m]
	}
	return out
}

func (s *Set) check(m Method) error {
	if _, err := ParseMethod(string(m)); err != nil {
		return err
	}
	if !s.fitted[m] {
		return fmt.Errorf("%w: %s", ErrNotFitted, m)
	}
	return nil
}

// Transform vectorizes one text.
func (s *Set) Transform(ctx context.Context, text string, m Method) ([]float64, error) {
	if err := s.check(m); err != nil {
		return nil, err
	}
	switch m {
	case MethodBoW:
		return s.bow.Transform(text)
	case MethodTFIDF:
		return s.tfidf.Transform(text)
	default:
		return s.embedding.Transform(ctx, text)
	}
}

// TransformBatch vectorizes texts into a row-major matrix.
func (s *Set) TransformBatch(ctx context.Context, texts []string, m Method) ([][]float64, error) {
	if err := s.check(m); err != nil {
		return nil, err
	}
	if m == MethodEmbeddings {
		return s.embedding.TransformBatch(ctx, texts)
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := s.Transform(ctx, text, m)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// Dimension reports the output width of m.
func (s *Set) Dimension(m Method) (int, error) {
	if err := s.check(m); err != nil {
		return 0, err
	}
	switch m {
	case MethodBoW:
		return s.bow.Dimension(), nil
	case MethodTFIDF:
		return s.tfidf.Dimension(), nil
	default:
		return s.embedding.Dimension(), nil
	}
}
