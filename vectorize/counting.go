package vectorize

import (
	"regexp"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tokens are runs of two or more word characters.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

func analyze(text string) []string {
	return tokenPattern.FindAllString(cases.Lower(language.Und).String(text), -1)
}

// CountVectorizer maps a text to raw term counts over a vocabulary learned
// from the training corpus. Column order is the sorted vocabulary.
type CountVectorizer struct {
	vocab map[string]int
	terms []string
}

// Fit learns the vocabulary.
func (c *CountVectorizer) Fit(corpus []string) error {
	seen := make(map[string]struct{})
	for _, doc := range corpus {
		for _, tok := range analyze(doc) {
			seen[tok] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return ErrEmptyVocabulary
	}
	terms := make([]string, 0, len(seen))
	for tok := range seen {
		terms = append(terms, tok)
	}
	sort.Strings(terms)
	vocab := make(map[string]int, len(terms))
	for i, tok := range terms {
		vocab[tok] = i
	}
	c.terms = terms
	c.vocab = vocab
	return nil
}

func (c *CountVectorizer) fitted() bool { return c.vocab != nil }

// Transform returns term counts. Out-of-vocabulary tokens are ignored.
func (c *CountVectorizer) Transform(text string) ([]float64, error) {
	if !c.fitted() {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(c.terms))
	for _, tok := range analyze(text) {
		if idx, ok := c.vocab[tok]; ok {
			out[idx]++
		}
	}
	return out, nil
}

// Dimension is the vocabulary size.
func (c *CountVectorizer) Dimension() int { return len(c.terms) }

// Vocabulary returns the learned terms in column order.
func (c *CountVectorizer) Vocabulary() []string {
	out := make([]string, len(c.terms))
	copy(out, c.terms)
	return out
}
