// Package pipeline turns raw dataset records into normalized, labeled samples.
package pipeline

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Character classes mirror Unicode-aware \w, \s and \d.
const (
	wordClass  = `\p{L}\p{N}_`
	spaceClass = `\s\v\p{Z}\x{85}\x{1c}-\x{1f}`
)

var (
	nonWordPattern = regexp.MustCompile(`[^` + wordClass + spaceClass + `]`)
	digitPattern   = regexp.MustCompile(`\p{Nd}+`)
	spacePattern   = regexp.MustCompile(`[` + spaceClass + `]+`)
)

// Normalize cleans an abstract before vectorization. The steps run in a fixed
// order: trim and join lines, drop punctuation, drop digit runs, collapse
// whitespace, trim, lowercase.
func Normalize(text string) string {
	text = strings.ReplaceAll(trimSpace(text), "\n", " ")
	text = nonWordPattern.ReplaceAllString(text, "")
	text = digitPattern.ReplaceAllString(text, "")
	text = trimSpace(spacePattern.ReplaceAllString(text, " "))
	return cases.Lower(language.Und).String(text)
}

// NormalizeAll applies Normalize to every text.
func NormalizeAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = Normalize(t)
	}
	return out
}

func trimSpace(s string) string {
	return strings.TrimFunc(s, isSpace)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
