package search

import (
	"strings"
	"unicode"
)

// Tokenizer normalizes text into index/query tokens. The strategy is
// pluggable so locales with different segmentation rules can swap it out.
type Tokenizer interface {
	Tokenize(s string) []string
}

// EnglishTokenizer is the default strategy: lowercase, split on
// non-alphanumeric runes, drop stopwords and single-character tokens.
type EnglishTokenizer struct{}

var englishStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"to": {}, "was": {}, "were": {}, "will": {}, "with": {},
}

func (EnglishTokenizer) Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := englishStopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}
