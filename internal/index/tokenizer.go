package index

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into letter/digit runs.
// Single-character tokens are dropped, and a trailing plural "s" is folded
// so "converts" and "convert" index under the same term.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		f = foldPlural(f)
		if len(f) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TermFrequencies tokenizes text and counts occurrences per term.
func TermFrequencies(text string) map[string]int32 {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	freqs := make(map[string]int32, len(tokens))
	for _, tok := range tokens {
		freqs[tok]++
	}
	return freqs
}

// foldPlural strips a trailing "s" from tokens long enough that the stripped
// form is still meaningful. Not a stemmer; just enough to line up singular
// and plural forms of common nouns and verbs.
func foldPlural(tok string) string {
	if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return tok[:len(tok)-1]
	}
	return tok
}
