package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Fold case-folds and trims s for comparison. A Caser carries state, so each
// call builds its own.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// NormalizeTitle lowercases s, drops every rune that is not a word character
// or whitespace, and trims the result. Word characters are letters, numbers,
// nonspacing marks and '_'.
func NormalizeTitle(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	lowered := strings.ToLower(s)
	var builder strings.Builder
	builder.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r), unicode.Is(unicode.Mn, r), r == '_':
			builder.WriteRune(r)
		case unicode.IsSpace(r):
			builder.WriteRune(' ')
		}
	}
	return strings.TrimSpace(builder.String())
}

var leadingArticles = map[string]struct{}{
	"the": {},
	"a":   {},
	"an":  {},
}

// Keywords strips a single leading article from s and returns at most limit
// of the remaining whitespace separated tokens.
func Keywords(s string, limit int) []string {
	tokens := strings.Fields(s)
	if len(tokens) > 0 {
		if _, ok := leadingArticles[strings.ToLower(tokens[0])]; ok {
			tokens = tokens[1:]
		}
	}
	if limit > 0 && len(tokens) > limit {
		tokens = tokens[:limit]
	}
	return tokens
}
