package textutil

// Similarity scores two strings in [0, 1] as one minus their grapheme edit
// distance divided by the longer length. Both inputs are case folded and
// trimmed first. Identical inputs score 1 and an empty input scores 0.
func Similarity(a, b string) float64 {
	a, b = Fold(a), Fold(b)
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	ga, gb := Graphemes(a), Graphemes(b)
	longest := max(len(ga), len(gb))
	return 1.0 - float64(levenshtein(ga, gb))/float64(longest)
}
