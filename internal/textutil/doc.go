// Package textutil provides the string comparison primitives used when
// matching catalog titles.
//
// The primary use cases are:
//   - Normalizing titles into search queries (case folding, punctuation removal)
//   - Computing Levenshtein edit distance over Unicode grapheme clusters
//   - Scoring two titles with a normalized similarity in [0, 1]
//   - Extracting search keywords with leading articles removed
//
// Distances are counted in user-perceived characters, so a combining accent or
// an emoji sequence costs one edit rather than one per code point.
package textutil
