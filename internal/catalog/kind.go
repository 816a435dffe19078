// Package catalog defines the entity kinds shared by the export reader, the
// local store, and gap analysis.
package catalog

import (
	"fmt"
	"strings"
)

// Kind identifies a class of catalog entity.
type Kind string

const (
	KindMovies Kind = "movies"
	KindPeople Kind = "people"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindMovies, KindPeople}

// ParseKind accepts singular and plural spellings.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "movie", "movies":
		return KindMovies, nil
	case "person", "people":
		return KindPeople, nil
	default:
		return "", fmt.Errorf("unknown catalog kind %q (want movies or people)", value)
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == KindMovies || k == KindPeople
}

// ExportPrefix is the file prefix TMDB uses for the kind's daily ID export.
func (k Kind) ExportPrefix() string {
	switch k {
	case KindPeople:
		return "person_ids"
	default:
		return "movie_ids"
	}
}

// Noun returns the plural noun used in human-facing text.
func (k Kind) Noun() string {
	if k == KindPeople {
		return "people"
	}
	return "movies"
}

func (k Kind) String() string { return string(k) }
