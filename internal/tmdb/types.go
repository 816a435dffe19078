package tmdb

import (
	"strconv"
	"strings"
)

// Result represents a single TMDB movie record.
type Result struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	OriginalTitle string  `json:"original_title"`
	Overview      string  `json:"overview"`
	ReleaseDate   string  `json:"release_date"`
	Popularity    float64 `json:"popularity"`
	VoteAverage   float64 `json:"vote_average"`
	VoteCount     int64   `json:"vote_count"`
	Adult         bool    `json:"adult"`
	Video         bool    `json:"video"`
	IMDBID        string  `json:"imdb_id,omitempty"`
}

// Year extracts the release year from the leading four digits of ReleaseDate.
// The boolean is false when the date is missing or malformed.
func (r Result) Year() (int, bool) {
	date := strings.TrimSpace(r.ReleaseDate)
	if len(date) < 4 {
		return 0, false
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}

// Response models the TMDB paginated search response.
type Response struct {
	Page         int      `json:"page"`
	Results      []Result `json:"results"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
}

// Person describes a TMDB person record.
type Person struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	KnownForDepartment string  `json:"known_for_department"`
	Popularity         float64 `json:"popularity"`
	Adult              bool    `json:"adult"`
	IMDBID             string  `json:"imdb_id,omitempty"`
}

// FindResponse models the /find endpoint, which groups hits by media type.
type FindResponse struct {
	MovieResults  []Result `json:"movie_results"`
	PersonResults []Person `json:"person_results"`
}

// ExternalSource names the ID namespace passed to /find.
type ExternalSource string

const (
	SourceIMDB     ExternalSource = "imdb_id"
	SourceWikidata ExternalSource = "wikidata_id"
	SourceTVDB     ExternalSource = "tvdb_id"
)
