package export

// Entry is one line of a daily export.
type Entry struct {
	ID            int64   `json:"id"`
	OriginalTitle string  `json:"original_title,omitempty"`
	Name          string  `json:"name,omitempty"`
	Popularity    float64 `json:"popularity"`
	Video         bool    `json:"video"`
	Adult         bool    `json:"adult"`
}

// Label returns the title for movies or the name for people.
func (e Entry) Label() string {
	if e.OriginalTitle != "" {
		return e.OriginalTitle
	}
	return e.Name
}

// Filter restricts which entries a Reader yields.
type Filter struct {
	SkipVideo     bool
	SkipAdult     bool
	MinPopularity float64
}

// Allows reports whether entry passes the filter.
func (f Filter) Allows(entry Entry) bool {
	if f.SkipVideo && entry.Video {
		return false
	}
	if f.SkipAdult && entry.Adult {
		return false
	}
	if f.MinPopularity > 0 && entry.Popularity < f.MinPopularity {
		return false
	}
	return true
}
