package resolver

import "strings"

// StrategyKind tags a resolution strategy.
type StrategyKind int

const (
	DirectID StrategyKind = iota + 1
	ExactTitleYear
	NormalizedTitle
	YearTolerant
	FuzzyTitle
	BroadKeywords
)

// requirement is the query precondition a strategy needs.
type requirement int

const (
	needsExternalID requirement = iota
	needsTitle
	needsTitleAndYear
)

// Strategy is one entry of the resolution cascade.
type Strategy struct {
	Kind       StrategyKind
	Level      int
	Name       string
	Confidence float64
	requires   requirement
}

// Strategies is the full cascade in execution order.
var Strategies = [...]Strategy{
	{Kind: DirectID, Level: 1, Name: "direct-id", Confidence: 1.0, requires: needsExternalID},
	{Kind: ExactTitleYear, Level: 2, Name: "exact-title-year", Confidence: 0.9, requires: needsTitleAndYear},
	{Kind: NormalizedTitle, Level: 3, Name: "normalized-title", Confidence: 0.8, requires: needsTitle},
	{Kind: YearTolerant, Level: 4, Name: "year-tolerant", Confidence: 0.7, requires: needsTitleAndYear},
	{Kind: FuzzyTitle, Level: 5, Name: "fuzzy-title", Confidence: 0.6, requires: needsTitle},
	{Kind: BroadKeywords, Level: 6, Name: "broad-keywords", Confidence: 0.5, requires: needsTitle},
}

func (k StrategyKind) String() string {
	for _, s := range Strategies {
		if s.Kind == k {
			return s.Name
		}
	}
	return "unknown"
}

// Query is the partial reference to resolve.
type Query struct {
	ExternalID string
	Title      string
	Year       int
}

func (q Query) hasExternalID() bool { return strings.TrimSpace(q.ExternalID) != "" }
func (q Query) hasTitle() bool      { return strings.TrimSpace(q.Title) != "" }
func (q Query) hasYear() bool       { return q.Year > 0 }

// Applies reports whether the strategy's precondition holds for q.
func (s Strategy) Applies(q Query) bool {
	switch s.requires {
	case needsExternalID:
		return q.hasExternalID()
	case needsTitle:
		return q.hasTitle()
	case needsTitleAndYear:
		return q.hasTitle() && q.hasYear()
	default:
		return false
	}
}

// Plan returns the strategies that will run for q, in order, limited to
// maxDepth entries.
func Plan(q Query, maxDepth int) []Strategy {
	plan := make([]Strategy, 0, len(Strategies))
	for _, s := range Strategies {
		if len(plan) >= maxDepth {
			break
		}
		if s.Applies(q) {
			plan = append(plan, s)
		}
	}
	return plan
}
