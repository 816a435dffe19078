package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"catalogsync/internal/logging"
	"catalogsync/internal/textutil"
	"catalogsync/internal/tmdb"
	"catalogsync/internal/tracking"
)

const (
	// DefaultMaxFallbackLevel bounds how many applicable strategies run.
	DefaultMaxFallbackLevel = 3
	// DefaultMinConfidence is the confidence floor a match must reach.
	DefaultMinConfidence = 0.7
	// fuzzyThreshold is the similarity a fuzzy candidate must exceed.
	fuzzyThreshold = 0.7
	// broadKeywordLimit caps the tokens used by the broad-keywords search.
	broadKeywordLimit = 3
	trackingSource    = "tmdb"
)

var (
	// ErrNotFound means no strategy produced an acceptable match.
	ErrNotFound = errors.New("no matching entity")
	// ErrProviderUnavailable means nothing matched and at least one lookup
	// failed transiently. It wraps ErrNotFound.
	ErrProviderUnavailable = fmt.Errorf("provider unavailable: %w", ErrNotFound)

	imdbIDPattern = regexp.MustCompile(`^tt\d+$`)
)

// Config holds the resolver thresholds.
type Config struct {
	MaxFallbackLevel int
	MinConfidence    float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{MaxFallbackLevel: DefaultMaxFallbackLevel, MinConfidence: DefaultMinConfidence}
}

func (c Config) normalized() Config {
	if c.MaxFallbackLevel <= 0 {
		c.MaxFallbackLevel = DefaultMaxFallbackLevel
	}
	if c.MaxFallbackLevel > len(Strategies) {
		c.MaxFallbackLevel = len(Strategies)
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	return c
}

// Outcome classifies a single strategy attempt.
type Outcome int

const (
	Matched Outcome = iota + 1
	NoCandidate
	TransientError
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NoCandidate:
		return "no_candidate"
	case TransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Attempt records what one strategy did.
type Attempt struct {
	Strategy Strategy
	Outcome  Outcome
	// Accepted is true when a Matched candidate also cleared the floor.
	Accepted bool
	EntityID int64
	// Err is the lookup failure, if any. Non-transient failures are recorded
	// as NoCandidate.
	Err error
}

// Result is a successful resolution.
type Result struct {
	Entity        tmdb.Result
	Confidence    float64
	StrategyLevel int
	StrategyName  string
	// Similarity is the fuzzy-title match score; zero for other strategies.
	// Confidence stays the strategy's flat weight.
	Similarity float64
	Attempts   []Attempt
}

// Resolver runs the strategy cascade against a TMDB searcher.
type Resolver struct {
	searcher tmdb.Searcher
	tracker  tracking.Tracker
	cfg      Config
	logger   *slog.Logger
}

// New constructs a Resolver. A nil tracker disables tracking and a nil logger
// discards output.
func New(searcher tmdb.Searcher, cfg Config, tracker tracking.Tracker, logger *slog.Logger) (*Resolver, error) {
	if searcher == nil {
		return nil, errors.New("resolver requires a searcher")
	}
	if tracker == nil {
		tracker = tracking.Nop{}
	}
	return &Resolver{
		searcher: searcher,
		tracker:  tracker,
		cfg:      cfg.normalized(),
		logger:   logging.NewComponentLogger(logger, "resolver"),
	}, nil
}

// Config returns the thresholds in effect.
func (r *Resolver) Config() Config {
	return r.cfg
}

// Resolve runs the cascade for q. It returns ErrNotFound when the catalog
// produced no acceptable match and ErrProviderUnavailable when some lookup
// also failed transiently. Attempts are attached to the result on success; on failure
// they are available through AttemptsFromError.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Result, error) {
	if _, ok := logging.CorrelationIDFromContext(ctx); !ok {
		ctx = logging.WithCorrelationID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, r.logger)

	plan := Plan(q, r.cfg.MaxFallbackLevel)
	attempts := make([]Attempt, 0, len(plan))
	for _, strategy := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate, similarity, err := r.attempt(ctx, strategy, q)
		attempt := Attempt{Strategy: strategy}
		switch {
		case err == nil:
			attempt.Outcome = Matched
			attempt.EntityID = candidate.ID
		case errors.Is(err, tracking.ErrNoCandidate):
			attempt.Outcome = NoCandidate
		case tmdb.IsTransient(err):
			attempt.Outcome = TransientError
			attempt.Err = err
		default:
			// Permanent failures (bad key, bad request) cannot clear on retry.
			attempt.Outcome = NoCandidate
			attempt.Err = err
			logging.WarnWithContext(logger, "lookup failed permanently", "lookup_rejected",
				logging.String(logging.FieldStrategy, strategy.Name),
				logging.String(logging.FieldErrorHint, "check tmdb.api_key and the query"),
				logging.Error(err),
			)
		}

		if attempt.Outcome == Matched && strategy.Confidence >= r.cfg.MinConfidence {
			attempt.Accepted = true
			attempts = append(attempts, attempt)
			logger.Info("entity resolved",
				logging.String(logging.FieldStrategy, strategy.Name),
				logging.Int("level", strategy.Level),
				logging.Float64("confidence", strategy.Confidence),
				logging.Int64("tmdb_id", candidate.ID),
				logging.String("title", candidate.Title),
			)
			return &Result{
				Entity:        *candidate,
				Confidence:    strategy.Confidence,
				StrategyLevel: strategy.Level,
				StrategyName:  strategy.Name,
				Similarity:    similarity,
				Attempts:      attempts,
			}, nil
		}
		if attempt.Outcome == Matched {
			attrs := append(logging.DecisionAttrs("confidence_floor", "discarded",
				fmt.Sprintf("%.2f < %.2f", strategy.Confidence, r.cfg.MinConfidence)),
				logging.String(logging.FieldStrategy, strategy.Name),
				logging.Int64("tmdb_id", candidate.ID),
			)
			logger.Debug("candidate below confidence floor", logging.Args(attrs...)...)
		}
		attempts = append(attempts, attempt)
	}

	failed := 0
	for _, a := range attempts {
		if a.Outcome == TransientError {
			failed++
		}
	}
	logger.Info("entity not resolved",
		logging.Int("strategies_tried", len(attempts)),
		logging.Int("lookup_failures", failed),
	)
	if failed > 0 {
		return nil, &Error{Err: ErrProviderUnavailable, Attempts: attempts}
	}
	return nil, &Error{Err: ErrNotFound, Attempts: attempts}
}

// Error carries the attempt trace of an unsuccessful resolution.
type Error struct {
	Err      error
	Attempts []Attempt
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve: %v after %d attempt(s)", e.Err, len(e.Attempts))
}

func (e *Error) Unwrap() error { return e.Err }

// AttemptsFromError returns the attempt trace carried by a Resolve error.
func AttemptsFromError(err error) []Attempt {
	var resolveErr *Error
	if errors.As(err, &resolveErr) {
		return resolveErr.Attempts
	}
	return nil
}

// attempt runs one strategy through the tracking boundary. It returns
// tracking.ErrNoCandidate when the lookup succeeded without an entity.
func (r *Resolver) attempt(ctx context.Context, strategy Strategy, q Query) (*tmdb.Result, float64, error) {
	var (
		candidate  *tmdb.Result
		similarity float64
	)
	call := tracking.Call{
		Source:        trackingSource,
		Operation:     operationFor(strategy.Kind),
		Key:           callKey(strategy.Kind, q),
		FallbackLevel: strategy.Level,
		Confidence:    strategy.Confidence,
		Metadata: map[string]string{
			"strategy_name": strategy.Name,
		},
	}
	if q.Year > 0 {
		call.Metadata["year"] = strconv.Itoa(q.Year)
	}
	err := r.tracker.Track(ctx, call, func(ctx context.Context) error {
		var err error
		candidate, similarity, err = r.run(ctx, strategy.Kind, q)
		if err != nil {
			return err
		}
		if candidate == nil {
			return tracking.ErrNoCandidate
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return candidate, similarity, nil
}

func operationFor(kind StrategyKind) string {
	if kind == DirectID {
		return "find"
	}
	return "search"
}

func callKey(kind StrategyKind, q Query) string {
	switch kind {
	case DirectID:
		return strings.TrimSpace(q.ExternalID)
	case NormalizedTitle:
		return textutil.NormalizeTitle(q.Title)
	case BroadKeywords:
		return broadQuery(q.Title)
	default:
		return strings.TrimSpace(q.Title)
	}
}

// run dispatches on the strategy variant. A nil candidate with a nil error
// means the lookup found nothing acceptable.
func (r *Resolver) run(ctx context.Context, kind StrategyKind, q Query) (*tmdb.Result, float64, error) {
	switch kind {
	case DirectID:
		res, err := r.directID(ctx, strings.TrimSpace(q.ExternalID))
		return res, 0, err
	case ExactTitleYear:
		res, err := r.exactTitleYear(ctx, q)
		return res, 0, err
	case NormalizedTitle:
		res, err := r.firstResult(ctx, textutil.NormalizeTitle(q.Title), tmdb.SearchOptions{})
		return res, 0, err
	case YearTolerant:
		res, err := r.yearTolerant(ctx, q)
		return res, 0, err
	case FuzzyTitle:
		return r.fuzzyTitle(ctx, q)
	case BroadKeywords:
		res, err := r.firstResult(ctx, broadQuery(q.Title), tmdb.SearchOptions{})
		return res, 0, err
	default:
		return nil, 0, fmt.Errorf("unknown strategy kind %d", kind)
	}
}

func (r *Resolver) directID(ctx context.Context, externalID string) (*tmdb.Result, error) {
	if id, err := strconv.ParseInt(externalID, 10, 64); err == nil && id > 0 {
		movie, err := r.searcher.GetMovie(ctx, id)
		if err != nil {
			if tmdb.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return movie, nil
	}
	if !imdbIDPattern.MatchString(strings.ToLower(externalID)) {
		return nil, nil
	}
	found, err := r.searcher.FindByExternalID(ctx, strings.ToLower(externalID), tmdb.SourceIMDB)
	if err != nil {
		return nil, err
	}
	if found == nil || len(found.MovieResults) != 1 {
		return nil, nil
	}
	return &found.MovieResults[0], nil
}

func (r *Resolver) exactTitleYear(ctx context.Context, q Query) (*tmdb.Result, error) {
	resp, err := r.searcher.SearchMovie(ctx, q.Title, tmdb.SearchOptions{Year: q.Year})
	if err != nil {
		return nil, err
	}
	want := textutil.Fold(q.Title)
	for _, candidate := range resultsOf(resp) {
		if textutil.Fold(candidate.Title) != want {
			continue
		}
		if year, ok := candidate.Year(); ok && year == q.Year {
			return &candidate, nil
		}
	}
	return nil, nil
}

func (r *Resolver) yearTolerant(ctx context.Context, q Query) (*tmdb.Result, error) {
	seen := make(map[int64]struct{})
	var merged []tmdb.Result
	for _, year := range []int{q.Year - 1, q.Year, q.Year + 1} {
		resp, err := r.searcher.SearchMovie(ctx, q.Title, tmdb.SearchOptions{Year: year})
		if err != nil {
			return nil, err
		}
		for _, candidate := range resultsOf(resp) {
			if _, dup := seen[candidate.ID]; dup {
				continue
			}
			seen[candidate.ID] = struct{}{}
			merged = append(merged, candidate)
		}
	}
	if len(merged) == 0 {
		return nil, nil
	}
	return &merged[0], nil
}

func (r *Resolver) fuzzyTitle(ctx context.Context, q Query) (*tmdb.Result, float64, error) {
	resp, err := r.searcher.SearchMovie(ctx, q.Title, tmdb.SearchOptions{})
	if err != nil {
		return nil, 0, err
	}
	for _, candidate := range resultsOf(resp) {
		if score := textutil.Similarity(q.Title, candidate.Title); score > fuzzyThreshold {
			return &candidate, score, nil
		}
	}
	return nil, 0, nil
}

func (r *Resolver) firstResult(ctx context.Context, query string, opts tmdb.SearchOptions) (*tmdb.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	resp, err := r.searcher.SearchMovie(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	results := resultsOf(resp)
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func broadQuery(title string) string {
	return strings.Join(textutil.Keywords(title, broadKeywordLimit), " ")
}

func resultsOf(resp *tmdb.Response) []tmdb.Result {
	if resp == nil {
		return nil
	}
	return resp.Results
}
