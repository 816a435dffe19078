package resolver_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"testing"

	"catalogsync/internal/resolver"
	"catalogsync/internal/tmdb"
	"catalogsync/internal/tracking"
)

type searchKey struct {
	query string
	year  int
}

type fakeSearcher struct {
	mu       sync.Mutex
	searches map[searchKey][]tmdb.Result
	failing  map[searchKey]error
	finds    map[string][]tmdb.Result
	movies   map[int64]tmdb.Result
	failAll  error
	calls    []string
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		searches: map[searchKey][]tmdb.Result{},
		failing:  map[searchKey]error{},
		finds:    map[string][]tmdb.Result{},
		movies:   map[int64]tmdb.Result{},
	}
}

func (f *fakeSearcher) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSearcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSearcher) SearchMovie(_ context.Context, query string, opts tmdb.SearchOptions) (*tmdb.Response, error) {
	f.record(fmt.Sprintf("search:%s:%d", query, opts.Year))
	if f.failAll != nil {
		return nil, f.failAll
	}
	key := searchKey{query: query, year: opts.Year}
	if err, ok := f.failing[key]; ok {
		return nil, err
	}
	return &tmdb.Response{Results: f.searches[key]}, nil
}

func (f *fakeSearcher) FindByExternalID(_ context.Context, id string, source tmdb.ExternalSource) (*tmdb.FindResponse, error) {
	f.record(fmt.Sprintf("find:%s:%s", id, source))
	if f.failAll != nil {
		return nil, f.failAll
	}
	return &tmdb.FindResponse{MovieResults: f.finds[id]}, nil
}

func (f *fakeSearcher) GetMovie(_ context.Context, id int64) (*tmdb.Result, error) {
	f.record(fmt.Sprintf("movie:%d", id))
	if f.failAll != nil {
		return nil, f.failAll
	}
	movie, ok := f.movies[id]
	if !ok {
		return nil, &tmdb.StatusError{Op: "movie details", StatusCode: http.StatusNotFound}
	}
	return &movie, nil
}

type recordingTracker struct {
	mu    sync.Mutex
	calls []tracking.Call
}

func (r *recordingTracker) Track(ctx context.Context, call tracking.Call, fn func(context.Context) error) error {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	return fn(ctx)
}

var matrix = tmdb.Result{ID: 603, Title: "The Matrix", ReleaseDate: "1999-03-30"}

func newResolver(t *testing.T, searcher tmdb.Searcher, cfg resolver.Config, tracker tracking.Tracker) *resolver.Resolver {
	t.Helper()
	r, err := resolver.New(searcher, cfg, tracker, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func strategyNames(plan []resolver.Strategy) []string {
	names := make([]string, len(plan))
	for i, s := range plan {
		names[i] = s.Name
	}
	return names
}

func TestStrategyCatalogOrder(t *testing.T) {
	wantConfidence := []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5}
	for i, s := range resolver.Strategies {
		if s.Level != i+1 {
			t.Fatalf("strategy %s at index %d has level %d", s.Name, i, s.Level)
		}
		if s.Confidence != wantConfidence[i] {
			t.Fatalf("strategy %s confidence %v, want %v", s.Name, s.Confidence, wantConfidence[i])
		}
		if s.Kind.String() != s.Name {
			t.Fatalf("kind string %q != name %q", s.Kind.String(), s.Name)
		}
	}
}

func TestPlanTitleOnlySkipsIDAndYearStrategies(t *testing.T) {
	q := resolver.Query{Title: "Heat"}
	got := strategyNames(resolver.Plan(q, 3))
	if len(got) != 3 || got[0] != "normalized-title" || got[1] != "fuzzy-title" || got[2] != "broad-keywords" {
		t.Fatalf("unexpected depth-3 plan %v", got)
	}
	got = strategyNames(resolver.Plan(q, 2))
	if len(got) != 2 || got[0] != "normalized-title" || got[1] != "fuzzy-title" {
		t.Fatalf("unexpected depth-2 plan %v", got)
	}
	full := resolver.Plan(q, 6)
	for _, s := range full {
		if s.Level == 1 || s.Level == 2 || s.Level == 4 {
			t.Fatalf("title-only plan includes %s", s.Name)
		}
	}
	if len(full) != 3 {
		t.Fatalf("expected 3 applicable strategies, got %v", strategyNames(full))
	}
}

func TestPlanTruncatesToDepth(t *testing.T) {
	q := resolver.Query{ExternalID: "tt0133093", Title: "The Matrix", Year: 1999}
	if got := resolver.Plan(q, 6); len(got) != 6 {
		t.Fatalf("expected all strategies, got %v", strategyNames(got))
	}
	got := strategyNames(resolver.Plan(q, 3))
	want := []string{"direct-id", "exact-title-year", "normalized-title"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("plan %v, want %v", got, want)
		}
	}
	if got := resolver.Plan(resolver.Query{}, 6); len(got) != 0 {
		t.Fatalf("empty query should plan nothing, got %v", strategyNames(got))
	}
	if got := resolver.Plan(resolver.Query{Title: "   ", Year: 1999}, 6); len(got) != 0 {
		t.Fatalf("blank title should plan nothing, got %v", strategyNames(got))
	}
}

func TestResolveExactTitleYear(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.searches[searchKey{"The Matrix", 1999}] = []tmdb.Result{
		{ID: 1, Title: "The Matrix Revisited", ReleaseDate: "2001-11-19"},
		matrix,
	}
	r := newResolver(t, searcher, resolver.DefaultConfig(), nil)

	res, err := r.Resolve(context.Background(), resolver.Query{Title: "The Matrix", Year: 1999})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Entity.ID != 603 || res.Confidence != 0.9 || res.StrategyLevel != 2 || res.StrategyName != "exact-title-year" {
		t.Fatalf("unexpected result %#v", res)
	}
	if len(searcher.Calls()) != 1 {
		t.Fatalf("expected a single lookup, got %v", searcher.Calls())
	}
}

func TestResolveHaltsAtNormalizedTitleBeforeYearTolerant(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.searches[searchKey{"Se7en!", 1995}] = []tmdb.Result{{ID: 2, Title: "Seven Samurai", ReleaseDate: "1954-04-26"}}
	searcher.searches[searchKey{"se7en", 0}] = []tmdb.Result{{ID: 807, Title: "Se7en", ReleaseDate: "1995-09-22"}}
	r := newResolver(t, searcher, resolver.DefaultConfig(), nil)

	res, err := r.Resolve(context.Background(), resolver.Query{Title: "Se7en!", Year: 1995})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.StrategyName != "normalized-title" || res.Confidence != 0.8 || res.Entity.ID != 807 {
		t.Fatalf("unexpected result %#v", res)
	}
	calls := searcher.Calls()
	if len(calls) != 2 {
		t.Fatalf("year-tolerant must not run, calls=%v", calls)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Outcome != resolver.NoCandidate || !res.Attempts[1].Accepted {
		t.Fatalf("unexpected attempts %#v", res.Attempts)
	}
}

func TestResolveDirectIMDbID(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.finds["tt0133093"] = []tmdb.Result{matrix}
	r := newResolver(t, searcher, resolver.DefaultConfig(), nil)

	res, err := r.Resolve(context.Background(), resolver.Query{ExternalID: "tt0133093", Title: "ignored"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Confidence != 1.0 || res.StrategyLevel != 1 || res.Entity.ID != 603 {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestResolveDirectIDRequiresSoleResult(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.finds["tt0000001"] = []tmdb.Result{matrix, {ID: 2, Title: "Other"}}
	searcher.searches[searchKey{"the matrix", 0}] = []tmdb.Result{matrix}
	r := newResolver(t, searcher, resolver.DefaultConfig(), nil)

	res, err := r.Resolve(context.Background(), resolver.Query{ExternalID: "tt0000001", Title: "The Matrix"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.StrategyName != "normalized-title" {
		t.Fatalf("ambiguous direct lookup should fall through, got %s", res.StrategyName)
	}
	if res.Attempts[0].Outcome != resolver.NoCandidate {
		t.Fatalf("expected no_candidate for ambiguous find, got %v", res.Attempts[0].Outcome)
	}
}

func TestResolveNumericIDUsesMovieDetails(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.movies[603] = matrix
	r := newResolver(t, searcher, resolver.DefaultConfig(), nil)

	res, err := r.Resolve(context.Background(), resolver.Query{ExternalID: "603"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Entity.ID != 603 || res.StrategyName != "direct-id" {
		t.Fatalf("unexpected result %#v", res)
	}

	_, err = r.Resolve(context.Background(), resolver.Query{ExternalID: "999"})
	if !errors.Is(err, resolver.ErrNotFound) || errors.Is(err, resolver.ErrProviderUnavailable) {
		t.Fatalf("expected plain ErrNotFound for unknown TMDB id, got %v", err)
	}
}

// The fuzzy strategy reports its flat 0.6 weight as confidence even when the
// computed similarity is far higher; the score is exposed separately.
func TestFuzzyTitleConfidenceStaysFlat(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.searches[searchKey{"The Matrx", 0}] = []tmdb.Result{
		{ID: 9, Title: "Completely Different"},
		matrix,
	}
	cfg := resolver.Config{MaxFallbackLevel: 6, MinConfidence: 0.6}
	r := newResolver(t, searcher, cfg, nil)

	res, err := r.Resolve(context.Background(), resolver.Query{Title: "The Matrx"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.StrategyName != "fuzzy-title" || res.Entity.ID != 603 {
		t.Fatalf("unexpected result %#v", res)
	}
	if res.Confidence != 0.6 {
		t.Fatalf("fuzzy confidence must be the flat strategy weight, got %v", res.Confidence)
	}
	if math.Abs(res.Similarity-0.9) > 1e-9 {
		t.Fatalf("expected similarity 0.9, got %v", res.Similarity)
	}
}

func TestCandidatesBelowFloorAreDiscarded(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.searches[searchKey{"The Matrx", 0}] = []tmdb.Result{matrix}
	searcher.searches[searchKey{"Matrx", 0}] = []tmdb.Result{matrix}
	r := newResolver(t, searcher, resolver.Config{MaxFallbackLevel: 6, MinConfidence: 0.7}, nil)

	_, err := r.Resolve(context.Background(), resolver.Query{Title: "The Matrx"})
	if !errors.Is(err, resolver.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	attempts := resolver.AttemptsFromError(err)
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %#v", attempts)
	}
	for _, a := range attempts[1:] {
		if a.Outcome != resolver.Matched || a.Accepted {
			t.Fatalf("expected discarded match for %s, got %#v", a.Strategy.Name, a)
		}
	}
}

func TestLookupErrorsContinueCascade(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.failing[searchKey{"Heat", 1995}] = &tmdb.StatusError{Op: "search", StatusCode: http.StatusTooManyRequests}
	searcher.searches[searchKey{"heat", 0}] = []tmdb.Result{{ID: 949, Title: "Heat", ReleaseDate: "1995-12-15"}}
	r := newResolver(t, searcher, resolver.DefaultConfig(), nil)

	res, err := r.Resolve(context.Background(), resolver.Query{Title: "Heat", Year: 1995})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Entity.ID != 949 || res.StrategyLevel != 3 {
		t.Fatalf("unexpected result %#v", res)
	}
	if res.Attempts[0].Outcome != resolver.TransientError || res.Attempts[0].Err == nil {
		t.Fatalf("expected transient error attempt, got %#v", res.Attempts[0])
	}
}

func TestProviderUnavailableIsDistinguishable(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.failAll = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	r := newResolver(t, searcher, resolver.DefaultConfig(), nil)

	_, err := r.Resolve(context.Background(), resolver.Query{Title: "Heat", Year: 1995})
	if !errors.Is(err, resolver.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if !errors.Is(err, resolver.ErrNotFound) {
		t.Fatalf("ErrProviderUnavailable should wrap ErrNotFound, got %v", err)
	}
	if len(searcher.Calls()) == 0 {
		t.Fatal("expected lookups to be attempted")
	}
}

func TestPermanentLookupErrorsAreNotTransient(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.failAll = &tmdb.StatusError{Op: "search", StatusCode: http.StatusUnauthorized}
	r := newResolver(t, searcher, resolver.DefaultConfig(), nil)

	_, err := r.Resolve(context.Background(), resolver.Query{Title: "Heat", Year: 1995})
	if !errors.Is(err, resolver.ErrNotFound) || errors.Is(err, resolver.ErrProviderUnavailable) {
		t.Fatalf("expected plain ErrNotFound for a rejected key, got %v", err)
	}
	attempts := resolver.AttemptsFromError(err)
	if len(attempts) == 0 {
		t.Fatal("expected attempts on error")
	}
	for _, a := range attempts {
		if a.Outcome != resolver.NoCandidate || a.Err == nil {
			t.Fatalf("expected no_candidate with error, got %#v", a)
		}
	}
}

func TestResolveExhaustedCatalog(t *testing.T) {
	r := newResolver(t, newFakeSearcher(), resolver.DefaultConfig(), nil)
	_, err := r.Resolve(context.Background(), resolver.Query{Title: "Nothing Here"})
	if !errors.Is(err, resolver.ErrNotFound) || errors.Is(err, resolver.ErrProviderUnavailable) {
		t.Fatalf("expected ErrNotFound only, got %v", err)
	}
}

func TestTrackerSeesStrategyMetadata(t *testing.T) {
	searcher := newFakeSearcher()
	tracker := &recordingTracker{}
	r := newResolver(t, searcher, resolver.DefaultConfig(), tracker)

	_, _ = r.Resolve(context.Background(), resolver.Query{Title: "Heat", Year: 1995})
	if len(tracker.calls) != 3 {
		t.Fatalf("expected 3 tracked calls, got %d", len(tracker.calls))
	}
	want := []string{"exact-title-year", "normalized-title", "year-tolerant"}
	for i, call := range tracker.calls {
		if call.Strategy() != want[i] || call.FallbackLevel != i+2 {
			t.Fatalf("call %d: unexpected %#v", i, call)
		}
		if call.Source != "tmdb" || call.Operation != "search" {
			t.Fatalf("call %d: unexpected source/operation %#v", i, call)
		}
	}
	if tracker.calls[1].Key != "heat" {
		t.Fatalf("expected normalized key, got %q", tracker.calls[1].Key)
	}
}

func TestYearTolerantMergesAdjacentYears(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.searches[searchKey{"Heat", 1994}] = []tmdb.Result{}
	searcher.searches[searchKey{"Heat", 1996}] = []tmdb.Result{{ID: 949, Title: "Heat", ReleaseDate: "1995-12-15"}}
	r := newResolver(t, searcher, resolver.Config{MaxFallbackLevel: 6, MinConfidence: 0.7}, nil)

	res, err := r.Resolve(context.Background(), resolver.Query{Title: "Heat", Year: 1995})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.StrategyName != "year-tolerant" || res.Confidence != 0.7 {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestConfigDefaultsApplied(t *testing.T) {
	r := newResolver(t, newFakeSearcher(), resolver.Config{}, nil)
	cfg := r.Config()
	if cfg.MaxFallbackLevel != 3 || cfg.MinConfidence != 0.7 {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if _, err := resolver.New(nil, resolver.DefaultConfig(), nil, nil); err == nil {
		t.Fatal("expected error for nil searcher")
	}
}

func TestResolveBatchPreservesOrder(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.searches[searchKey{"heat", 0}] = []tmdb.Result{{ID: 949, Title: "Heat"}}
	searcher.searches[searchKey{"the matrix", 0}] = []tmdb.Result{matrix}
	r := newResolver(t, searcher, resolver.DefaultConfig(), nil)

	queries := []resolver.Query{{Title: "Heat"}, {Title: "Unknown Film"}, {Title: "The Matrix"}}
	results, err := r.ResolveBatch(context.Background(), queries, 2)
	if err != nil {
		t.Fatalf("ResolveBatch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Result == nil || results[0].Result.Entity.ID != 949 {
		t.Fatalf("unexpected first result %#v", results[0])
	}
	if !errors.Is(results[1].Err, resolver.ErrNotFound) {
		t.Fatalf("expected not found for second query, got %v", results[1].Err)
	}
	if results[2].Result == nil || results[2].Result.Entity.ID != 603 {
		t.Fatalf("unexpected third result %#v", results[2])
	}
}
