package gap_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"catalogsync/internal/catalog"
	"catalogsync/internal/export"
	"catalogsync/internal/gap"
	"catalogsync/internal/store"
	"catalogsync/internal/testsupport"
)

var asOf = time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)

type harness struct {
	analyzer *gap.Analyzer
	store    *store.Store
	acquirer *export.Acquirer
	path     string
}

func newHarness(t *testing.T, kind catalog.Kind, records []testsupport.ExportRecord, local ...int64) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if len(local) > 0 {
		testsupport.SeedIDs(t, st, kind, local...)
	}
	acq := export.NewAcquirer("http://127.0.0.1:1", cfg.Paths.ExportCacheDir, time.Second, nil,
		export.WithClock(func() time.Time { return asOf }))
	path := filepath.Join(testsupport.BaseDir(cfg), "fixture.json.gz")
	testsupport.WriteExport(t, path, records)

	analyzer, err := gap.NewAnalyzer(kind, acq, export.NewReader(nil), st, st, nil)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return &harness{analyzer: analyzer, store: st, acquirer: acq, path: path}
}

func scenarioRecords() []testsupport.ExportRecord {
	return []testsupport.ExportRecord{
		{ID: 1, OriginalTitle: "One", Popularity: 120},
		{ID: 2, OriginalTitle: "Two", Popularity: 60},
		{ID: 3, OriginalTitle: "Three", Popularity: 5},
		{ID: 4, OriginalTitle: "Four", Popularity: 0.5},
	}
}

func TestAnalyzeScenario(t *testing.T) {
	h := newHarness(t, catalog.KindMovies, scenarioRecords(), 1, 3)

	report, err := h.analyzer.Analyze(context.Background(), gap.Options{ExportPath: h.path})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.ExportTotal != 4 || report.LocalTotal != 2 || report.MissingCount != 2 || report.ExtraCount != 0 {
		t.Fatalf("unexpected totals %#v", report)
	}
	if report.CoveragePercent != 50.0 {
		t.Fatalf("expected 50%% coverage, got %v", report.CoveragePercent)
	}
	if len(report.MissingSample) != 2 || report.MissingSample[0].ID != 2 || report.MissingSample[1].ID != 4 {
		t.Fatalf("unexpected missing sample %#v", report.MissingSample)
	}

	want := map[gap.TierLabel][2]int{
		"[100,∞)":  {1, 0},
		"[50,100)": {1, 1},
		"[10,50)":  {0, 0},
		"[1,10)":   {1, 0},
		"[0,1)":    {1, 1},
	}
	for label, counts := range want {
		stat := report.Tiers[label]
		if stat.Total != counts[0] || stat.Missing != counts[1] {
			t.Fatalf("tier %s: got %#v, want total=%d missing=%d", label, stat, counts[0], counts[1])
		}
		if stat.Have != stat.Total-stat.Missing {
			t.Fatalf("tier %s: have mismatch %#v", label, stat)
		}
	}
	if report.Tiers["[10,50)"].CoveragePercent != 100.0 {
		t.Fatalf("empty tier should report full coverage, got %v", report.Tiers["[10,50)"].CoveragePercent)
	}

	recs := strings.Join(report.Recommendations, "\n")
	if !strings.Contains(recs, "Priority: import 1 missing movies in tier [50,100)") {
		t.Fatalf("expected priority note for [50,100), got %q", recs)
	}
	for _, label := range []string{"[100,∞)", "[10,50)", "[1,10)", "[0,1)"} {
		if strings.Contains(recs, "tier "+label) {
			t.Fatalf("unexpected note for tier %s in %q", label, recs)
		}
	}
	if !strings.Contains(recs, "Estimated import time for priority tiers: 1 day(s) at 10,000 movies/day") {
		t.Fatalf("expected import estimate, got %q", recs)
	}
}

func TestAnalyzeCountsAreConsistent(t *testing.T) {
	records := []testsupport.ExportRecord{
		{ID: 10, Popularity: 300},
		{ID: 11, Popularity: 75},
		{ID: 12, Popularity: 20},
		{ID: 13, Popularity: 2},
		{ID: 14, Popularity: 0},
		{ID: 15, Popularity: -3},
		{ID: 10, Popularity: 300},
	}
	h := newHarness(t, catalog.KindPeople, records, 10, 13, 99, 100)

	report, err := h.analyzer.Analyze(context.Background(), gap.Options{ExportPath: h.path})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.MissingCount+report.Overlap != report.ExportTotal {
		t.Fatalf("missing+overlap != export_total: %#v", report)
	}
	if report.ExtraCount+report.Overlap != report.LocalTotal {
		t.Fatalf("extra+overlap != local_total: %#v", report)
	}
	if report.ExportTotal != 6 {
		t.Fatalf("duplicates should collapse, export_total=%d", report.ExportTotal)
	}
	tierTotal := 0
	for _, stat := range report.Tiers {
		tierTotal += stat.Total
	}
	if tierTotal != 5 {
		t.Fatalf("tier totals should cover non-negative popularity only, got %d", tierTotal)
	}
	if len(report.ExtraSample) != 2 || report.ExtraSample[0] != 99 {
		t.Fatalf("unexpected extra sample %v", report.ExtraSample)
	}
	if !strings.Contains(strings.Join(report.Recommendations, "\n"), "Note: 2 local people no longer appear in the export") {
		t.Fatalf("expected extra note, got %v", report.Recommendations)
	}
}

func TestCoverageMonotonicInLocal(t *testing.T) {
	h := newHarness(t, catalog.KindMovies, scenarioRecords())
	ctx := context.Background()

	previous := -1.0
	for _, id := range []int64{0, 4, 2, 1, 3} {
		if id > 0 {
			testsupport.SeedIDs(t, h.store, catalog.KindMovies, id)
		}
		report, err := h.analyzer.Analyze(ctx, gap.Options{ExportPath: h.path})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if report.CoveragePercent < previous {
			t.Fatalf("coverage decreased from %v to %v", previous, report.CoveragePercent)
		}
		if report.CoveragePercent < 0 || report.CoveragePercent > 100 {
			t.Fatalf("coverage out of bounds: %v", report.CoveragePercent)
		}
		previous = report.CoveragePercent
	}
	if previous != 100 {
		t.Fatalf("expected full coverage, got %v", previous)
	}
}

func TestAnalyzeEmptyExport(t *testing.T) {
	h := newHarness(t, catalog.KindMovies, nil, 1)
	report, err := h.analyzer.Analyze(context.Background(), gap.Options{ExportPath: h.path})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.CoveragePercent != 0 || report.ExportTotal != 0 || report.ExtraCount != 1 {
		t.Fatalf("unexpected report %#v", report)
	}
	for _, rec := range report.Recommendations {
		if strings.HasPrefix(rec, "Priority") || strings.HasPrefix(rec, "Estimated") {
			t.Fatalf("unexpected recommendation %q", rec)
		}
	}
}

func TestAnalyzeAppliesFilters(t *testing.T) {
	records := []testsupport.ExportRecord{
		{ID: 1, Popularity: 120},
		{ID: 2, Popularity: 60, Video: true},
		{ID: 3, Popularity: 50, Adult: true},
		{ID: 4, Popularity: 0.2},
	}
	h := newHarness(t, catalog.KindMovies, records)
	report, err := h.analyzer.Analyze(context.Background(), gap.Options{
		ExportPath: h.path, SkipVideo: true, SkipAdult: true, MinPopularity: 1,
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.ExportTotal != 1 {
		t.Fatalf("expected only one entry after filters, got %d", report.ExportTotal)
	}
}

func TestRecommendationEstimateRoundsUp(t *testing.T) {
	records := make([]testsupport.ExportRecord, 0, 10001)
	for i := int64(1); i <= 10001; i++ {
		records = append(records, testsupport.ExportRecord{ID: i, Popularity: 150})
	}
	h := newHarness(t, catalog.KindMovies, records)
	report, err := h.analyzer.Analyze(context.Background(), gap.Options{ExportPath: h.path})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	want := []string{
		"Priority: import 10,001 missing movies in tier [100,∞)",
		"Estimated import time for priority tiers: 2 day(s) at 10,000 movies/day",
	}
	if len(report.Recommendations) != len(want) {
		t.Fatalf("unexpected recommendations %v", report.Recommendations)
	}
	for i := range want {
		if report.Recommendations[i] != want[i] {
			t.Fatalf("recommendation %d = %q, want %q", i, report.Recommendations[i], want[i])
		}
	}
}

func TestFindMissingIDs(t *testing.T) {
	h := newHarness(t, catalog.KindMovies, scenarioRecords(), 1, 3)
	ctx := context.Background()

	missing, err := h.analyzer.FindMissingIDs(ctx, gap.Options{ExportPath: h.path})
	if err != nil {
		t.Fatalf("FindMissingIDs failed: %v", err)
	}
	if len(missing) != 2 || missing[0].ID != 2 || missing[1].ID != 4 {
		t.Fatalf("unexpected missing %#v", missing)
	}

	byID, err := h.analyzer.FindMissingIDs(ctx, gap.Options{ExportPath: h.path, SortBy: "id", Limit: 1})
	if err != nil {
		t.Fatalf("FindMissingIDs failed: %v", err)
	}
	if len(byID) != 1 || byID[0].ID != 2 {
		t.Fatalf("unexpected limited result %#v", byID)
	}

	popular, err := h.analyzer.FindMissingIDs(ctx, gap.Options{ExportPath: h.path, MinPopularity: 1})
	if err != nil {
		t.Fatalf("FindMissingIDs failed: %v", err)
	}
	if len(popular) != 1 || popular[0].ID != 2 {
		t.Fatalf("unexpected popularity-filtered result %#v", popular)
	}
}

func TestFindMissingByTier(t *testing.T) {
	h := newHarness(t, catalog.KindMovies, scenarioRecords(), 1, 3)
	grouped, err := h.analyzer.FindMissingByTier(context.Background(), gap.Options{ExportPath: h.path})
	if err != nil {
		t.Fatalf("FindMissingByTier failed: %v", err)
	}
	if len(grouped) != len(gap.Tiers) {
		t.Fatalf("expected every tier present, got %d", len(grouped))
	}
	if got := grouped["[50,100)"]; len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("unexpected [50,100) group %#v", got)
	}
	if got := grouped["[0,1)"]; len(got) != 1 || got[0].ID != 4 {
		t.Fatalf("unexpected [0,1) group %#v", got)
	}
	if got := grouped["[100,∞)"]; len(got) != 0 {
		t.Fatalf("expected empty top tier, got %#v", got)
	}
}

func TestFindMissingByTierKeepsGlobalLimitAndOrder(t *testing.T) {
	h := newHarness(t, catalog.KindMovies, scenarioRecords())
	ctx := context.Background()

	grouped, err := h.analyzer.FindMissingByTier(ctx, gap.Options{ExportPath: h.path, Limit: 1})
	if err != nil {
		t.Fatalf("FindMissingByTier failed: %v", err)
	}
	total := 0
	for _, entries := range grouped {
		total += len(entries)
	}
	if total != 1 {
		t.Fatalf("expected 1 entry across tiers, got %d: %#v", total, grouped)
	}
	if got := grouped["[100,∞)"]; len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("unexpected top tier %#v", got)
	}

	byID, err := h.analyzer.FindMissingByTier(ctx, gap.Options{ExportPath: h.path, SortBy: "id", Limit: 3})
	if err != nil {
		t.Fatalf("FindMissingByTier failed: %v", err)
	}
	if got := byID["[0,1)"]; len(got) != 0 {
		t.Fatalf("id 4 is past the limit, got %#v", got)
	}
	if got := byID["[1,10)"]; len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("unexpected [1,10) group %#v", got)
	}
}

func TestExportStatsMatchesAnalyze(t *testing.T) {
	h := newHarness(t, catalog.KindMovies, scenarioRecords(), 1, 3, 50)
	ctx := context.Background()
	stats, err := h.analyzer.ExportStats(ctx, gap.Options{ExportPath: h.path})
	if err != nil {
		t.Fatalf("ExportStats failed: %v", err)
	}
	report, err := h.analyzer.Analyze(ctx, gap.Options{ExportPath: h.path})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if stats.ExportTotal != report.ExportTotal || stats.LocalTotal != report.LocalTotal ||
		stats.Overlap != report.Overlap || stats.MissingCount != report.MissingCount ||
		math.Abs(stats.CoveragePercent-report.CoveragePercent) > 1e-9 {
		t.Fatalf("stats %#v disagree with report %#v", stats, report)
	}
}

func TestExportStatsExplicitPathMissing(t *testing.T) {
	h := newHarness(t, catalog.KindMovies, nil)
	_, err := h.analyzer.ExportStats(context.Background(), gap.Options{ExportPath: filepath.Join(t.TempDir(), "absent.gz")})
	if !errors.Is(err, export.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func newDownloadServer(t *testing.T, records []testsupport.ExportRecord, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	body := testsupport.GzipBytes(t, testsupport.ExportBytes(t, records))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/"+export.FileName(catalog.KindMovies, asOf) {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newDownloadingAnalyzer(t *testing.T, serverURL string, local ...int64) (*gap.Analyzer, *store.Store, *export.Acquirer) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if len(local) > 0 {
		testsupport.SeedIDs(t, st, catalog.KindMovies, local...)
	}
	acq := export.NewAcquirer(serverURL, cfg.Paths.ExportCacheDir, time.Second, nil,
		export.WithClock(func() time.Time { return asOf }))
	analyzer, err := gap.NewAnalyzer(catalog.KindMovies, acq, export.NewReader(nil), st, st, nil)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return analyzer, st, acq
}

func TestExportStatsFallsBackToDownloadOnce(t *testing.T) {
	var hits atomic.Int32
	server := newDownloadServer(t, scenarioRecords(), &hits)
	analyzer, _, acq := newDownloadingAnalyzer(t, server.URL, 1)
	ctx := context.Background()

	stats, err := analyzer.ExportStats(ctx, gap.Options{})
	if err != nil {
		t.Fatalf("ExportStats failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one download, got %d", hits.Load())
	}
	if stats.ExportTotal != 4 || stats.Overlap != 1 || stats.CoveragePercent != 25 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	if stats.ExportSourcePath != acq.DefaultPath(catalog.KindMovies, asOf) {
		t.Fatalf("unexpected source path %q", stats.ExportSourcePath)
	}

	if _, err := analyzer.ExportStats(ctx, gap.Options{}); err != nil {
		t.Fatalf("second ExportStats failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("cached export should be reused, hits=%d", hits.Load())
	}
}

func TestExportStatsCachedOnlyDoesNotDownload(t *testing.T) {
	var hits atomic.Int32
	server := newDownloadServer(t, scenarioRecords(), &hits)
	analyzer, _, _ := newDownloadingAnalyzer(t, server.URL)

	_, err := analyzer.ExportStats(context.Background(), gap.Options{CachedOnly: true})
	if !errors.Is(err, export.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("cached-only must not download, hits=%d", hits.Load())
	}
}

func TestUpdateBaselinePersistsSnapshot(t *testing.T) {
	var hits atomic.Int32
	server := newDownloadServer(t, scenarioRecords(), &hits)
	analyzer, st, _ := newDownloadingAnalyzer(t, server.URL)
	ctx := context.Background()

	if _, err := analyzer.Baseline(ctx); !errors.Is(err, gap.ErrNoBaseline) {
		t.Fatalf("expected ErrNoBaseline, got %v", err)
	}

	stats, err := analyzer.UpdateBaseline(ctx, gap.Options{ExportPath: "ignored", CachedOnly: true})
	if err != nil {
		t.Fatalf("UpdateBaseline failed: %v", err)
	}
	if stats.ExportTotal != 4 || hits.Load() != 1 {
		t.Fatalf("unexpected stats %#v hits=%d", stats, hits.Load())
	}

	entry, ok, err := st.GetState(ctx, "gap.movies.export_total")
	if err != nil || !ok || entry.Value != "4" {
		t.Fatalf("unexpected persisted total %#v ok=%v err=%v", entry, ok, err)
	}
	entry, ok, err = st.GetState(ctx, "gap.movies.as_of_date")
	if err != nil || !ok || entry.Value != "2026-03-09" {
		t.Fatalf("unexpected persisted date %#v ok=%v err=%v", entry, ok, err)
	}

	baseline, err := analyzer.Baseline(ctx)
	if err != nil {
		t.Fatalf("Baseline failed: %v", err)
	}
	if baseline.ExportTotal != 4 || !baseline.AsOfDate.Equal(asOf) || baseline.Kind != catalog.KindMovies {
		t.Fatalf("unexpected baseline %#v", baseline)
	}

	if _, err := analyzer.UpdateBaseline(ctx, gap.Options{}); err != nil {
		t.Fatalf("second UpdateBaseline failed: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("baseline update must force a download, hits=%d", hits.Load())
	}
}

func TestNewAnalyzerValidates(t *testing.T) {
	if _, err := gap.NewAnalyzer(catalog.Kind("tv"), nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for invalid kind")
	}
	if _, err := gap.NewAnalyzer(catalog.KindMovies, nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}

func TestTierFor(t *testing.T) {
	cases := []struct {
		popularity float64
		want       gap.TierLabel
		ok         bool
	}{
		{1000, "[100,∞)", true},
		{100, "[100,∞)", true},
		{99.99, "[50,100)", true},
		{50, "[50,100)", true},
		{10, "[10,50)", true},
		{1, "[1,10)", true},
		{0.99, "[0,1)", true},
		{0, "[0,1)", true},
		{-0.1, "", false},
		{math.NaN(), "", false},
	}
	for _, tc := range cases {
		got, ok := gap.TierFor(tc.popularity)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("TierFor(%v) = %q,%v want %q,%v", tc.popularity, got, ok, tc.want, tc.ok)
		}
	}
}
