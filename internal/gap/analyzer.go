package gap

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"catalogsync/internal/catalog"
	"catalogsync/internal/export"
	"catalogsync/internal/logging"
	"catalogsync/internal/store"
)

const (
	// ImportRatePerDay is the daily import throughput assumed by the estimate.
	ImportRatePerDay = 10000
	sampleSize       = 10
	baselineDateFmt  = "2006-01-02"
)

// ErrNoBaseline indicates no baseline has been recorded for the kind.
var ErrNoBaseline = errors.New("no baseline recorded")

// ExportSource locates export files.
type ExportSource interface {
	Acquire(ctx context.Context, kind catalog.Kind, opts export.AcquireOptions) (export.Source, error)
}

// EntryReader streams export entries.
type EntryReader interface {
	Each(ctx context.Context, path string, filter export.Filter, fn func(export.Entry) error) (export.ReadStats, error)
}

// LocalCatalog exposes the locally held TMDB IDs.
type LocalCatalog interface {
	LocalIDs(ctx context.Context, kind catalog.Kind) (map[int64]struct{}, error)
}

// StateStore persists baseline snapshots.
type StateStore interface {
	SetStates(ctx context.Context, values map[string]string) error
	GetState(ctx context.Context, key string) (store.StateEntry, bool, error)
}

// Options selects the export file and shapes the results.
type Options struct {
	ExportPath    string
	CachedOnly    bool
	ForceDownload bool
	SkipVideo     bool
	SkipAdult     bool
	MinPopularity float64
	// Limit caps FindMissingIDs results, and with them FindMissingByTier.
	Limit int
	// SortBy is "popularity" (default, descending) or "id" (ascending).
	SortBy string
	Date   time.Time
}

func (o Options) filter() export.Filter {
	return export.Filter{SkipVideo: o.SkipVideo, SkipAdult: o.SkipAdult, MinPopularity: o.MinPopularity}
}

func (o Options) acquireOptions() export.AcquireOptions {
	return export.AcquireOptions{
		Path:       o.ExportPath,
		CachedOnly: o.CachedOnly,
		Force:      o.ForceDownload,
		Date:       o.Date,
	}
}

// Report is the full reconciliation result.
type Report struct {
	Kind             catalog.Kind           `json:"kind"`
	AsOfDate         time.Time              `json:"as_of_date"`
	ExportSourcePath string                 `json:"export_source_path"`
	ExportTotal      int                    `json:"export_total"`
	LocalTotal       int                    `json:"local_total"`
	MissingCount     int                    `json:"missing_count"`
	ExtraCount       int                    `json:"extra_count"`
	Overlap          int                    `json:"overlap"`
	CoveragePercent  float64                `json:"coverage_percent"`
	Tiers            map[TierLabel]TierStat `json:"tiers"`
	Recommendations  []string               `json:"recommendations"`
	MissingSample    []export.Entry         `json:"missing_sample"`
	ExtraSample      []int64                `json:"extra_sample"`
	MalformedLines   int                    `json:"malformed_lines"`
}

// Stats is the scalar summary produced by ExportStats.
type Stats struct {
	Kind             catalog.Kind `json:"kind"`
	AsOfDate         time.Time    `json:"as_of_date"`
	ExportSourcePath string       `json:"export_source_path"`
	ExportTotal      int          `json:"export_total"`
	LocalTotal       int          `json:"local_total"`
	Overlap          int          `json:"overlap"`
	MissingCount     int          `json:"missing_count"`
	CoveragePercent  float64      `json:"coverage_percent"`
}

// Baseline is the persisted export snapshot for a kind.
type Baseline struct {
	Kind        catalog.Kind `json:"kind"`
	ExportTotal int          `json:"export_total"`
	AsOfDate    time.Time    `json:"as_of_date"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Analyzer reconciles one entity kind.
type Analyzer struct {
	kind   catalog.Kind
	source ExportSource
	reader EntryReader
	local  LocalCatalog
	state  StateStore
	logger *slog.Logger
}

// NewAnalyzer constructs an Analyzer for kind. state may be nil when
// baselines are not used.
func NewAnalyzer(kind catalog.Kind, source ExportSource, reader EntryReader, local LocalCatalog, state StateStore, logger *slog.Logger) (*Analyzer, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("gap analyzer: invalid kind %q", kind)
	}
	if source == nil || reader == nil || local == nil {
		return nil, errors.New("gap analyzer requires export source, reader, and local catalog")
	}
	logger = logging.NewComponentLogger(logger, "gap").With(logging.String(logging.FieldKind, kind.String()))
	return &Analyzer{kind: kind, source: source, reader: reader, local: local, state: state, logger: logger}, nil
}

// Kind returns the entity kind the analyzer reconciles.
func (a *Analyzer) Kind() catalog.Kind {
	return a.kind
}

type exportScan struct {
	source    export.Source
	entries   map[int64]export.Entry
	malformed int
}

func (a *Analyzer) scan(ctx context.Context, acquire export.AcquireOptions, filter export.Filter) (*exportScan, error) {
	src, err := a.source.Acquire(ctx, a.kind, acquire)
	if err != nil {
		return nil, err
	}
	entries := make(map[int64]export.Entry)
	stats, err := a.reader.Each(ctx, src.Path, filter, func(entry export.Entry) error {
		if _, dup := entries[entry.ID]; !dup {
			entries[entry.ID] = entry
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &exportScan{source: src, entries: entries, malformed: stats.Malformed}, nil
}

// Analyze computes the full gap report.
func (a *Analyzer) Analyze(ctx context.Context, opts Options) (*Report, error) {
	logger := logging.WithContext(ctx, a.logger)
	start := time.Now()

	scan, err := a.scan(ctx, opts.acquireOptions(), opts.filter())
	if err != nil {
		return nil, err
	}
	local, err := a.local.LocalIDs(ctx, a.kind)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Kind:             a.kind,
		AsOfDate:         scan.source.Date,
		ExportSourcePath: scan.source.Path,
		ExportTotal:      len(scan.entries),
		LocalTotal:       len(local),
		Tiers:            emptyTierStats(),
		MalformedLines:   scan.malformed,
	}

	missing := make([]export.Entry, 0)
	for id, entry := range scan.entries {
		_, have := local[id]
		if have {
			report.Overlap++
		} else {
			missing = append(missing, entry)
		}
		label, ok := TierFor(entry.Popularity)
		if !ok {
			continue
		}
		stat := report.Tiers[label]
		stat.Total++
		if !have {
			stat.Missing++
		}
		report.Tiers[label] = stat
	}
	for label, stat := range report.Tiers {
		stat.finalize()
		report.Tiers[label] = stat
	}

	extra := make([]int64, 0)
	for id := range local {
		if _, ok := scan.entries[id]; !ok {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)

	report.MissingCount = len(missing)
	report.ExtraCount = len(extra)
	report.CoveragePercent = coverage(report.Overlap, report.ExportTotal)

	sortEntries(missing, "popularity")
	report.MissingSample = missing[:min(sampleSize, len(missing))]
	report.ExtraSample = extra[:min(sampleSize, len(extra))]
	report.Recommendations = recommendations(a.kind, report.Tiers, report.ExtraCount)

	logger.Info("gap analysis complete",
		logging.String("export", report.ExportSourcePath),
		logging.Int("export_total", report.ExportTotal),
		logging.Int("local_total", report.LocalTotal),
		logging.Int("missing", report.MissingCount),
		logging.Int("extra", report.ExtraCount),
		logging.Float64("coverage_percent", report.CoveragePercent),
		logging.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// FindMissingIDs returns export entries absent locally, sorted by popularity
// (descending) or ID, truncated to opts.Limit when positive.
func (a *Analyzer) FindMissingIDs(ctx context.Context, opts Options) ([]export.Entry, error) {
	local, err := a.local.LocalIDs(ctx, a.kind)
	if err != nil {
		return nil, err
	}
	src, err := a.source.Acquire(ctx, a.kind, opts.acquireOptions())
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	missing := make([]export.Entry, 0)
	if _, err := a.reader.Each(ctx, src.Path, opts.filter(), func(entry export.Entry) error {
		if _, have := local[entry.ID]; have {
			return nil
		}
		if _, dup := seen[entry.ID]; dup {
			return nil
		}
		seen[entry.ID] = struct{}{}
		missing = append(missing, entry)
		return nil
	}); err != nil {
		return nil, err
	}

	sortEntries(missing, opts.SortBy)
	if opts.Limit > 0 && len(missing) > opts.Limit {
		missing = missing[:opts.Limit]
	}
	return missing, nil
}

// FindMissingByTier groups the FindMissingIDs result by popularity band.
// Every band is present; entries keep the order and global limit of opts.
func (a *Analyzer) FindMissingByTier(ctx context.Context, opts Options) (map[TierLabel][]export.Entry, error) {
	missing, err := a.FindMissingIDs(ctx, opts)
	if err != nil {
		return nil, err
	}

	grouped := make(map[TierLabel][]export.Entry, len(Tiers))
	for _, tier := range Tiers {
		grouped[tier.Label] = []export.Entry{}
	}
	for _, entry := range missing {
		label, ok := TierFor(entry.Popularity)
		if !ok {
			continue
		}
		grouped[label] = append(grouped[label], entry)
	}
	return grouped, nil
}

// ExportStats computes scalar totals. Without an explicit path or a forced
// download it prefers the cached export and downloads once when none exists.
func (a *Analyzer) ExportStats(ctx context.Context, opts Options) (*Stats, error) {
	acquire := opts.acquireOptions()
	if acquire.Path == "" && !acquire.Force {
		acquire.CachedOnly = true
	}
	stats, err := a.stats(ctx, acquire, opts.filter())
	if err == nil {
		return stats, nil
	}
	if !errors.Is(err, export.ErrFileNotFound) || opts.ExportPath != "" || opts.CachedOnly || opts.ForceDownload {
		return nil, err
	}

	logging.WithContext(ctx, a.logger).Info("no cached export; downloading",
		logging.Args(logging.DecisionAttrs("export_source", "download", "cached export missing")...)...)
	acquire.CachedOnly = false
	acquire.Force = true
	return a.stats(ctx, acquire, opts.filter())
}

func (a *Analyzer) stats(ctx context.Context, acquire export.AcquireOptions, filter export.Filter) (*Stats, error) {
	src, err := a.source.Acquire(ctx, a.kind, acquire)
	if err != nil {
		return nil, err
	}
	local, err := a.local.LocalIDs(ctx, a.kind)
	if err != nil {
		return nil, err
	}

	ids := make(map[int64]struct{})
	overlap := 0
	if _, err := a.reader.Each(ctx, src.Path, filter, func(entry export.Entry) error {
		if _, dup := ids[entry.ID]; dup {
			return nil
		}
		ids[entry.ID] = struct{}{}
		if _, have := local[entry.ID]; have {
			overlap++
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return &Stats{
		Kind:             a.kind,
		AsOfDate:         src.Date,
		ExportSourcePath: src.Path,
		ExportTotal:      len(ids),
		LocalTotal:       len(local),
		Overlap:          overlap,
		MissingCount:     len(ids) - overlap,
		CoveragePercent:  coverage(overlap, len(ids)),
	}, nil
}

// UpdateBaseline downloads a fresh export, recomputes stats, and persists the
// export total and as-of date.
func (a *Analyzer) UpdateBaseline(ctx context.Context, opts Options) (*Stats, error) {
	if a.state == nil {
		return nil, errors.New("gap analyzer has no state store")
	}
	acquire := opts.acquireOptions()
	acquire.Path = ""
	acquire.CachedOnly = false
	acquire.Force = true
	stats, err := a.stats(ctx, acquire, opts.filter())
	if err != nil {
		return nil, err
	}
	if err := a.state.SetStates(ctx, map[string]string{
		totalKey(a.kind): strconv.Itoa(stats.ExportTotal),
		dateKey(a.kind):  stats.AsOfDate.UTC().Format(baselineDateFmt),
	}); err != nil {
		return nil, err
	}
	logging.WithContext(ctx, a.logger).Info("baseline updated",
		logging.Int("export_total", stats.ExportTotal),
		logging.String("as_of_date", stats.AsOfDate.UTC().Format(baselineDateFmt)),
	)
	return stats, nil
}

// Baseline reads the persisted snapshot.
func (a *Analyzer) Baseline(ctx context.Context) (*Baseline, error) {
	if a.state == nil {
		return nil, errors.New("gap analyzer has no state store")
	}
	total, ok, err := a.state.GetState(ctx, totalKey(a.kind))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoBaseline, a.kind)
	}
	count, err := strconv.Atoi(total.Value)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", totalKey(a.kind), err)
	}
	baseline := &Baseline{Kind: a.kind, ExportTotal: count, UpdatedAt: total.UpdatedAt}
	if date, ok, err := a.state.GetState(ctx, dateKey(a.kind)); err != nil {
		return nil, err
	} else if ok {
		parsed, err := time.Parse(baselineDateFmt, date.Value)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", dateKey(a.kind), err)
		}
		baseline.AsOfDate = parsed
	}
	return baseline, nil
}

func totalKey(kind catalog.Kind) string { return "gap." + kind.String() + ".export_total" }
func dateKey(kind catalog.Kind) string  { return "gap." + kind.String() + ".as_of_date" }

func coverage(overlap, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Max(0, math.Min(100, float64(overlap)/float64(total)*100))
}

func sortEntries(entries []export.Entry, sortBy string) {
	if sortBy == "id" {
		slices.SortFunc(entries, func(a, b export.Entry) int { return cmp.Compare(a.ID, b.ID) })
		return
	}
	slices.SortFunc(entries, func(a, b export.Entry) int {
		if c := cmp.Compare(b.Popularity, a.Popularity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func recommendations(kind catalog.Kind, tiers map[TierLabel]TierStat, extra int) []string {
	recs := make([]string, 0, priorityTierCount+2)
	priorityMissing := 0
	for _, tier := range Tiers[:priorityTierCount] {
		missing := tiers[tier.Label].Missing
		if missing == 0 {
			continue
		}
		priorityMissing += missing
		recs = append(recs, fmt.Sprintf("Priority: import %s missing %s in tier %s",
			humanize.Comma(int64(missing)), kind, tier.Label))
	}
	if priorityMissing > 0 {
		days := (priorityMissing + ImportRatePerDay - 1) / ImportRatePerDay
		recs = append(recs, fmt.Sprintf("Estimated import time for priority tiers: %d day(s) at %s %s/day",
			days, humanize.Comma(ImportRatePerDay), kind))
	}
	if extra > 0 {
		recs = append(recs, fmt.Sprintf("Note: %s local %s no longer appear in the export",
			humanize.Comma(int64(extra)), kind))
	}
	return recs
}
