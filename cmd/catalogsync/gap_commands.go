package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"catalogsync/internal/config"
	"catalogsync/internal/export"
	"catalogsync/internal/gap"
)

type gapFlags struct {
	kind          string
	exportPath    string
	cachedOnly    bool
	forceDownload bool
	includeVideo  bool
	includeAdult  bool
	minPopularity float64
	limit         int
	sortBy        string
	date          string
	jsonOut       bool
}

func (f *gapFlags) register(cmd *cobra.Command, withShaping bool) {
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "movies", "Entity kind: movies or people")
	cmd.Flags().StringVar(&f.exportPath, "export", "", "Use this export file instead of the cache")
	cmd.Flags().BoolVar(&f.cachedOnly, "cached-only", false, "Never download; fail when no cached export exists")
	cmd.Flags().BoolVar(&f.forceDownload, "force-download", false, "Download a fresh export even when cached")
	cmd.Flags().BoolVar(&f.includeVideo, "include-video", false, "Include video-flagged entries")
	cmd.Flags().BoolVar(&f.includeAdult, "include-adult", false, "Include adult-flagged entries")
	cmd.Flags().Float64Var(&f.minPopularity, "min-popularity", -1, "Minimum popularity (defaults to export.min_popularity)")
	cmd.Flags().StringVar(&f.date, "date", "", "Export date (YYYY-MM-DD or MM-DD-YYYY, defaults to today UTC)")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Output as JSON")
	if withShaping {
		cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "Maximum entries to list (0 for all)")
		cmd.Flags().StringVar(&f.sortBy, "sort", "popularity", "Sort order: popularity or id")
	}
}

func (f *gapFlags) options(cfg *config.Config) (gap.Options, error) {
	opts := gap.Options{
		ExportPath:    strings.TrimSpace(f.exportPath),
		CachedOnly:    f.cachedOnly,
		ForceDownload: f.forceDownload,
		SkipVideo:     cfg.Export.SkipVideo && !f.includeVideo,
		SkipAdult:     cfg.Export.SkipAdult && !f.includeAdult,
		MinPopularity: cfg.Export.MinPopularity,
		Limit:         f.limit,
	}
	if f.cachedOnly && f.forceDownload {
		return opts, errors.New("--cached-only and --force-download are mutually exclusive")
	}
	if f.minPopularity >= 0 {
		opts.MinPopularity = f.minPopularity
	}
	switch strings.ToLower(strings.TrimSpace(f.sortBy)) {
	case "", "popularity":
		opts.SortBy = "popularity"
	case "id":
		opts.SortBy = "id"
	default:
		return opts, fmt.Errorf("--sort: unsupported value %q (use popularity or id)", f.sortBy)
	}
	if value := strings.TrimSpace(f.date); value != "" {
		date, err := parseExportDate(value)
		if err != nil {
			return opts, err
		}
		opts.Date = date
	}
	return opts, nil
}

func (f *gapFlags) prepare(ctx *commandContext, cmd *cobra.Command) (*gap.Analyzer, gap.Options, error) {
	kind, err := parseKindFlag(f.kind)
	if err != nil {
		return nil, gap.Options{}, err
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, gap.Options{}, err
	}
	opts, err := f.options(cfg)
	if err != nil {
		return nil, gap.Options{}, err
	}
	analyzer, err := ctx.analyzer(cmd, kind)
	if err != nil {
		return nil, gap.Options{}, err
	}
	return analyzer, opts, nil
}

func newGapCommand(ctx *commandContext) *cobra.Command {
	gapCmd := &cobra.Command{
		Use:   "gap",
		Short: "Compare the local catalog with TMDB's daily export",
	}
	gapCmd.AddCommand(newGapReportCommand(ctx))
	gapCmd.AddCommand(newGapMissingCommand(ctx))
	gapCmd.AddCommand(newGapTiersCommand(ctx))
	gapCmd.AddCommand(newGapStatsCommand(ctx))
	gapCmd.AddCommand(newGapBaselineCommand(ctx))
	gapCmd.AddCommand(newGapFetchCommand(ctx))
	return gapCmd
}

func newGapFetchCommand(ctx *commandContext) *cobra.Command {
	var (
		kindFlag string
		from     string
		date     string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Populate the export cache by download or from a local file",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindFlag(kindFlag)
			if err != nil {
				return err
			}
			var day time.Time
			if value := strings.TrimSpace(date); value != "" {
				if day, err = parseExportDate(value); err != nil {
					return err
				}
			}
			acq, err := ctx.acquirer(cmd)
			if err != nil {
				return err
			}

			var src export.Source
			if path := strings.TrimSpace(from); path != "" {
				src, err = acq.Import(cmd.Context(), kind, path, day)
			} else {
				src, err = acq.Acquire(cmd.Context(), kind, export.AcquireOptions{Date: day, Force: force})
			}
			if err != nil {
				return terseError("gap fetch", err)
			}
			action := "Cached"
			if src.Downloaded {
				action = "Downloaded"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s export for %s: %s\n", action, kind, formatDate(src.Date), src.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "movies", "Entity kind: movies or people")
	cmd.Flags().StringVar(&from, "from", "", "Install this local export file instead of downloading")
	cmd.Flags().StringVar(&date, "date", "", "Export date (YYYY-MM-DD or MM-DD-YYYY, defaults to today UTC)")
	cmd.Flags().BoolVar(&force, "force", false, "Download even when the export is already cached")
	return cmd
}

func newGapReportCommand(ctx *commandContext) *cobra.Command {
	flags := &gapFlags{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Full coverage report with popularity tiers and recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer, opts, err := flags.prepare(ctx, cmd)
			if err != nil {
				return err
			}
			report, err := analyzer.Analyze(cmd.Context(), opts)
			if err != nil {
				return terseError("gap report", err)
			}
			if flags.jsonOut {
				return writeJSON(cmd, report)
			}
			fmt.Fprint(cmd.OutOrStdout(), gap.FormatReport(report))
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newGapMissingCommand(ctx *commandContext) *cobra.Command {
	flags := &gapFlags{}
	var idsOnly bool
	cmd := &cobra.Command{
		Use:   "missing",
		Short: "List export entries absent from the local catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer, opts, err := flags.prepare(ctx, cmd)
			if err != nil {
				return err
			}
			missing, err := analyzer.FindMissingIDs(cmd.Context(), opts)
			if err != nil {
				return terseError("gap missing", err)
			}
			if flags.jsonOut {
				return writeJSON(cmd, missing)
			}
			out := cmd.OutOrStdout()
			if idsOnly {
				for _, entry := range missing {
					fmt.Fprintln(out, entry.ID)
				}
				return nil
			}
			if len(missing) == 0 {
				fmt.Fprintf(out, "No missing %s\n", analyzer.Kind().Noun())
				return nil
			}
			fmt.Fprintln(out, renderEntries(missing))
			return nil
		},
	}
	flags.register(cmd, true)
	cmd.Flags().BoolVar(&idsOnly, "ids-only", false, "Print one TMDB ID per line")
	return cmd
}

func newGapTiersCommand(ctx *commandContext) *cobra.Command {
	flags := &gapFlags{}
	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "Group missing entries by popularity tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer, opts, err := flags.prepare(ctx, cmd)
			if err != nil {
				return err
			}
			grouped, err := analyzer.FindMissingByTier(cmd.Context(), opts)
			if err != nil {
				return terseError("gap tiers", err)
			}
			if flags.jsonOut {
				return writeJSON(cmd, grouped)
			}
			out := cmd.OutOrStdout()
			for _, tier := range gap.Tiers {
				entries := grouped[tier.Label]
				fmt.Fprintf(out, "Tier %s: %s missing\n", tier.Label, humanize.Comma(int64(len(entries))))
				if len(entries) > 0 {
					fmt.Fprintln(out, renderEntries(entries))
				}
			}
			return nil
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newGapStatsCommand(ctx *commandContext) *cobra.Command {
	flags := &gapFlags{}
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Scalar coverage totals (downloads once when no export is cached)",
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer, opts, err := flags.prepare(ctx, cmd)
			if err != nil {
				return err
			}
			stats, err := analyzer.ExportStats(cmd.Context(), opts)
			if err != nil {
				return terseError("gap stats", err)
			}
			if flags.jsonOut {
				return writeJSON(cmd, stats)
			}
			fmt.Fprint(cmd.OutOrStdout(), gap.FormatStats(stats))
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newGapBaselineCommand(ctx *commandContext) *cobra.Command {
	baselineCmd := &cobra.Command{
		Use:   "baseline",
		Short: "Show or refresh the persisted export baseline",
	}

	showFlags := &gapFlags{}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the stored baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer, _, err := showFlags.prepare(ctx, cmd)
			if err != nil {
				return err
			}
			baseline, err := analyzer.Baseline(cmd.Context())
			if err != nil {
				if errors.Is(err, gap.ErrNoBaseline) {
					return fmt.Errorf("%w; run `catalogsync gap baseline update --kind %s`", err, analyzer.Kind())
				}
				return err
			}
			if showFlags.jsonOut {
				return writeJSON(cmd, baseline)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Kind", "Export total", "As of", "Updated"},
				[][]string{{
					baseline.Kind.String(),
					humanize.Comma(int64(baseline.ExportTotal)),
					formatDate(baseline.AsOfDate),
					humanize.Time(baseline.UpdatedAt),
				}},
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	show.Flags().StringVarP(&showFlags.kind, "kind", "k", "movies", "Entity kind: movies or people")
	show.Flags().BoolVar(&showFlags.jsonOut, "json", false, "Output as JSON")

	updateFlags := &gapFlags{}
	update := &cobra.Command{
		Use:   "update",
		Short: "Download a fresh export and record its size",
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer, opts, err := updateFlags.prepare(ctx, cmd)
			if err != nil {
				return err
			}
			var previous *gap.Baseline
			if prior, err := analyzer.Baseline(cmd.Context()); err == nil {
				previous = prior
			}
			stats, err := analyzer.UpdateBaseline(cmd.Context(), opts)
			if err != nil {
				return terseError("gap baseline update", err)
			}
			if updateFlags.jsonOut {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Baseline for %s: %s entries as of %s\n",
				stats.Kind, humanize.Comma(int64(stats.ExportTotal)), formatDate(stats.AsOfDate))
			if previous != nil {
				delta := stats.ExportTotal - previous.ExportTotal
				fmt.Fprintf(out, "Change since %s: %s\n", formatDate(previous.AsOfDate), signedComma(delta))
			}
			return nil
		},
	}
	update.Flags().StringVarP(&updateFlags.kind, "kind", "k", "movies", "Entity kind: movies or people")
	update.Flags().BoolVar(&updateFlags.includeVideo, "include-video", false, "Include video-flagged entries")
	update.Flags().BoolVar(&updateFlags.includeAdult, "include-adult", false, "Include adult-flagged entries")
	update.Flags().Float64Var(&updateFlags.minPopularity, "min-popularity", -1, "Minimum popularity (defaults to export.min_popularity)")
	update.Flags().StringVar(&updateFlags.date, "date", "", "Export date (YYYY-MM-DD or MM-DD-YYYY, defaults to today UTC)")
	update.Flags().BoolVar(&updateFlags.jsonOut, "json", false, "Output as JSON")

	baselineCmd.AddCommand(show, update)
	return baselineCmd
}

func renderEntries(entries []export.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		tier, _ := gap.TierFor(entry.Popularity)
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			fmt.Sprintf("%.2f", entry.Popularity),
			string(tier),
			entry.Label(),
		})
	}
	return renderTable(
		[]string{"TMDB ID", "Popularity", "Tier", "Title"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
	)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02")
}

func signedComma(n int) string {
	if n > 0 {
		return "+" + humanize.Comma(int64(n))
	}
	return humanize.Comma(int64(n))
}

func parseExportDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "01-02-2006"} {
		if date, err := time.Parse(layout, value); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("--date: %q is not YYYY-MM-DD or MM-DD-YYYY", value)
}
