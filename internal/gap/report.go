package gap

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// FormatReport renders report for console or log output.
func FormatReport(report *Report) string {
	if report == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Gap analysis: %s\n", report.Kind)
	if !report.AsOfDate.IsZero() {
		fmt.Fprintf(&b, "Export date: %s\n", report.AsOfDate.UTC().Format("2006-01-02"))
	}
	if report.ExportSourcePath != "" {
		fmt.Fprintf(&b, "Export file: %s\n", report.ExportSourcePath)
	}
	b.WriteString("\n")

	summary := newTable()
	summary.AppendHeader(table.Row{"Metric", "Value"})
	summary.AppendRows([]table.Row{
		{"Export total", humanize.Comma(int64(report.ExportTotal))},
		{"Local total", humanize.Comma(int64(report.LocalTotal))},
		{"Overlap", humanize.Comma(int64(report.Overlap))},
		{"Missing", humanize.Comma(int64(report.MissingCount))},
		{"Extra", humanize.Comma(int64(report.ExtraCount))},
		{"Coverage", formatPercent(report.CoveragePercent)},
	})
	if report.MalformedLines > 0 {
		summary.AppendRow(table.Row{"Malformed lines", humanize.Comma(int64(report.MalformedLines))})
	}
	summary.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	b.WriteString(summary.Render())
	b.WriteString("\n\n")

	tiers := newTable()
	tiers.AppendHeader(table.Row{"Tier", "Total", "Have", "Missing", "Coverage"})
	for _, tier := range Tiers {
		stat, ok := report.Tiers[tier.Label]
		if !ok {
			stat = TierStat{}
			stat.finalize()
		}
		tiers.AppendRow(table.Row{
			string(tier.Label),
			humanize.Comma(int64(stat.Total)),
			humanize.Comma(int64(stat.Have)),
			humanize.Comma(int64(stat.Missing)),
			formatPercent(stat.CoveragePercent),
		})
	}
	tiers.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	b.WriteString(tiers.Render())
	b.WriteString("\n")

	if len(report.MissingSample) > 0 {
		b.WriteString("\nMost popular missing:\n")
		sample := newTable()
		sample.AppendHeader(table.Row{"TMDB ID", "Popularity", "Title"})
		for _, entry := range report.MissingSample {
			sample.AppendRow(table.Row{entry.ID, fmt.Sprintf("%.2f", entry.Popularity), entry.Label()})
		}
		sample.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, Align: text.AlignRight},
			{Number: 2, Align: text.AlignRight},
		})
		b.WriteString(sample.Render())
		b.WriteString("\n")
	}

	if len(report.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range report.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}
	return b.String()
}

// FormatStats renders stats as a one-table summary.
func FormatStats(stats *Stats) string {
	if stats == nil {
		return ""
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Kind", stats.Kind.String()},
		{"Export date", stats.AsOfDate.UTC().Format("2006-01-02")},
		{"Export total", humanize.Comma(int64(stats.ExportTotal))},
		{"Local total", humanize.Comma(int64(stats.LocalTotal))},
		{"Overlap", humanize.Comma(int64(stats.Overlap))},
		{"Missing", humanize.Comma(int64(stats.MissingCount))},
		{"Coverage", formatPercent(stats.CoveragePercent)},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return tw.Render() + "\n"
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.2f%%", value)
}
