package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCallsCommand(ctx *commandContext) *cobra.Command {
	var (
		since   time.Duration
		jsonOut bool
	)
	callsCmd := &cobra.Command{
		Use:   "calls",
		Short: "Summarize tracked lookups by strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			var cutoff time.Time
			if since > 0 {
				cutoff = time.Now().Add(-since)
			}
			summaries, err := st.CallSummary(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, summaries)
			}
			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No tracked calls")
				return nil
			}
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{
					strconv.Itoa(s.FallbackLevel),
					s.Strategy,
					humanize.Comma(int64(s.Calls)),
					humanize.Comma(int64(s.Matched)),
					humanize.Comma(int64(s.NoCandidate)),
					humanize.Comma(int64(s.Errors)),
					fmt.Sprintf("%.1f%%", s.SuccessRate()),
					s.AvgLatency.Round(time.Millisecond).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Level", "Strategy", "Calls", "Matched", "No candidate", "Errors", "Success", "Avg latency"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	callsCmd.Flags().DurationVar(&since, "since", 0, "Only include calls newer than this (e.g. 24h)")
	callsCmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	callsCmd.AddCommand(newCallsRecentCommand(ctx))
	return callsCmd
}

func newCallsRecentCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent tracked lookups",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			calls, err := st.RecentCalls(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, calls)
			}
			out := cmd.OutOrStdout()
			if len(calls) == 0 {
				fmt.Fprintln(out, "No tracked calls")
				return nil
			}
			color := shouldColorize(out)
			rows := make([][]string, 0, len(calls))
			for _, c := range calls {
				outcome := c.Outcome
				switch outcome {
				case "matched":
					outcome = colorize(color, ansiGreen, outcome)
				case "error":
					outcome = colorize(color, ansiRed, outcome)
				}
				rows = append(rows, []string{
					humanize.Time(c.CreatedAt),
					c.Strategy,
					c.Operation,
					c.Key,
					outcome,
					c.Latency.Round(time.Millisecond).String(),
					c.ErrorMessage,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Strategy", "Op", "Key", "Outcome", "Latency", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum calls to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
