package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"catalogsync/internal/resolver"
	"catalogsync/internal/store"
)

type resolveOutput struct {
	Query         resolver.Query `json:"query"`
	Resolved      bool           `json:"resolved"`
	TMDBID        int64          `json:"tmdb_id,omitempty"`
	Title         string         `json:"title,omitempty"`
	ReleaseDate   string         `json:"release_date,omitempty"`
	Confidence    float64        `json:"confidence,omitempty"`
	StrategyLevel int            `json:"strategy_level,omitempty"`
	StrategyName  string         `json:"strategy_name,omitempty"`
	Similarity    float64        `json:"similarity,omitempty"`
	Attempts      []attemptView  `json:"attempts"`
	Error         string         `json:"error,omitempty"`
}

type attemptView struct {
	Level    int    `json:"level"`
	Strategy string `json:"strategy"`
	Outcome  string `json:"outcome"`
	Accepted bool   `json:"accepted"`
	TMDBID   int64  `json:"tmdb_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var (
		externalID string
		year       int
		depth      int
		floor      float64
		save       bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [title]",
		Short: "Resolve a movie reference to a TMDB entity",
		Long: `Resolve runs the strategy cascade for a single movie reference.

An IMDb ID (tt0133093) or numeric TMDB ID given with --id is tried first;
the title and --year drive the search-based strategies.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := resolver.Query{ExternalID: strings.TrimSpace(externalID), Year: year}
			if len(args) == 1 {
				query.Title = strings.TrimSpace(args[0])
			}
			if query.ExternalID == "" && query.Title == "" {
				return errors.New("provide a title argument or --id")
			}

			r, err := ctx.resolver(cmd, depth, floor)
			if err != nil {
				return err
			}
			result, resolveErr := r.Resolve(cmd.Context(), query)
			if resolveErr != nil && !errors.Is(resolveErr, resolver.ErrNotFound) {
				return resolveErr
			}

			out := buildResolveOutput(query, result, resolveErr)
			if save && result != nil {
				st, err := ctx.openStore()
				if err != nil {
					return err
				}
				year, _ := result.Entity.Year()
				if _, err := st.UpsertMovie(cmd.Context(), store.Movie{
					TMDBID:      result.Entity.ID,
					IMDBID:      result.Entity.IMDBID,
					Title:       result.Entity.Title,
					ReleaseYear: year,
					Popularity:  result.Entity.Popularity,
				}); err != nil {
					return fmt.Errorf("save movie: %w", err)
				}
			}

			if jsonOut {
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			} else {
				printResolveOutput(cmd, out)
			}
			if resolveErr != nil {
				return fmt.Errorf("not resolved: %w", resolveErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&externalID, "id", "", "IMDb ID (tt...) or numeric TMDB ID")
	cmd.Flags().IntVar(&year, "year", 0, "Release year")
	cmd.Flags().IntVar(&depth, "depth", 0, "Override the maximum number of strategies tried")
	cmd.Flags().Float64Var(&floor, "min-confidence", 0, "Override the confidence floor")
	cmd.Flags().BoolVar(&save, "save", false, "Store the resolved movie in the local catalog")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func buildResolveOutput(query resolver.Query, result *resolver.Result, err error) resolveOutput {
	out := resolveOutput{Query: query}
	attempts := resolver.AttemptsFromError(err)
	if result != nil {
		out.Resolved = true
		out.TMDBID = result.Entity.ID
		out.Title = result.Entity.Title
		out.ReleaseDate = result.Entity.ReleaseDate
		out.Confidence = result.Confidence
		out.StrategyLevel = result.StrategyLevel
		out.StrategyName = result.StrategyName
		out.Similarity = result.Similarity
		attempts = result.Attempts
	}
	if err != nil {
		out.Error = err.Error()
	}
	out.Attempts = make([]attemptView, 0, len(attempts))
	for _, a := range attempts {
		view := attemptView{
			Level:    a.Strategy.Level,
			Strategy: a.Strategy.Name,
			Outcome:  a.Outcome.String(),
			Accepted: a.Accepted,
			TMDBID:   a.EntityID,
		}
		if a.Err != nil {
			view.Error = a.Err.Error()
		}
		out.Attempts = append(out.Attempts, view)
	}
	return out
}

func printResolveOutput(cmd *cobra.Command, out resolveOutput) {
	w := cmd.OutOrStdout()
	color := shouldColorize(w)
	if out.Resolved {
		fmt.Fprintf(w, "%s %s (%s) -> TMDB %d\n", colorize(color, ansiGreen, "Resolved:"), out.Title, out.ReleaseDate, out.TMDBID)
		fmt.Fprintf(w, "Strategy: %s (level %d), confidence %.2f\n", out.StrategyName, out.StrategyLevel, out.Confidence)
		if out.Similarity > 0 {
			fmt.Fprintf(w, "Title similarity: %.3f\n", out.Similarity)
		}
	} else {
		fmt.Fprintln(w, colorize(color, ansiRed, "Not resolved"))
	}

	if len(out.Attempts) == 0 {
		return
	}
	rows := make([][]string, 0, len(out.Attempts))
	for _, a := range out.Attempts {
		id := ""
		if a.TMDBID > 0 {
			id = strconv.FormatInt(a.TMDBID, 10)
		}
		rows = append(rows, []string{strconv.Itoa(a.Level), a.Strategy, a.Outcome, yesNo(a.Accepted), id, a.Error})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable(
		[]string{"Level", "Strategy", "Outcome", "Accepted", "TMDB ID", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}
