package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"catalogsync/internal/catalog"
	"catalogsync/internal/resolver"
	"catalogsync/internal/store"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and edit the local catalog",
	}
	catalogCmd.AddCommand(newCatalogAddCommand(ctx))
	catalogCmd.AddCommand(newCatalogListCommand(ctx))
	catalogCmd.AddCommand(newCatalogImportCommand(ctx))
	catalogCmd.AddCommand(newCatalogLinkCommand(ctx))
	return catalogCmd
}

func newCatalogAddCommand(ctx *commandContext) *cobra.Command {
	var (
		kindFlag string
		tmdbID   int64
		imdbID   string
		title    string
		year     int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or refresh a catalog entry",
		Long: `Add stores a movie or person in the local catalog.

With --tmdb-id and no --title the record is fetched from TMDB.
A movie without a TMDB ID is stored unlinked; see "catalog link".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindFlag(kindFlag)
			if err != nil {
				return err
			}
			title = strings.TrimSpace(title)
			if title == "" && tmdbID <= 0 {
				return errors.New("provide --title or --tmdb-id")
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch kind {
			case catalog.KindPeople:
				person := store.Person{TMDBID: tmdbID, IMDBID: strings.TrimSpace(imdbID), Name: title}
				if person.Name == "" {
					client, err := ctx.tmdbClient()
					if err != nil {
						return err
					}
					remote, err := client.GetPerson(cmd.Context(), tmdbID)
					if err != nil {
						return fmt.Errorf("fetch person %d: %w", tmdbID, err)
					}
					person.Name = remote.Name
					person.Popularity = remote.Popularity
					if person.IMDBID == "" {
						person.IMDBID = remote.IMDBID
					}
				}
				saved, err := st.UpsertPerson(cmd.Context(), person)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Stored person #%d: %s\n", saved.ID, saved.Name)
			default:
				movie := store.Movie{TMDBID: tmdbID, IMDBID: strings.TrimSpace(imdbID), Title: title, ReleaseYear: year}
				if movie.Title == "" {
					client, err := ctx.tmdbClient()
					if err != nil {
						return err
					}
					remote, err := client.GetMovie(cmd.Context(), tmdbID)
					if err != nil {
						return fmt.Errorf("fetch movie %d: %w", tmdbID, err)
					}
					movie.Title = remote.Title
					movie.Popularity = remote.Popularity
					if y, ok := remote.Year(); ok && movie.ReleaseYear == 0 {
						movie.ReleaseYear = y
					}
					if movie.IMDBID == "" {
						movie.IMDBID = remote.IMDBID
					}
				}
				saved, err := st.UpsertMovie(cmd.Context(), movie)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Stored movie #%d: %s\n", saved.ID, movieLabel(*saved))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "movies", "Entity kind: movies or people")
	cmd.Flags().Int64Var(&tmdbID, "tmdb-id", 0, "TMDB ID")
	cmd.Flags().StringVar(&imdbID, "imdb-id", "", "IMDb ID")
	cmd.Flags().StringVar(&title, "title", "", "Movie title or person name")
	cmd.Flags().StringVar(&title, "name", "", "Alias for --title")
	cmd.Flags().IntVar(&year, "year", 0, "Release year (movies)")
	return cmd
}

func newCatalogListCommand(ctx *commandContext) *cobra.Command {
	var (
		kindFlag string
		limit    int
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindFlag(kindFlag)
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if kind == catalog.KindPeople {
				people, err := st.ListPeople(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, people)
				}
				if len(people) == 0 {
					fmt.Fprintln(out, "No people stored")
					return nil
				}
				rows := make([][]string, 0, len(people))
				for _, p := range people {
					rows = append(rows, []string{strconv.FormatInt(p.ID, 10), formatTMDBID(p.TMDBID), p.IMDBID, p.Name})
				}
				fmt.Fprintln(out, renderTable([]string{"#", "TMDB ID", "IMDb ID", "Name"}, rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft}))
				return nil
			}

			movies, err := st.ListMovies(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, movies)
			}
			if len(movies) == 0 {
				fmt.Fprintln(out, "No movies stored")
				return nil
			}
			rows := make([][]string, 0, len(movies))
			for _, m := range movies {
				year := ""
				if m.ReleaseYear > 0 {
					year = strconv.Itoa(m.ReleaseYear)
				}
				rows = append(rows, []string{strconv.FormatInt(m.ID, 10), formatTMDBID(m.TMDBID), m.IMDBID, m.Title, year})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "TMDB ID", "IMDb ID", "Title", "Year"}, rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "movies", "Entity kind: movies or people")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import bare TMDB IDs, one per line (stdin when no file or \"-\")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindFlag(kindFlag)
			if err != nil {
				return err
			}
			var input io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open id list: %w", err)
				}
				defer file.Close()
				input = file
			}
			ids, skipped, err := readIDList(input)
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			inserted, err := st.ImportIDs(cmd.Context(), kind, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s new %s (%s read, %s unparseable)\n",
				humanize.Comma(int64(inserted)), kind.Noun(),
				humanize.Comma(int64(len(ids))), humanize.Comma(int64(skipped)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", "movies", "Entity kind: movies or people")
	return cmd
}

// readIDList parses one positive integer per line. Blank lines and lines
// starting with # are ignored; other unparseable lines are counted.
func readIDList(r io.Reader) ([]int64, int, error) {
	scanner := bufio.NewScanner(r)
	var ids []int64
	skipped := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil || id <= 0 {
			skipped++
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read id list: %w", err)
	}
	return ids, skipped, nil
}

func newCatalogLinkCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		workers int
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Resolve unlinked movies to TMDB IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			movies, err := st.UnlinkedMovies(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(movies) == 0 {
				fmt.Fprintln(out, "No unlinked movies")
				return nil
			}
			r, err := ctx.resolver(cmd, 0, 0)
			if err != nil {
				return err
			}
			queries := make([]resolver.Query, len(movies))
			for i, m := range movies {
				queries[i] = resolver.Query{ExternalID: m.IMDBID, Title: m.Title, Year: m.ReleaseYear}
			}
			if workers <= 0 {
				workers = cfg.Resolver.BatchWorkers
			}
			results, batchErr := r.ResolveBatch(cmd.Context(), queries, workers)

			color := shouldColorize(out)
			rows := make([][]string, 0, len(results))
			linked, failed := 0, 0
			for i, res := range results {
				movie := movies[i]
				row := []string{strconv.FormatInt(movie.ID, 10), movieLabel(movie), "", "", ""}
				switch {
				case res.Result != nil:
					row[2] = strconv.FormatInt(res.Result.Entity.ID, 10)
					row[3] = fmt.Sprintf("%s (%.2f)", res.Result.StrategyName, res.Result.Confidence)
					if dryRun {
						row[4] = "would link"
						break
					}
					if err := st.LinkMovie(cmd.Context(), movie.ID, res.Result.Entity.ID); err != nil {
						row[4] = colorize(color, ansiRed, err.Error())
						failed++
						break
					}
					row[4] = colorize(color, ansiGreen, "linked")
					linked++
				case res.Err != nil:
					row[4] = colorize(color, ansiRed, res.Err.Error())
					failed++
				default:
					row[4] = "skipped"
				}
				rows = append(rows, row)
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Movie", "TMDB ID", "Strategy", "Status"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft}))
			fmt.Fprintf(out, "Linked %d of %d (%d unresolved)\n", linked, len(movies), failed)
			return batchErr
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum movies to link (0 for all)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent resolutions (defaults to resolver.batch_workers)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve without writing links")
	return cmd
}

func movieLabel(m store.Movie) string {
	if m.ReleaseYear > 0 {
		return fmt.Sprintf("%s (%d)", m.Title, m.ReleaseYear)
	}
	return m.Title
}

func formatTMDBID(id int64) string {
	if id <= 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}
