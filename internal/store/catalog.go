package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"catalogsync/internal/catalog"
)

// Movie is a locally held movie row.
type Movie struct {
	ID          int64
	TMDBID      int64
	IMDBID      string
	Title       string
	ReleaseYear int
	Popularity  float64
}

// Person is a locally held person row.
type Person struct {
	ID         int64
	TMDBID     int64
	IMDBID     string
	Name       string
	Popularity float64
}

func tableFor(kind catalog.Kind) (string, error) {
	switch kind {
	case catalog.KindMovies:
		return "movies", nil
	case catalog.KindPeople:
		return "people", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// LocalIDs returns the set of non-null TMDB IDs stored for kind.
func (s *Store) LocalIDs(ctx context.Context, kind catalog.Kind) (map[int64]struct{}, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tmdb_id FROM `+table+` WHERE tmdb_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query local %s ids: %w", kind, err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan local id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate local ids: %w", err)
	}
	return ids, nil
}

// Count returns the number of rows held for kind, linked or not.
func (s *Store) Count(ctx context.Context, kind catalog.Kind) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return count, nil
}

// UpsertMovie inserts a movie row or, when a row with the same TMDB ID exists,
// refreshes it. TMDBID may be zero for an unlinked reference.
func (s *Store) UpsertMovie(ctx context.Context, movie Movie) (*Movie, error) {
	movie.Title = strings.TrimSpace(movie.Title)
	if movie.Title == "" {
		return nil, errors.New("movie title required")
	}
	stamp := nowStamp()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO movies (tmdb_id, imdb_id, title, release_year, popularity, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(tmdb_id) DO UPDATE SET
             imdb_id = COALESCE(excluded.imdb_id, movies.imdb_id),
             title = excluded.title,
             release_year = COALESCE(excluded.release_year, movies.release_year),
             popularity = excluded.popularity,
             updated_at = excluded.updated_at
         RETURNING id`,
		nullableInt64(movie.TMDBID),
		nullableString(movie.IMDBID),
		movie.Title,
		nullableInt(movie.ReleaseYear),
		movie.Popularity,
		stamp,
		stamp,
	).Scan(&movie.ID)
	if err != nil {
		return nil, fmt.Errorf("upsert movie: %w", err)
	}
	return &movie, nil
}

// UpsertPerson inserts a person row or refreshes the row sharing its TMDB ID.
func (s *Store) UpsertPerson(ctx context.Context, person Person) (*Person, error) {
	person.Name = strings.TrimSpace(person.Name)
	if person.Name == "" {
		return nil, errors.New("person name required")
	}
	stamp := nowStamp()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO people (tmdb_id, imdb_id, name, popularity, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(tmdb_id) DO UPDATE SET
             imdb_id = COALESCE(excluded.imdb_id, people.imdb_id),
             name = excluded.name,
             popularity = excluded.popularity,
             updated_at = excluded.updated_at
         RETURNING id`,
		nullableInt64(person.TMDBID),
		nullableString(person.IMDBID),
		person.Name,
		person.Popularity,
		stamp,
		stamp,
	).Scan(&person.ID)
	if err != nil {
		return nil, fmt.Errorf("upsert person: %w", err)
	}
	return &person, nil
}

// ImportIDs records bare TMDB IDs for kind, skipping ones already present.
// It returns how many rows were inserted.
func (s *Store) ImportIDs(ctx context.Context, kind catalog.Kind, ids []int64) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	labelColumn := "title"
	if kind == catalog.KindPeople {
		labelColumn = "name"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (tmdb_id, `+labelColumn+`, created_at, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	stamp := nowStamp()
	inserted := 0
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		res, err := stmt.ExecContext(ctx, id, fmt.Sprintf("tmdb:%d", id), stamp, stamp)
		if err != nil {
			return 0, fmt.Errorf("import %s id %d: %w", kind, id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return inserted, nil
}

// UnlinkedMovies returns movie rows that have no TMDB ID yet, oldest first.
func (s *Store) UnlinkedMovies(ctx context.Context, limit int) ([]Movie, error) {
	query := `SELECT id, tmdb_id, imdb_id, title, release_year, popularity FROM movies WHERE tmdb_id IS NULL ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMovies(ctx, query, args...)
}

// ListMovies returns movie rows ordered by ID.
func (s *Store) ListMovies(ctx context.Context, limit int) ([]Movie, error) {
	query := `SELECT id, tmdb_id, imdb_id, title, release_year, popularity FROM movies ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMovies(ctx, query, args...)
}

// LinkMovie sets the TMDB ID of an existing movie row.
func (s *Store) LinkMovie(ctx context.Context, rowID, tmdbID int64) error {
	if tmdbID <= 0 {
		return errors.New("tmdb id must be positive")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE movies SET tmdb_id = ?, updated_at = ? WHERE id = ?`,
		tmdbID, nowStamp(), rowID)
	if err != nil {
		return fmt.Errorf("link movie %d: %w", rowID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("link movie %d: %w", rowID, sql.ErrNoRows)
	}
	return nil
}

func (s *Store) queryMovies(ctx context.Context, query string, args ...any) ([]Movie, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	var movies []Movie
	for rows.Next() {
		var (
			movie      Movie
			tmdbID     sql.NullInt64
			imdbID     sql.NullString
			year       sql.NullInt64
			popularity sql.NullFloat64
		)
		if err := rows.Scan(&movie.ID, &tmdbID, &imdbID, &movie.Title, &year, &popularity); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		movie.TMDBID = tmdbID.Int64
		movie.IMDBID = imdbID.String
		movie.ReleaseYear = int(year.Int64)
		movie.Popularity = popularity.Float64
		movies = append(movies, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}
	return movies, nil
}

// ListPeople returns person rows ordered by ID.
func (s *Store) ListPeople(ctx context.Context, limit int) ([]Person, error) {
	query := `SELECT id, tmdb_id, imdb_id, name, popularity FROM people ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		var (
			person     Person
			tmdbID     sql.NullInt64
			imdbID     sql.NullString
			popularity sql.NullFloat64
		)
		if err := rows.Scan(&person.ID, &tmdbID, &imdbID, &person.Name, &popularity); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		person.TMDBID = tmdbID.Int64
		person.IMDBID = imdbID.String
		person.Popularity = popularity.Float64
		people = append(people, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}
