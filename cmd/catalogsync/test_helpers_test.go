package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"catalogsync/internal/config"
	"catalogsync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	tmdb       *fakeTMDB
	exports    *fakeExportHost
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("TMDB_API_KEY", "")
	t.Setenv("NO_COLOR", "1")

	tmdbServer := newFakeTMDB(t)
	exportServer := newFakeExportHost(t)

	cfg := testsupport.NewConfig(t,
		testsupport.WithTMDBBaseURL(tmdbServer.URL),
		testsupport.WithExportBaseURL(exportServer.URL),
	)
	cfg.Logging.Level = "error"

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		tmdb:       tmdbServer,
		exports:    exportServer,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func runCLIWithInput(t *testing.T, args []string, configPath, input string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

type fakeTMDB struct {
	*httptest.Server
}

// newFakeTMDB serves a single movie, The Matrix (603, tt0133093).
func newFakeTMDB(t *testing.T) *fakeTMDB {
	t.Helper()
	matrix := map[string]any{
		"id":           603,
		"title":        "The Matrix",
		"release_date": "1999-03-31",
		"popularity":   80.5,
		"imdb_id":      "tt0133093",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/configuration", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSONBody(t, w, map[string]any{"images": map[string]any{}})
	})
	mux.HandleFunc("/search/movie", func(w http.ResponseWriter, r *http.Request) {
		query := strings.ToLower(r.URL.Query().Get("query"))
		year := r.URL.Query().Get("primary_release_year")
		results := []any{}
		if query == "the matrix" && (year == "" || year == "1999") {
			results = append(results, matrix)
		}
		writeJSONBody(t, w, map[string]any{"page": 1, "results": results, "total_results": len(results)})
	})
	mux.HandleFunc("/movie/603", func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, matrix)
	})
	mux.HandleFunc("/person/6384", func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, map[string]any{"id": 6384, "name": "Keanu Reeves", "popularity": 40.2})
	})
	mux.HandleFunc("/find/tt0133093", func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(t, w, map[string]any{"movie_results": []any{matrix}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fakeTMDB{Server: srv}
}

type fakeExportHost struct {
	*httptest.Server
	mu       sync.Mutex
	files    map[string][]byte
	requests atomic.Int32
}

func (h *fakeExportHost) publish(name string, body []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[name] = body
}

func newFakeExportHost(t *testing.T) *fakeExportHost {
	t.Helper()
	host := &fakeExportHost{files: map[string][]byte{}}
	host.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		host.requests.Add(1)
		host.mu.Lock()
		body, ok := host.files[name]
		host.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	}))
	t.Cleanup(host.Server.Close)
	return host
}

func writeJSONBody(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}
