package testsupport

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ExportRecord is one line of a TMDB daily ID export fixture.
type ExportRecord struct {
	ID            int64   `json:"id"`
	OriginalTitle string  `json:"original_title,omitempty"`
	Name          string  `json:"name,omitempty"`
	Popularity    float64 `json:"popularity"`
	Video         bool    `json:"video,omitempty"`
	Adult         bool    `json:"adult"`
}

// ExportBytes renders records as newline-delimited JSON, followed by any
// extra raw lines.
func ExportBytes(t testing.TB, records []ExportRecord, extraLines ...string) []byte {
	t.Helper()

	var b strings.Builder
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("marshal export record: %v", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	for _, line := range extraLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// WriteExport writes a gzip-compressed export fixture to path.
func WriteExport(t testing.TB, path string, records []ExportRecord, extraLines ...string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(ExportBytes(t, records, extraLines...)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip %s: %v", path, err)
	}
}

// GzipBytes compresses payload in memory.
func GzipBytes(t testing.TB, payload []byte) []byte {
	t.Helper()

	var b strings.Builder
	zw := gzip.NewWriter(&b)
	if _, err := zw.Write(payload); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return []byte(b.String())
}
