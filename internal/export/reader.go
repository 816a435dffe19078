package export

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"catalogsync/internal/logging"
)

const maxLineBytes = 1 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// ReadStats summarizes one pass over an export file.
type ReadStats struct {
	Lines     int
	Yielded   int
	Filtered  int
	Malformed int
}

// Reader streams export entries.
type Reader struct {
	logger *slog.Logger
}

// NewReader constructs a Reader. A nil logger discards output.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logging.NewComponentLogger(logger, "export")}
}

// Each calls fn for every entry in path that passes filter. The file may be
// gzip-compressed or plain NDJSON. Malformed lines are skipped and counted.
// Returning an error from fn stops the scan and is returned unchanged.
func (r *Reader) Each(ctx context.Context, path string, filter Filter, fn func(Entry) error) (ReadStats, error) {
	var stats ReadStats

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return stats, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	src, closeFn, err := decompress(f)
	if err != nil {
		return stats, fmt.Errorf("open export %s: %w", path, err)
	}
	defer closeFn()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if stats.Lines%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		stats.Lines++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil || entry.ID <= 0 {
			stats.Malformed++
			continue
		}
		if !filter.Allows(entry) {
			stats.Filtered++
			continue
		}
		stats.Yielded++
		if err := fn(entry); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan export %s: %w", path, err)
	}

	if stats.Malformed > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "skipped malformed export lines", "export_malformed_lines",
			logging.String("path", path),
			logging.Int("malformed", stats.Malformed),
			logging.Int("lines", stats.Lines),
			logging.String(logging.FieldErrorHint, "re-download the export with --force-download"),
			logging.String(logging.FieldImpact, "skipped entries are excluded from the analysis"),
		)
	}
	r.logger.Debug("export scanned",
		logging.String("path", path),
		logging.Int("lines", stats.Lines),
		logging.Int("yielded", stats.Yielded),
		logging.Int("filtered", stats.Filtered),
	)
	return stats, nil
}

func decompress(f *os.File) (io.Reader, func(), error) {
	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	if !bytes.Equal(magic, gzipMagic) {
		return br, func() {}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("gzip: %w", err)
	}
	return zr, func() { _ = zr.Close() }, nil
}
