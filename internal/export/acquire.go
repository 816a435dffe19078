package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"catalogsync/internal/catalog"
	"catalogsync/internal/fileutil"
	"catalogsync/internal/logging"
)

var (
	// ErrFileNotFound indicates the requested export file is not on disk.
	ErrFileNotFound = errors.New("export file not found")
	// ErrExportUnavailable indicates TMDB has not published the requested export.
	ErrExportUnavailable = errors.New("export not published")
)

const (
	dateLayout     = "01_02_2006"
	lockFileName   = ".download.lock"
	lockRetryDelay = 250 * time.Millisecond
)

// FileName returns TMDB's export file name for kind on date.
func FileName(kind catalog.Kind, date time.Time) string {
	return fmt.Sprintf("%s_%s.json.gz", kind.ExportPrefix(), date.UTC().Format(dateLayout))
}

// AcquireOptions selects which export file to use.
type AcquireOptions struct {
	// Path names an explicit file; it must exist.
	Path string
	// CachedOnly forbids downloads; the default path must exist.
	CachedOnly bool
	// Force re-downloads even when a cached file exists.
	Force bool
	// Date selects the export day. Zero means today in UTC.
	Date time.Time
}

// Source describes an acquired export file.
type Source struct {
	Path       string
	Date       time.Time
	Downloaded bool
}

// Acquirer resolves export files from the local cache or TMDB.
type Acquirer struct {
	baseURL  string
	cacheDir string
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// AcquirerOption customizes an Acquirer.
type AcquirerOption func(*Acquirer)

// WithHTTPClient overrides the download client.
func WithHTTPClient(client *http.Client) AcquirerOption {
	return func(a *Acquirer) {
		if client != nil {
			a.client = client
		}
	}
}

// WithClock overrides the time source used for the default date.
func WithClock(now func() time.Time) AcquirerOption {
	return func(a *Acquirer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAcquirer constructs an Acquirer that caches files under cacheDir and
// downloads from baseURL.
func NewAcquirer(baseURL, cacheDir string, timeout time.Duration, logger *slog.Logger, opts ...AcquirerOption) *Acquirer {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	a := &Acquirer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "export"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CacheDir returns the directory holding cached exports.
func (a *Acquirer) CacheDir() string {
	return a.cacheDir
}

// DefaultPath returns the cache location of kind's export for date.
func (a *Acquirer) DefaultPath(kind catalog.Kind, date time.Time) string {
	return filepath.Join(a.cacheDir, FileName(kind, a.dateOrToday(date)))
}

func (a *Acquirer) dateOrToday(date time.Time) time.Time {
	if date.IsZero() {
		date = a.now()
	}
	return date.UTC()
}

// Acquire returns a usable export file for kind.
func (a *Acquirer) Acquire(ctx context.Context, kind catalog.Kind, opts AcquireOptions) (Source, error) {
	if !kind.Valid() {
		return Source{}, fmt.Errorf("acquire export: invalid kind %q", kind)
	}
	date := a.dateOrToday(opts.Date)

	if path := strings.TrimSpace(opts.Path); path != "" {
		if !fileExists(path) {
			return Source{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return Source{Path: path, Date: date}, nil
	}

	target := a.DefaultPath(kind, date)
	if opts.CachedOnly {
		if !fileExists(target) {
			return Source{}, fmt.Errorf("%w: %s", ErrFileNotFound, target)
		}
		return Source{Path: target, Date: date}, nil
	}
	if !opts.Force && fileExists(target) {
		a.logger.Debug("using cached export", logging.String("path", target))
		return Source{Path: target, Date: date}, nil
	}

	if err := a.download(ctx, kind, date, target, opts.Force); err != nil {
		return Source{}, err
	}
	return Source{Path: target, Date: date, Downloaded: true}, nil
}

// Import installs a locally obtained export file as the cached export for
// kind on date, replacing any existing cached file.
func (a *Acquirer) Import(ctx context.Context, kind catalog.Kind, src string, date time.Time) (Source, error) {
	if !kind.Valid() {
		return Source{}, fmt.Errorf("import export: invalid kind %q", kind)
	}
	if !fileExists(src) {
		return Source{}, fmt.Errorf("%w: %s", ErrFileNotFound, src)
	}
	date = a.dateOrToday(date)
	target := a.DefaultPath(kind, date)

	err := a.withLock(ctx, func() error {
		written, err := fileutil.InstallFile(src, target)
		if err != nil {
			return fmt.Errorf("import export: %w", err)
		}
		a.logger.Info("export imported",
			logging.String(logging.FieldKind, kind.String()),
			logging.String("source", src),
			logging.String("path", target),
			logging.String("size", humanize.Bytes(uint64(written))),
		)
		return nil
	})
	if err != nil {
		return Source{}, err
	}
	return Source{Path: target, Date: date}, nil
}

// withLock runs fn while holding the cache directory lock shared by every
// process writing exports.
func (a *Acquirer) withLock(ctx context.Context, fn func() error) error {
	if err := ensureWritableDir(a.cacheDir); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(a.cacheDir, lockFileName))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire export lock: %w", err)
	}
	if !locked {
		return errors.New("acquire export lock: not acquired")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			a.logger.Warn("failed to release export lock", logging.Error(err))
		}
	}()
	return fn()
}

func (a *Acquirer) download(ctx context.Context, kind catalog.Kind, date time.Time, target string, force bool) error {
	return a.withLock(ctx, func() error {
		// Another process may have finished the same download while we waited.
		if !force && fileExists(target) {
			return nil
		}
		return a.fetch(ctx, kind, date, target)
	})
}

func (a *Acquirer) fetch(ctx context.Context, kind catalog.Kind, date time.Time, target string) error {
	url := a.baseURL + "/" + FileName(kind, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build export request: %w", err)
	}

	a.logger.Info("downloading export",
		logging.String(logging.FieldKind, kind.String()),
		logging.String("url", url),
	)
	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("download export: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s (status %d)", ErrExportUnavailable, url, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("download export %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(a.cacheDir, FileName(kind, date)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp export: %w", err)
	}
	tmpPath := tmp.Name()
	written, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if copyErr != nil {
			return fmt.Errorf("write export: %w", copyErr)
		}
		return fmt.Errorf("close export: %w", closeErr)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize export: %w", err)
	}

	a.logger.Info("export downloaded",
		logging.String(logging.FieldKind, kind.String()),
		logging.String("path", target),
		logging.String("size", humanize.Bytes(uint64(written))),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func ensureWritableDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("export cache directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export cache dir: %w", err)
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("export cache dir %s not writable: %w", dir, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
