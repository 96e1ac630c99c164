// Package fetch downloads EGMS L3 tile archives and extracts their CSVs
// into the local download directory.
package fetch

import (
	"archive/zip"
	"bytes"
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

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/abibardhan/EGMS-L3/internal/config"
	"github.com/abibardhan/EGMS-L3/internal/egms"
	"github.com/abibardhan/EGMS-L3/internal/models"
	"github.com/abibardhan/EGMS-L3/internal/observability"
)

// ErrNoData marks a tile the archive has no product for (HTTP 404). It is
// a definite answer, not a transient failure, and is never retried.
var ErrNoData = errors.New("no data for tile")

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// clock is swappable so tests do not sit through real backoff sleeps.
var clock = clockwork.NewRealClock()

// SetClock replaces the package time source. Pass nil to restore real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// TileRequest asks for one product download.
type TileRequest struct {
	Product egms.Product
	Force   bool // re-download even when the CSV is already on disk
}

// Result reports where the CSV landed and whether a download happened.
type Result struct {
	Dataset *models.Dataset
	Outcome string // models.TileOutcomeDownloaded or models.TileOutcomeSkipped
}

// Fetcher downloads tile archives with bounded retries and polite spacing
// between requests.
type Fetcher struct {
	baseURL     string
	token       string
	downloadDir string
	retries     int
	client      *http.Client
	limiter     *rate.Limiter
	metrics     *observability.Metrics
}

func NewFetcher(cfg *config.Config, metrics *observability.Metrics) *Fetcher {
	// One request per DownloadDelay, matching the original tool's pacing
	// against the EGMS archive.
	interval := cfg.EGMS.DownloadDelay
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	return &Fetcher{
		baseURL:     cfg.EGMS.BaseURL,
		token:       cfg.EGMS.Token,
		downloadDir: cfg.Storage.DownloadDir,
		retries:     cfg.EGMS.DownloadRetries,
		client: &http.Client{
			Timeout: cfg.EGMS.DownloadTimeout,
		},
		limiter: limiter,
		metrics: metrics,
	}
}

// Fetch retrieves one tile product. Already-downloaded tiles are skipped
// unless the request forces a re-download, so re-running a batch with the
// same parameters is idempotent.
func (f *Fetcher) Fetch(ctx context.Context, req TileRequest) (*Result, error) {
	if err := req.Product.Validate(); err != nil {
		return nil, err
	}

	csvPath := filepath.Join(f.downloadDir, req.Product.CSVName())
	if !req.Force {
		if _, err := os.Stat(csvPath); err == nil {
			slog.Debug("tile already on disk, skipping", "file", csvPath)
			return &Result{
				Dataset: f.dataset(req.Product, csvPath),
				Outcome: models.TileOutcomeSkipped,
			}, nil
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	archive, err := f.downloadWithRetry(ctx, req.Product)
	if err != nil {
		if f.metrics != nil {
			f.metrics.TilesDownloaded.WithLabelValues(models.TileOutcomeFailed).Inc()
		}
		return nil, err
	}

	if err := f.extractCSV(archive, req.Product, csvPath); err != nil {
		if f.metrics != nil {
			f.metrics.TilesDownloaded.WithLabelValues(models.TileOutcomeFailed).Inc()
		}
		return nil, err
	}

	if f.metrics != nil {
		f.metrics.TilesDownloaded.WithLabelValues(models.TileOutcomeDownloaded).Inc()
		f.metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	}
	slog.Info("tile downloaded", "product", req.Product.FileBase(), "file", csvPath)

	return &Result{
		Dataset: f.dataset(req.Product, csvPath),
		Outcome: models.TileOutcomeDownloaded,
	}, nil
}

func (f *Fetcher) dataset(p egms.Product, csvPath string) *models.Dataset {
	return &models.Dataset{
		ID:           p.FileBase(),
		TileCode:     p.Tile.Code(),
		Displacement: p.Displacement,
		YearSpan:     p.YearSpan,
		RawPath:      csvPath,
		Status:       models.DatasetStatusDownloaded,
		DownloadedAt: clock.Now(),
	}
}

// downloadWithRetry fetches the archive body, retrying transient failures
// with exponential backoff. HTTP 404 maps to ErrNoData; other 4xx responses
// are terminal immediately.
func (f *Fetcher) downloadWithRetry(ctx context.Context, p egms.Product) ([]byte, error) {
	url := p.ArchiveURL(f.baseURL, f.token)

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			if f.metrics != nil {
				f.metrics.DownloadRetries.Inc()
			}
			slog.Warn("retrying tile download",
				"product", p.FileBase(), "attempt", attempt, "backoff", backoff, "error", lastErr)
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff)
		}

		body, err := f.download(ctx, url)
		if err == nil {
			return body, nil
		}
		if isTerminal(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("download failed after %d retries: %w", f.retries, lastErr)
}

// terminalError wraps failures that retrying cannot fix.
type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

func isTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te) || errors.Is(err, ErrNoData)
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &terminalError{fmt.Errorf("error creating request: %w", err)}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoData
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &terminalError{fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)}
	default:
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return body, nil
}

// extractCSV pulls the product CSV out of the in-memory zip and writes it
// to csvPath via a temp file so a partial extract never looks downloaded.
func (f *Fetcher) extractCSV(archive []byte, p egms.Product, csvPath string) error {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return &terminalError{fmt.Errorf("error opening archive for %s: %w", p.FileBase(), err)}
	}

	prefix := p.FileBase()
	for _, member := range zr.File {
		name := filepath.Base(member.Name)
		if !strings.HasSuffix(name, ".csv") || !strings.Contains(name, prefix) {
			continue
		}

		rc, err := member.Open()
		if err != nil {
			return fmt.Errorf("error opening archive member %s: %w", member.Name, err)
		}
		defer rc.Close()

		if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
			return fmt.Errorf("error creating download directory: %w", err)
		}

		tmp, err := os.CreateTemp(filepath.Dir(csvPath), name+".tmp")
		if err != nil {
			return fmt.Errorf("error creating temp file: %w", err)
		}
		if _, err := io.Copy(tmp, rc); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("error extracting %s: %w", member.Name, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("error closing temp file: %w", err)
		}
		if err := os.Rename(tmp.Name(), csvPath); err != nil {
			os.Remove(tmp.Name())
			return fmt.Errorf("error moving extracted CSV: %w", err)
		}
		return nil
	}

	return &terminalError{fmt.Errorf("no matching CSV in archive for %s", p.FileBase())}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	select {
	case <-ctx.Done():
		return false
	case <-clock.After(d):
		return true
	}
}
