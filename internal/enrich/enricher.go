// Package enrich joins downloaded EGMS point records with human-readable
// location information and writes the enriched CSV alongside the raw one.
package enrich

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abibardhan/EGMS-L3/internal/config"
	"github.com/abibardhan/EGMS-L3/internal/models"
	"github.com/abibardhan/EGMS-L3/internal/observability"
	"github.com/abibardhan/EGMS-L3/internal/progress"
	"github.com/abibardhan/EGMS-L3/internal/proj"
	"github.com/abibardhan/EGMS-L3/internal/repository"
)

// progressEvery controls how often row-level progress is published.
const progressEvery = 100

var clock = clockwork.NewRealClock()

// SetClock replaces the package time source. Pass nil to restore real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Enricher runs the per-dataset enrichment pipeline: parse, project,
// resolve location, persist.
type Enricher struct {
	repo        repository.Store
	geocoder    Geocoder // nil leaves every point unmatched
	enrichedDir string
	broadcaster *progress.Broadcaster
	metrics     *observability.Metrics
}

func NewEnricher(cfg *config.Config, repo repository.Store, geocoder Geocoder, broadcaster *progress.Broadcaster, metrics *observability.Metrics) *Enricher {
	return &Enricher{
		repo:        repo,
		geocoder:    geocoder,
		enrichedDir: cfg.Storage.EnrichedDir,
		broadcaster: broadcaster,
		metrics:     metrics,
	}
}

// Enrich processes one dataset. Every input row appears exactly once in
// the output, in input order: points whose location cannot be resolved
// pass through unmatched with an empty location column. Re-running
// replaces the previous output.
func (e *Enricher) Enrich(ctx context.Context, dataset *models.Dataset) (*models.Dataset, error) {
	start := time.Now()

	if err := e.repo.SetDatasetStatus(ctx, dataset.ID, models.DatasetStatusEnriching); err != nil {
		return nil, err
	}

	points, err := e.processFile(ctx, dataset)
	if err != nil {
		e.rollbackStatus(ctx, dataset.ID)
		return nil, err
	}

	if err := e.repo.ReplacePoints(ctx, dataset.ID, points); err != nil {
		e.rollbackStatus(ctx, dataset.ID)
		return nil, fmt.Errorf("error storing points: %w", err)
	}

	updated := *dataset
	updated.Status = models.DatasetStatusEnriched
	updated.EnrichedPath = e.outputPath(dataset)
	updated.PointCount = len(points)
	updated.EnrichedAt = clock.Now()
	if err := e.repo.MarkDatasetEnriched(ctx, &updated); err != nil {
		e.rollbackStatus(ctx, dataset.ID)
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.EnrichDuration.Observe(time.Since(start).Seconds())
	}
	slog.Info("dataset enriched", "id", dataset.ID, "points", len(points), "file", updated.EnrichedPath)
	return &updated, nil
}

// rollbackStatus returns a failed dataset to downloaded so it stays
// retryable; a dataset stuck in enriching can never be enriched again.
func (e *Enricher) rollbackStatus(ctx context.Context, id string) {
	if err := e.repo.SetDatasetStatus(ctx, id, models.DatasetStatusDownloaded); err != nil {
		slog.Error("error resetting dataset status", "id", id, "error", err)
	}
}

func (e *Enricher) outputPath(dataset *models.Dataset) string {
	base := strings.TrimSuffix(filepath.Base(dataset.RawPath), filepath.Ext(dataset.RawPath))
	return filepath.Join(e.enrichedDir, base+"_locations.csv")
}

func (e *Enricher) processFile(ctx context.Context, dataset *models.Dataset) ([]models.EnrichedPoint, error) {
	in, err := os.Open(dataset.RawPath)
	if err != nil {
		return nil, fmt.Errorf("error opening dataset file: %w", err)
	}
	defer in.Close()

	r := csv.NewReader(in)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV header: %w", err)
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV rows: %w", err)
	}

	if err := os.MkdirAll(e.enrichedDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating enriched directory: %w", err)
	}

	outPath := e.outputPath(dataset)
	tmp, err := os.CreateTemp(e.enrichedDir, filepath.Base(outPath)+".tmp")
	if err != nil {
		return nil, fmt.Errorf("error creating output file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"point_id", "easting", "northing", "latitude", "longitude", "location"}); err != nil {
		return nil, fmt.Errorf("error writing output header: %w", err)
	}

	points := make([]models.EnrichedPoint, 0, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := e.enrichRow(ctx, dataset, row, cols)
		points = append(points, p)

		if err := w.Write([]string{
			p.PID,
			strconv.FormatFloat(p.Easting, 'f', -1, 64),
			strconv.FormatFloat(p.Northing, 'f', -1, 64),
			strconv.FormatFloat(p.Latitude, 'f', 6, 64),
			strconv.FormatFloat(p.Longitude, 'f', 6, 64),
			p.Location.Name,
		}); err != nil {
			return nil, fmt.Errorf("error writing output row: %w", err)
		}

		if (i+1)%progressEvery == 0 || i+1 == len(rows) {
			e.publish(dataset.ID, i+1, len(rows))
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("error flushing output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("error closing output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return nil, fmt.Errorf("error moving output file: %w", err)
	}

	return points, nil
}

// enrichRow builds one EnrichedPoint. Conversion or lookup failures leave
// the point unmatched; they never drop the row.
func (e *Enricher) enrichRow(ctx context.Context, dataset *models.Dataset, row []string, cols columns) models.EnrichedPoint {
	p := models.EnrichedPoint{
		Point: models.Point{
			PID:       row[cols.pid],
			DatasetID: dataset.ID,
		},
		GeoSource:  models.GeoSourceUnmatched,
		EnrichedAt: clock.Now(),
	}

	easting, eastErr := strconv.ParseFloat(strings.TrimSpace(row[cols.easting]), 64)
	northing, northErr := strconv.ParseFloat(strings.TrimSpace(row[cols.northing]), 64)
	if eastErr != nil || northErr != nil {
		slog.Warn("invalid coordinates, point passed through unmatched",
			"dataset", dataset.ID, "pid", p.PID)
		e.countPoint(false)
		return p
	}
	p.Easting = easting
	p.Northing = northing

	if cols.velocity >= 0 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(row[cols.velocity]), 64); err == nil {
			p.MeanVelocity = v
		}
	}

	lat, lon, err := proj.ToWGS84(easting, northing)
	if err != nil {
		slog.Warn("coordinate conversion failed, point passed through unmatched",
			"dataset", dataset.ID, "pid", p.PID, "error", err)
		e.countPoint(false)
		return p
	}
	p.Latitude = lat
	p.Longitude = lon

	if e.geocoder == nil {
		e.countPoint(false)
		return p
	}

	result, err := e.geocoder.ReverseGeocode(ctx, lat, lon)
	switch {
	case err != nil:
		slog.Warn("reverse geocoding failed", "dataset", dataset.ID, "pid", p.PID, "error", err)
		e.countGeocode("error")
		e.countPoint(false)
	case result.Name == "":
		e.countGeocode("empty")
		e.countPoint(false)
	default:
		p.Location = models.LocationInfo{
			Name:   result.Name,
			Admin:  result.Admin,
			Lat:    result.Lat,
			Lon:    result.Lon,
			Source: result.Source,
		}
		p.GeoSource = result.Source
		e.countGeocode("success")
		e.countPoint(true)
	}

	return p
}

func (e *Enricher) publish(datasetID string, completed, total int) {
	if e.broadcaster == nil {
		return
	}
	e.broadcaster.Publish(progress.Event{
		Stage:     progress.StageEnrich,
		DatasetID: datasetID,
		Message:   fmt.Sprintf("processed %d/%d points", completed, total),
		Completed: completed,
		Total:     total,
		Timestamp: clock.Now(),
	})
}

func (e *Enricher) countGeocode(outcome string) {
	if e.metrics != nil {
		e.metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
	}
}

func (e *Enricher) countPoint(matched bool) {
	if e.metrics == nil {
		return
	}
	if matched {
		e.metrics.PointsEnriched.WithLabelValues("matched").Inc()
	} else {
		e.metrics.PointsEnriched.WithLabelValues("unmatched").Inc()
	}
}

// columns holds the resolved indices of the required CSV columns.
// velocity is -1 when the dataset carries no mean_velocity column.
type columns struct {
	pid      int
	easting  int
	northing int
	velocity int
}

// resolveColumns matches header names case-insensitively, mirroring the
// loose casing seen across EGMS product releases.
func resolveColumns(header []string) (columns, error) {
	cols := columns{pid: -1, easting: -1, northing: -1, velocity: -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "pid":
			cols.pid = i
		case "easting":
			cols.easting = i
		case "northing":
			cols.northing = i
		case "mean_velocity":
			cols.velocity = i
		}
	}

	if cols.pid < 0 || cols.easting < 0 || cols.northing < 0 {
		return cols, fmt.Errorf("required columns not found (need pid, easting, northing; have: %s)",
			strings.Join(header, ", "))
	}
	return cols, nil
}
