// Command egms-fetch downloads a range of EGMS L3 tiles from the command
// line, optionally enriching each dataset as it lands.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/abibardhan/EGMS-L3/internal/config"
	"github.com/abibardhan/EGMS-L3/internal/egms"
	"github.com/abibardhan/EGMS-L3/internal/enrich"
	"github.com/abibardhan/EGMS-L3/internal/fetch"
	"github.com/abibardhan/EGMS-L3/internal/logging"
	"github.com/abibardhan/EGMS-L3/internal/models"
	"github.com/abibardhan/EGMS-L3/internal/observability"
	"github.com/abibardhan/EGMS-L3/internal/repository"
)

func main() {
	minE := flag.Int("min-e", 0, "minimum easting tile index (9-65)")
	maxE := flag.Int("max-e", 0, "maximum easting tile index (9-65)")
	minN := flag.Int("min-n", 0, "minimum northing tile index (9-55)")
	maxN := flag.Int("max-n", 0, "maximum northing tile index (9-55)")
	displacements := flag.String("displacements", "E,U", "comma-separated displacement components (E, U)")
	yearSpan := flag.String("year-span", "", "product year span (defaults to EGMS_YEAR_SPAN)")
	force := flag.Bool("force", false, "re-download tiles that already exist on disk")
	runEnrich := flag.Bool("enrich", false, "enrich each dataset after download")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	span := *yearSpan
	if span == "" {
		span = cfg.EGMS.YearSpan
	}

	tiles, err := egms.Range(*minE, *maxE, *minN, *maxN)
	if err != nil {
		logging.Fatalf("Invalid tile range: %v", err)
	}

	var comps []string
	for _, d := range strings.Split(*displacements, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if !egms.ValidDisplacement(d) {
			logging.Fatalf("Invalid displacement %q", d)
		}
		comps = append(comps, d)
	}
	if len(comps) == 0 {
		logging.Fatalf("No displacement components given")
	}

	db, err := repository.NewSQLiteDB(cfg.Storage.DBPath)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := observability.NewMetrics()
	fetcher := fetch.NewFetcher(cfg, metrics)

	var enricher *enrich.Enricher
	if *runEnrich {
		geocoder, err := buildGeocoder(cfg, metrics)
		if err != nil {
			logging.Fatalf("Failed to initialize geocoder: %v", err)
		}
		enricher = enrich.NewEnricher(cfg, db, geocoder, nil, metrics)
	}

	slog.Info("starting batch download",
		"tiles", len(tiles), "displacements", comps, "year_span", span)

	var downloaded, skipped, noData, failed int
	for _, tile := range tiles {
		for _, d := range comps {
			product := egms.Product{Tile: tile, Displacement: d, YearSpan: span}

			result, err := fetcher.Fetch(ctx, fetch.TileRequest{Product: product, Force: *force})
			switch {
			case errors.Is(err, context.Canceled):
				slog.Info("download interrupted")
				os.Exit(1)
			case errors.Is(err, fetch.ErrNoData):
				noData++
				continue
			case err != nil:
				failed++
				slog.Error("tile download failed", "product", product.FileBase(), "error", err)
				continue
			}

			switch result.Outcome {
			case models.TileOutcomeSkipped:
				skipped++
			default:
				downloaded++
			}
			record(ctx, db, result.Dataset)

			if enricher != nil {
				if _, err := enricher.Enrich(ctx, result.Dataset); err != nil {
					slog.Error("enrichment failed", "dataset", result.Dataset.ID, "error", err)
				}
			}
		}
	}

	slog.Info("batch finished",
		"downloaded", downloaded, "skipped", skipped, "no_data", noData, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func record(ctx context.Context, db *repository.SQLiteDB, d *models.Dataset) {
	exists, err := db.DatasetExists(ctx, d.ID)
	if err != nil {
		slog.Error("error checking dataset existence", "id", d.ID, "error", err)
		return
	}
	if exists {
		return
	}
	if err := db.AddDataset(ctx, d); err != nil {
		slog.Error("error adding dataset", "id", d.ID, "error", err)
	}
}

func buildGeocoder(cfg *config.Config, metrics *observability.Metrics) (enrich.Geocoder, error) {
	switch cfg.Enrich.Geocoder {
	case config.GeocoderOff:
		return nil, nil
	case config.GeocoderGazetteer:
		g, err := enrich.LoadGazetteer(cfg.Enrich.GazetteerPath, cfg.Enrich.ToleranceKm)
		if err != nil {
			return nil, err
		}
		return enrich.NewCachedGeocoder(g, cfg.Enrich.GeocodeCacheSize, metrics), nil
	default:
		client := enrich.NewNominatimClient(cfg.Enrich.NominatimURL, cfg.Enrich.GeocodeTimeout, cfg.Enrich.NominatimRPS)
		return enrich.NewCachedGeocoder(client, cfg.Enrich.GeocodeCacheSize, metrics), nil
	}
}
