package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/abibardhan/EGMS-L3/internal/api"
	"github.com/abibardhan/EGMS-L3/internal/config"
	"github.com/abibardhan/EGMS-L3/internal/enrich"
	"github.com/abibardhan/EGMS-L3/internal/fetch"
	"github.com/abibardhan/EGMS-L3/internal/logging"
	"github.com/abibardhan/EGMS-L3/internal/observability"
	"github.com/abibardhan/EGMS-L3/internal/progress"
	"github.com/abibardhan/EGMS-L3/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.Storage.DBPath)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	// Broadcaster feeds the progress websocket
	broadcaster := progress.NewBroadcaster()

	// Start the download manager
	fetcher := fetch.NewFetcher(cfg, metrics)
	mgr := fetch.NewManager(cfg, fetcher, db, broadcaster, metrics)
	mgr.Start(ctx)

	geocoder, err := buildGeocoder(cfg, metrics)
	if err != nil {
		logging.Fatalf("Failed to initialize geocoder: %v", err)
	}
	enricher := enrich.NewEnricher(cfg, db, geocoder, broadcaster, metrics)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(10)) // 10 req/s global limit

	handler := api.NewHandler(db, mgr, enricher, broadcaster)
	handler.RegisterRoutes(router)

	// Map and table UI
	router.Static("/static", "./web/static")
	router.GET("/", func(c *gin.Context) {
		c.File("./web/static/index.html")
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	broadcaster.Close() // Close all websocket streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

// buildGeocoder picks the location source from config. "off" disables
// enrichment lookups entirely; points then pass through unmatched.
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
