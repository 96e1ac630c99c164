package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Geocoder modes.
const (
	GeocoderNominatim = "nominatim"
	GeocoderGazetteer = "gazetteer"
	GeocoderOff       = "off"
)

type Config struct {
	Server  ServerConfig
	EGMS    EGMSConfig
	Worker  WorkerConfig
	Enrich  EnrichConfig
	Storage StorageConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type EGMSConfig struct {
	BaseURL         string
	Token           string // user's EGMS download id
	YearSpan        string
	DownloadDelay   time.Duration // spacing between archive requests
	DownloadRetries int
	DownloadTimeout time.Duration
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type EnrichConfig struct {
	Geocoder         string // "nominatim", "gazetteer", or "off"
	NominatimURL     string
	NominatimRPS     float64
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int
	GazetteerPath    string
	ToleranceKm      float64 // gazetteer nearest-match cutoff
}

type StorageConfig struct {
	DBPath      string
	DownloadDir string
	EnrichedDir string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		EGMS: EGMSConfig{
			BaseURL:         getEnv("EGMS_BASE_URL", "https://egms.land.copernicus.eu/insar-api/archive/download"),
			Token:           getEnv("EGMS_TOKEN", ""),
			YearSpan:        getEnv("EGMS_YEAR_SPAN", "2019_2023"),
			DownloadDelay:   getEnvDuration("DOWNLOAD_DELAY", 3*time.Second),
			DownloadRetries: getEnvInt("DOWNLOAD_RETRIES", 3),
			DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 10*time.Minute),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 1),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 16),
		},
		Enrich: EnrichConfig{
			Geocoder:         getEnv("GEOCODER", GeocoderNominatim),
			NominatimURL:     getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
			NominatimRPS:     getEnvFloat("NOMINATIM_RPS", 2.0),
			GeocodeTimeout:   getEnvDuration("GEOCODE_TIMEOUT", 10*time.Second),
			GeocodeCacheSize: getEnvInt("GEOCODE_CACHE_SIZE", 1000),
			GazetteerPath:    getEnv("GAZETTEER_PATH", ""),
			ToleranceKm:      getEnvFloat("MATCH_TOLERANCE_KM", 25.0),
		},
		Storage: StorageConfig{
			DBPath:      getEnv("DB_PATH", "./data/egms.db"),
			DownloadDir: getEnv("DOWNLOAD_DIR", "./Point_downloads"),
			EnrichedDir: getEnv("ENRICHED_DIR", "./Point_locations"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.EGMS.DownloadDelay < 0 {
		return fmt.Errorf("download delay must not be negative")
	}
	if c.EGMS.DownloadRetries < 0 {
		return fmt.Errorf("download retries must not be negative")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	switch c.Enrich.Geocoder {
	case GeocoderNominatim, GeocoderGazetteer, GeocoderOff:
	default:
		return fmt.Errorf("invalid geocoder mode: %s", c.Enrich.Geocoder)
	}
	if c.Enrich.Geocoder == GeocoderGazetteer && c.Enrich.GazetteerPath == "" {
		return fmt.Errorf("GAZETTEER_PATH is required when GEOCODER=gazetteer")
	}
	if c.Enrich.NominatimRPS <= 0 {
		return fmt.Errorf("nominatim rate must be positive")
	}
	if c.Enrich.ToleranceKm <= 0 {
		return fmt.Errorf("match tolerance must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
