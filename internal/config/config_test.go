package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.EGMS.YearSpan != "2019_2023" {
		t.Errorf("expected default year span 2019_2023, got %s", cfg.EGMS.YearSpan)
	}
	if cfg.EGMS.DownloadDelay != 3*time.Second {
		t.Errorf("expected default download delay 3s, got %s", cfg.EGMS.DownloadDelay)
	}
	if cfg.Worker.Count != 1 {
		t.Errorf("expected default worker count 1, got %d", cfg.Worker.Count)
	}
	if cfg.Enrich.Geocoder != GeocoderNominatim {
		t.Errorf("expected default geocoder nominatim, got %s", cfg.Enrich.Geocoder)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DOWNLOAD_DELAY", "500ms")
	t.Setenv("GEOCODER", "off")
	t.Setenv("MATCH_TOLERANCE_KM", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.EGMS.DownloadDelay != 500*time.Millisecond {
		t.Errorf("expected delay 500ms, got %s", cfg.EGMS.DownloadDelay)
	}
	if cfg.Enrich.Geocoder != GeocoderOff {
		t.Errorf("expected geocoder off, got %s", cfg.Enrich.Geocoder)
	}
	if cfg.Enrich.ToleranceKm != 10 {
		t.Errorf("expected tolerance 10, got %g", cfg.Enrich.ToleranceKm)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "SERVER_PORT", "70000"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad geocoder", "GEOCODER", "google"},
		{"zero rate", "NOMINATIM_RPS", "0"},
		{"negative tolerance", "MATCH_TOLERANCE_KM", "-1"},
		{"zero workers", "WORKER_COUNT", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestGazetteerRequiresPath(t *testing.T) {
	t.Setenv("GEOCODER", "gazetteer")
	if _, err := Load(); err == nil {
		t.Error("expected error when GAZETTEER_PATH is unset")
	}

	t.Setenv("GAZETTEER_PATH", "/tmp/places.csv")
	if _, err := Load(); err != nil {
		t.Errorf("unexpected error with path set: %v", err)
	}
}
