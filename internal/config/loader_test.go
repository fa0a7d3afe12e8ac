package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/example/lab-portal/internal/application"
)

var allVariables = []string{
	"LABPORTAL_HTTP_PORT",
	"LABPORTAL_STORAGE",
	"LABPORTAL_SQLITE_PATH",
	"LABPORTAL_TIMEZONE",
	"LABPORTAL_BOOKING_MODE",
	"LABPORTAL_SLOT_MINUTES",
	"LABPORTAL_IMPORT_MAPPING",
	"LABPORTAL_IMPORT_TTL",
	"LABPORTAL_RATE_LIMIT",
	"LABPORTAL_RATE_BURST",
	"LABPORTAL_LOG_LEVEL",
}

// clearEnv blanks every variable for the duration of the test; Load treats
// empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allVariables {
		t.Setenv(key, "")
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Storage != StorageSQLite || cfg.SQLitePath != "data/labportal.db" {
			t.Fatalf("unexpected storage defaults: %q %q", cfg.Storage, cfg.SQLitePath)
		}
		if cfg.Location == nil || cfg.Location.String() != "America/Tegucigalpa" {
			t.Fatalf("unexpected default timezone: %v", cfg.Location)
		}
		if cfg.BookingMode != application.BookingBestEffort {
			t.Fatalf("expected best-effort booking, got %q", cfg.BookingMode)
		}
		if cfg.Slot != 90*time.Minute || cfg.ImportTTL != 15*time.Minute {
			t.Fatalf("unexpected durations: slot %s ttl %s", cfg.Slot, cfg.ImportTTL)
		}
		if cfg.RateLimit != 10 || cfg.RateBurst != 20 || cfg.LogLevel != slog.LevelInfo {
			t.Fatalf("unexpected limiter or log defaults: %+v", cfg)
		}
	})

	t.Run("parses every variable", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LABPORTAL_HTTP_PORT", "9090")
		t.Setenv("LABPORTAL_STORAGE", "Memory")
		t.Setenv("LABPORTAL_SQLITE_PATH", "/var/lib/labportal.db")
		t.Setenv("LABPORTAL_TIMEZONE", "UTC")
		t.Setenv("LABPORTAL_BOOKING_MODE", "transactional")
		t.Setenv("LABPORTAL_SLOT_MINUTES", "60")
		t.Setenv("LABPORTAL_IMPORT_MAPPING", "/etc/labportal/mapping.yaml")
		t.Setenv("LABPORTAL_IMPORT_TTL", "30m")
		t.Setenv("LABPORTAL_RATE_LIMIT", "2.5")
		t.Setenv("LABPORTAL_RATE_BURST", "5")
		t.Setenv("LABPORTAL_LOG_LEVEL", "debug")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 || cfg.Storage != StorageMemory || cfg.SQLitePath != "/var/lib/labportal.db" {
			t.Fatalf("unexpected server settings: %+v", cfg)
		}
		if cfg.Location != time.UTC {
			t.Fatalf("expected UTC, got %v", cfg.Location)
		}
		if cfg.BookingMode != application.BookingTransactional || cfg.Slot != time.Hour {
			t.Fatalf("unexpected booking settings: %q %s", cfg.BookingMode, cfg.Slot)
		}
		if cfg.ImportMappingPath != "/etc/labportal/mapping.yaml" || cfg.ImportTTL != 30*time.Minute {
			t.Fatalf("unexpected import settings: %q %s", cfg.ImportMappingPath, cfg.ImportTTL)
		}
		if cfg.RateLimit != 2.5 || cfg.RateBurst != 5 || cfg.LogLevel != slog.LevelDebug {
			t.Fatalf("unexpected limiter or log settings: %+v", cfg)
		}
	})

	t.Run("reports every invalid value together", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LABPORTAL_HTTP_PORT", "eighty")
		t.Setenv("LABPORTAL_STORAGE", "postgres")
		t.Setenv("LABPORTAL_BOOKING_MODE", "optimistic")
		t.Setenv("LABPORTAL_TIMEZONE", "Mars/Olympus")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "valores de entorno no válidos: LABPORTAL_HTTP_PORT, LABPORTAL_STORAGE, LABPORTAL_TIMEZONE, LABPORTAL_BOOKING_MODE"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}
