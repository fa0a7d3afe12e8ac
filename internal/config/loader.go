package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/example/lab-portal/internal/application"
)

// Storage backends selectable through LABPORTAL_STORAGE.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config captures environment driven configuration values for the lab portal.
type Config struct {
	HTTPPort    int
	Storage     string
	SQLitePath  string
	Location    *time.Location
	BookingMode application.BookingMode
	Slot        time.Duration
	// ImportMappingPath points at a YAML code map. Empty means the built in
	// mapping.
	ImportMappingPath string
	ImportTTL         time.Duration
	// RateLimit is the sustained requests per second allowed per client.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int
	LogLevel  slog.Level
}

// Load parses configuration values from the current process environment.
//
// Every variable is optional. Values that fail to parse are collected and
// reported together.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:    8080,
		Storage:     StorageSQLite,
		SQLitePath:  "data/labportal.db",
		BookingMode: application.BookingBestEffort,
		Slot:        application.DefaultSlot,
		ImportTTL:   application.DefaultPreviewTTL,
		RateLimit:   10,
		RateBurst:   20,
		LogLevel:    slog.LevelInfo,
	}

	invalid := make([]string, 0, 2)

	if value := env("LABPORTAL_HTTP_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "LABPORTAL_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if value := strings.ToLower(env("LABPORTAL_STORAGE")); value != "" {
		switch value {
		case StorageSQLite, StorageMemory:
			cfg.Storage = value
		default:
			invalid = append(invalid, "LABPORTAL_STORAGE")
		}
	}

	if value := env("LABPORTAL_SQLITE_PATH"); value != "" {
		cfg.SQLitePath = value
	}

	zone := "America/Tegucigalpa"
	if value := env("LABPORTAL_TIMEZONE"); value != "" {
		zone = value
	}
	if loc, err := time.LoadLocation(zone); err != nil {
		invalid = append(invalid, "LABPORTAL_TIMEZONE")
	} else {
		cfg.Location = loc
	}

	if mode, err := application.ParseBookingMode(env("LABPORTAL_BOOKING_MODE")); err != nil {
		invalid = append(invalid, "LABPORTAL_BOOKING_MODE")
	} else {
		cfg.BookingMode = mode
	}

	if value := env("LABPORTAL_SLOT_MINUTES"); value != "" {
		minutes, err := strconv.Atoi(value)
		if err != nil || minutes <= 0 {
			invalid = append(invalid, "LABPORTAL_SLOT_MINUTES")
		} else {
			cfg.Slot = time.Duration(minutes) * time.Minute
		}
	}

	cfg.ImportMappingPath = env("LABPORTAL_IMPORT_MAPPING")

	if value := env("LABPORTAL_IMPORT_TTL"); value != "" {
		ttl, err := time.ParseDuration(value)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "LABPORTAL_IMPORT_TTL")
		} else {
			cfg.ImportTTL = ttl
		}
	}

	if value := env("LABPORTAL_RATE_LIMIT"); value != "" {
		limit, err := strconv.ParseFloat(value, 64)
		if err != nil || limit < 0 {
			invalid = append(invalid, "LABPORTAL_RATE_LIMIT")
		} else {
			cfg.RateLimit = limit
		}
	}

	if value := env("LABPORTAL_RATE_BURST"); value != "" {
		burst, err := strconv.Atoi(value)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "LABPORTAL_RATE_BURST")
		} else {
			cfg.RateBurst = burst
		}
	}

	if value := env("LABPORTAL_LOG_LEVEL"); value != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(value)); err != nil {
			invalid = append(invalid, "LABPORTAL_LOG_LEVEL")
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("valores de entorno no válidos: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
