package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/config"
	httptransport "github.com/example/lab-portal/internal/http"
	"github.com/example/lab-portal/internal/importer"
)

func testConfig(t *testing.T, storage string) config.Config {
	t.Helper()
	return config.Config{
		HTTPPort:    0,
		Storage:     storage,
		SQLitePath:  filepath.Join(t.TempDir(), "labportal.db"),
		Location:    time.UTC,
		BookingMode: application.BookingTransactional,
		Slot:        application.DefaultSlot,
		ImportTTL:   time.Minute,
		LogLevel:    slog.LevelError,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func request(method, path, body string, admin bool) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(httptransport.HeaderUserID, "user-1")
	req.Header.Set(httptransport.HeaderUserEmail, "user@uni.example")
	if admin {
		req.Header.Set(httptransport.HeaderUserRole, "admin")
	}
	return req
}

func TestNewHandlerServesMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.StorageMemory)
	logger := discardLogger()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	handler, err := newHandler(cfg, store, logger)
	if err != nil {
		t.Fatalf("newHandler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/labs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, request(http.MethodPost, "/labs", `{"name":"Redes","location":"Edificio B"}`, true))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, request(http.MethodGet, "/labs", "", false))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Redes") {
		t.Fatalf("unexpected listing %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSQLiteStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.StorageSQLite)
	logger := discardLogger()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	handler, err := newHandler(cfg, store, logger)
	if err != nil {
		t.Fatalf("newHandler: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request(http.MethodPost, "/labs", `{"name":"Química","location":"Edificio A"}`, true))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := openStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	labs, err := reopened.ListLabs(ctx)
	if err != nil {
		t.Fatalf("ListLabs: %v", err)
	}
	if len(labs) != 1 || labs[0].Name != "Química" {
		t.Fatalf("unexpected labs after restart: %+v", labs)
	}
}

func TestLoadMapping(t *testing.T) {
	t.Run("empty path uses built in mapping", func(t *testing.T) {
		mapping, err := loadMapping("")
		if err != nil {
			t.Fatalf("loadMapping: %v", err)
		}
		if mapping.Codes.Version != importer.DefaultMapping().Codes.Version {
			t.Fatalf("unexpected version %q", mapping.Codes.Version)
		}
	})

	t.Run("reads a mapping file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		doc := "version: \"2025-1\"\ncodes:\n  LAB/01: Laboratorio Uno\n"
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatalf("write mapping: %v", err)
		}

		mapping, err := loadMapping(path)
		if err != nil {
			t.Fatalf("loadMapping: %v", err)
		}
		if name, ok := mapping.Codes.Lookup("LAB/01"); !ok || name != "Laboratorio Uno" {
			t.Fatalf("unexpected lookup %q %v", name, ok)
		}
	})

	t.Run("invalid document is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.yaml")
		if err := os.WriteFile(path, []byte("version: \"\"\n"), 0o644); err != nil {
			t.Fatalf("write mapping: %v", err)
		}

		if _, err := loadMapping(path); !errors.Is(err, importer.ErrInvalidMapping) {
			t.Fatalf("expected ErrInvalidMapping, got %v", err)
		}
	})

	t.Run("missing file fails handler construction", func(t *testing.T) {
		cfg := testConfig(t, config.StorageMemory)
		cfg.ImportMappingPath = filepath.Join(t.TempDir(), "missing.yaml")

		store, err := openStore(context.Background(), cfg, discardLogger())
		if err != nil {
			t.Fatalf("openStore: %v", err)
		}
		defer store.Close()

		if _, err := newHandler(cfg, store, discardLogger()); err == nil {
			t.Fatal("expected error for missing mapping file")
		}
	})
}
