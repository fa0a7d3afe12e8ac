package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/lab-portal/internal/adapters"
	"github.com/example/lab-portal/internal/application"
	"github.com/example/lab-portal/internal/config"
	httptransport "github.com/example/lab-portal/internal/http"
	"github.com/example/lab-portal/internal/importer"
	"github.com/example/lab-portal/internal/notify"
	"github.com/example/lab-portal/internal/persistence"
	"github.com/example/lab-portal/internal/persistence/memory"
	"github.com/example/lab-portal/internal/persistence/sqlite"
	"github.com/example/lab-portal/internal/persistence/sqlite/migration"
	"github.com/example/lab-portal/internal/recurrence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("lab portal stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	handler, err := newHandler(cfg, store, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("lab portal API listening",
		"addr", server.Addr,
		"storage", cfg.Storage,
		"booking_mode", string(cfg.BookingMode),
		"timezone", cfg.Location.String(),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	default:
		store, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLitePath), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store, nil
	}
}

func loadMapping(path string) (importer.Mapping, error) {
	if path == "" {
		return importer.DefaultMapping(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return importer.Mapping{}, fmt.Errorf("open import mapping: %w", err)
	}
	defer f.Close()

	mapping, err := importer.LoadMapping(f)
	if err != nil {
		return importer.Mapping{}, fmt.Errorf("load import mapping %s: %w", path, err)
	}
	return mapping, nil
}

func newHandler(cfg config.Config, store persistence.Store, logger *slog.Logger) (http.Handler, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	mapping, err := loadMapping(cfg.ImportMappingPath)
	if err != nil {
		return nil, err
	}

	idGenerator := uuid.NewString
	now := time.Now
	repos := adapters.New(store)
	publisher := notify.Fanout{
		notify.NewLogPublisher(logger),
		notify.NewOutboxPublisher(repos.Outbox, idGenerator),
	}

	labService := application.NewLabServiceWithLogger(repos.Labs, repos.Reservations, idGenerator, now, logger)
	equipmentService := application.NewEquipmentServiceWithLogger(repos.Equipment, repos.Labs, repos.Inventory, publisher, idGenerator, now, logger)
	reservationService := application.NewReservationServiceWithLogger(repos.Reservations, repos.Labs, publisher, application.ReservationServiceConfig{
		Mode:     cfg.BookingMode,
		Slot:     cfg.Slot,
		Location: loc,
	}, idGenerator, now, logger)
	reconciler := importer.NewReconciler(mapping, recurrence.NewEngine(loc), cfg.Slot)
	importService := application.NewImportServiceWithLogger(repos.Reservations, repos.Labs, reconciler, publisher, cfg.ImportTTL, idGenerator, now, logger)

	var limiter *httptransport.ClientRateLimiter
	if cfg.RateLimit > 0 {
		limiter = httptransport.NewClientRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	logger.Info("import mapping loaded", "mapping_version", mapping.Codes.Version, "code_count", mapping.Codes.Len())

	return httptransport.NewRouter(httptransport.RouterConfig{
		Labs:         httptransport.NewLabHandler(labService, logger),
		Equipment:    httptransport.NewEquipmentHandler(equipmentService, logger),
		Reservations: httptransport.NewReservationHandler(reservationService, loc, logger),
		Imports:      httptransport.NewImportHandler(importService, loc, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RateLimit(limiter, logger),
			httptransport.RequireIdentity(logger),
		},
	}), nil
}
