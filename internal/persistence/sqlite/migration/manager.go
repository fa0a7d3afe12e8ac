package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  *Scanner
	executor *Executor
	logger   *slog.Logger
}

// NewManager creates a Manager. A nil logger discards output.
func NewManager(scanner *Scanner, executor *Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{scanner: scanner, executor: executor, logger: logger}
}

// Run applies every pending migration and returns how many were applied.
// A migration whose file changed after it was applied aborts the run.
func (m *Manager) Run(ctx context.Context) (int, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}

	m.logger.InfoContext(ctx, "schema state",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending))

	for i, migration := range status.Pending {
		m.logger.InfoContext(ctx, "applying migration",
			"version", migration.Version,
			"description", migration.Description,
			"step", i+1,
			"total", len(status.Pending))

		if err := m.executor.Execute(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				"version", migration.Version,
				"error", err)
			return i, err
		}
	}

	if len(status.Pending) > 0 {
		m.logger.InfoContext(ctx, "migrations applied", "count", len(status.Pending))
	}
	return len(status.Pending), nil
}

// Status compares the scanned files against schema_migrations.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}

	available, err := m.scanner.Scan()
	if err != nil {
		return Status{}, err
	}

	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	checksums := make(map[string]string, len(applied))
	for _, a := range applied {
		checksums[a.Version] = a.Checksum
	}

	status := Status{Applied: applied}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}

	for _, migration := range available {
		sum, ok := checksums[migration.Version]
		if !ok {
			status.Pending = append(status.Pending, migration)
			continue
		}
		if sum != "" && sum != migration.Checksum {
			return Status{}, NewMigrationError(migration.Version, migration.FilePath, "verify checksum",
				fmt.Errorf("%w: recorded %s", ErrChecksumMismatch, sum))
		}
	}
	return status, nil
}

// Apply is a convenience wrapper that runs every migration found in fsys.
func Apply(ctx context.Context, db *sql.DB, fsys fs.FS, logger *slog.Logger) (int, error) {
	return NewManager(NewScanner(fsys), NewExecutor(db), logger).Run(ctx)
}
