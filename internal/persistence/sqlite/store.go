// Package sqlite implements persistence.Store on top of modernc.org/sqlite.
// The schema lives in the embedded migrations directory and is applied by
// Open.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/example/lab-portal/internal/persistence"
	"github.com/example/lab-portal/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Store groups the SQLite repositories behind persistence.Store.
type Store struct {
	*LabRepository
	*EquipmentRepository
	*ReservationRepository
	*OutboxRepository

	pool *ConnectionPool
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by cfg and applies pending
// migrations.
func Open(ctx context.Context, cfg migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if _, err := migration.Apply(ctx, pool.DB(), Migrations(), logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return NewStore(pool), nil
}

// NewStore builds a Store over an already migrated pool.
func NewStore(pool *ConnectionPool) *Store {
	return &Store{
		LabRepository:         NewLabRepository(pool),
		EquipmentRepository:   NewEquipmentRepository(pool),
		ReservationRepository: NewReservationRepository(pool),
		OutboxRepository:      NewOutboxRepository(pool),
		pool:                  pool,
	}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
