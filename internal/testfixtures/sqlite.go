package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/lab-portal/internal/persistence"
	"github.com/example/lab-portal/internal/persistence/memory"
	"github.com/example/lab-portal/internal/persistence/sqlite"
	"github.com/example/lab-portal/internal/persistence/sqlite/migration"
)

// StoreHarness names a persistence.Store implementation for contract tests.
type StoreHarness struct {
	Name string
	Open func(tb testing.TB) persistence.Store
}

// StoreHarnesses lists every store implementation the service runs on.
func StoreHarnesses() []StoreHarness {
	return []StoreHarness{
		{Name: "memory", Open: NewMemoryStore},
		{Name: "sqlite", Open: NewSQLiteStore},
	}
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore(tb testing.TB) persistence.Store {
	tb.Helper()
	return memory.New()
}

// NewSQLiteStore opens a migrated SQLite store in a temporary directory. The
// store is closed when the test finishes.
func NewSQLiteStore(tb testing.TB) persistence.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "labportal.db")
	store, err := sqlite.Open(context.Background(), migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedLabs inserts labs into store and fails the test on error.
func SeedLabs(tb testing.TB, store persistence.LabRepository, labs ...LabFixture) {
	tb.Helper()
	for _, lab := range labs {
		if err := store.CreateLab(context.Background(), lab.Persistence()); err != nil {
			tb.Fatalf("seed lab %s: %v", lab.ID, err)
		}
	}
}
