// Package testutil provides shared test helpers for setting up record stores and loggers.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MikeYan01/List-memories/internal/store"
)

// Logger returns a JSON logger that only reports errors, keeping test
// output readable.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestDB creates a temporary record database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
