package testutil

import (
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"

	"github.com/marcusgoll/Spec-Flow-sub014/internal/storage"
)

// TestDB holds a migrated store backed by a throwaway SQLite file.
type TestDB struct {
	Store *storage.SQLiteStore
	Path  string
}

// SetupTestDB creates a SQLite database in a temp directory and applies
// migrations. The file is removed with the test's temp dir.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	if err := godotenv.Load(); err != nil {
		t.Logf("No .env file found or failed to load: %v. Proceeding with environment variables.", err)
	}

	path := filepath.Join(t.TempDir(), "specflow-test.db")
	store, err := storage.InitStore(path)
	if err != nil {
		t.Fatalf("Failed to initialize test store: %v", err)
	}
	return &TestDB{Store: store, Path: path}
}

// Teardown closes the store.
func (td *TestDB) Teardown(t *testing.T) {
	t.Helper()
	if err := td.Store.Close(); err != nil {
		t.Errorf("Failed to close test store: %v", err)
	}
}
