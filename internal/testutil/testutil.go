// Package testutil provides shared test helpers for setting up stores and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/filestore"
	"github.com/starford/raido/internal/index"
)

// TestDB creates a temporary SQLite index that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "raido-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary store root with the subjects directory in
// place.
func TestStore(t *testing.T) *filestore.Store {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "subjects"), 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := filestore.New(root)
	if err != nil {
		t.Fatal(err)
	}
	return store
}
