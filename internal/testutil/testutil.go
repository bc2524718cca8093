// Package testutil provides shared test helpers for setting up projects and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/lexicon/internal/index"
	"github.com/starford/lexicon/internal/project"
	"github.com/starford/lexicon/internal/term"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lexicon-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestProject creates an empty project in a temporary directory and returns
// its root together with a controller that has it loaded.
func TestProject(t *testing.T) (string, *project.Controller) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, term.IndexFile), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctrl := project.New(project.WithLogger(QuietLogger()))
	if err := ctrl.LoadProject(root); err != nil {
		t.Fatal(err)
	}
	return root, ctrl
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
