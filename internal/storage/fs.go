package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cp "github.com/otiai10/copy"

	"github.com/starford/lexicon/internal/models"
)

const tmpPrefix = ".lexicon-tmp-"

// IsTemp reports whether name is a temporary file created by Write.
func IsTemp(name string) bool {
	return strings.HasPrefix(filepath.Base(name), tmpPrefix)
}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to project directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute project root.
func (f *FS) Root() string {
	return f.root
}

// Abs resolves a relative path against the project root.
func (f *FS) Abs(path string) (string, error) {
	return f.safePath(path)
}

// safePath resolves a relative path against the project root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes project root: %s", rel)
	}
	return abs, nil
}

// List returns metadata for every regular file directly inside dir.
// Temporary files left by an interrupted Write are skipped.
func (f *FS) List(dir string) ([]models.FileMetadata, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}
	var out []models.FileMetadata
	for _, e := range entries {
		if !e.Type().IsRegular() || IsTemp(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", dir, err)
		}
		out = append(out, models.FileMetadata{
			Path:      filepath.Join(dir, e.Name()),
			Name:      e.Name(),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns the raw bytes of a project file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Exists reports whether path exists below the root.
func (f *FS) Exists(path string) bool {
	abs, err := f.safePath(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Delete removes a file from the project.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// Import copies an external file into the project. Copying a file onto
// itself is a no-op.
func (f *FS) Import(src, path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("storage: resolve %s: %w", src, err)
	}
	if srcAbs == abs {
		return nil
	}
	info, err := os.Stat(srcAbs)
	if err != nil {
		return fmt.Errorf("storage: import %s: %w", src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("storage: import %s: not a regular file", src)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for import: %w", err)
	}
	if err := cp.Copy(srcAbs, abs, cp.Options{Sync: true}); err != nil {
		return fmt.Errorf("storage: import %s: %w", src, err)
	}
	return nil
}

// RemoveDir removes an empty directory. The root itself is never removed.
func (f *FS) RemoveDir(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: refusing to remove project root")
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: remove dir %s: %w", dir, err)
	}
	return nil
}
