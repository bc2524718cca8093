// Package storage defines the project file-system abstraction.
package storage

import "github.com/starford/lexicon/internal/models"

// Provider is the interface for project file operations. Every path is
// relative to the project root unless stated otherwise.
type Provider interface {
	// Root returns the absolute project root.
	Root() string
	// Abs resolves path against the root, rejecting traversal.
	Abs(path string) (string, error)
	// List returns the regular files directly inside dir.
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Exists reports whether path names an existing file or directory.
	Exists(path string) bool
	// Delete removes the file at path.
	Delete(path string) error
	// Import copies the file at the absolute path src to path.
	Import(src, path string) error
	// RemoveDir removes dir if it is empty.
	RemoveDir(dir string) error
}
