// Package models defines small value types shared across Lexicon packages.
package models

import "time"

// FileMetadata describes one regular file inside a term directory.
type FileMetadata struct {
	Path      string    `json:"path"` // relative to the project root
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
