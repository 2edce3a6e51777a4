// Package storage is the wiki directory on disk: the SUMMARY.md mirror and
// the exported page files.
package storage

import "github.com/starford/craftwiki/internal/models"

// Provider reads and writes Markdown files relative to the wiki directory.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the file bytes. A missing file yields apperr.ErrNotFound.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file, creating parent directories.
	Write(path string, content []byte) error
	// Checksum returns the SHA-256 of the file, or "" if it does not exist.
	Checksum(path string) (string, error)
	// Root is the absolute wiki directory.
	Root() string
}
