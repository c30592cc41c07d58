// Package docstore persists uploaded resume documents on local disk,
// one directory per job id.
package docstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store writes and resolves uploaded documents under a root directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir. The directory is created lazily on
// first save.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Save writes the document to {root}/{jobID}/{filename} and returns the
// stored path. The filename is reduced to its base name so client input
// cannot escape the job directory.
func (s *Store) Save(jobID, filename string, r io.Reader) (string, error) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("invalid document filename %q", filename)
	}

	dir := filepath.Join(s.root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}

	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create document file: %w", err)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write document: %w", err)
	}

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to flush document: %w", err)
	}

	return path, nil
}

// Resolve returns the path of the document stored for jobID. Exactly one
// document is saved per job; the first regular file wins if more exist.
func (s *Store) Resolve(jobID string) (string, error) {
	dir := filepath.Join(s.root, jobID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read document directory: %w", err)
	}

	for _, entry := range entries {
		if entry.Type().IsRegular() {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("no document stored for job %s", jobID)
}
