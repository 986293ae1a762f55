// Package storage provides the local spool directory for uploaded statements.
// Files live here only between upload and ingestion; the coordinator removes
// them inline and the cron sweeper catches anything left behind.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Spool stores uploaded statement files on the local filesystem
type Spool struct {
	basePath string
}

// NewSpool creates the spool directory if needed
func NewSpool(basePath string) (*Spool, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &Spool{basePath: basePath}, nil
}

// Save writes an uploaded file into the spool and returns its path
func (s *Spool) Save(filename string, r io.Reader) (string, error) {
	storedName := fmt.Sprintf("%s_%s", uuid.New().String()[:8], sanitizeFilename(filename))
	path := filepath.Join(s.basePath, storedName)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write spool file: %w", err)
	}

	return path, nil
}

// Remove deletes a spooled file. Missing files are not an error.
func (s *Spool) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete spool file: %w", err)
	}
	return nil
}

// SweepOlderThan removes spool files whose modification time is older than
// maxAge and returns how many were deleted.
func (s *Spool) SweepOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read spool directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.basePath, entry.Name())); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
