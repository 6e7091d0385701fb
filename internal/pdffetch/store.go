package pdffetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StoragePath builds the deterministic, collision-resistant blob path
// for one document:
//
//	{userID}/tribunal/{isoDate}/{sanitizedCaseID}_{uploadTimestamp}.pdf
func StoragePath(userID, expediente string, now time.Time) string {
	caseID := unsafePathChars.ReplaceAllString(expediente, "-")
	return filepath.Join(
		userID,
		"tribunal",
		now.UTC().Format("2006-01-02"),
		fmt.Sprintf("%s_%d.pdf", caseID, now.Unix()),
	)
}

// FileStore persists PDF blobs under a local root directory.
type FileStore struct {
	root string
}

// NewFileStore creates a blob store rooted at dir.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Save writes a blob at the given relative path and returns the path
// as stored on the document row.
func (s *FileStore) Save(_ context.Context, relPath string, data []byte) (string, error) {
	full := filepath.Join(s.root, relPath)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}

	return relPath, nil
}
