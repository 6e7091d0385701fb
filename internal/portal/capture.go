package portal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const captureHashLen = 12

// Capture persists full-page HTML snapshots taken when a scrape fails.
// Files are keyed by a hash of the user email plus a timestamp, never
// by the email itself.
type Capture struct {
	dir string
}

// NewCapture creates a capture store rooted at dir. An empty dir
// disables captures.
func NewCapture(dir string) *Capture {
	return &Capture{dir: dir}
}

// Save writes one page snapshot and returns its path. Returns "" when
// captures are disabled or the page is empty.
func (c *Capture) Save(email, step string, page []byte) (string, error) {
	if c == nil || c.dir == "" || len(page) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture directory: %w", err)
	}

	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	name := fmt.Sprintf("%s_%s_%s.html",
		hex.EncodeToString(sum[:])[:captureHashLen],
		step,
		time.Now().UTC().Format("20060102T150405Z"),
	)

	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, page, 0o644); err != nil {
		return "", fmt.Errorf("write capture: %w", err)
	}

	return path, nil
}
