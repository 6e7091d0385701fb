// Package audit provides the durable structured event trail for the
// sync pipeline. Events go to a primary sink (the database); when the
// sink is unreachable each entry is appended to a local fallback file
// instead, so no event is silently dropped.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lexwatch/tribsync/internal/logger"
)

// Sink is the primary destination for audit entries.
type Sink interface {
	Insert(ctx context.Context, level, message string, fields map[string]any, at time.Time) error
}

// Entry is one self-contained audit record. The JSON shape is what
// lands in the fallback file.
type Entry struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	At      time.Time      `json:"at"`
}

// Trail writes audit entries to the sink with file fallback.
type Trail struct {
	sink         Sink
	fallbackPath string
	log          logger.Interface

	mu sync.Mutex
}

// NewTrail creates an audit trail. fallbackPath is the append-only
// file used when the sink fails; its directory is created on demand.
func NewTrail(sink Sink, fallbackPath string, log logger.Interface) *Trail {
	return &Trail{
		sink:         sink,
		fallbackPath: fallbackPath,
		log:          log,
	}
}

// Record writes one entry. Sink failure is absorbed: the entry is
// appended to the fallback file and the run continues. Record never
// returns an error to the caller; observability must not be able to
// break the pipeline it observes.
func (t *Trail) Record(ctx context.Context, level, message string, fields map[string]any) {
	entry := Entry{
		Level:   level,
		Message: message,
		Context: fields,
		At:      time.Now().UTC(),
	}

	sinkErr := t.sink.Insert(ctx, entry.Level, entry.Message, entry.Context, entry.At)
	if sinkErr == nil {
		return
	}
	t.log.Warn("audit sink write failed, falling back to local file",
		"error", sinkErr, "fallback_path", t.fallbackPath)

	if err := t.appendFallback(entry); err != nil {
		// Both sinks down. The zap line is the last resort.
		t.log.Error("audit fallback write failed", "error", err, "message", message)
	}
}

// Info records an info-level entry.
func (t *Trail) Info(ctx context.Context, message string, fields map[string]any) {
	t.Record(ctx, "info", message, fields)
}

// Warn records a warn-level entry.
func (t *Trail) Warn(ctx context.Context, message string, fields map[string]any) {
	t.Record(ctx, "warn", message, fields)
}

// Error records an error-level entry.
func (t *Trail) Error(ctx context.Context, message string, fields map[string]any) {
	t.Record(ctx, "error", message, fields)
}

// appendFallback appends the entry as one JSON line. A mutex
// serializes writers so concurrent runs cannot interleave records.
func (t *Trail) appendFallback(entry Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if dir := filepath.Dir(t.fallbackPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create fallback directory: %w", err)
		}
	}

	f, err := os.OpenFile(t.fallbackPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open fallback file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}
