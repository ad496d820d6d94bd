// Package lessons propagates accumulated notes about the repository
// between attempts (§4.H step 3: "Propagate 'lessons' context from repo
// to workspace", §6 external interface). A run's lessons are a single
// flat-file log under the mainline repo; each workspace gets a read-only
// copy of the current log folded into its engine prompt, and a
// successful attempt's own notes are appended back to the mainline copy
// once integration succeeds.
package lessons

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fileName is the lessons log's path relative to a repo root.
const fileName = ".foreman/LESSONS.md"

// Store reads and appends to one repository's lessons log.
type Store struct {
	path string
}

// NewStore returns a Store for repoRoot's lessons log.
func NewStore(repoRoot string) *Store {
	return &Store{path: filepath.Join(repoRoot, fileName)}
}

// Read returns the current lessons log, or "" if none has been recorded
// yet. A missing file is not an error: every repo starts with no lessons.
func (s *Store) Read(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("lessons: read %s: %w", s.path, err)
	}
	return string(data), nil
}

// Append adds a dated entry for itemID to the log, creating it (and its
// parent directory) if this is the first entry. Blank entries are
// dropped silently so a no-op attempt never grows the log.
func (s *Store) Append(ctx context.Context, itemID, entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("lessons: create log dir: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("lessons: open %s: %w", s.path, err)
	}
	defer f.Close()

	line := fmt.Sprintf("## %s (%s)\n%s\n\n", itemID, time.Now().UTC().Format(time.RFC3339), entry)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("lessons: append entry: %w", err)
	}
	return nil
}
