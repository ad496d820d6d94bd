// Package coordinator provides the two filesystem locks that let
// multiple foreman processes share one repository without stepping on
// each other (§4.F Cross-Process Coordinator): a run lock keyed by a
// caller-chosen label, and a per-item claim keyed by issue number.
package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

// RunLock guards an entire run under a label (e.g. the target repo and
// branch), so two foreman processes never schedule work for the same
// label concurrently.
type RunLock struct {
	dir   string
	label string
	lock  *flock.Flock
	path  string
}

// RunRecord is the persisted content of an acquired run lock.
type RunRecord struct {
	PID       int       `json:"pid"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"started_at"`
}

// NewRunLock returns a lock for label, with lock files kept under dir.
func NewRunLock(dir, label string) *RunLock {
	path := filepath.Join(dir, sanitizeLabel(label)+".lock")
	return &RunLock{dir: dir, label: label, path: path}
}

// Acquire takes the run lock non-blocking, writing this process's pid
// and start time into the lock file on success. Per §4.F's documented
// tie-break race, callers that must coordinate relative start order
// across processes should sleep briefly after Acquire and recheck
// HasConflictingInstance before proceeding, so concurrent acquirers have
// time to observe each other.
func (l *RunLock) Acquire() (bool, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return false, fmt.Errorf("coordinator: mkdir lock dir: %w", err)
	}

	l.lock = flock.New(l.path)
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("coordinator: acquire run lock: %w", err)
	}
	if !locked {
		return false, nil
	}

	record := RunRecord{PID: os.Getpid(), Label: l.label, StartedAt: time.Now()}
	data, err := json.Marshal(record)
	if err != nil {
		_ = l.lock.Unlock()
		return false, fmt.Errorf("coordinator: encode run lock record: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		_ = l.lock.Unlock()
		return false, fmt.Errorf("coordinator: write run lock record: %w", err)
	}
	return true, nil
}

// Release unlocks and removes the lock file. Safe to call even if
// Acquire never succeeded.
func (l *RunLock) Release() error {
	if l.lock == nil || !l.lock.Locked() {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("coordinator: release run lock: %w", err)
	}
	_ = os.Remove(l.path)
	return nil
}

// HasConflictingInstance scans dir for other run-lock files under label
// whose owner pid is still alive, reaping any whose owner is gone. It
// returns the first live conflicting record found, if any.
func HasConflictingInstance(dir, label string) (*RunRecord, error) {
	selfPath := filepath.Join(dir, sanitizeLabel(label)+".lock")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("coordinator: scan lock dir: %w", err)
	}

	selfPID := os.Getpid()
	prefix := sanitizeLabel(label)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) || !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		record, err := readRunRecord(path)
		if err != nil {
			continue
		}
		if record.PID == selfPID {
			continue
		}
		if processAlive(record.PID) {
			if path != selfPath {
				return record, nil
			}
			continue
		}
		// Stale: owner process is gone, reclaim the file.
		_ = os.Remove(path)
	}
	return nil, nil
}

func readRunRecord(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("coordinator: malformed lock record %s: %w", path, err)
	}
	return &record, nil
}

// processAlive reports whether pid is a currently-running process, using
// the signal-0 probe: FindProcess always succeeds on Unix, so liveness
// is only known once a signal is actually sent.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func sanitizeLabel(label string) string {
	replacer := strings.NewReplacer("/", "-", " ", "-")
	return replacer.Replace(label)
}

// ItemClaim atomically claims a single work item (by tracker issue
// number) so two slots, possibly in different processes, never pick up
// the same item.
type ItemClaim struct {
	dir string
}

// NewItemClaim returns a claim manager keeping its lock files under dir.
func NewItemClaim(dir string) *ItemClaim {
	return &ItemClaim{dir: dir}
}

func (c *ItemClaim) path(issue string) string {
	return filepath.Join(c.dir, "item-"+sanitizeLabel(issue)+".claim")
}

// Claim attempts an atomic create-if-absent of the item's claim file,
// persisting this process's pid. It returns false without error if
// another live process already holds the claim; a claim left behind by
// a dead process is reclaimed transparently.
func (c *ItemClaim) Claim(issue string) (bool, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return false, fmt.Errorf("coordinator: mkdir claim dir: %w", err)
	}

	path := c.path(issue)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()))
		closeErr := f.Close()
		if writeErr != nil {
			return false, fmt.Errorf("coordinator: write claim record: %w", writeErr)
		}
		return true, closeErr
	}
	if !os.IsExist(err) {
		return false, fmt.Errorf("coordinator: create claim file: %w", err)
	}

	// File already exists: reclaim it if its owner is dead, otherwise
	// another live process holds this item.
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return false, nil
	}
	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil || processAlive(pid) {
		return false, nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, nil
	}
	return c.Claim(issue)
}

// Release unconditionally removes the item's claim file.
func (c *ItemClaim) Release(issue string) error {
	if err := os.Remove(c.path(issue)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("coordinator: release claim: %w", err)
	}
	return nil
}
