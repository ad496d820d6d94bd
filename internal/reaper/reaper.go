// Package reaper sweeps stranded state left behind by a foreman process
// that crashed or was killed mid-run (§4.G Orphan Reaper): worktrees and
// branches whose owning pid is gone, and lingering child processes
// spawned under the product's temp root.
package reaper

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/foreman-run/foreman/internal/git"
)

// WorkspaceSweep removes worktrees (and their branches) whose branch name
// carries the product's prefix and whose encoded owner pid is no longer
// a live process. Permission errors removing any single entry are
// collected but don't stop the sweep.
type WorkspaceSweep struct {
	Worktrees    *git.WorktreeManager
	BranchPrefix string // e.g. "foreman/"
}

// NewWorkspaceSweep builds a sweep over worktrees managed by wt, matching
// the given branch prefix.
func NewWorkspaceSweep(wt *git.WorktreeManager, branchPrefix string) *WorkspaceSweep {
	return &WorkspaceSweep{Worktrees: wt, BranchPrefix: branchPrefix}
}

// Reclaimed describes one worktree/branch pair removed by a sweep.
type Reclaimed struct {
	Path   string
	Branch string
	PID    int
}

// Run enumerates every registered worktree and force-removes any whose
// branch matches BranchPrefix and whose encoded pid is dead. It returns
// what it reclaimed, and a slice of non-fatal per-entry errors (e.g.
// permission denied on a single worktree) that didn't stop the sweep.
func (s *WorkspaceSweep) Run(ctx context.Context) ([]Reclaimed, []error) {
	entries, err := s.Worktrees.ListEntries(ctx)
	if err != nil {
		return nil, []error{fmt.Errorf("reaper: list worktrees: %w", err)}
	}

	var reclaimed []Reclaimed
	var errs []error
	for _, entry := range entries {
		if entry.Branch == "" || !strings.HasPrefix(entry.Branch, s.BranchPrefix) {
			continue
		}
		pid, ok := git.BranchPID(entry.Branch)
		if !ok || processAlive(pid) {
			continue
		}

		if err := s.Worktrees.RemoveWorktree(ctx, entry.Path, true); err != nil {
			errs = append(errs, fmt.Errorf("reaper: remove worktree %s: %w", entry.Path, err))
			continue
		}
		if err := git.DeleteBranch(ctx, s.Worktrees.RepoRoot, entry.Branch, false); err != nil {
			errs = append(errs, fmt.Errorf("reaper: delete branch %s: %w", entry.Branch, err))
			continue
		}
		reclaimed = append(reclaimed, Reclaimed{Path: entry.Path, Branch: entry.Branch, PID: pid})
	}

	return reclaimed, errs
}

// processAlive reports whether pid is currently running, via the
// signal-0 liveness probe (FindProcess always succeeds on Unix; only
// signaling reveals whether the process still exists).
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

// ProcessSweep terminates lingering child processes spawned under the
// product's temp root that match a known orphan pattern — e.g. file
// watchers an engine CLI spawns that outlive the engine itself once its
// parent invocation is killed.
type ProcessSweep struct {
	// TempRoot is the directory prefix a process's cwd must fall under
	// to be considered for reaping.
	TempRoot string

	// CommandPatterns are substrings matched against a candidate
	// process's command line; any match marks it a likely orphan.
	CommandPatterns []string

	// Grace is how long a SIGTERM'd process gets before SIGKILL.
	Grace time.Duration
}

// NewProcessSweep builds a sweep targeting processes rooted under
// tempRoot whose command line contains any of patterns.
func NewProcessSweep(tempRoot string, patterns []string, grace time.Duration) *ProcessSweep {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &ProcessSweep{TempRoot: tempRoot, CommandPatterns: patterns, Grace: grace}
}

// Candidate is a process considered for reaping.
type Candidate struct {
	PID     int
	PPID    int
	Cwd     string
	Cmdline string
}

// Run scans /proc for candidate processes and kills (SIGTERM, grace,
// SIGKILL) every one whose cwd is under TempRoot, whose command line
// matches a configured pattern, and whose parent is pid 1 (reparented to
// init, i.e. orphaned) or the current process. It never signals its own
// pid or pid 1.
func (s *ProcessSweep) Run() ([]int, []error) {
	self := os.Getpid()
	candidates, err := listProcesses()
	if err != nil {
		return nil, []error{fmt.Errorf("reaper: list processes: %w", err)}
	}

	var killed []int
	var errs []error
	for _, c := range candidates {
		if c.PID == self || c.PID == 1 {
			continue
		}
		if c.PPID != 1 && c.PPID != self {
			continue
		}
		if s.TempRoot != "" && !strings.HasPrefix(c.Cwd, s.TempRoot) {
			continue
		}
		if !matchesAny(c.Cmdline, s.CommandPatterns) {
			continue
		}

		if err := terminateWithGrace(c.PID, s.Grace); err != nil {
			errs = append(errs, fmt.Errorf("reaper: kill pid %d: %w", c.PID, err))
			continue
		}
		killed = append(killed, c.PID)
	}

	return killed, errs
}

func matchesAny(cmdline string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(cmdline, p) {
			return true
		}
	}
	return false
}

func terminateWithGrace(pid int, grace time.Duration) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		if isProcessGone(err) {
			return nil
		}
		return err
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if process.Signal(syscall.Signal(0)) != nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := process.Signal(syscall.SIGKILL); err != nil && !isProcessGone(err) {
		return err
	}
	return nil
}

func isProcessGone(err error) bool {
	return strings.Contains(err.Error(), "process already finished") ||
		strings.Contains(err.Error(), "no such process")
}

// listProcesses enumerates candidates from /proc. Entries this process
// can't read (permission denied, or a process that exited mid-scan) are
// silently skipped, matching §4.G's "safe in the face of permission
// errors" requirement.
func listProcesses() ([]Candidate, error) {
	dir, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, entry := range dir {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || !entry.IsDir() {
			continue
		}

		cwd, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
		if err != nil {
			continue
		}
		cmdlineRaw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
		if err != nil {
			continue
		}
		statRaw, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
		if err != nil {
			continue
		}

		ppid, ok := parsePPID(string(statRaw))
		if !ok {
			continue
		}

		candidates = append(candidates, Candidate{
			PID:     pid,
			PPID:    ppid,
			Cwd:     cwd,
			Cmdline: strings.ReplaceAll(strings.TrimRight(string(cmdlineRaw), "\x00"), "\x00", " "),
		})
	}
	return candidates, nil
}

// parsePPID extracts the 4th whitespace-separated field of /proc/[pid]/stat
// (ppid), skipping past the parenthesized comm field which may itself
// contain spaces.
func parsePPID(stat string) (int, bool) {
	close := strings.LastIndex(stat, ")")
	if close == -1 || close+1 >= len(stat) {
		return 0, false
	}
	fields := strings.Fields(stat[close+1:])
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}
