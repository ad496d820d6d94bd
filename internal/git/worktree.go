package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorktreeManager creates and tears down git worktrees rooted under a
// single base directory, one per concurrently-running work item. Keeping
// every worktree under BasePath lets GitOps' path validation (§ safety
// checks in gitops.go) reject any accidental operation outside the sandbox.
type WorktreeManager struct {
	// RepoRoot is the primary checkout worktrees are added from.
	RepoRoot string

	// BasePath is the required parent directory for every worktree this
	// manager creates; GitOpsOpts.WorktreeBase should match it.
	BasePath string
}

// NewWorktreeManager creates a worktree manager rooted at repoRoot, placing
// new worktrees under basePath.
func NewWorktreeManager(repoRoot, basePath string) *WorktreeManager {
	return &WorktreeManager{RepoRoot: repoRoot, BasePath: basePath}
}

// CreateWorktree adds a new worktree at BasePath/<branch-safe-name> checked
// out onto branch, creating branch from base if it doesn't already exist.
func (m *WorktreeManager) CreateWorktree(ctx context.Context, branch, base string) (string, error) {
	if err := os.MkdirAll(m.BasePath, 0o755); err != nil {
		return "", fmt.Errorf("worktree: create base dir: %w", err)
	}

	dirName := strings.ReplaceAll(branch, "/", "-")
	path := filepath.Join(m.BasePath, dirName)

	if abs, err := filepath.Abs(path); err != nil || !strings.HasPrefix(abs, m.BasePath) {
		return "", fmt.Errorf("worktree: resolved path %q escapes base %q", path, m.BasePath)
	}

	exists, err := branchExists(ctx, m.RepoRoot, branch)
	if err != nil {
		return "", fmt.Errorf("worktree: check branch: %w", err)
	}

	args := []string{"worktree", "add"}
	if exists {
		args = append(args, path, branch)
	} else {
		args = append(args, "-b", branch, path, base)
	}

	if _, err := gitExec(ctx, m.RepoRoot, args...); err != nil {
		return "", fmt.Errorf("worktree: add failed: %w", err)
	}
	return path, nil
}

// RemoveWorktree tears down the worktree at path, discarding any
// uncommitted changes it holds. force is required once the worktree has
// modifications git would otherwise refuse to drop.
func (m *WorktreeManager) RemoveWorktree(ctx context.Context, path string, force bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(abs, m.BasePath) {
		return fmt.Errorf("worktree: refusing to remove path %q outside base %q", abs, m.BasePath)
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, abs)

	_, err = gitExec(ctx, m.RepoRoot, args...)
	return err
}

// Prune removes administrative state for worktrees whose directories were
// deleted out-of-band (e.g. by a crashed slot before teardown ran).
func (m *WorktreeManager) Prune(ctx context.Context) error {
	_, err := gitExec(ctx, m.RepoRoot, "worktree", "prune")
	return err
}

// List returns the paths of all worktrees currently registered against RepoRoot.
func (m *WorktreeManager) List(ctx context.Context) ([]string, error) {
	entries, err := m.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths, nil
}

// Entry is one registered worktree's path and checked-out branch, as
// reported by `git worktree list --porcelain`.
type Entry struct {
	Path   string
	Branch string // short name, e.g. "foreman/item-142-p4821-a91f3c"; empty if detached
}

// ListEntries returns every worktree registered against RepoRoot along
// with the branch each has checked out, for callers (the orphan reaper)
// that need to inspect branch names, not just paths.
func (m *WorktreeManager) ListEntries(ctx context.Context) ([]Entry, error) {
	out, err := gitExec(ctx, m.RepoRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var entries []Entry
	var current *Entry
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				entries = append(entries, *current)
			}
			current = &Entry{Path: strings.TrimSpace(strings.TrimPrefix(line, "worktree "))}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				ref := strings.TrimSpace(strings.TrimPrefix(line, "branch "))
				current.Branch = strings.TrimPrefix(ref, "refs/heads/")
			}
		}
	}
	if current != nil {
		entries = append(entries, *current)
	}
	return entries, nil
}

func branchExists(ctx context.Context, repoRoot, branch string) (bool, error) {
	_, err := gitExec(ctx, repoRoot, "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil, nil
}
