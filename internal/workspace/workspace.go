// Package workspace creates and tears down the isolated git worktree each
// scheduler slot runs a work item's attempts in (§4.A Workspace Manager).
// Every mutating operation inside a workspace goes through git.GitOps,
// which re-validates the worktree's path on every call, so a slot can
// never accidentally operate against the main checkout or another slot's
// worktree.
package workspace

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/foreman-run/foreman/internal/git"
)

// Workspace is a single isolated worktree checked out onto a fresh branch
// for one work item attempt.
type Workspace struct {
	// ItemID is the work item this workspace was created for.
	ItemID string

	// Attempt is the 1-based attempt counter; a new Workspace is created
	// per attempt so a failed attempt's partial state never leaks into a retry.
	Attempt int

	// Branch is the feature branch checked out in this workspace.
	Branch string

	// Path is the worktree's absolute filesystem path.
	Path string

	// Ops is a safety-validated GitOps bound to Path.
	Ops git.GitOps
}

// Manager creates and tears down workspaces rooted under a single base
// directory, one per concurrently-running slot.
type Manager struct {
	repoRoot     string
	basePath     string
	targetBranch string

	worktrees *git.WorktreeManager
	namer     *git.BranchNamer
}

// NewManager creates a workspace Manager for repoRoot, placing worktrees
// under basePath and branching new workspaces from targetBranch.
func NewManager(repoRoot, basePath, targetBranch string) (*Manager, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create base path: %w", err)
	}
	return &Manager{
		repoRoot:     repoRoot,
		basePath:     abs,
		targetBranch: targetBranch,
		worktrees:    git.NewWorktreeManager(repoRoot, abs),
		namer:        git.NewBranchNamer(),
	}, nil
}

// Create checks out a fresh worktree and branch for itemID's given attempt,
// branched from the manager's target branch.
func (m *Manager) Create(ctx context.Context, itemID string, attempt int) (*Workspace, error) {
	branch, err := m.namer.GenerateName(itemID, attempt)
	if err != nil {
		return nil, fmt.Errorf("workspace: generate branch name: %w", err)
	}

	path, err := m.worktrees.CreateWorktree(ctx, branch, m.targetBranch)
	if err != nil {
		return nil, fmt.Errorf("workspace: create worktree: %w", err)
	}

	ops, err := git.NewWorktreeGitOps(path, m.basePath)
	if err != nil {
		// The worktree was created but isn't safe to operate on; tear it
		// down rather than leak a half-usable workspace.
		_ = m.worktrees.RemoveWorktree(ctx, path, true)
		return nil, fmt.Errorf("workspace: bind GitOps: %w", err)
	}

	return &Workspace{
		ItemID:  itemID,
		Attempt: attempt,
		Branch:  branch,
		Path:    path,
		Ops:     ops,
	}, nil
}

// Teardown removes ws's worktree and local branch, discarding any
// uncommitted or unmerged changes it held. This is the standard
// end-of-life cleanup for a slot that has reached a terminal state; it
// is not idempotent, unlike CleanupForRetry.
func (m *Manager) Teardown(ctx context.Context, ws *Workspace) error {
	if err := m.worktrees.RemoveWorktree(ctx, ws.Path, true); err != nil {
		return fmt.Errorf("workspace: remove worktree: %w", err)
	}
	return git.DeleteBranch(ctx, m.repoRoot, ws.Branch, false)
}

// CleanupForRetry clears ws's worktree and branch between attempts.
// Unlike Teardown, it is idempotent: prune stale worktree metadata,
// verify the branch isn't still referenced by a registered worktree,
// force-delete the branch, then force-remove the working directory. A
// branch delete that fails (git refuses while the branch is still
// checked out in the worktree) is retried once the worktree is gone.
// Every step swallows "not found" errors so calling it N times on the
// same workspace is equivalent to calling it once; other errors are
// logged and returned so the caller knows cleanup did not fully
// complete.
func (m *Manager) CleanupForRetry(ctx context.Context, ws *Workspace) error {
	if err := m.worktrees.Prune(ctx); err != nil {
		log.Printf("workspace: prune metadata during retry cleanup: %v", err)
	}

	if entries, err := m.worktrees.ListEntries(ctx); err == nil {
		for _, e := range entries {
			if e.Branch == ws.Branch {
				log.Printf("workspace: branch %s still referenced by worktree %s after prune", ws.Branch, e.Path)
			}
		}
	}

	var firstErr error
	branchErr := git.DeleteBranch(ctx, m.repoRoot, ws.Branch, false)
	if branchErr != nil && isNotFoundErr(branchErr) {
		branchErr = nil
	}

	if err := m.worktrees.RemoveWorktree(ctx, ws.Path, true); err != nil && !isNotFoundErr(err) {
		log.Printf("workspace: remove worktree %s during retry cleanup: %v", ws.Path, err)
		firstErr = fmt.Errorf("workspace: remove worktree: %w", err)
	}

	if branchErr != nil {
		if err := git.DeleteBranch(ctx, m.repoRoot, ws.Branch, false); err != nil && !isNotFoundErr(err) {
			log.Printf("workspace: delete branch %s during retry cleanup: %v", ws.Branch, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("workspace: delete branch: %w", err)
			}
		}
	}

	return firstErr
}

// isNotFoundErr reports whether err is git's way of saying the branch or
// worktree it was asked to drop is already gone, which CleanupForRetry
// treats as success rather than failure.
func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "is not a working tree") ||
		strings.Contains(msg, "No such file or directory")
}

// Prune clears administrative worktree state left behind by workspaces
// whose directories were removed out-of-band (e.g. a crashed slot).
func (m *Manager) Prune(ctx context.Context) error {
	return m.worktrees.Prune(ctx)
}
