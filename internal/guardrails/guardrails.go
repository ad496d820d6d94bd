// Package guardrails wraps the scheduler's pre-flight and post-run
// safety checks (§4.I Guardrails): confirming the repository and base
// branch are usable before a run starts, and auditing that a run left
// no stray workspaces, branches, or stashes behind.
package guardrails

import (
	"context"
	"fmt"
	"strings"

	"github.com/foreman-run/foreman/internal/git"
)

// PreflightResult reports what the pre-flight check observed. A dirty
// working tree or a failed fetch are warnings, not failures — the
// scheduler proceeds but the caller should surface Warnings to the
// operator.
type PreflightResult struct {
	Warnings []string
}

// Preflight verifies repoRoot is a usable git checkout with baseBranch
// present, attempting (but not requiring) a fetch. It fails only on
// conditions the scheduler genuinely cannot proceed past: repoRoot isn't
// a git checkout, or baseBranch doesn't exist.
func Preflight(ctx context.Context, repoRoot, baseBranch string) (PreflightResult, error) {
	var result PreflightResult

	ops, err := git.NewRepoRootGitOps(repoRoot, nil)
	if err != nil {
		return result, fmt.Errorf("guardrails: %s is not a git checkout: %w", repoRoot, err)
	}

	exists, err := ops.BranchExists(ctx, baseBranch)
	if err != nil {
		return result, fmt.Errorf("guardrails: checking base branch %q: %w", baseBranch, err)
	}
	if !exists {
		return result, fmt.Errorf("guardrails: base branch %q does not exist", baseBranch)
	}

	if err := ops.Fetch(ctx, "origin", baseBranch); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("fetch of %s from origin failed (continuing with local state): %v", baseBranch, err))
	}

	status, err := ops.Status(ctx)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("could not check working tree status: %v", err))
	} else if !status.Clean {
		result.Warnings = append(result.Warnings, "working tree is dirty at run start")
	}

	return result, nil
}

// AuditResult reports what a post-run audit found wrong, if anything. An
// empty AuditResult means the run left the repository clean.
type AuditResult struct {
	OrphanedWorkspaces []string
	WrongBranch        string // non-empty if the current branch changed unexpectedly
	LeftoverStashes    []string
}

// Clean reports whether the audit found nothing amiss.
func (a AuditResult) Clean() bool {
	return len(a.OrphanedWorkspaces) == 0 && a.WrongBranch == "" && len(a.LeftoverStashes) == 0
}

// PostRunAudit checks that the scheduler left repoRoot exactly as it
// found it: no worktrees whose branch carries branchPrefix remain,
// the current branch is still startedOn, and no stash entries tagged
// with stashPrefix are left unpopped.
func PostRunAudit(ctx context.Context, repoRoot, branchPrefix, startedOn, stashPrefix string) (AuditResult, error) {
	var audit AuditResult

	worktrees := git.NewWorktreeManager(repoRoot, "")
	entries, err := worktrees.ListEntries(ctx)
	if err != nil {
		return audit, fmt.Errorf("guardrails: list worktrees: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Branch, branchPrefix) {
			audit.OrphanedWorkspaces = append(audit.OrphanedWorkspaces, e.Path)
		}
	}

	ops, err := git.NewRepoRootGitOps(repoRoot, nil)
	if err != nil {
		return audit, fmt.Errorf("guardrails: %s is not a git checkout: %w", repoRoot, err)
	}

	current, err := ops.CurrentBranch(ctx)
	if err != nil {
		return audit, fmt.Errorf("guardrails: current branch: %w", err)
	}
	if current != startedOn {
		audit.WrongBranch = current
	}

	stashes, err := git.ListStashes(ctx, repoRoot)
	if err != nil {
		return audit, fmt.Errorf("guardrails: list stashes: %w", err)
	}
	for _, s := range stashes {
		if strings.Contains(s, stashPrefix) {
			audit.LeftoverStashes = append(audit.LeftoverStashes, s)
		}
	}

	return audit, nil
}
