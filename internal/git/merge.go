package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// IsAncestor reports whether base is an ancestor of feature — every commit
// reachable from base is also reachable from feature — using git's own
// ancestry check rather than inferring it from a ref's resolvability.
// merge-base --is-ancestor exits 0 when true, 1 when false, and anything
// else (bad refs, repo errors) is a real error.
func IsAncestor(ctx context.Context, repoPath, base, feature string) (bool, error) {
	_, err := gitExec(ctx, repoPath, "merge-base", "--is-ancestor", base, feature)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// Rebase rebases the current branch in worktreePath onto targetRef.
// Returns hasConflicts=true if the rebase stopped on a conflict rather
// than failing for some other reason.
func Rebase(ctx context.Context, worktreePath, targetRef string) (hasConflicts bool, err error) {
	_, execErr := gitExec(ctx, worktreePath, "rebase", targetRef)
	if execErr != nil {
		if strings.Contains(execErr.Error(), "CONFLICT") ||
			strings.Contains(execErr.Error(), "could not apply") {
			return true, nil
		}
		return false, execErr
	}
	return false, nil
}

// ForcePushWithLease pushes the current branch with --force-with-lease,
// safe to use after a rebase since it fails if the remote moved underneath us.
func ForcePushWithLease(ctx context.Context, worktreePath string) error {
	_, err := gitExec(ctx, worktreePath, "push", "--force-with-lease")
	return err
}

// Fetch fetches ref from remote into repoRoot.
func Fetch(ctx context.Context, repoRoot, remote, ref string) error {
	_, err := gitExec(ctx, repoRoot, "fetch", remote, ref)
	return err
}

// DeleteBranch deletes a branch locally and, if remote is true, on origin.
func DeleteBranch(ctx context.Context, repoRoot, branchName string, remote bool) error {
	if remote {
		_, err := gitExec(ctx, repoRoot, "push", "origin", "--delete", branchName)
		return err
	}
	_, err := gitExec(ctx, repoRoot, "branch", "-D", branchName)
	return err
}

func resolveGitDir(path string) string {
	gitDir := filepath.Join(path, ".git")
	content, err := os.ReadFile(gitDir)
	if err == nil && strings.HasPrefix(string(content), "gitdir:") {
		return strings.TrimSpace(strings.TrimPrefix(string(content), "gitdir:"))
	}
	return gitDir
}

// IsRebaseInProgress reports whether a rebase is currently in progress in worktreePath.
func IsRebaseInProgress(worktreePath string) bool {
	gitDir := resolveGitDir(worktreePath)
	if _, err := os.Stat(filepath.Join(gitDir, "rebase-merge")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(gitDir, "rebase-apply")); err == nil {
		return true
	}
	return false
}

// IsMergeInProgress reports whether a merge is currently in progress in repoPath.
func IsMergeInProgress(repoPath string) bool {
	gitDir := resolveGitDir(repoPath)
	_, err := os.Stat(filepath.Join(gitDir, "MERGE_HEAD"))
	return err == nil
}

// AbortRebase aborts an in-progress rebase, restoring worktreePath to its
// pre-rebase state.
func AbortRebase(ctx context.Context, worktreePath string) error {
	_, err := gitExec(ctx, worktreePath, "rebase", "--abort")
	return err
}

// GetConflictedFiles returns the paths with unresolved merge conflicts.
func GetConflictedFiles(ctx context.Context, worktreePath string) ([]string, error) {
	out, err := gitExec(ctx, worktreePath, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return []string{}, nil
	}
	return strings.Split(out, "\n"), nil
}

// ContinueRebase continues a rebase after conflicts are staged as resolved.
func ContinueRebase(ctx context.Context, worktreePath string) error {
	_, err := gitExec(ctx, worktreePath, "rebase", "--continue")
	return err
}

// Stash stashes the working tree's changes (including untracked files)
// under message, for later retrieval by StashPop.
func Stash(ctx context.Context, repoPath, message string) error {
	_, err := gitExec(ctx, repoPath, "stash", "push", "-u", "-m", message)
	return err
}

// StashRef locates a stash by its exact tagged message, never by numeric
// index since indices shift as other stashes come and go. Returns "" if
// no matching stash exists.
func StashRef(ctx context.Context, repoPath, message string) (string, error) {
	out, err := gitExec(ctx, repoPath, "stash", "list", "--format=%gd %gs")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, message) {
			fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
			if len(fields) > 0 {
				return fields[0], nil
			}
		}
	}
	return "", nil
}

// StashPop applies and drops the stash at ref.
func StashPop(ctx context.Context, repoPath, ref string) error {
	_, err := gitExec(ctx, repoPath, "stash", "pop", ref)
	return err
}

// ListStashes returns the subject line of every stash entry currently on
// repoPath's stash, most recent first.
func ListStashes(ctx context.Context, repoPath string) ([]string, error) {
	out, err := gitExec(ctx, repoPath, "stash", "list", "--format=%gs")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return []string{}, nil
	}
	return strings.Split(out, "\n"), nil
}
