// Package integrate merges a feature branch into a base branch under
// process-wide serialization (§4.B Integration Manager). The mutex it
// holds covers only the mainline-mutating merge-and-restore sequence;
// rebasing happens, unprotected, inside the feature's own workspace.
package integrate

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/foreman-run/foreman/internal/ferr"
	"github.com/foreman-run/foreman/internal/git"
)

// Request describes one integration attempt.
type Request struct {
	RepoRoot       string // mainline working tree to merge into
	FeatureBranch  string
	BaseBranch     string
	ItemID         string
	FeatureWorkdir string // feature's workspace path, used for the rebase step
}

// Result is the outcome of an integration attempt.
type Result struct {
	Success       bool
	NoOp          bool
	ConflictFiles []string
}

// Manager serializes integration across every item a scheduler's slots try
// to merge, guaranteeing only one goroutine ever mutates the mainline
// working tree's HEAD and stash at a time.
type Manager struct {
	mu sync.Mutex
}

// NewManager creates an Integration Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Integrate runs the full ancestry-check → rebase → merge → restore
// sequence for req.
func (m *Manager) Integrate(ctx context.Context, req Request) (*Result, error) {
	mainline, err := git.NewRepoRootGitOps(req.RepoRoot, nil)
	if err != nil {
		return nil, ferr.New(ferr.KindInternal, "integrate.bind", err)
	}

	// Step 1: ancestry check + rebase, scoped to the feature workspace.
	// Deliberately outside the mutex — it never touches mainline state.
	ancestor, err := git.IsAncestor(ctx, mainline.Path(), req.BaseBranch, req.FeatureBranch)
	if err != nil {
		return nil, ferr.New(ferr.KindInternal, "integrate.ancestry", err)
	}
	if !ancestor {
		if req.FeatureWorkdir == "" {
			return nil, ferr.New(ferr.KindValidation, "integrate.rebase", fmt.Errorf("base advanced but no feature workdir provided for rebase"))
		}
		if err := rebaseFeature(ctx, req); err != nil {
			return nil, err
		}
	}

	// Step 2: emptiness check.
	diff, err := mainline.Diff(ctx, req.BaseBranch, req.FeatureBranch)
	if err != nil {
		return nil, ferr.New(ferr.KindInternal, "integrate.diff", err)
	}
	if diff == "" {
		return &Result{Success: true, NoOp: true}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return mergeAndRestore(ctx, mainline, req)
}

// rebaseFeature rebases req.FeatureBranch onto req.BaseBranch inside the
// feature's own workspace, never in the mainline working tree. Deliberately
// runs without the integration mutex held.
func rebaseFeature(ctx context.Context, req Request) error {
	hasConflicts, err := git.Rebase(ctx, req.FeatureWorkdir, req.BaseBranch)
	if err != nil {
		return ferr.New(ferr.KindInternal, "integrate.rebase", err)
	}
	if hasConflicts {
		_ = git.AbortRebase(ctx, req.FeatureWorkdir)
		return ferr.New(ferr.KindConflict, "integrate.rebase", fmt.Errorf("rebase of %s onto %s produced conflicts", req.FeatureBranch, req.BaseBranch))
	}
	return nil
}

// mergeAndRestore performs steps 3-6 under the integration mutex: stash if
// dirty, checkout base, merge, and restore the mainline's original state
// no matter how the merge turns out.
func mergeAndRestore(ctx context.Context, mainline git.GitOps, req Request) (*Result, error) {
	origBranch, err := mainline.CurrentBranch(ctx)
	if err != nil {
		return nil, ferr.New(ferr.KindInternal, "integrate.current_branch", err)
	}

	stashMsg, stashed, err := stashIfDirty(ctx, mainline, req.ItemID)
	if err != nil {
		return nil, ferr.New(ferr.KindInternal, "integrate.stash", err)
	}

	defer func() {
		// Guaranteed restore: always return to origBranch and pop our
		// stash, regardless of whether the merge below succeeds.
		if origBranch != req.BaseBranch {
			_ = mainline.CheckoutBranch(ctx, origBranch, false)
		}
		if stashed {
			if ref, err := git.StashRef(ctx, mainline.Path(), stashMsg); err == nil && ref != "" {
				_ = git.StashPop(ctx, mainline.Path(), ref)
			}
		}
	}()

	if err := mainline.CheckoutBranch(ctx, req.BaseBranch, false); err != nil {
		return nil, ferr.New(ferr.KindInternal, "integrate.checkout_base", err)
	}

	mergeErr := mainline.Merge(ctx, req.FeatureBranch, git.MergeOpts{
		NoFF:    true,
		Message: fmt.Sprintf("Merge %s (item %s) into %s", req.FeatureBranch, req.ItemID, req.BaseBranch),
	})
	if mergeErr != nil {
		conflicts, _ := git.GetConflictedFiles(ctx, mainline.Path())
		_ = mainline.MergeAbort(ctx)
		return &Result{Success: false, ConflictFiles: conflicts}, ferr.New(ferr.KindConflict, "integrate.merge", mergeErr)
	}

	return &Result{Success: true}, nil
}

func stashIfDirty(ctx context.Context, mainline git.GitOps, itemID string) (message string, stashed bool, err error) {
	status, err := mainline.Status(ctx)
	if err != nil {
		return "", false, err
	}
	if status.Clean {
		return "", false, nil
	}

	msg := fmt.Sprintf("foreman-pre-merge-%s-%d-%d", itemID, os.Getpid(), time.Now().UnixNano())
	if err := git.Stash(ctx, mainline.Path(), msg); err != nil {
		return "", false, err
	}
	return msg, true, nil
}
