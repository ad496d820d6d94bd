package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/foreman-run/foreman/internal/config"
	"github.com/foreman-run/foreman/internal/git"
	"github.com/foreman-run/foreman/internal/reaper"
)

// ReapOptions holds flags for the reap command.
type ReapOptions struct {
	ConfigPath string
	Daemon     bool
	Schedule   string // cron expression, only consulted when Daemon is set
}

// NewReapCmd creates the reap command.
func NewReapCmd(app *App) *cobra.Command {
	opts := ReapOptions{ConfigPath: ".foreman.yaml"}

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Reclaim worktrees, branches, and orphaned processes left by a crashed run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunReap(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", ".foreman.yaml", "path to the run's configuration file")
	cmd.Flags().BoolVar(&opts.Daemon, "daemon", false, "stay resident and sweep on a cron schedule instead of running once")
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "@every 5m", "cron schedule for --daemon mode")

	return cmd
}

// RunReap sweeps stranded worktrees/branches and orphaned engine
// processes once, or repeatedly on a cron schedule under --daemon.
func (a *App) RunReap(ctx context.Context, opts ReapOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("foreman reap: load config: %w", err)
	}

	repoRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("foreman reap: determine repo root: %w", err)
	}

	wt := git.NewWorktreeManager(repoRoot, cfg.WorktreeBasePath)
	branchPrefix := git.NewBranchNamer().Prefix

	workspaceSweep := reaper.NewWorkspaceSweep(wt, branchPrefix)
	processSweep := reaper.NewProcessSweep(os.TempDir(), enginePatterns(cfg), cfg.EngineKillGrace)

	if !opts.Daemon {
		return sweepOnce(ctx, workspaceSweep, processSweep)
	}

	c := cron.New()
	_, err = c.AddFunc(opts.Schedule, func() {
		if err := sweepOnce(ctx, workspaceSweep, processSweep); err != nil {
			fmt.Fprintf(os.Stderr, "reap: sweep failed: %v\n", err)
		}
	})
	if err != nil {
		return fmt.Errorf("foreman reap: parse schedule %q: %w", opts.Schedule, err)
	}

	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return nil
}

// sweepOnce runs both sweeps once, printing what each reclaimed. Errors
// the sweeps report are printed as warnings; it always returns nil.
func sweepOnce(ctx context.Context, ws *reaper.WorkspaceSweep, ps *reaper.ProcessSweep) error {
	reclaimed, errs := ws.Run(ctx)
	for _, r := range reclaimed {
		fmt.Fprintf(os.Stdout, "reclaimed worktree %s (branch %s, pid %d)\n", r.Path, r.Branch, r.PID)
	}
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", e)
	}

	killed, errs := ps.Run()
	for _, pid := range killed {
		fmt.Fprintf(os.Stdout, "terminated orphaned process %d\n", pid)
	}
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", e)
	}

	return nil
}

// enginePatterns derives the process command-line substrings a sweep
// should treat as candidate orphans: each configured engine's binary.
func enginePatterns(cfg *config.Config) []string {
	patterns := make([]string, 0, len(cfg.Engines))
	for _, e := range cfg.Engines {
		if e.Command != "" {
			patterns = append(patterns, e.Command)
		} else if e.Name != "" {
			patterns = append(patterns, e.Name)
		}
	}
	return patterns
}
