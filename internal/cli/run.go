package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/foreman-run/foreman/internal/config"
	"github.com/foreman-run/foreman/internal/coordinator"
	"github.com/foreman-run/foreman/internal/domain"
	"github.com/foreman-run/foreman/internal/engine"
	"github.com/foreman-run/foreman/internal/events"
	"github.com/foreman-run/foreman/internal/guardrails"
	"github.com/foreman-run/foreman/internal/integrate"
	"github.com/foreman-run/foreman/internal/lessons"
	"github.com/foreman-run/foreman/internal/scheduler"
	"github.com/foreman-run/foreman/internal/store"
	"github.com/foreman-run/foreman/internal/tracker"
	"github.com/foreman-run/foreman/internal/tui"
	"github.com/foreman-run/foreman/internal/web"
	"github.com/foreman-run/foreman/internal/workspace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Label       string
	MaxParallel int
	ConfigPath  string
}

// Validate checks opts for the minimum required fields.
func (o RunOptions) Validate() error {
	if o.Label == "" {
		return fmt.Errorf("run: --label is required")
	}
	return nil
}

// NewRunCmd creates the run command.
func NewRunCmd(app *App) *cobra.Command {
	var opts RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a bounded pool of engine attempts against a labeled work queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return app.RunForeman(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Label, "label", "", "tracker label selecting the work queue (required)")
	cmd.Flags().IntVar(&opts.MaxParallel, "max-parallel", 0, "override the configured window size")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", ".foreman.yaml", "path to the run's configuration file")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}

// RunForeman loads configuration, wires every collaborator, and drives the
// scheduler to completion for one labeled run.
func (a *App) RunForeman(ctx context.Context, opts RunOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	handler := NewSignalHandler(cancel)
	handler.Start()
	defer handler.Stop()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("foreman run: load config: %w", err)
	}
	if opts.MaxParallel > 0 {
		cfg.WindowSize = opts.MaxParallel
	}
	cfg.RunLabel = opts.Label

	repoRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("foreman run: determine repo root: %w", err)
	}

	preflight, err := guardrails.Preflight(ctx, repoRoot, cfg.TargetBranch)
	if err != nil {
		return fmt.Errorf("foreman run: preflight failed: %w", err)
	}
	for _, w := range preflight.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	lockDir := filepath.Join(repoRoot, ".foreman", "locks")
	if conflict, err := coordinator.HasConflictingInstance(lockDir, opts.Label); err != nil {
		return fmt.Errorf("foreman run: check conflicting instance: %w", err)
	} else if conflict != nil {
		return fmt.Errorf("foreman run: another foreman process (pid %d) is already running label %q", conflict.PID, opts.Label)
	}

	runLock := coordinator.NewRunLock(lockDir, opts.Label)
	acquired, err := runLock.Acquire()
	if err != nil {
		return fmt.Errorf("foreman run: acquire run lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("foreman run: could not acquire run lock for label %q", opts.Label)
	}
	defer runLock.Release()

	runStore, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("foreman run: open state store: %w", err)
	}
	defer runStore.Close()

	stateRun, err := runStore.NewRun(opts.Label, cfg.TargetBranch, cfg.WindowSize)
	if err != nil {
		return fmt.Errorf("foreman run: record run start: %w", err)
	}

	bus := events.NewBus(1024)
	defer bus.Close()
	bus.Subscribe(runStore.Subscriber())

	trackerClient, err := tracker.NewHTTPTracker(tracker.Config{
		Owner: cfg.Tracker.Owner,
		Repo:  cfg.Tracker.Repo,
	})
	if err != nil {
		return fmt.Errorf("foreman run: build tracker client: %w", err)
	}

	workspaces, err := workspace.NewManager(repoRoot, cfg.WorktreeBasePath, cfg.TargetBranch)
	if err != nil {
		return fmt.Errorf("foreman run: build workspace manager: %w", err)
	}

	classifier, err := domain.New(cfg.Domains)
	if err != nil {
		return fmt.Errorf("foreman run: build domain classifier: %w", err)
	}

	items, err := discoverItems(ctx, trackerClient, classifier, opts.Label)
	if err != nil {
		return fmt.Errorf("foreman run: discover work items: %w", err)
	}

	var pusher *web.SocketPusher
	var dashboardServer *web.Server
	if cfg.DashboardAddr != "" {
		dashboardServer, err = web.New(web.Config{Addr: cfg.DashboardAddr})
		if err != nil {
			return fmt.Errorf("foreman run: build dashboard server: %w", err)
		}
		if err := dashboardServer.Start(); err != nil {
			return fmt.Errorf("foreman run: start dashboard server: %w", err)
		}
		defer dashboardServer.Stop(context.Background())

		pusher = web.NewSocketPusher(bus, web.PusherConfig{SocketPath: dashboardServer.SocketPath()})
		if err := pusher.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: dashboard pusher failed to connect: %v\n", err)
			pusher = nil
		} else {
			defer pusher.Close()
		}
	}

	program := tea.NewProgram(tui.NewModel(len(items), cfg.WindowSize))
	bridge := tui.NewBridge(program)
	bus.Subscribe(bridge.Handler())

	programDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		programDone <- err
	}()
	handler.OnShutdown(bridge.SendQuit)

	deps := scheduler.Deps{
		Tracker:    trackerClient,
		Workspaces: workspaces,
		RepoRoot:   repoRoot,
		Integrator: integrate.NewManager(),
		Lessons:    lessons.NewStore(repoRoot),
		Claims:     coordinator.NewItemClaim(lockDir),
		Chains: func(observer engine.SwitchObserver) *engine.Chain {
			return engine.ChainFromConfigs(cfg.Engines, cfg.EngineKillGrace, observer)
		},
		Bus:    bus,
		Config: cfg,
	}

	sched := scheduler.New(deps, items)
	handler.OnShutdown(sched.Kill)

	runErr := sched.Run(ctx)

	bridge.SendDone()
	<-programDone

	status := "completed"
	if runErr != nil {
		status = "failed"
	}
	_ = runStore.FinishRun(stateRun.ID, status)

	audit, auditErr := guardrails.PostRunAudit(context.Background(), repoRoot, "foreman/", cfg.TargetBranch, "foreman-")
	if auditErr == nil && !audit.Clean() {
		fmt.Fprintf(os.Stderr, "warning: post-run audit found leftover state: %+v\n", audit)
	}

	return runErr
}

// discoverItems lists open items under label and classifies each into a
// PendingItem ready for the scheduler's queue.
func discoverItems(ctx context.Context, t tracker.Tracker, classifier *domain.Classifier, label string) ([]scheduler.PendingItem, error) {
	trackerItems, err := t.ListByLabel(ctx, label)
	if err != nil {
		return nil, err
	}

	out := make([]scheduler.PendingItem, 0, len(trackerItems))
	for _, ti := range trackerItems {
		d := classifier.Classify(domain.Item{Labels: ti.Labels, Title: ti.Title})
		out = append(out, scheduler.PendingItem{
			ID:     ti.ID,
			Number: ti.Number,
			Title:  ti.Title,
			Body:   ti.Body,
			Labels: ti.Labels,
			Domain: d,
		})
	}
	return out, nil
}
