package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foreman-run/foreman/internal/config"
	"github.com/foreman-run/foreman/internal/guardrails"
)

// DoctorOptions holds flags for the doctor command.
type DoctorOptions struct {
	ConfigPath string
}

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd(app *App) *cobra.Command {
	opts := DoctorOptions{ConfigPath: ".foreman.yaml"}

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run pre-flight guardrail checks without starting a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunDoctor(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", ".foreman.yaml", "path to the run's configuration file")

	return cmd
}

// RunDoctor validates configuration and checks repository preconditions
// a `run` would need, without touching the tracker or starting any
// engine subprocess.
func (a *App) RunDoctor(ctx context.Context, opts DoctorOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("foreman doctor: load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stdout, "✗ config: %v\n", err)
		return err
	}
	fmt.Fprintln(os.Stdout, "✓ config is valid")

	repoRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("foreman doctor: determine repo root: %w", err)
	}

	result, err := guardrails.Preflight(ctx, repoRoot, cfg.TargetBranch)
	if err != nil {
		fmt.Fprintf(os.Stdout, "✗ preflight: %v\n", err)
		return err
	}

	if len(result.Warnings) == 0 {
		fmt.Fprintln(os.Stdout, "✓ preflight checks passed")
		return nil
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stdout, "! %s\n", w)
	}
	return nil
}
