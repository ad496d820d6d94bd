package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// VersionInfo carries build-time version metadata into the version command.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies
type App struct {
	// Root command
	rootCmd *cobra.Command

	// Runtime state
	verbose  bool
	cancel   context.CancelFunc
	shutdown chan struct{}

	versionInfo VersionInfo
}

// New creates a new CLI application
func New() *App {
	app := &App{
		shutdown: make(chan struct{}),
	}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = VersionInfo{Version: version, Commit: commit, Date: date}
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "foreman",
		Short: "Parallel AI engineering task executor",
		Long: `foreman runs a bounded pool of external AI engine subprocesses in
parallel, each isolated in its own git workspace, and integrates
successful results back into a shared mainline branch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")

	a.rootCmd.AddCommand(NewRunCmd(a))
	a.rootCmd.AddCommand(NewStatusCmd(a))
	a.rootCmd.AddCommand(NewReapCmd(a))
	a.rootCmd.AddCommand(NewDoctorCmd(a))
	a.rootCmd.AddCommand(NewVersionCmd(a))
}
