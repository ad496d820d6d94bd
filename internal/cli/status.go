package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foreman-run/foreman/internal/config"
	"github.com/foreman-run/foreman/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	Label      string
	ConfigPath string
	JSON       bool
}

// NewStatusCmd creates the status command.
func NewStatusCmd(app *App) *cobra.Command {
	opts := StatusOptions{ConfigPath: ".foreman.yaml"}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the most recent run's slot status for a label",
		Long:  `Display the state of every slot in the most recent run recorded for a label.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.ShowStatus(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Label, "label", "", "tracker label identifying the run (required)")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", ".foreman.yaml", "path to the run's configuration file")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "output as JSON instead of formatted text")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}

// ShowStatus displays the most recent run's slot state for opts.Label.
func (a *App) ShowStatus(opts StatusOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("foreman status: load config: %w", err)
	}

	runStore, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("foreman status: open state store: %w", err)
	}
	defer runStore.Close()

	run, err := runStore.LatestRunForLabel(opts.Label)
	if err != nil {
		return fmt.Errorf("foreman status: find latest run: %w", err)
	}
	if run == nil {
		fmt.Fprintf(os.Stderr, "no run found for label %q\n", opts.Label)
		return nil
	}

	slots, err := runStore.ListSlots(run.ID)
	if err != nil {
		return fmt.Errorf("foreman status: list slots: %w", err)
	}

	if opts.JSON {
		return outputJSON(os.Stdout, run, slots)
	}

	dcfg := DisplayConfig{Width: 20, UseColor: false, ShowTimestamps: false}
	fmt.Fprint(os.Stdout, formatStatusOutput(run, slots, dcfg))
	return nil
}

// formatStatusOutput produces the full status display for a run's slots.
func formatStatusOutput(run *store.Run, slots []*store.SlotRecord, cfg DisplayConfig) string {
	var result strings.Builder

	separator := strings.Repeat("═", 63)
	result.WriteString(separator + "\n")
	fmt.Fprintf(&result, "Run %s | label %s | target %s\n", run.ID, run.Label, run.TargetBranch)
	fmt.Fprintf(&result, "Window: %d | Status: %s\n", run.WindowSize, run.Status)
	result.WriteString(separator + "\n\n")

	stats := calculateSlotStats(slots)
	if len(slots) > 0 {
		progress := float64(stats.Complete) / float64(stats.Total)
		result.WriteString(RenderProgressBar(progress, cfg.Width))
		result.WriteString("\n\n")
	}

	for _, slot := range slots {
		result.WriteString(FormatSlotLine(slot.Number, slot.Title, slot.Domain, slot.Status, slot.Attempts))
		if slot.Status == "failed" && slot.LastError != "" {
			result.WriteString("\n     " + slot.LastError)
		}
		result.WriteString("\n")
	}

	thinSeparator := strings.Repeat("─", 63)
	result.WriteString(thinSeparator + "\n")
	fmt.Fprintf(&result, " Slots: %d | Done: %d | Running: %d | Pending: %d | Failed: %d\n",
		stats.Total, stats.Complete, stats.InProgress, stats.Pending, stats.Failed)
	result.WriteString(separator + "\n")

	return result.String()
}

// SlotStats summarizes a run's slots by status.
type SlotStats struct {
	Total      int
	Complete   int
	InProgress int
	Pending    int
	Failed     int
}

func calculateSlotStats(slots []*store.SlotRecord) SlotStats {
	stats := SlotStats{Total: len(slots)}
	for _, slot := range slots {
		switch slot.Status {
		case "done":
			stats.Complete++
		case "running", "merging":
			stats.InProgress++
		case "failed":
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	return stats
}

// statusJSON is the JSON shape emitted by --json.
type statusJSON struct {
	Run   *store.Run          `json:"run"`
	Slots []*store.SlotRecord `json:"slots"`
}

func outputJSON(w io.Writer, run *store.Run, slots []*store.SlotRecord) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(statusJSON{Run: run, Slots: slots})
}
