// Package config loads foreman's run configuration from layered sources:
// package defaults, a `.foreman.yaml` file, environment variable
// overrides, and finally CLI flags (applied by the caller after Load).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig describes one entry in the fallback chain.
type EngineConfig struct {
	Name    string   `yaml:"name"`    // e.g. "claude", "codex"
	Command string   `yaml:"command"` // binary path, defaults to Name
	Args    []string `yaml:"args,omitempty"`
	PTY     bool     `yaml:"pty,omitempty"` // allocate a pseudo-terminal for this engine's subprocess
}

// DomainRule maps work-item labels/title patterns to a domain name used
// by the scheduler's compatibility check.
type DomainRule struct {
	Domain       string   `yaml:"domain"`
	Labels       []string `yaml:"labels,omitempty"`
	TitlePattern string   `yaml:"title_pattern,omitempty"`
}

// TrackerConfig configures the upstream work-item tracker client.
type TrackerConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Label string `yaml:"label"`
}

// Config is foreman's fully-resolved run configuration.
type Config struct {
	TargetBranch string `yaml:"target_branch"`

	WindowSize  int `yaml:"window_size"`  // max concurrently open slots
	MaxAttempts int `yaml:"max_attempts"` // per-item attempt budget

	WorktreeBasePath string `yaml:"worktree_base_path"`

	Engines []EngineConfig `yaml:"engines"`
	Domains []DomainRule   `yaml:"domains"`
	Tracker TrackerConfig  `yaml:"tracker"`

	EngineTimeout   time.Duration `yaml:"engine_timeout"`
	EngineKillGrace time.Duration `yaml:"engine_kill_grace"`

	ReaperInterval time.Duration `yaml:"reaper_interval"`

	// HardSlotTimeout kills a running slot's engine if its attempt has run
	// longer than this (§4.H supervisor tick).
	HardSlotTimeout time.Duration `yaml:"hard_slot_timeout"`
	// WarnThreshold emits a warning event once a running slot exceeds this
	// age, then once per minute thereafter.
	WarnThreshold time.Duration `yaml:"warn_threshold"`
	// RateLimitBackoff is the cancellable sleep between a rate-limited
	// attempt and its retry.
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"`
	// SupervisorTick is how often the scheduler's supervisor loop checks
	// running slots for timeout/warn conditions and attempts fill_slots.
	SupervisorTick time.Duration `yaml:"supervisor_tick"`

	// MaxReopens is the loop-detector threshold: an item closed-then-reopened
	// more than this many times is blocked before it ever enters a slot.
	MaxReopens int `yaml:"max_reopens"`

	RunLabel string `yaml:"run_label"` // run-lock / conflicting-instance label

	StorePath string `yaml:"store_path"`
	LogLevel  string `yaml:"log_level"`

	// DashboardAddr, if non-empty, starts the web pusher's HTTP+WebSocket
	// dashboard server (internal/web) bound to this address alongside the
	// run's TUI. Empty disables it.
	DashboardAddr string `yaml:"dashboard_addr"`
}

// Load layers configuration defaults -> ~/.foreman/config.yaml -> a
// repo-local `.foreman.yaml` (if present) -> environment variable
// overrides. A missing repo-local file is not an error; the defaults
// (plus any global/env overrides) are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if global, err := LoadGlobalConfig(); err == nil && len(global.DefaultEngines) > 0 {
		cfg.Engines = global.DefaultEngines
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// use defaults
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
