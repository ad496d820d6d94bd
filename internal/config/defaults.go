package config

import "time"

const (
	DefaultTargetBranch     = "main"
	DefaultWindowSize       = 4
	DefaultMaxAttempts      = 3
	DefaultWorktreeBasePath = ".foreman/worktrees/"
	DefaultEngineTimeout    = 30 * time.Minute
	DefaultEngineKillGrace  = 5 * time.Second
	DefaultReaperInterval   = 5 * time.Minute
	DefaultHardSlotTimeout  = 45 * time.Minute
	DefaultWarnThreshold    = 15 * time.Minute
	DefaultRateLimitBackoff = 30 * time.Second
	DefaultSupervisorTick   = 1 * time.Second
	DefaultMaxReopens       = 3
	DefaultRunLabel         = "default"
	DefaultStorePath        = ".foreman/state.db"
	DefaultLogLevel         = "info"
)

// DefaultConfig returns a Config with all default values applied. Engines
// defaults to a two-entry chain: claude as primary, codex as fallback;
// .foreman.yaml may override it with another order.
func DefaultConfig() *Config {
	return &Config{
		TargetBranch:     DefaultTargetBranch,
		WindowSize:       DefaultWindowSize,
		MaxAttempts:      DefaultMaxAttempts,
		WorktreeBasePath: DefaultWorktreeBasePath,
		Engines: []EngineConfig{
			{Name: "claude", Command: "claude"},
			{Name: "codex", Command: "codex"},
		},
		EngineTimeout:    DefaultEngineTimeout,
		EngineKillGrace:  DefaultEngineKillGrace,
		ReaperInterval:   DefaultReaperInterval,
		HardSlotTimeout:  DefaultHardSlotTimeout,
		WarnThreshold:    DefaultWarnThreshold,
		RateLimitBackoff: DefaultRateLimitBackoff,
		SupervisorTick:   DefaultSupervisorTick,
		MaxReopens:       DefaultMaxReopens,
		RunLabel:         DefaultRunLabel,
		StorePath:        DefaultStorePath,
		LogLevel:         DefaultLogLevel,
	}
}
