package config

import (
	"os"
	"strconv"
)

// envOverrides maps environment variables to config field setters,
// applied after the YAML file so operators can override a single field
// without editing .foreman.yaml (e.g. in CI).
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{envVar: "FOREMAN_TARGET_BRANCH", apply: func(c *Config, v string) { c.TargetBranch = v }},
	{envVar: "FOREMAN_WORKTREE_BASE", apply: func(c *Config, v string) { c.WorktreeBasePath = v }},
	{envVar: "FOREMAN_LOG_LEVEL", apply: func(c *Config, v string) { c.LogLevel = v }},
	{envVar: "FOREMAN_STORE_PATH", apply: func(c *Config, v string) { c.StorePath = v }},
	{envVar: "FOREMAN_WINDOW_SIZE", apply: func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.WindowSize = n
		}
	}},
	{envVar: "FOREMAN_MAX_ATTEMPTS", apply: func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}},
	{envVar: "FOREMAN_TRACKER_OWNER", apply: func(c *Config, v string) { c.Tracker.Owner = v }},
	{envVar: "FOREMAN_TRACKER_REPO", apply: func(c *Config, v string) { c.Tracker.Repo = v }},
	{envVar: "FOREMAN_TRACKER_LABEL", apply: func(c *Config, v string) { c.Tracker.Label = v }},
	{envVar: "FOREMAN_RUN_LABEL", apply: func(c *Config, v string) { c.RunLabel = v }},
	{envVar: "FOREMAN_DASHBOARD_ADDR", apply: func(c *Config, v string) { c.DashboardAddr = v }},
}

// applyEnvOverrides modifies cfg in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
