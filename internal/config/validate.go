package config

import "fmt"

// Validate checks a resolved Config for internal consistency. It is
// called by Load but exported so the `foreman doctor` command can run it
// against an already-loaded config without re-reading the file.
func Validate(cfg *Config) error {
	if cfg.WindowSize <= 0 {
		return fmt.Errorf("config: window_size must be positive, got %d", cfg.WindowSize)
	}
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("config: max_attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.TargetBranch == "" {
		return fmt.Errorf("config: target_branch must not be empty")
	}
	if cfg.WorktreeBasePath == "" {
		return fmt.Errorf("config: worktree_base_path must not be empty")
	}
	if len(cfg.Engines) == 0 {
		return fmt.Errorf("config: at least one engine must be configured")
	}
	seen := make(map[string]bool, len(cfg.Engines))
	for _, e := range cfg.Engines {
		if e.Name == "" {
			return fmt.Errorf("config: engine entry missing name")
		}
		if seen[e.Name] {
			return fmt.Errorf("config: duplicate engine name %q", e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}
