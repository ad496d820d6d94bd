package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig holds user-wide foreman configuration from
// ~/.foreman/config.yaml, layered beneath any repo-local .foreman.yaml.
type GlobalConfig struct {
	// DefaultEngines overrides DefaultConfig's engine fallback chain for
	// every repo this user runs foreman in, unless a repo-local
	// .foreman.yaml specifies its own Engines.
	DefaultEngines []EngineConfig `yaml:"default_engines"`
}

// DefaultGlobalConfig returns a GlobalConfig with default values.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{}
}

// LoadGlobalConfig loads global configuration from ~/.foreman/config.yaml.
// If the file doesn't exist, returns default configuration.
func LoadGlobalConfig() (*GlobalConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultGlobalConfig(), nil
	}
	return LoadGlobalConfigFromPath(filepath.Join(homeDir, ".foreman", "config.yaml"))
}

// LoadGlobalConfigFromPath loads global configuration from a specific path.
func LoadGlobalConfigFromPath(path string) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureGlobalConfigDir creates the ~/.foreman directory if it doesn't exist.
func EnsureGlobalConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(homeDir, ".foreman")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return dir, nil
}
