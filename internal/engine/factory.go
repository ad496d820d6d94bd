package engine

import (
	"time"

	"github.com/foreman-run/foreman/internal/config"
)

// FromConfig builds a fresh Engine from cfg. Callers should construct a new
// Engine (and Chain) per attempt rather than reusing one across
// invocations: once Kill is called an Engine is retired and every
// subsequent Invoke on it fails immediately.
func FromConfig(cfg config.EngineConfig) *Engine {
	command := cfg.Command
	if command == "" {
		command = cfg.Name
	}
	return New(cfg.Name, command, cfg.Args).WithPTY(cfg.PTY)
}

// ChainFromConfigs builds a fallback chain from an ordered list of engine
// configs: the first is the primary, the rest are alternates tried in
// order. grace overrides each engine's SIGTERM-to-SIGKILL wait if positive.
func ChainFromConfigs(cfgs []config.EngineConfig, grace time.Duration, observer SwitchObserver) *Chain {
	if len(cfgs) == 0 {
		return &Chain{}
	}
	primary := FromConfig(cfgs[0]).WithKillGrace(grace)
	alternates := make([]*Engine, 0, len(cfgs)-1)
	for _, cfg := range cfgs[1:] {
		alternates = append(alternates, FromConfig(cfg).WithKillGrace(grace))
	}
	return NewChain(primary, alternates, observer)
}
