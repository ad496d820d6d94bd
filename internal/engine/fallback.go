package engine

import (
	"context"
	"fmt"
)

// SwitchObserver is notified whenever the fallback chain abandons one
// engine for the next alternate.
type SwitchObserver func(from, to string, reason ErrorType)

// Chain runs a primary engine and falls back to ordered alternates when
// the primary fails with a retryable classified error (§4.D Fallback
// Chain). Validation failures and "stuck" results are NOT fallback
// triggers here — the scheduler's own retry policy handles those.
type Chain struct {
	engines  []*Engine
	observer SwitchObserver
}

// NewChain builds a fallback chain from primary followed by alternates, in
// the order they should be tried.
func NewChain(primary *Engine, alternates []*Engine, observer SwitchObserver) *Chain {
	return &Chain{engines: append([]*Engine{primary}, alternates...), observer: observer}
}

// retryable reports whether an ErrorType should trigger a fallback switch
// to the next engine, rather than propagating to the scheduler's retry.
func retryable(t ErrorType) bool {
	switch t {
	case ErrorRateLimit, ErrorCrash:
		return true
	default:
		return false
	}
}

// Invoke runs req against the chain's engines in order, switching to the
// next alternate whenever the current one fails with a retryable error.
// An engine killed mid-execution aborts the whole chain immediately.
func (c *Chain) Invoke(ctx context.Context, req Request) (Result, error) {
	var last Result
	var lastErr error

	for i, eng := range c.engines {
		res, err := eng.Invoke(ctx, req)
		if err == nil && res.Success {
			return res, nil
		}

		last, lastErr = res, err

		if eng.killedDuring() {
			return res, fmt.Errorf("engine %s: killed mid-execution, aborting fallback chain: %w", eng.Name(), err)
		}

		if !retryable(res.ErrorType) {
			return res, err
		}

		if i+1 < len(c.engines) {
			next := c.engines[i+1]
			if c.observer != nil {
				c.observer(eng.Name(), next.Name(), res.ErrorType)
			}
		}
	}

	return last, lastErr
}

// killedDuring reports whether the engine's most recent invocation ended
// because Kill was called on it.
func (e *Engine) killedDuring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killed
}

// KillAll kills every engine in the chain. Only one engine is ever
// actually running at a time, but Kill is idempotent and safe on an
// engine that never started or has already exited, so the scheduler can
// call this without knowing which engine in the chain is currently active.
func (c *Chain) KillAll() {
	for _, eng := range c.engines {
		_ = eng.Kill()
	}
}
