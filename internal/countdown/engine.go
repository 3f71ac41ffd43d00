// Package countdown provides the per-attempt timer primitive and the tick
// sources that drive it.
package countdown

import "sync"

// Engine counts down whole seconds. It does not own a clock: every call to
// Tick advances it by one second, so the same engine can be driven by a wall
// clock ticker, a UI loop or a test feeding synthetic time.
type Engine struct {
	mu        sync.Mutex
	remaining int
	running   bool
	expired   bool
}

// NewAt returns a stopped engine showing seconds remaining. Start still
// decides the value the countdown runs from.
func NewAt(seconds int) *Engine {
	if seconds < 0 {
		seconds = 0
	}
	return &Engine{remaining: seconds}
}

// Start begins counting down from seconds and reports whether this call
// started the engine. Starting a running or expired engine is a no-op.
// Starting with zero seconds expires immediately.
func (e *Engine) Start(seconds int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running || e.expired {
		return false
	}
	if seconds < 0 {
		seconds = 0
	}
	e.remaining = seconds
	e.running = true
	if e.remaining == 0 {
		e.expireLocked()
	}
	return true
}

// Stop halts the countdown, keeping the remaining time. Stopping a stopped
// engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
}

// Tick advances a running engine by one second. expired is true only for the
// tick that reaches zero; later ticks, and ticks on a stopped engine, change
// nothing.
func (e *Engine) Tick() (remaining int, expired bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return e.remaining, false
	}
	if e.remaining > 0 {
		e.remaining--
	}
	if e.remaining == 0 {
		e.expireLocked()
		return 0, true
	}
	return e.remaining, false
}

// Remaining returns the seconds left. Never negative.
func (e *Engine) Remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// Expired reports whether the engine has reached zero.
func (e *Engine) Expired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expired
}

func (e *Engine) expireLocked() {
	e.running = false
	e.expired = true
}
