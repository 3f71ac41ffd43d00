package countdown

import (
	"sync"
	"time"
)

// Ticker delivers one value per elapsed second.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTicker returns the ticker constructor used for a given interval.
// Passing zero uses one second.
func NewTicker(interval time.Duration) func() Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return func() Ticker {
		return &wallTicker{t: time.NewTicker(interval)}
	}
}

type wallTicker struct {
	t *time.Ticker
}

func (w *wallTicker) C() <-chan time.Time { return w.t.C }

func (w *wallTicker) Stop() { w.t.Stop() }

// ManualTicker is fired by hand. Fire blocks until the tick is received, so a
// caller knows the consumer has started handling it.
type ManualTicker struct {
	ch      chan time.Time
	once    sync.Once
	stopped chan struct{}
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }

// Stop marks the ticker stopped; pending and later Fire calls return false.
func (m *ManualTicker) Stop() {
	m.once.Do(func() { close(m.stopped) })
}

// Fire delivers one tick and reports whether it was consumed before the
// ticker stopped or the timeout passed.
func (m *ManualTicker) Fire(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m.ch <- time.Now():
		return true
	case <-m.stopped:
		return false
	case <-timer.C:
		return false
	}
}

// Stopped is closed once the consumer stops the ticker.
func (m *ManualTicker) Stopped() <-chan struct{} {
	return m.stopped
}
