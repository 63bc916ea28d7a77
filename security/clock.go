package security

import (
	"sync"
	"time"
)

// Clock provides time operations (injectable for testing)
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using actual system time
type SystemClock struct{}

// Now returns the current system time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock implements Clock with manual time control (tests only)
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewManualClock creates a manual clock starting at the given time
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{current: start}
}

// Now returns the manual current time
func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance manually advances the clock by duration d
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}
