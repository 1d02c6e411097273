package core

import "time"

// Clock is the time source every loop and enforcement check runs on, so
// tests can drive warning countdowns and schedule boundaries directly.
type Clock interface {
	Now() time.Time
	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) *time.Ticker
}

// RealClock delegates to the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// MockClock is a settable clock for tests. CurrentTime only moves when a
// test calls Advance or Set.
type MockClock struct {
	CurrentTime time.Time
	ticker      *time.Ticker
}

func (m *MockClock) Now() time.Time {
	return m.CurrentTime
}

// NewTicker returns one shared real ticker; tests that need a tick to land
// should call the loop's check entry points instead of waiting on it.
func (m *MockClock) NewTicker(d time.Duration) *time.Ticker {
	if m.ticker == nil {
		m.ticker = time.NewTicker(d)
	}
	return m.ticker
}

// Advance moves the mocked time forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}

// Set jumps the mocked time to t.
func (m *MockClock) Set(t time.Time) {
	m.CurrentTime = t
}

var (
	_ Clock = RealClock{}
	_ Clock = (*MockClock)(nil)
)
