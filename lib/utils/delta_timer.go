package utils

import "time"

// DeltaTimer measures the time between successive ticks
type DeltaTimer struct {
	time.Time
}

// Next records a tick and returns the time since the previous one, or 0
// for the first tick
func (d *DeltaTimer) Next() time.Duration {
	// one timestamp per tick so the deltas add up to wall time
	now := time.Now()

	defer d.Set(now)
	if d.IsZero() {
		return 0
	}
	return now.Sub(d.Time)
}

// Since is the time from the last tick until now without recording a
// tick, or 0 before the first one
func (d *DeltaTimer) Since(now time.Time) time.Duration {
	if d.IsZero() {
		return 0
	}
	return now.Sub(d.Time)
}

func (d *DeltaTimer) Set(t time.Time) {
	d.Time = t
}
