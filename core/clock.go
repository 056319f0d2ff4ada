package core

import "time"

// TimeLayout is the layout of every timestamp the store writes.
const TimeLayout = time.RFC3339Nano

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant. Advance moves it forward.
type FixedClock struct {
	At time.Time
}

func (clock *FixedClock) Now() time.Time {
	return clock.At.UTC()
}

func (clock *FixedClock) Advance(d time.Duration) {
	clock.At = clock.At.Add(d)
}

// FormatTime renders t the way the store persists timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
