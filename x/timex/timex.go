package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Clock is a monotonic millisecond counter. It wraps at 2^32; callers
// compare instants with unsigned subtraction.
type Clock interface {
	Millis() uint32
}

type monotonic struct{ start time.Time }

// NewMonotonic returns a Clock counting milliseconds since construction.
func NewMonotonic() Clock { return monotonic{start: time.Now()} }

func (m monotonic) Millis() uint32 { return uint32(time.Since(m.start).Milliseconds()) }

// ManualClock only moves when told to. Tests and simulations use it to step
// time deterministically.
type ManualClock struct{ ms uint32 }

func (c *ManualClock) Millis() uint32           { return c.ms }
func (c *ManualClock) Set(ms uint32)            { c.ms = ms }
func (c *ManualClock) Advance(ms uint32) uint32 { c.ms += ms; return c.ms }

// Reached reports whether now is at or past deadline, tolerating wrap.
func Reached(now, deadline uint32) bool { return int32(now-deadline) >= 0 }
