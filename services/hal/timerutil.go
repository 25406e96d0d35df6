// services/hal/timerutil.go
package hal

import "time"

// tickPeriod converts a configured tick_ms into the engine step period.
func tickPeriod(ms uint32) time.Duration {
	if ms == 0 {
		return DefaultTick
	}
	return time.Duration(ms) * time.Millisecond
}

// resetTimer stops, drains and re-arms t.
func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

// stopTimer leaves t stopped with an empty channel.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		drainTimer(t)
	}
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
