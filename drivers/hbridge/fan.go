package hbridge

// DefaultSpeedCount is the number of discrete speed levels when none is
// configured.
const DefaultSpeedCount = 100

// SpeedToDuty maps level in [0, count] to a duty in [0, 1]. Out of range
// levels are clamped; count <= 0 uses DefaultSpeedCount.
func SpeedToDuty(level, count int) float32 {
	if count <= 0 {
		count = DefaultSpeedCount
	}
	if level <= 0 {
		return 0
	}
	if level >= count {
		return 1
	}
	return float32(level) / float32(count)
}

// DutyToSpeed is the inverse of SpeedToDuty, rounded to the nearest level.
func DutyToSpeed(duty float32, count int) int {
	if count <= 0 {
		count = DefaultSpeedCount
	}
	if duty <= 0 {
		return 0
	}
	if duty >= 1 {
		return count
	}
	return int(duty*float32(count) + 0.5)
}

// SetSpeed transitions to a fan-style speed level. Forward runs in
// DirectionB, reverse in DirectionA; level 0 transitions to Off.
func (h *HBridge) SetSpeed(level, count int, reverse bool) {
	duty := SpeedToDuty(level, count)
	mode := ModeDirectionB
	if reverse {
		mode = ModeDirectionA
	}
	if duty == 0 {
		mode = ModeOff
	}
	h.Transition(mode, duty)
}
