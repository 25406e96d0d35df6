package hbridge

import "strings"

// Mode is the discrete driving mode of the bridge.
type Mode uint8

const (
	ModeOff Mode = iota
	ModeDirectionA
	ModeDirectionB
	ModeShort
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeDirectionA:
		return "direction_a"
	case ModeDirectionB:
		return "direction_b"
	case ModeShort:
		return "short"
	default:
		return "unknown"
	}
}

// ParseMode accepts the String() forms, case-insensitively, plus the short
// aliases "a" and "b".
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return ModeOff, true
	case "direction_a", "a":
		return ModeDirectionA, true
	case "direction_b", "b":
		return ModeDirectionB, true
	case "short", "brake":
		return ModeShort, true
	}
	return ModeOff, false
}

// DecayMode selects how the idle half of the bridge is held while the
// other half carries the duty cycle.
type DecayMode uint8

const (
	DecaySlow DecayMode = iota // idle side held high (brake-style)
	DecayFast                  // idle side released (coast-style)
)

func (d DecayMode) String() string {
	if d == DecayFast {
		return "fast"
	}
	return "slow"
}

func ParseDecayMode(s string) (DecayMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slow", "":
		return DecaySlow, true
	case "fast":
		return DecayFast, true
	}
	return DecaySlow, false
}

// Phase is the transition engine's current step.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseShortingBuildup
	PhaseFullShort
	PhaseDutyTransitioning
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseShortingBuildup:
		return "shorting_buildup"
	case PhaseFullShort:
		return "full_short"
	case PhaseDutyTransitioning:
		return "duty_transitioning"
	default:
		return "unknown"
	}
}

// relativeOf maps a discrete mode/duty to the signed duty it represents.
func relativeOf(m Mode, duty float32) float32 {
	switch m {
	case ModeDirectionA:
		return -duty
	case ModeDirectionB:
		return duty
	default:
		return 0
	}
}
