package hbridge

import "hbridge-go/x/mathx"

// Channel is one PWM-capable output. Level is a fraction in [0,1].
type Channel interface {
	SetLevel(level float32)
}

// setOutputState is the only path that touches the channels.
// duty <= 0 forces Off; duty > 1 is capped. Short writes the raw duty.
func (h *HBridge) setOutputState(mode Mode, duty float32) {
	newMode, newDuty := mode, duty
	if newDuty <= 0 {
		newMode, newDuty = ModeOff, 0
	} else if newDuty > 1 {
		newDuty = 1
	}

	switch newMode {
	case ModeDirectionA:
		if h.decay == DecaySlow {
			h.b.SetLevel(1 - newDuty)
			h.a.SetLevel(1)
		} else {
			h.b.SetLevel(0)
			h.a.SetLevel(newDuty)
		}
		h.setEnable(1)
		h.relative = -newDuty

	case ModeDirectionB:
		if h.decay == DecaySlow {
			h.a.SetLevel(1 - newDuty)
			h.b.SetLevel(1)
		} else {
			h.a.SetLevel(0)
			h.b.SetLevel(newDuty)
		}
		h.setEnable(1)
		h.relative = newDuty

	case ModeShort:
		h.a.SetLevel(duty)
		h.b.SetLevel(duty)
		h.setEnable(1)
		h.relative = 0

	default:
		newMode = ModeOff
		h.setEnable(0)
		h.a.SetLevel(0)
		h.b.SetLevel(0)
		h.relative = 0
	}
	h.mode = newMode
	h.duty = newDuty
	h.writes++
}

// setOutputByRelativeDuty is used only by the ramp phase.
func (h *HBridge) setOutputByRelativeDuty(x float32) {
	x = mathx.Clamp(x, -1, 1)
	switch {
	case x == 0:
		h.setOutputState(ModeOff, 0)
	case x < 0:
		h.setOutputState(ModeDirectionA, -x)
	default:
		h.setOutputState(ModeDirectionB, x)
	}
}

func (h *HBridge) setEnable(level float32) {
	if h.enable != nil {
		h.enable.SetLevel(level)
	}
}
