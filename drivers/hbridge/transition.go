package hbridge

import (
	"hbridge-go/x/mathx"
)

// plan holds the targets of the transition in flight.
type plan struct {
	mode        Mode
	duty        float32 // unsigned target duty
	relative    float32 // signed target duty
	rate        float32 // signed ramp rate per ms; sign fixed at plan time
	buildupMs   uint32
	fullShortMs uint32
}

// phaseState is one of buildupPhase, fullShortPhase or rampPhase. A nil
// phaseState is Idle.
type phaseState interface {
	phase() Phase
}

type buildupPhase struct {
	acc  float32 // shorting duty accumulated so far
	rate float32 // shorting duty per ms
}

type fullShortPhase struct{}

type rampPhase struct {
	rate float32
}

func (*buildupPhase) phase() Phase   { return PhaseShortingBuildup }
func (*fullShortPhase) phase() Phase { return PhaseFullShort }
func (*rampPhase) phase() Phase      { return PhaseDutyTransitioning }

// TransitionTo plans a move to mode/duty. Relative duty changes at
// ratePerMs. When the move reverses direction (or stops from a driven state)
// and buildupMs or fullShortMs is non-zero, the bridge is first stopped and
// shorted: the short ramps up over buildupMs, then holds for fullShortMs.
//
// A move the ramp would cover in one step (rate >= remaining distance, or
// rate == 0) is applied instantly via SetState.
//
// Durations are unsigned; ratePerMs is expected to be non-negative and is
// used as given otherwise.
func (h *HBridge) TransitionTo(mode Mode, duty, ratePerMs float32, buildupMs, fullShortMs uint32) {
	p := plan{mode: mode, duty: duty, relative: relativeOf(mode, duty)}

	cur := h.relative
	crosses := ((cur > 0 && p.relative <= 0) || (cur < 0 && p.relative >= 0)) &&
		(buildupMs > 0 || fullShortMs > 0)

	var shortRate float32
	if crosses {
		p.buildupMs, p.fullShortMs = buildupMs, fullShortMs
		if buildupMs > 0 {
			if mode == ModeShort {
				shortRate = duty / float32(buildupMs)
			} else {
				shortRate = 1 / float32(buildupMs)
			}
		}
	}

	// Shorting ends at relative 0, so the ramp direction then follows the
	// target alone.
	p.rate = ratePerMs
	if crosses {
		if p.relative < 0 {
			p.rate = -ratePerMs
		}
	} else if p.relative < cur {
		p.rate = -ratePerMs
	}

	var next phaseState
	switch {
	case crosses && buildupMs > 0:
		h.setOutputState(ModeOff, 0)
		next = &buildupPhase{rate: shortRate}
	case crosses:
		h.setOutputState(ModeShort, 1)
		next = &fullShortPhase{}
	case ratePerMs != 0 && ratePerMs < mathx.Abs(cur-p.relative):
		next = &rampPhase{rate: p.rate}
	default:
		if Debug {
			println("[hbridge] transition omitted, setting state", mode.String())
		}
		h.SetState(mode, duty)
		return
	}

	now := h.clk.Millis()
	h.plan = p
	h.state = next
	h.phaseStart = now
	h.lastStep = now
	if Debug {
		println("[hbridge] transition", cur, "->", p.relative, "rate", p.rate,
			"buildup_ms", p.buildupMs, "short_rate", shortRate, "full_short_ms", p.fullShortMs)
	}
}

// TickAt advances the engine to nowMs. It is a no-op while Idle.
func (h *HBridge) TickAt(nowMs uint32) {
	if h.state == nil {
		return
	}
	inPhase := nowMs - h.phaseStart
	dt := float32(nowMs - h.lastStep)

	switch st := h.state.(type) {
	case *buildupPhase:
		st.acc += st.rate * dt
		h.setOutputState(ModeShort, st.acc)
		if inPhase > h.plan.buildupMs || (h.plan.mode == ModeShort && st.acc >= h.plan.duty) {
			switch {
			case h.plan.fullShortMs > 0:
				h.enter(&fullShortPhase{}, nowMs)
			case h.plan.mode == ModeShort:
				h.finish()
			default:
				h.enter(&rampPhase{rate: h.plan.rate}, nowMs)
			}
		}

	case *fullShortPhase:
		h.setOutputState(ModeShort, mathx.Abs(h.plan.relative))
		if inPhase > h.plan.fullShortMs {
			if h.plan.mode == ModeShort {
				h.finish()
			} else {
				h.enter(&rampPhase{rate: h.plan.rate}, nowMs)
			}
		}

	case *rampPhase:
		cand := h.relative + st.rate*dt
		done := false
		if st.rate >= 0 {
			if cand >= h.plan.relative {
				cand, done = h.plan.relative, true
			}
		} else if cand <= h.plan.relative {
			cand, done = h.plan.relative, true
		}
		h.setOutputByRelativeDuty(cand)
		if done {
			h.finish()
		}
	}

	h.lastStep = nowMs
}

// Tick advances the engine using the bridge's clock.
func (h *HBridge) Tick() { h.TickAt(h.clk.Millis()) }

func (h *HBridge) enter(next phaseState, nowMs uint32) {
	if Debug {
		println("[hbridge] phase", h.state.phase().String(), "->", next.phase().String())
	}
	h.state = next
	h.phaseStart = nowMs
}

// finish lands exactly on the requested mode/duty and returns to Idle.
func (h *HBridge) finish() {
	h.setOutputState(h.plan.mode, h.plan.duty)
	h.state = nil
	if Debug {
		println("[hbridge] transition done", h.mode.String())
	}
}
