// Package hbridge drives a dual half-bridge output (two complementary
// channels plus an optional enable) as a signed duty cycle in [-1, 1], -1
// being full DirectionA and +1 full DirectionB.
//
// Changes are either instant (SetState) or planned (TransitionTo) and then
// stepped by Tick. A planned reversal can stop and short the load before
// driving the other way. An HBridge is not safe for concurrent use: the
// request methods and Tick must be called from one goroutine.
package hbridge

import (
	"hbridge-go/errcode"
	"hbridge-go/x/timex"
)

// Debug enables println tracing of planning and phase changes.
var Debug = false

// Config is fixed for the life of the bridge. The rate and durations are the
// defaults used by Transition.
type Config struct {
	Decay          DecayMode
	RatePerMs      float32
	ShortBuildupMs uint32
	FullShortMs    uint32
}

type HBridge struct {
	a, b   Channel
	enable Channel // optional
	decay  DecayMode
	clk    timex.Clock
	cfg    Config

	// last write
	mode     Mode
	duty     float32
	relative float32
	writes   uint64

	// engine
	plan       plan
	state      phaseState
	phaseStart uint32
	lastStep   uint32
}

// New builds a bridge over channels a and b. enable may be nil. A nil clock
// uses the process monotonic clock.
func New(cfg Config, a, b, enable Channel, clk timex.Clock) (*HBridge, error) {
	if a == nil || b == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "hbridge.New", Msg: "channels a and b are required"}
	}
	if clk == nil {
		clk = timex.NewMonotonic()
	}
	return &HBridge{
		a:      a,
		b:      b,
		enable: enable,
		decay:  cfg.Decay,
		clk:    clk,
		cfg:    cfg,
	}, nil
}

// Init puts the outputs in a known state: always Off.
func (h *HBridge) Init() { h.SetState(ModeOff, 0) }

// SetState cancels any transition and writes mode/duty at once.
func (h *HBridge) SetState(mode Mode, duty float32) {
	if Debug {
		println("[hbridge] set", mode.String(), "duty", duty)
	}
	h.state = nil
	h.setOutputState(mode, duty)
}

// Transition is TransitionTo with the configured rate and shorting times.
func (h *HBridge) Transition(mode Mode, duty float32) {
	h.TransitionTo(mode, duty, h.cfg.RatePerMs, h.cfg.ShortBuildupMs, h.cfg.FullShortMs)
}

// Brake shorts the load at full strength immediately.
func (h *HBridge) Brake() { h.SetState(ModeShort, 1) }

func (h *HBridge) Config() Config        { return h.cfg }
func (h *HBridge) Mode() Mode            { return h.mode }
func (h *HBridge) Duty() float32         { return h.duty }
func (h *HBridge) RelativeDuty() float32 { return h.relative }
func (h *HBridge) HasEnable() bool       { return h.enable != nil }
func (h *HBridge) Busy() bool            { return h.state != nil }

// Phase reports the engine's current phase.
func (h *HBridge) Phase() Phase {
	if h.state == nil {
		return PhaseIdle
	}
	return h.state.phase()
}

// Status is a point-in-time snapshot of the bridge.
type Status struct {
	Mode     Mode
	Duty     float32
	Relative float32
	Phase    Phase
	Writes   uint64 // output writes since construction
}

func (h *HBridge) Status() Status {
	return Status{
		Mode:     h.mode,
		Duty:     h.duty,
		Relative: h.relative,
		Phase:    h.Phase(),
		Writes:   h.writes,
	}
}
