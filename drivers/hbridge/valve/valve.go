// Package valve drives a motorised two-wire valve through an H-bridge.
// Opening drives the bridge one way, closing the other; the valve reports
// its new state only once the configured switching time has elapsed.
package valve

import (
	"hbridge-go/drivers/hbridge"
	"hbridge-go/x/timex"
)

// DefaultSwitchingTimeMs suits slow geared actuators.
const DefaultSwitchingTimeMs = 15000

// Bridge is the part of *hbridge.HBridge a valve needs.
type Bridge interface {
	SetState(mode hbridge.Mode, duty float32)
	Tick()
}

type Config struct {
	SwitchingTimeMs    uint32 // 0 = DefaultSwitchingTimeMs
	Restore            RestoreMode
	Invert             bool // swap the drive directions
	ReleaseAfterSwitch bool // set the bridge Off once switched
}

type Valve struct {
	br  Bridge
	clk timex.Clock
	cfg Config

	state     bool // last published state
	target    bool
	switching bool
	deadline  uint32

	// Recall returns the last known state, if the caller kept one.
	Recall func() (state, ok bool)
	// OnChange is called from Tick when a switch completes.
	OnChange func(on bool)
}

func New(br Bridge, clk timex.Clock, cfg Config) *Valve {
	if cfg.SwitchingTimeMs == 0 {
		cfg.SwitchingTimeMs = DefaultSwitchingTimeMs
	}
	if clk == nil {
		clk = timex.NewMonotonic()
	}
	return &Valve{br: br, clk: clk, cfg: cfg}
}

// Setup writes the initial state chosen by the restore mode.
func (v *Valve) Setup() {
	var recalled, ok bool
	if v.Recall != nil {
		recalled, ok = v.Recall()
	}
	on := v.cfg.Restore.initial(recalled, ok)
	println("[valve] setup restore", v.cfg.Restore.String(), "initial", on)
	v.Write(on)
}

// Write starts switching to on, replacing any switch in progress.
func (v *Valve) Write(on bool) {
	mode := hbridge.ModeDirectionA
	if on == v.cfg.Invert {
		mode = hbridge.ModeDirectionB
	}
	v.br.SetState(mode, 1)
	v.target = on
	v.switching = true
	v.deadline = v.clk.Millis() + v.cfg.SwitchingTimeMs
}

// Tick steps the bridge and completes a pending switch once its time is up.
func (v *Valve) Tick() {
	v.br.Tick()
	if !v.switching || !timex.Reached(v.clk.Millis(), v.deadline) {
		return
	}
	v.switching = false
	v.state = v.target
	if v.cfg.ReleaseAfterSwitch {
		v.br.SetState(hbridge.ModeOff, 0)
	}
	if v.OnChange != nil {
		v.OnChange(v.state)
	}
}

func (v *Valve) State() bool     { return v.state }
func (v *Valve) Target() bool    { return v.target }
func (v *Valve) Switching() bool { return v.switching }
func (v *Valve) Config() Config  { return v.cfg }
