package hbridge

import (
	"math"
	"math/rand"
	"testing"

	"hbridge-go/errcode"
	"hbridge-go/x/timex"
)

// ---- fakes ----

type recChan struct {
	name   string
	levels []float32
}

func (c *recChan) SetLevel(l float32) { c.levels = append(c.levels, l) }

func (c *recChan) last() float32 {
	if len(c.levels) == 0 {
		return -1
	}
	return c.levels[len(c.levels)-1]
}

type rig struct {
	h        *HBridge
	a, b, en *recChan
	clk      *timex.ManualClock
}

func newRig(t *testing.T, decay DecayMode, withEnable bool) *rig {
	t.Helper()
	r := &rig{a: &recChan{name: "a"}, b: &recChan{name: "b"}, clk: &timex.ManualClock{}}
	var en Channel
	if withEnable {
		r.en = &recChan{name: "en"}
		en = r.en
	}
	h, err := New(Config{Decay: decay, RatePerMs: 0.01}, r.a, r.b, en, r.clk)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Init()
	r.h = h
	return r
}

// step advances the clock by ms and ticks once.
func (r *rig) step(ms uint32) { r.h.TickAt(r.clk.Advance(ms)) }

func approx(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-4 }

// ---- output mapping ----

func TestSetState_OutputMapping(t *testing.T) {
	cases := []struct {
		name     string
		decay    DecayMode
		mode     Mode
		duty     float32
		wantA    float32
		wantB    float32
		wantEn   float32
		wantMode Mode
		wantRel  float32
	}{
		{"slow A", DecaySlow, ModeDirectionA, 0.3, 1, 0.7, 1, ModeDirectionA, -0.3},
		{"fast A", DecayFast, ModeDirectionA, 0.3, 0.3, 0, 1, ModeDirectionA, -0.3},
		{"slow B", DecaySlow, ModeDirectionB, 0.25, 0.75, 1, 1, ModeDirectionB, 0.25},
		{"fast B", DecayFast, ModeDirectionB, 0.25, 0, 0.25, 1, ModeDirectionB, 0.25},
		{"off", DecaySlow, ModeOff, 0.9, 0, 0, 0, ModeOff, 0},
		{"short", DecayFast, ModeShort, 0.4, 0.4, 0.4, 1, ModeShort, 0},
		{"zero duty forces off", DecaySlow, ModeDirectionB, 0, 0, 0, 0, ModeOff, 0},
		{"negative duty forces off", DecayFast, ModeShort, -0.5, 0, 0, 0, ModeOff, 0},
		{"duty capped", DecayFast, ModeDirectionA, 1.7, 1, 0, 1, ModeDirectionA, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(t, tc.decay, true)
			before := r.h.Status().Writes
			r.h.SetState(tc.mode, tc.duty)

			if got := r.h.Status().Writes - before; got != 1 {
				t.Fatalf("writes: want 1, got %d", got)
			}
			if !approx(r.a.last(), tc.wantA) || !approx(r.b.last(), tc.wantB) || !approx(r.en.last(), tc.wantEn) {
				t.Fatalf("levels a=%v b=%v en=%v; want %v %v %v",
					r.a.last(), r.b.last(), r.en.last(), tc.wantA, tc.wantB, tc.wantEn)
			}
			if r.h.Mode() != tc.wantMode {
				t.Fatalf("mode: want %v, got %v", tc.wantMode, r.h.Mode())
			}
			if !approx(r.h.RelativeDuty(), tc.wantRel) {
				t.Fatalf("relative: want %v, got %v", tc.wantRel, r.h.RelativeDuty())
			}
			if r.h.Phase() != PhaseIdle {
				t.Fatalf("phase: want idle, got %v", r.h.Phase())
			}
		})
	}
}

func TestShortWritesRawDuty(t *testing.T) {
	r := newRig(t, DecaySlow, false)
	r.h.SetState(ModeShort, 1.5)
	if r.a.last() != 1.5 || r.b.last() != 1.5 {
		t.Fatalf("short should write raw duty; a=%v b=%v", r.a.last(), r.b.last())
	}
	if r.h.Duty() != 1 || r.h.RelativeDuty() != 0 {
		t.Fatalf("duty=%v relative=%v", r.h.Duty(), r.h.RelativeDuty())
	}
}

func TestRelativePathClamps(t *testing.T) {
	r := newRig(t, DecayFast, false)
	r.h.setOutputByRelativeDuty(-3)
	if r.h.Mode() != ModeDirectionA || r.h.RelativeDuty() != -1 || r.a.last() != 1 {
		t.Fatalf("mode=%v rel=%v a=%v", r.h.Mode(), r.h.RelativeDuty(), r.a.last())
	}
	r.h.setOutputByRelativeDuty(0)
	if r.h.Mode() != ModeOff {
		t.Fatalf("zero should be off, got %v", r.h.Mode())
	}
	r.h.setOutputByRelativeDuty(2)
	if r.h.Mode() != ModeDirectionB || r.h.RelativeDuty() != 1 {
		t.Fatalf("mode=%v rel=%v", r.h.Mode(), r.h.RelativeDuty())
	}
}

func TestNew_RequiresChannels(t *testing.T) {
	_, err := New(Config{}, nil, &recChan{}, nil, nil)
	if errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("want invalid_params, got %v", err)
	}
}

func TestInitStartsOff(t *testing.T) {
	r := newRig(t, DecaySlow, true)
	if r.h.Mode() != ModeOff || r.a.last() != 0 || r.b.last() != 0 || r.en.last() != 0 {
		t.Fatalf("init not off: mode=%v a=%v b=%v en=%v", r.h.Mode(), r.a.last(), r.b.last(), r.en.last())
	}
}

// ---- transitions ----

func TestTransition_ReverseWithoutShorting(t *testing.T) {
	r := newRig(t, DecayFast, false)
	r.h.SetState(ModeDirectionA, 1)

	r.h.TransitionTo(ModeDirectionB, 1, 0.01, 0, 0)
	if r.h.Phase() != PhaseDutyTransitioning {
		t.Fatalf("want duty_transitioning, got %v", r.h.Phase())
	}
	if r.h.RelativeDuty() != -1 {
		t.Fatalf("planning must not write; relative=%v", r.h.RelativeDuty())
	}

	prev := r.h.RelativeDuty()
	for i := 0; i < 100 && r.h.Busy(); i++ {
		r.step(10)
		if r.h.Phase() != PhaseDutyTransitioning && r.h.Phase() != PhaseIdle {
			t.Fatalf("unexpected phase %v", r.h.Phase())
		}
		rel := r.h.RelativeDuty()
		if rel < prev {
			t.Fatalf("relative decreased: %v -> %v", prev, rel)
		}
		prev = rel
	}
	if r.h.Busy() {
		t.Fatal("transition did not finish")
	}
	if r.h.Mode() != ModeDirectionB || r.h.Duty() != 1 || r.h.RelativeDuty() != 1 {
		t.Fatalf("final: mode=%v duty=%v rel=%v", r.h.Mode(), r.h.Duty(), r.h.RelativeDuty())
	}
	if r.clk.Millis() > 220 {
		t.Fatalf("ramp took too long: %d ms", r.clk.Millis())
	}
}

func TestTransition_ReverseWithShorting(t *testing.T) {
	r := newRig(t, DecayFast, true)
	r.h.SetState(ModeDirectionA, 1)

	r.h.TransitionTo(ModeDirectionB, 1, 0.01, 500, 200)
	if r.h.Phase() != PhaseShortingBuildup {
		t.Fatalf("want shorting_buildup, got %v", r.h.Phase())
	}
	if r.h.Mode() != ModeOff || r.a.last() != 0 || r.b.last() != 0 || r.en.last() != 0 {
		t.Fatalf("entering buildup must write off first; mode=%v", r.h.Mode())
	}

	var phases []Phase
	var lastShort float32
	seen := func() {
		p := r.h.Phase()
		if len(phases) == 0 || phases[len(phases)-1] != p {
			phases = append(phases, p)
		}
	}
	seen()
	for i := 0; i < 200 && r.h.Busy(); i++ {
		before := r.h.Phase()
		r.step(10)
		if r.h.Phase() != before {
			// the tick that changes phase wrote the previous phase's output
			seen()
			continue
		}
		switch r.h.Phase() {
		case PhaseShortingBuildup:
			if r.h.Mode() != ModeShort {
				t.Fatalf("buildup must short, mode=%v", r.h.Mode())
			}
			if r.a.last() < lastShort {
				t.Fatalf("shorting duty decreased: %v -> %v", lastShort, r.a.last())
			}
			lastShort = r.a.last()
			if r.clk.Millis() == 250 && !approx(lastShort, 0.5) {
				t.Fatalf("buildup at 250ms: want 0.5, got %v", lastShort)
			}
		case PhaseFullShort:
			if !approx(r.a.last(), 1) || !approx(r.b.last(), 1) {
				t.Fatalf("full short must hold 1; a=%v b=%v", r.a.last(), r.b.last())
			}
		case PhaseDutyTransitioning:
			if r.h.RelativeDuty() < 0 {
				t.Fatalf("ramp after short must start from 0, got %v", r.h.RelativeDuty())
			}
		}
		seen()
	}

	want := []Phase{PhaseShortingBuildup, PhaseFullShort, PhaseDutyTransitioning, PhaseIdle}
	if len(phases) != len(want) {
		t.Fatalf("phases: want %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases: want %v, got %v", want, phases)
		}
	}
	if r.h.Mode() != ModeDirectionB || r.h.Duty() != 1 {
		t.Fatalf("final: mode=%v duty=%v", r.h.Mode(), r.h.Duty())
	}
	// buildup ends at 510, full short at 720, then 100 ms of ramp.
	if got := r.clk.Millis(); got < 800 || got > 840 {
		t.Fatalf("finished at %d ms", got)
	}
}

func TestTransition_FullShortOnlyHoldsTargetMagnitude(t *testing.T) {
	r := newRig(t, DecayFast, false)
	r.h.SetState(ModeDirectionA, 1)

	r.h.TransitionTo(ModeDirectionB, 0.6, 0.01, 0, 50)
	if r.h.Phase() != PhaseFullShort {
		t.Fatalf("want full_short, got %v", r.h.Phase())
	}
	if r.h.Mode() != ModeShort || r.a.last() != 1 {
		t.Fatalf("entering full short writes short(1); mode=%v a=%v", r.h.Mode(), r.a.last())
	}
	r.step(10)
	if !approx(r.a.last(), 0.6) || !approx(r.b.last(), 0.6) {
		t.Fatalf("full short duty follows target magnitude; a=%v", r.a.last())
	}
	for i := 0; i < 100 && r.h.Busy(); i++ {
		r.step(10)
	}
	if r.h.Mode() != ModeDirectionB || !approx(r.h.Duty(), 0.6) {
		t.Fatalf("final: mode=%v duty=%v", r.h.Mode(), r.h.Duty())
	}
}

func TestTransition_ToShortStopsWhenBuildupReachesTarget(t *testing.T) {
	r := newRig(t, DecaySlow, false)
	r.h.SetState(ModeDirectionB, 1)

	r.h.TransitionTo(ModeShort, 0.5, 0.01, 100, 0)
	if r.h.Phase() != PhaseShortingBuildup {
		t.Fatalf("want shorting_buildup, got %v", r.h.Phase())
	}
	for i := 0; i < 50 && r.h.Busy(); i++ {
		r.step(10)
	}
	if r.h.Busy() {
		t.Fatal("did not finish")
	}
	if r.clk.Millis() > 110 {
		t.Fatalf("finished late: %d ms", r.clk.Millis())
	}
	if r.h.Mode() != ModeShort || !approx(r.a.last(), 0.5) || !approx(r.b.last(), 0.5) {
		t.Fatalf("final: mode=%v a=%v b=%v", r.h.Mode(), r.a.last(), r.b.last())
	}
}

func TestTransition_FromZeroDoesNotShort(t *testing.T) {
	r := newRig(t, DecaySlow, false)
	r.h.TransitionTo(ModeDirectionB, 1, 0.01, 500, 200)
	if r.h.Phase() != PhaseDutyTransitioning {
		t.Fatalf("starting at 0 never crosses; phase=%v", r.h.Phase())
	}
}

func TestTransition_DegeneratesToSetState(t *testing.T) {
	t.Run("already there", func(t *testing.T) {
		r := newRig(t, DecaySlow, false)
		before := r.h.Status().Writes
		r.h.TransitionTo(ModeOff, 0, 0.01, 0, 0)
		if r.h.Phase() != PhaseIdle {
			t.Fatalf("phase: %v", r.h.Phase())
		}
		if r.h.Status().Writes != before+1 {
			t.Fatalf("want one instant write")
		}
	})
	t.Run("rate covers distance", func(t *testing.T) {
		r := newRig(t, DecayFast, false)
		r.h.SetState(ModeDirectionA, 0.5)
		r.h.TransitionTo(ModeDirectionA, 0.6, 0.5, 0, 0)
		if r.h.Busy() || !approx(r.h.RelativeDuty(), -0.6) {
			t.Fatalf("busy=%v rel=%v", r.h.Busy(), r.h.RelativeDuty())
		}
	})
	t.Run("zero rate", func(t *testing.T) {
		r := newRig(t, DecayFast, false)
		r.h.TransitionTo(ModeDirectionB, 0.8, 0, 0, 0)
		if r.h.Busy() || r.h.Mode() != ModeDirectionB || !approx(r.h.Duty(), 0.8) {
			t.Fatalf("busy=%v mode=%v duty=%v", r.h.Busy(), r.h.Mode(), r.h.Duty())
		}
	})
}

func TestTransition_ReplanKeepsCurrentDuty(t *testing.T) {
	r := newRig(t, DecayFast, false)
	r.h.TransitionTo(ModeDirectionB, 1, 0.001, 0, 0)
	for i := 0; i < 10; i++ {
		r.step(10)
	}
	mid := r.h.RelativeDuty()
	if !approx(mid, 0.1) {
		t.Fatalf("mid: want 0.1, got %v", mid)
	}

	r.h.TransitionTo(ModeDirectionA, 0.5, 0.002, 0, 0)
	if r.h.RelativeDuty() != mid {
		t.Fatalf("replan must not jump: %v -> %v", mid, r.h.RelativeDuty())
	}
	r.step(10)
	if !approx(r.h.RelativeDuty(), mid-0.02) {
		t.Fatalf("new direction not applied: %v", r.h.RelativeDuty())
	}
}

func TestSetStateCancelsTransition(t *testing.T) {
	r := newRig(t, DecayFast, false)
	r.h.TransitionTo(ModeDirectionB, 1, 0.001, 0, 0)
	r.step(10)
	r.h.SetState(ModeDirectionA, 0.2)
	if r.h.Busy() {
		t.Fatal("set_state must cancel the plan")
	}
	r.step(10)
	if !approx(r.h.RelativeDuty(), -0.2) {
		t.Fatalf("tick after cancel changed output: %v", r.h.RelativeDuty())
	}
}

func TestIdleTicksAreNoops(t *testing.T) {
	r := newRig(t, DecaySlow, true)
	r.h.TransitionTo(ModeDirectionB, 0.5, 0.05, 0, 0)
	for i := 0; i < 20 && r.h.Busy(); i++ {
		r.step(5)
	}
	st := r.h.Status()
	na, nb, ne := len(r.a.levels), len(r.b.levels), len(r.en.levels)
	for i := 0; i < 10; i++ {
		r.step(100)
		r.h.Tick()
	}
	if r.h.Status() != st {
		t.Fatalf("status changed while idle: %+v -> %+v", st, r.h.Status())
	}
	if len(r.a.levels) != na || len(r.b.levels) != nb || len(r.en.levels) != ne {
		t.Fatal("idle ticks wrote to channels")
	}
}

func TestTransitionSurvivesClockWrap(t *testing.T) {
	r := newRig(t, DecayFast, false)
	r.clk.Set(math.MaxUint32 - 25)
	r.h.TransitionTo(ModeDirectionB, 1, 0.01, 0, 0)
	for i := 0; i < 20 && r.h.Busy(); i++ {
		r.h.Tick()
		r.clk.Advance(10)
	}
	if r.h.Busy() || r.h.Mode() != ModeDirectionB {
		t.Fatalf("busy=%v mode=%v", r.h.Busy(), r.h.Mode())
	}
}

func TestRelativeDutyStaysInRange(t *testing.T) {
	r := newRig(t, DecaySlow, true)
	rng := rand.New(rand.NewSource(7))
	modes := []Mode{ModeOff, ModeDirectionA, ModeDirectionB, ModeShort}
	for i := 0; i < 2000; i++ {
		switch rng.Intn(6) {
		case 0:
			r.h.SetState(modes[rng.Intn(4)], rng.Float32()*1.5-0.25)
		case 1:
			r.h.TransitionTo(modes[rng.Intn(4)], rng.Float32()*1.2, rng.Float32()*0.05,
				uint32(rng.Intn(300)), uint32(rng.Intn(300)))
		default:
			r.step(uint32(rng.Intn(200)))
		}
		if rel := r.h.RelativeDuty(); rel < -1 || rel > 1 {
			t.Fatalf("relative out of range at step %d: %v", i, rel)
		}
	}
}

func TestTransitionUsesConfiguredDefaults(t *testing.T) {
	a, b := &recChan{}, &recChan{}
	clk := &timex.ManualClock{}
	h, _ := New(Config{Decay: DecayFast, RatePerMs: 0.01, ShortBuildupMs: 100, FullShortMs: 50}, a, b, nil, clk)
	h.SetState(ModeDirectionB, 1)
	h.Transition(ModeDirectionA, 1)
	if h.Phase() != PhaseShortingBuildup {
		t.Fatalf("want shorting_buildup, got %v", h.Phase())
	}
	h.Brake()
	if h.Busy() || h.Mode() != ModeShort || a.last() != 1 || b.last() != 1 {
		t.Fatalf("brake: busy=%v mode=%v", h.Busy(), h.Mode())
	}
}

func TestParse(t *testing.T) {
	for _, m := range []Mode{ModeOff, ModeDirectionA, ModeDirectionB, ModeShort} {
		got, ok := ParseMode(m.String())
		if !ok || got != m {
			t.Fatalf("ParseMode(%q) = %v, %v", m.String(), got, ok)
		}
	}
	if _, ok := ParseMode("sideways"); ok {
		t.Fatal("ParseMode accepted garbage")
	}
	if d, ok := ParseDecayMode("FAST"); !ok || d != DecayFast {
		t.Fatalf("ParseDecayMode: %v %v", d, ok)
	}
}
