package hal

import (
	"hbridge-go/drivers/hbridge"
	"hbridge-go/errcode"
	"hbridge-go/types"
	"hbridge-go/x/timex"
)

const (
	defaultRatePerMs = 0.001 // full scale in one second
)

func init() {
	RegisterBuilder("hbridge", BuilderFunc(buildMotor))
}

type motorAdaptor struct {
	id     string
	br     *hbridge.HBridge
	chans  []hbridge.Channel
	params types.HBridgeParams

	last   hbridge.Status
	posted bool
	health channelHealth
}

func buildMotor(in BuildInput) (Adaptor, error) {
	var p types.HBridgeParams
	if err := decodeJSON(in.Params, &p); err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "hbridge", err)
	}
	br, chans, err := newBridge(in, &p)
	if err != nil {
		return nil, err
	}
	br.Init()
	return &motorAdaptor{id: in.DeviceID, br: br, chans: chans, params: p}, nil
}

// newBridge fills defaults into p, acquires its channels and builds the
// bridge. It is shared by the motor and valve builders.
func newBridge(in BuildInput, p *types.HBridgeParams) (*hbridge.HBridge, []hbridge.Channel, error) {
	decay, ok := hbridge.ParseDecayMode(p.Decay)
	if !ok {
		return nil, nil, &errcode.E{C: errcode.InvalidParams, Op: "hbridge", Msg: "decay " + p.Decay}
	}
	p.Decay = decay.String()
	if p.RatePerMs == 0 {
		p.RatePerMs = defaultRatePerMs
	}
	if p.SpeedCount <= 0 {
		p.SpeedCount = hbridge.DefaultSpeedCount
	}

	chans, err := in.Channels.AcquireAll(in.DeviceID, &p.PinA, &p.PinB, p.Enable)
	if err != nil {
		return nil, nil, err
	}
	cfg := hbridge.Config{
		Decay:          decay,
		RatePerMs:      p.RatePerMs,
		ShortBuildupMs: p.ShortBuildupMs,
		FullShortMs:    p.FullShortMs,
	}
	var enable hbridge.Channel
	if p.Enable != nil {
		enable = chans[2]
	}
	br, err := hbridge.New(cfg, chans[0], chans[1], enable, in.Clock)
	if err != nil {
		in.Channels.Release(in.DeviceID)
		return nil, nil, err
	}
	return br, chans, nil
}

func (a *motorAdaptor) ID() string { return a.id }

func (a *motorAdaptor) Capabilities() []CapInfo {
	return []CapInfo{{
		Kind: types.KindMotor,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "hbridge",
			Detail: types.MotorInfo{
				Decay:          a.params.Decay,
				RatePerMs:      a.params.RatePerMs,
				ShortBuildupMs: a.params.ShortBuildupMs,
				FullShortMs:    a.params.FullShortMs,
				SpeedCount:     a.params.SpeedCount,
				HasEnable:      a.br.HasEnable(),
			},
		},
	}}
}

func (a *motorAdaptor) Control(kind types.Kind, method string, payload any) (any, error) {
	if kind != types.KindMotor {
		return nil, ErrUnsupported
	}
	switch method {
	case "set":
		var p types.MotorSet
		if err := decodeJSON(payload, &p); err != nil {
			return nil, errcode.InvalidPayload
		}
		mode, ok := hbridge.ParseMode(p.Mode)
		if !ok {
			return nil, errcode.InvalidMode
		}
		a.br.SetState(mode, p.Duty)

	case "transition":
		var p types.MotorTransition
		if err := decodeJSON(payload, &p); err != nil {
			return nil, errcode.InvalidPayload
		}
		mode, ok := hbridge.ParseMode(p.Mode)
		if !ok {
			return nil, errcode.InvalidMode
		}
		cfg := a.br.Config()
		rate, buildup, full := cfg.RatePerMs, cfg.ShortBuildupMs, cfg.FullShortMs
		if p.RatePerMs != nil {
			rate = *p.RatePerMs
		}
		if p.ShortBuildupMs != nil {
			buildup = *p.ShortBuildupMs
		}
		if p.FullShortMs != nil {
			full = *p.FullShortMs
		}
		if rate < 0 {
			return nil, errcode.InvalidParams
		}
		a.br.TransitionTo(mode, p.Duty, rate, buildup, full)

	case "brake":
		a.br.Brake()

	case "speed":
		var p types.MotorSpeed
		if err := decodeJSON(payload, &p); err != nil {
			return nil, errcode.InvalidPayload
		}
		if p.Level < 0 || p.Level > a.params.SpeedCount {
			return nil, errcode.InvalidParams
		}
		a.br.SetSpeed(p.Level, a.params.SpeedCount, p.Reverse)

	case "status":
		// reply only
	default:
		return nil, ErrUnsupported
	}
	return motorValue(a.br.Status()), nil
}

func (a *motorAdaptor) Tick() { a.br.Tick() }

func (a *motorAdaptor) Poll() Sample {
	var out Sample
	if st, ok := a.health.check(a.chans); ok {
		out = append(out, Reading{Kind: types.KindMotor, Topic: "state", Payload: st})
	}
	st := a.br.Status()
	if a.posted && sameOutput(st, a.last) {
		return out
	}
	a.last, a.posted = st, true
	return append(out, Reading{Kind: types.KindMotor, Topic: "value", Payload: motorValue(st)})
}

func (a *motorAdaptor) Close() error {
	a.br.SetState(hbridge.ModeOff, 0)
	return nil
}

func sameOutput(x, y hbridge.Status) bool {
	return x.Mode == y.Mode && x.Duty == y.Duty && x.Relative == y.Relative && x.Phase == y.Phase
}

func motorValue(st hbridge.Status) types.MotorValue {
	return types.MotorValue{
		Mode:     st.Mode.String(),
		Duty:     st.Duty,
		Relative: st.Relative,
		Phase:    st.Phase.String(),
		TS:       timex.NowMs(),
	}
}

// channelHealth tracks latched write errors on expander-backed channels.
type channelHealth struct {
	err error
}

// check reports a new link state when the fault condition changes.
func (h *channelHealth) check(chans []hbridge.Channel) (types.CapabilityStatus, bool) {
	var err error
	for _, c := range chans {
		if f, ok := c.(faulter); ok {
			if e := f.Err(); e != nil && err == nil {
				err = e
			}
		}
	}
	if (err == nil) == (h.err == nil) {
		h.err = err
		return types.CapabilityStatus{}, false
	}
	h.err = err
	st := types.CapabilityStatus{Link: types.LinkUp, TS: timex.NowMs()}
	if err != nil {
		st.Link = types.LinkDegraded
		st.Error = err.Error()
	}
	return st, true
}
