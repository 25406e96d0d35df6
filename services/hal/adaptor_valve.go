package hal

import (
	"hbridge-go/drivers/hbridge"
	"hbridge-go/drivers/hbridge/valve"
	"hbridge-go/errcode"
	"hbridge-go/types"
	"hbridge-go/x/timex"
)

func init() {
	RegisterBuilder("hbridge_valve", BuilderFunc(buildValve))
}

type valveAdaptor struct {
	id     string
	br     *hbridge.HBridge
	v      *valve.Valve
	chans  []hbridge.Channel
	params types.ValveParams

	dirty  bool
	health channelHealth
}

func buildValve(in BuildInput) (Adaptor, error) {
	var p types.ValveParams
	if err := decodeJSON(in.Params, &p); err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "hbridge_valve", err)
	}
	restore, ok := valve.ParseRestoreMode(p.RestoreMode)
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "hbridge_valve", Msg: "restore_mode " + p.RestoreMode}
	}
	p.RestoreMode = restore.String()
	if p.SwitchingTimeMs == 0 {
		p.SwitchingTimeMs = valve.DefaultSwitchingTimeMs
	}

	br, chans, err := newBridge(in, &p.HBridgeParams)
	if err != nil {
		return nil, err
	}
	br.Init()

	a := &valveAdaptor{id: in.DeviceID, br: br, chans: chans, params: p}
	a.v = valve.New(br, in.Clock, valve.Config{
		SwitchingTimeMs:    p.SwitchingTimeMs,
		Restore:            restore,
		Invert:             p.Invert,
		ReleaseAfterSwitch: p.Release,
	})
	if p.Restored != nil {
		last := *p.Restored
		a.v.Recall = func() (bool, bool) { return last, true }
	}
	a.v.OnChange = func(on bool) {
		println("[hal] valve", a.id, "switched, on =", on)
		a.dirty = true
	}
	a.v.Setup()
	a.dirty = true
	return a, nil
}

func (a *valveAdaptor) ID() string { return a.id }

func (a *valveAdaptor) Capabilities() []CapInfo {
	return []CapInfo{{
		Kind: types.KindValve,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "hbridge_valve",
			Detail: types.ValveInfo{
				SwitchingTimeMs: a.params.SwitchingTimeMs,
				RestoreMode:     a.params.RestoreMode,
				Invert:          a.params.Invert,
			},
		},
	}}
}

func (a *valveAdaptor) Control(kind types.Kind, method string, payload any) (any, error) {
	if kind != types.KindValve {
		return nil, ErrUnsupported
	}
	switch method {
	case "set":
		var p types.ValveSet
		if err := decodeJSON(payload, &p); err != nil {
			return nil, errcode.InvalidPayload
		}
		a.v.Write(p.On)
		a.dirty = true
	case "get":
	default:
		return nil, ErrUnsupported
	}
	return a.value(), nil
}

func (a *valveAdaptor) Tick() { a.v.Tick() }

func (a *valveAdaptor) Poll() Sample {
	var out Sample
	if st, ok := a.health.check(a.chans); ok {
		out = append(out, Reading{Kind: types.KindValve, Topic: "state", Payload: st})
	}
	if a.dirty {
		a.dirty = false
		out = append(out, Reading{Kind: types.KindValve, Topic: "value", Payload: a.value()})
	}
	return out
}

func (a *valveAdaptor) Close() error {
	a.br.SetState(hbridge.ModeOff, 0)
	return nil
}

func (a *valveAdaptor) value() types.ValveValue {
	return types.ValveValue{On: a.v.State(), Switching: a.v.Switching(), TS: timex.NowMs()}
}
