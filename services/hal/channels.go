package hal

import (
	"strconv"

	"hbridge-go/drivers/hbridge"
	"hbridge-go/drivers/pca9685"
	"hbridge-go/errcode"
	"hbridge-go/types"
)

type expanderKey struct {
	bus  string
	addr uint16
}

// channelPool resolves ChannelRefs to outputs and tracks which device owns
// each one. PCA9685 expanders are configured on first use and shared.
type channelPool struct {
	pwms      PWMFactory
	i2cs      I2CBusFactory
	expanders map[expanderKey]*pca9685.Device
	owner     map[string]string // ref key -> device id
}

func newChannelPool(pwms PWMFactory, i2cs I2CBusFactory) *channelPool {
	return &channelPool{
		pwms:      pwms,
		i2cs:      i2cs,
		expanders: map[expanderKey]*pca9685.Device{},
		owner:     map[string]string{},
	}
}

func refKey(ref types.ChannelRef) string {
	if ref.Pin != nil {
		return "pin:" + strconv.Itoa(*ref.Pin)
	}
	return ref.Bus + "/" + strconv.Itoa(int(ref.Addr)) + "/" + strconv.Itoa(int(ref.Channel))
}

// Acquire returns the output for ref and records devID as its owner.
func (p *channelPool) Acquire(devID string, ref types.ChannelRef) (hbridge.Channel, error) {
	key := refKey(ref)
	if o, taken := p.owner[key]; taken && o != devID {
		return nil, &errcode.E{C: errcode.PinInUse, Op: "acquire", Msg: key + " owned by " + o}
	}

	var ch hbridge.Channel
	switch {
	case ref.Pin != nil:
		if p.pwms == nil {
			return nil, errcode.UnknownPin
		}
		c, ok := p.pwms.ByPin(*ref.Pin)
		if !ok {
			return nil, &errcode.E{C: errcode.UnknownPin, Op: "acquire", Msg: key}
		}
		ch = c

	case ref.Bus != "":
		dev, err := p.expander(ref)
		if err != nil {
			return nil, err
		}
		c, err := dev.Channel(ref.Channel)
		if err != nil {
			return nil, errcode.Wrap(errcode.InvalidParams, "pca9685", err)
		}
		ch = c

	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "acquire", Msg: "channel needs pin or bus"}
	}

	p.owner[key] = devID
	return ch, nil
}

func (p *channelPool) expander(ref types.ChannelRef) (*pca9685.Device, error) {
	addr := ref.Addr
	if addr == 0 {
		addr = pca9685.Address
	}
	k := expanderKey{bus: ref.Bus, addr: addr}
	if dev, ok := p.expanders[k]; ok {
		// one prescaler per chip: freq_hz 0 accepts whatever is running
		if ref.FreqHz != 0 && ref.FreqHz != dev.FreqHz() {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "acquire",
				Msg: "pca9685 on " + ref.Bus + " already runs at " + strconv.FormatUint(uint64(dev.FreqHz()), 10) + " Hz"}
		}
		return dev, nil
	}
	if p.i2cs == nil {
		return nil, errcode.UnknownBus
	}
	i2c, ok := p.i2cs.ByID(ref.Bus)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownBus, Op: "acquire", Msg: ref.Bus}
	}
	dev := pca9685.New(i2c, pca9685.Config{Address: addr, FreqHz: ref.FreqHz})
	if err := dev.Configure(); err != nil {
		return nil, errcode.Wrap(errcode.MapDriverErr(err), "pca9685", err)
	}
	println("[hal] pca9685 configured on", ref.Bus, "addr", addr, "prescale", dev.Prescale())
	p.expanders[k] = dev
	return dev, nil
}

// Release frees every output owned by devID.
func (p *channelPool) Release(devID string) {
	for k, o := range p.owner {
		if o == devID {
			delete(p.owner, k)
		}
	}
}

// AcquireAll resolves refs in order; nil refs yield nil channels. A ref may
// appear only once. On failure nothing stays owned by devID.
func (p *channelPool) AcquireAll(devID string, refs ...*types.ChannelRef) ([]hbridge.Channel, error) {
	out := make([]hbridge.Channel, len(refs))
	seen := map[string]bool{}
	for i, ref := range refs {
		if ref == nil {
			continue
		}
		k := refKey(*ref)
		if seen[k] {
			p.Release(devID)
			return nil, &errcode.E{C: errcode.PinInUse, Op: "acquire", Msg: k + " used twice"}
		}
		seen[k] = true
		ch, err := p.Acquire(devID, *ref)
		if err != nil {
			p.Release(devID)
			return nil, err
		}
		out[i] = ch
	}
	return out, nil
}
