// services/hal/platform/rp2.go
//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"hbridge-go/drivers/hbridge"

	"tinygo.org/x/drivers"
)

// DeviceName selects the embedded config for this build.
const DeviceName = "pico"

// PWMPeriodNs is the period used for every slice: 20 kHz, above audible.
const PWMPeriodNs = 50_000

type pwmGroup interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

var slices = [...]pwmGroup{
	machine.PWM0, machine.PWM1, machine.PWM2, machine.PWM3,
	machine.PWM4, machine.PWM5, machine.PWM6, machine.PWM7,
}

// rp2Channel drives one PWM output.
type rp2Channel struct {
	pwm pwmGroup
	ch  uint8
}

func (c *rp2Channel) SetLevel(l float32) {
	top := c.pwm.Top()
	switch {
	case l <= 0:
		c.pwm.Set(c.ch, 0)
	case l >= 1:
		c.pwm.Set(c.ch, top+1) // stays high for the whole period
	default:
		c.pwm.Set(c.ch, uint32(l*float32(top)+0.5))
	}
}

type rp2PWMFactory struct {
	configured [len(slices)]bool
	chans      map[int]*rp2Channel
}

func (f *rp2PWMFactory) ByPin(n int) (hbridge.Channel, bool) {
	if c, ok := f.chans[n]; ok {
		return c, true
	}
	if n < 0 || n > 29 {
		return nil, false
	}
	idx := (n >> 1) & 7
	pwm := slices[idx]
	if !f.configured[idx] {
		if err := pwm.Configure(machine.PWMConfig{Period: PWMPeriodNs}); err != nil {
			println("[platform] pwm slice", idx, "configure failed:", err.Error())
			return nil, false
		}
		f.configured[idx] = true
	}
	ch, err := pwm.Channel(machine.Pin(n))
	if err != nil {
		return nil, false
	}
	c := &rp2Channel{pwm: pwm, ch: ch}
	f.chans[n] = c
	return c, true
}

// DefaultPWMFactory maps GP numbers to their hardware PWM slice.
func DefaultPWMFactory() *rp2PWMFactory {
	return &rp2PWMFactory{chans: make(map[int]*rp2Channel)}
}

// ---- I²C ----

type rp2I2CFactory struct {
	buses map[string]drivers.I2C
}

func (f *rp2I2CFactory) ByID(id string) (drivers.I2C, bool) {
	b, ok := f.buses[id]
	return b, ok
}

// DefaultI2CFactory configures i2c0 and i2c1 with board-default pins at 400 kHz.
func DefaultI2CFactory() *rp2I2CFactory {
	f := &rp2I2CFactory{buses: make(map[string]drivers.I2C)}

	b0 := machine.I2C0
	_ = b0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})
	f.buses["i2c0"] = b0

	b1 := machine.I2C1
	_ = b1.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C1_SDA_PIN,
		SCL:       machine.I2C1_SCL_PIN,
	})
	f.buses["i2c1"] = b1

	return f
}
