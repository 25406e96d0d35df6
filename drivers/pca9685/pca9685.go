// Package pca9685 drives the NXP PCA9685 16-channel, 12-bit PWM expander.
//
// Each output can feed one side of an H-bridge; Channel adapts an output to
// a float level in [0, 1].
//
// NOTE: register writes use auto-increment, so one Tx sets a whole channel.
package pca9685

import (
	"errors"
	"time"

	"hbridge-go/x/mathx"

	"tinygo.org/x/drivers"
)

var (
	ErrChannel = errors.New("pca9685: channel out of range")
)

// Config is optional; zero values select the defaults.
type Config struct {
	// Address defaults to 0x40.
	Address uint16
	// FreqHz is the PWM frequency for all channels. Default 1000 Hz.
	FreqHz uint32
	// OscHz is the oscillator frequency. Default 25 MHz (internal).
	OscHz uint32
	// OpenDrain selects open-drain outputs instead of totem-pole.
	OpenDrain bool
	// Invert inverts every output (MODE2.INVRT).
	Invert bool
}

type Device struct {
	bus  drivers.I2C
	addr uint16
	cfg  Config
	w    [5]byte
}

// New does not touch the device; call Configure.
func New(bus drivers.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	if cfg.FreqHz == 0 {
		cfg.FreqHz = 1000
	}
	if cfg.OscHz == 0 {
		cfg.OscHz = internalOscHz
	}
	return &Device{bus: bus, addr: cfg.Address, cfg: cfg}
}

func (d *Device) Addr() uint16   { return d.addr }
func (d *Device) FreqHz() uint32 { return d.cfg.FreqHz }

// Prescale returns the PRE_SCALE value for the configured frequency:
// round(osc / (4096 * freq)) - 1, limited to the chip's 3..255.
func (d *Device) Prescale() uint8 {
	p := mathx.RoundDiv(d.cfg.OscHz, Resolution*d.cfg.FreqHz)
	if p > 0 {
		p--
	}
	return uint8(mathx.Clamp(p, minPrescale, maxPrescale))
}

// Configure sets the frequency and output stage. PRE_SCALE is only writable
// while asleep, so the chip is put to sleep, programmed and restarted.
func (d *Device) Configure() error {
	if err := d.write8(regMode1, mode1Sleep|mode1AI|mode1AllCall); err != nil {
		return err
	}
	if err := d.write8(regPreScale, d.Prescale()); err != nil {
		return err
	}
	if err := d.write8(regMode1, mode1AI|mode1AllCall); err != nil {
		return err
	}
	// oscillator needs 500 µs after wake before RESTART
	time.Sleep(500 * time.Microsecond)
	if err := d.write8(regMode1, mode1Restart|mode1AI|mode1AllCall); err != nil {
		return err
	}
	var m2 byte
	if !d.cfg.OpenDrain {
		m2 |= mode2OutDrv
	}
	if d.cfg.Invert {
		m2 |= mode2Invert
	}
	return d.write8(regMode2, m2)
}

// SetRaw writes the ON and OFF counts of one channel.
func (d *Device) SetRaw(ch uint8, on, off uint16) error {
	if ch >= Channels {
		return ErrChannel
	}
	return d.writeLED(regLED0OnL+4*ch, on, off)
}

// SetLevel sets a channel's duty: <= 0 fully off, >= 1 fully on.
func (d *Device) SetLevel(ch uint8, level float32) error {
	on, off := counts(level)
	return d.SetRaw(ch, on, off)
}

// AllOff forces every output off with one write.
func (d *Device) AllOff() error {
	d.w[0] = regAllLEDOffH
	d.w[1] = byte(fullBit >> 8)
	return d.bus.Tx(d.addr, d.w[:2], nil)
}

// counts maps a level to ON/OFF counts, ON always at 0.
func counts(level float32) (on, off uint16) {
	switch {
	case level <= 0:
		return 0, fullBit
	case level >= 1:
		return fullBit, 0
	}
	off = uint16(level*Resolution + 0.5)
	return 0, mathx.Clamp(off, 1, Resolution-1)
}

func (d *Device) write8(reg, v byte) error {
	d.w[0] = reg
	d.w[1] = v
	return d.bus.Tx(d.addr, d.w[:2], nil)
}

func (d *Device) writeLED(reg byte, on, off uint16) error {
	d.w[0] = reg
	d.w[1] = byte(on)
	d.w[2] = byte(on >> 8)
	d.w[3] = byte(off)
	d.w[4] = byte(off >> 8)
	return d.bus.Tx(d.addr, d.w[:5], nil)
}

// Channel is one output as a level sink. The result of the last write is
// kept: Err reports a failed write until a later write succeeds.
type Channel struct {
	d   *Device
	ch  uint8
	err error
}

func (d *Device) Channel(ch uint8) (*Channel, error) {
	if ch >= Channels {
		return nil, ErrChannel
	}
	return &Channel{d: d, ch: ch}, nil
}

func (c *Channel) SetLevel(level float32) {
	c.err = c.d.SetLevel(c.ch, level)
}

func (c *Channel) Err() error { return c.err }

func (c *Channel) Index() uint8 { return c.ch }
