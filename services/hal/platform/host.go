// services/hal/platform/host.go
//go:build !rp2040 && !rp2350

package platform

import (
	"sync"

	"hbridge-go/drivers/hbridge"

	"tinygo.org/x/drivers"
)

// DeviceName selects the embedded config for this build.
const DeviceName = "host"

// ----------------------------- PWM (host) ------------------------------------

// HostChannel records the last level written. Safe for concurrent reads.
type HostChannel struct {
	mu     sync.RWMutex
	pin    int
	level  float32
	writes int
}

func (c *HostChannel) SetLevel(l float32) {
	c.mu.Lock()
	c.level = l
	c.writes++
	c.mu.Unlock()
}

func (c *HostChannel) Level() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

func (c *HostChannel) Writes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writes
}

func (c *HostChannel) Pin() int { return c.pin }

// HostPWM hands out stable *HostChannel instances for pins 0..MaxPin.
type HostPWM struct {
	MaxPin int // default 29 (RP2040 GPIO range)

	mu   sync.Mutex
	pins map[int]*HostChannel
}

func (f *HostPWM) ByPin(n int) (hbridge.Channel, bool) {
	c, ok := f.Get(n)
	return c, ok
}

// Get exposes the underlying *HostChannel for tests and the simulator.
func (f *HostPWM) Get(n int) (*HostChannel, bool) {
	max := f.MaxPin
	if max == 0 {
		max = 29
	}
	if n < 0 || n > max {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pins == nil {
		f.pins = make(map[int]*HostChannel)
	}
	c, ok := f.pins[n]
	if !ok {
		c = &HostChannel{pin: n}
		f.pins[n] = c
	}
	return c, true
}

// ----------------------------- I²C (host) ------------------------------------

// HostI2C implements tinygo drivers.I2C with a register file per address and
// PCA9685-style auto-increment. Fail, when set, is returned by every Tx.
type HostI2C struct {
	mu   sync.Mutex
	regs map[uint16]*[256]byte
	Fail error
}

func (h *HostI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Fail != nil {
		return h.Fail
	}
	if h.regs == nil {
		h.regs = make(map[uint16]*[256]byte)
	}
	rf, ok := h.regs[addr]
	if !ok {
		rf = new([256]byte)
		h.regs[addr] = rf
	}
	if len(w) == 0 {
		return nil
	}
	ptr := w[0]
	for _, b := range w[1:] {
		rf[ptr] = b
		ptr++
	}
	for i := range r {
		r[i] = rf[ptr]
		ptr++
	}
	return nil
}

// Reg returns one register byte as last written.
func (h *HostI2C) Reg(addr uint16, reg byte) byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rf, ok := h.regs[addr]; ok {
		return rf[reg]
	}
	return 0
}

// PCA9685Level decodes the duty of one expander output from its LED
// registers: full-on, full-off or (off-on)/4096.
func (h *HostI2C) PCA9685Level(addr uint16, ch uint8) float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	rf, ok := h.regs[addr]
	if !ok {
		return 0
	}
	base := 0x06 + 4*int(ch)
	on := uint16(rf[base]) | uint16(rf[base+1])<<8
	off := uint16(rf[base+2]) | uint16(rf[base+3])<<8
	switch {
	case off&0x1000 != 0:
		return 0
	case on&0x1000 != 0:
		return 1
	}
	return float32(int(off)-int(on)) / 4096
}

// HostI2CFactory serves named host buses.
type HostI2CFactory struct {
	Buses map[string]drivers.I2C
}

func (f *HostI2CFactory) ByID(id string) (drivers.I2C, bool) {
	b, ok := f.Buses[id]
	return b, ok
}

// DefaultI2CFactory creates host buses "i2c0" and "i2c1".
func DefaultI2CFactory() *HostI2CFactory {
	return &HostI2CFactory{
		Buses: map[string]drivers.I2C{
			"i2c0": &HostI2C{},
			"i2c1": &HostI2C{},
		},
	}
}

// DefaultPWMFactory provides host PWM outputs.
func DefaultPWMFactory() *HostPWM { return &HostPWM{} }
