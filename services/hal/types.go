// services/hal/types.go
package hal

import (
	"hbridge-go/drivers/hbridge"
	"hbridge-go/types"

	"tinygo.org/x/drivers"
)

// Reading is one document to publish for one capability.
type Reading struct {
	Kind    types.Kind
	Topic   string // "value" or "state"
	Payload any    // JSON-serialisable
}

// Sample is a batch of readings from one Poll.
type Sample []Reading

// CapInfo describes one capability's retained info document.
type CapInfo struct {
	Kind types.Kind
	Info types.Info
}

// Adaptor owns a concrete device and exposes generic hooks.
// Adaptors must NOT touch the bus or spawn goroutines; every method is called
// from the HAL loop.
type Adaptor interface {
	ID() string
	// Static capability descriptions (published as retained).
	Capabilities() []CapInfo
	// Control handles hal/capability/<kind>/<id>/control/<method>.
	// Return (nil, ErrUnsupported) if not implemented for a method/kind.
	Control(kind types.Kind, method string, payload any) (result any, err error)
	// Tick advances time-driven behaviour (ramps, switching timers).
	Tick()
	// Poll returns what changed since the previous Poll.
	Poll() Sample
	// Close leaves the outputs safe; the adaptor is not used afterwards.
	Close() error
}

// ErrUnsupported for adaptor Control pass-through.
var ErrUnsupported = errUnsupported{}

type errUnsupported struct{}

func (errUnsupported) Error() string { return "unsupported" }

// I2CBusFactory injects configured I²C instances by id.
type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// PWMFactory supplies PWM outputs by pin number. The platform owns the
// slice/frequency setup; the HAL only sets levels.
type PWMFactory interface {
	ByPin(n int) (hbridge.Channel, bool)
}

// faulter is implemented by channels that latch write errors.
type faulter interface {
	Err() error
}
