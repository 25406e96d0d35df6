// services/hal/registry.go
package hal

import (
	"fmt"
	"sync"

	"hbridge-go/x/timex"
)

// BuildInput is provided to a device builder to construct an Adaptor.
type BuildInput struct {
	DeviceID string
	Type     string
	Params   any
	Channels *channelPool
	Clock    timex.Clock
}

// Builder constructs an Adaptor from config and platform factories.
type Builder interface {
	Build(in BuildInput) (Adaptor, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(in BuildInput) (Adaptor, error)

func (f BuilderFunc) Build(in BuildInput) (Adaptor, error) { return f(in) }

var (
	muBuilders sync.RWMutex
	builders   = map[string]Builder{}
)

// RegisterBuilder installs a builder for a given device type string.
// It panics on duplicate registration to catch mistakes at start-up.
func RegisterBuilder(deviceType string, b Builder) {
	muBuilders.Lock()
	defer muBuilders.Unlock()
	if deviceType == "" {
		panic("hal: empty device type for builder")
	}
	if _, exists := builders[deviceType]; exists {
		panic(fmt.Sprintf("hal: builder already registered for type %q", deviceType))
	}
	builders[deviceType] = b
}

// findBuilder looks up a registered builder by type.
func findBuilder(deviceType string) (Builder, bool) {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	b, ok := builders[deviceType]
	return b, ok
}
