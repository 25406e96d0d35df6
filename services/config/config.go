package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"hbridge-go/bus"

	"github.com/Masterminds/semver"
	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID

	// SchemaConstraint is the range of document versions this build reads.
	SchemaConstraint = ">= 1.0, < 2.0"
)

var (
	ErrNoVersion  = errors.New("config: missing version")
	ErrBadVersion = errors.New("config: unsupported version")
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Env holds process-level overrides read from the environment.
type Env struct {
	Device     string `env:"HBRIDGE_DEVICE"`      // embedded config name; platform default when empty
	File       string `env:"HBRIDGE_CONFIG"`      // YAML file used instead of the embedded config
	TickMs     uint32 `env:"HBRIDGE_TICK_MS"`     // overrides hal.tick_ms
	HeartbeatS int    `env:"HBRIDGE_HEARTBEAT_S"` // overrides heartbeat.interval_s
	Debug      bool   `env:"HBRIDGE_DEBUG" envDefault:"false"`
}

// LoadEnv parses the environment into Env.
func LoadEnv() (Env, error) {
	var e Env
	err := env.Parse(&e)
	return e, err
}

// -----------------------------------------------------------------------------
// Parsing
// -----------------------------------------------------------------------------

// Parse decodes a YAML document, checks its version against
// SchemaConstraint and returns the top-level sections with nested maps
// converted to map[string]any, ready for JSON-style decoding.
func Parse(raw []byte) (map[string]any, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if err := checkVersion(doc["version"]); err != nil {
		return nil, err
	}
	delete(doc, "version")

	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalise(v)
	}
	return out, nil
}

func checkVersion(v any) error {
	if v == nil {
		return ErrNoVersion
	}
	ver, err := semver.NewVersion(fmt.Sprint(v))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadVersion, err)
	}
	c, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return err
	}
	if !c.Check(ver) {
		return fmt.Errorf("%w: %s not in %s", ErrBadVersion, ver, SchemaConstraint)
	}
	return nil
}

// normalise turns yaml.v2's map[interface{}]interface{} into map[string]any
// so the result can round-trip through encoding/json.
func normalise(v any) any {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[fmt.Sprint(k)] = normalise(vv)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = normalise(vv)
		}
		return m
	case []interface{}:
		for i := range x {
			x[i] = normalise(x[i])
		}
		return x
	default:
		return v
	}
}

// applyEnv writes the numeric overrides from e into the parsed sections.
func applyEnv(doc map[string]any, e Env) {
	if e.TickMs > 0 {
		section(doc, "hal")["tick_ms"] = int(e.TickMs)
	}
	if e.HeartbeatS > 0 {
		section(doc, "heartbeat")["interval_s"] = e.HeartbeatS
	}
}

func section(doc map[string]any, key string) map[string]any {
	if m, ok := doc[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	doc[key] = m
	return m
}

// Load resolves the document for device: e.File when set, otherwise the
// embedded config. Env overrides are applied last.
func Load(device string, e Env) (map[string]any, error) {
	var raw []byte
	if e.File != "" {
		b, err := os.ReadFile(e.File)
		if err != nil {
			return nil, err
		}
		raw = b
	} else {
		b, ok := EmbeddedConfigLookup(device)
		if !ok || len(b) == 0 {
			return nil, errors.New("no embedded config for device: " + device)
		}
		raw = b
	}
	doc, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	applyEnv(doc, e)
	return doc, nil
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	Env  Env
}

func NewConfigService(e Env) *ConfigService {
	return &ConfigService{Name: serviceName, Env: e}
}

// publishConfig loads the device config and publishes each section as a
// retained message on config/<section>.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		device = s.Env.Device
	}
	if device == "" {
		return errors.New("missing device ID in context")
	}

	doc, err := Load(device, s.Env)
	if err != nil {
		return err
	}
	for k, v := range doc {
		conn.Publish(&bus.Message{
			Topic:    bus.T(configPrefix, k),
			Payload:  v,
			Retained: true,
		})
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config] publish failed:", err.Error())
		}
	}()
}
