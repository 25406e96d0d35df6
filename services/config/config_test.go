package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hbridge-go/bus"
	"hbridge-go/types"

	. "github.com/smartystreets/goconvey/convey"
)

func decodeHAL(v any) (types.HALConfig, error) {
	var cfg types.HALConfig
	b, err := json.Marshal(v)
	if err != nil {
		return cfg, err
	}
	err = json.Unmarshal(b, &cfg)
	return cfg, err
}

func TestParse(t *testing.T) {
	Convey("Given a YAML document", t, func() {
		Convey("sections are returned without the version key", func() {
			doc, err := Parse([]byte("version: \"1.2\"\nheartbeat:\n  interval_s: 3\n"))
			So(err, ShouldBeNil)
			So(doc, ShouldNotContainKey, "version")
			So(doc, ShouldContainKey, "heartbeat")
			So(doc["heartbeat"], ShouldResemble, map[string]any{"interval_s": 3})
		})

		Convey("nested maps become string keyed", func() {
			doc, err := Parse([]byte("version: 1\nhal:\n  devices:\n    - id: m\n      params:\n        pin_a: {pin: 1}\n"))
			So(err, ShouldBeNil)
			hal, ok := doc["hal"].(map[string]any)
			So(ok, ShouldBeTrue)
			devs, ok := hal["devices"].([]interface{})
			So(ok, ShouldBeTrue)
			So(devs, ShouldHaveLength, 1)
			_, ok = devs[0].(map[string]any)["params"].(map[string]any)
			So(ok, ShouldBeTrue)
		})

		Convey("a missing version is rejected", func() {
			_, err := Parse([]byte("hal: {}\n"))
			So(errors.Is(err, ErrNoVersion), ShouldBeTrue)
		})

		Convey("a version outside the supported range is rejected", func() {
			_, err := Parse([]byte("version: \"2.0\"\nhal: {}\n"))
			So(errors.Is(err, ErrBadVersion), ShouldBeTrue)
		})

		Convey("a malformed version is rejected", func() {
			_, err := Parse([]byte("version: banana\n"))
			So(errors.Is(err, ErrBadVersion), ShouldBeTrue)
		})

		Convey("invalid YAML is an error", func() {
			_, err := Parse([]byte("version: [1\n"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestEmbeddedConfigs(t *testing.T) {
	Convey("Every embedded config parses into a HAL config", t, func() {
		for name := range embeddedConfigs {
			doc, err := Load(name, Env{})
			So(err, ShouldBeNil)
			cfg, err := decodeHAL(doc["hal"])
			So(err, ShouldBeNil)
			So(len(cfg.Devices), ShouldBeGreaterThan, 0)
		}
	})

	Convey("The host config describes motors and a valve", t, func() {
		doc, err := Load("host", Env{})
		So(err, ShouldBeNil)
		cfg, err := decodeHAL(doc["hal"])
		So(err, ShouldBeNil)
		So(cfg.TickMs, ShouldEqual, uint32(10))

		kinds := map[string]string{}
		for _, d := range cfg.Devices {
			kinds[d.ID] = d.Type
		}
		So(kinds["pump"], ShouldEqual, "hbridge")
		So(kinds["inlet"], ShouldEqual, "hbridge_valve")
	})

	Convey("An unknown device has no config", t, func() {
		_, err := Load("toaster", Env{})
		So(err, ShouldNotBeNil)
	})
}

func TestLoadOverrides(t *testing.T) {
	Convey("Env overrides replace numeric settings", t, func() {
		doc, err := Load("host", Env{TickMs: 25, HeartbeatS: 60})
		So(err, ShouldBeNil)
		cfg, err := decodeHAL(doc["hal"])
		So(err, ShouldBeNil)
		So(cfg.TickMs, ShouldEqual, uint32(25))
		So(doc["heartbeat"].(map[string]any)["interval_s"], ShouldEqual, 60)
	})

	Convey("A config file takes precedence over the embedded one", t, func() {
		path := filepath.Join(t.TempDir(), "hb.yaml")
		err := os.WriteFile(path, []byte("version: \"1.0\"\nhal:\n  tick_ms: 7\n"), 0o600)
		So(err, ShouldBeNil)

		doc, err := Load("host", Env{File: path})
		So(err, ShouldBeNil)
		cfg, err := decodeHAL(doc["hal"])
		So(err, ShouldBeNil)
		So(cfg.TickMs, ShouldEqual, uint32(7))
		So(cfg.Devices, ShouldBeEmpty)
	})

	Convey("A missing config file is an error", t, func() {
		_, err := Load("host", Env{File: filepath.Join(t.TempDir(), "nope.yaml")})
		So(err, ShouldNotBeNil)
	})

	Convey("Env is read from the process environment", t, func() {
		t.Setenv("HBRIDGE_DEVICE", "pico")
		t.Setenv("HBRIDGE_TICK_MS", "20")
		e, err := LoadEnv()
		So(err, ShouldBeNil)
		So(e.Device, ShouldEqual, "pico")
		So(e.TickMs, ShouldEqual, uint32(20))
		So(e.Debug, ShouldBeFalse)
	})
}

func TestConfig_PublishRetainedPerKey(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "pico" {
			return nil, false
		}
		return []byte("version: \"1.0\"\nhal:\n  tick_ms: 5\nheartbeat:\n  interval_s: 2\n"), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	Convey("Each section is published retained under config/<key>", t, func() {
		b := bus.NewBus(16)
		conn := b.NewConnection("test-config")
		svc := NewConfigService(Env{})

		ctx := context.WithValue(context.Background(), CtxDeviceKey, "pico")
		So(svc.publishConfig(ctx, conn), ShouldBeNil)

		sub := conn.Subscribe(bus.T(configPrefix, bus.WildOne))
		defer conn.Unsubscribe(sub)

		got := map[string]any{}
		deadline := time.After(500 * time.Millisecond)
		for len(got) < 2 {
			select {
			case m := <-sub.Channel():
				So(m.Retained, ShouldBeTrue)
				got[m.Topic.At(1).(string)] = m.Payload
			case <-deadline:
				t.Fatalf("timed out; got %v", got)
			}
		}
		So(got["hal"], ShouldResemble, map[string]any{"tick_ms": 5})
		So(got["heartbeat"], ShouldResemble, map[string]any{"interval_s": 2})
	})

	Convey("Without a device the publisher fails", t, func() {
		b := bus.NewBus(4)
		svc := NewConfigService(Env{})
		err := svc.publishConfig(context.Background(), b.NewConnection("x"))
		So(err, ShouldNotBeNil)
	})
}
