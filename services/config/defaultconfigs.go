package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw YAML bytes for that device
// -----------------------------------------------------------------------------

// Host simulation: two GPIO bridges and a valve on an emulated PCA9685.
const cfgHost = `
version: "1.0"
heartbeat:
  interval_s: 5
hal:
  tick_ms: 10
  devices:
    - id: pump
      type: hbridge
      params:
        pin_a: {pin: 2}
        pin_b: {pin: 3}
        enable: {pin: 4}
        decay: slow
        rate_per_ms: 0.002
        short_buildup_ms: 200
        full_short_ms: 100
    - id: fan
      type: hbridge
      params:
        pin_a: {pin: 6}
        pin_b: {pin: 7}
        decay: fast
        rate_per_ms: 0.001
        speed_count: 10
    - id: inlet
      type: hbridge_valve
      params:
        pin_a: {bus: i2c0, addr: 64, channel: 0, freq_hz: 1000}
        pin_b: {bus: i2c0, addr: 64, channel: 1, freq_hz: 1000}
        switching_time_ms: 15000
        restore_mode: RESTORE_DEFAULT_OFF
`

// Pico with a DRV8833-style dual bridge on GP14/GP15.
const cfgPico = `
version: "1.0"
heartbeat:
  interval_s: 10
hal:
  devices:
    - id: motor0
      type: hbridge
      params:
        pin_a: {pin: 14}
        pin_b: {pin: 15}
        decay: slow
        rate_per_ms: 0.001
        short_buildup_ms: 250
        full_short_ms: 150
`

var embeddedConfigs = map[string][]byte{
	"host": []byte(cfgHost),
	"pico": []byte(cfgPico),
}
