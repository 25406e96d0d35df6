package types

// ---- Public HAL configuration ----

// HALConfig is supplied (retained) on the "config/hal" bus topic.
type HALConfig struct {
	TickMs  uint32      `json:"tick_ms,omitempty"` // engine step period; 0 = HAL default
	Devices []HALDevice `json:"devices"`
}

type HALDevice struct {
	ID     string `json:"id"`     // logical device id, e.g. "pump"
	Type   string `json:"type"`   // "hbridge" | "hbridge_valve"
	Params any    `json:"params"` // device-specific params (JSON-like)
}

// ChannelRef names one output channel. Either Pin (a PWM-capable pin from
// the platform) or Bus/Addr/Channel (a PCA9685 expander output).
type ChannelRef struct {
	Pin     *int   `json:"pin,omitempty"`
	Bus     string `json:"bus,omitempty"`
	Addr    uint16 `json:"addr,omitempty"`
	Channel uint8  `json:"channel,omitempty"`
	FreqHz  uint32 `json:"freq_hz,omitempty"` // expander PWM frequency
}

// HBridgeParams is the params shape for type "hbridge".
type HBridgeParams struct {
	PinA           ChannelRef  `json:"pin_a"`
	PinB           ChannelRef  `json:"pin_b"`
	Enable         *ChannelRef `json:"enable,omitempty"`
	Decay          string      `json:"decay,omitempty"` // "slow" (default) | "fast"
	RatePerMs      float32     `json:"rate_per_ms,omitempty"`
	ShortBuildupMs uint32      `json:"short_buildup_ms,omitempty"`
	FullShortMs    uint32      `json:"full_short_ms,omitempty"`
	SpeedCount     int         `json:"speed_count,omitempty"`
}

// ValveParams is the params shape for type "hbridge_valve".
type ValveParams struct {
	HBridgeParams
	SwitchingTimeMs uint32 `json:"switching_time_ms,omitempty"`
	RestoreMode     string `json:"restore_mode,omitempty"`
	Invert          bool   `json:"invert,omitempty"`
	Release         bool   `json:"release,omitempty"`  // set the bridge off once switched
	Restored        *bool  `json:"restored,omitempty"` // last known state, if the caller kept one
}

// HeartbeatConfig is supplied on "config/heartbeat".
type HeartbeatConfig struct {
	IntervalS int `json:"interval_s"`
}
