package types

// ------------------------
// Motor (H-bridge output)
// ------------------------

// MotorInfo is published under hal/capability/motor/<id>/info as Info.Detail.
type MotorInfo struct {
	Decay          string  `json:"decay"`
	RatePerMs      float32 `json:"rate_per_ms"`
	ShortBuildupMs uint32  `json:"short_buildup_ms"`
	FullShortMs    uint32  `json:"full_short_ms"`
	SpeedCount     int     `json:"speed_count"`
	HasEnable      bool    `json:"has_enable"`
}

// MotorValue is published under hal/capability/motor/<id>/value (retained).
type MotorValue struct {
	Mode     string  `json:"mode"`     // off | direction_a | direction_b | short
	Duty     float32 `json:"duty"`     // 0..1
	Relative float32 `json:"relative"` // -1..1
	Phase    string  `json:"phase"`    // idle | shorting_buildup | full_short | duty_transitioning
	TS       int64   `json:"ts_ms"`
}

// Control payloads

type MotorSet struct {
	Mode string  `json:"mode"`
	Duty float32 `json:"duty"`
}

// MotorTransition ramps to Mode/Duty. Nil fields fall back to the device
// defaults from its params.
type MotorTransition struct {
	Mode           string   `json:"mode"`
	Duty           float32  `json:"duty"`
	RatePerMs      *float32 `json:"rate_per_ms,omitempty"`
	ShortBuildupMs *uint32  `json:"short_buildup_ms,omitempty"`
	FullShortMs    *uint32  `json:"full_short_ms,omitempty"`
}

// MotorSpeed selects one of SpeedCount discrete levels; 0 stops.
type MotorSpeed struct {
	Level   int  `json:"level"`
	Reverse bool `json:"reverse"`
}

// ------------------------
// Valve actuator
// ------------------------

type ValveInfo struct {
	SwitchingTimeMs uint32 `json:"switching_time_ms"`
	RestoreMode     string `json:"restore_mode"`
	Invert          bool   `json:"invert"`
}

type ValveValue struct {
	On        bool  `json:"on"`
	Switching bool  `json:"switching"`
	TS        int64 `json:"ts_ms"`
}

type ValveSet struct {
	On bool `json:"on"`
}
