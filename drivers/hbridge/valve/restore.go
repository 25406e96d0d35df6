package valve

import "strings"

// RestoreMode decides the state written at Setup.
type RestoreMode uint8

const (
	RestoreDefaultOff RestoreMode = iota
	RestoreDefaultOn
	AlwaysOff
	AlwaysOn
	RestoreInvertedDefaultOff
	RestoreInvertedDefaultOn
)

var restoreNames = [...]string{
	RestoreDefaultOff:         "RESTORE_DEFAULT_OFF",
	RestoreDefaultOn:          "RESTORE_DEFAULT_ON",
	AlwaysOff:                 "ALWAYS_OFF",
	AlwaysOn:                  "ALWAYS_ON",
	RestoreInvertedDefaultOff: "RESTORE_INVERTED_DEFAULT_OFF",
	RestoreInvertedDefaultOn:  "RESTORE_INVERTED_DEFAULT_ON",
}

func (m RestoreMode) String() string {
	if int(m) < len(restoreNames) {
		return restoreNames[m]
	}
	return "UNKNOWN"
}

// ParseRestoreMode is case-insensitive and treats spaces as underscores.
// An empty string is RestoreDefaultOff.
func ParseRestoreMode(s string) (RestoreMode, bool) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
	if s == "" {
		return RestoreDefaultOff, true
	}
	for i, n := range restoreNames {
		if n == s {
			return RestoreMode(i), true
		}
	}
	return RestoreDefaultOff, false
}

// initial resolves the start-up state from a recalled value, if any.
// The inverted modes flip the recalled value; their default is applied
// before the flip.
func (m RestoreMode) initial(recalled, ok bool) bool {
	or := func(def bool) bool {
		if ok {
			return recalled
		}
		return def
	}
	switch m {
	case RestoreDefaultOn:
		return or(true)
	case RestoreInvertedDefaultOff:
		return !or(true)
	case RestoreInvertedDefaultOn:
		return !or(false)
	case AlwaysOff:
		return false
	case AlwaysOn:
		return true
	default:
		return or(false)
	}
}
