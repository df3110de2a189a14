package capture

import "strings"

// Mode selects the capture cadence and encode quality policy. It is
// purely informational once a capture has been enqueued.
type Mode string

const (
	ModeSlow   Mode = "slow"
	ModeFast   Mode = "fast"
	ModeSingle Mode = "single"
)

var allModes = []Mode{ModeSlow, ModeFast, ModeSingle}

// AllModes returns the ordered list of known modes.
func AllModes() []Mode {
	cp := make([]Mode, len(allModes))
	copy(cp, allModes)
	return cp
}

// ParseMode converts a string into a known Mode.
func ParseMode(value string) (Mode, bool) {
	normalized := Mode(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ModeSlow, ModeFast, ModeSingle:
		return normalized, true
	}
	return "", false
}

// Quality returns the JPEG quality hint for the mode. Fast mode trades
// quality for burst throughput.
func (m Mode) Quality() int {
	if m == ModeFast {
		return 70
	}
	return 92
}

// Continuous reports whether the mode repeats while the trigger is held.
func (m Mode) Continuous() bool {
	return m == ModeSlow || m == ModeFast
}
