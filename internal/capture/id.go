package capture

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// IDGenerator issues capture ids of the form capture_<timestampMillis>.
// The millisecond value is bumped monotonically when two captures land in
// the same millisecond, so burst captures never collide within a process.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator returns a generator backed by the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a fresh capture id.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	millis := g.now().UnixMilli()
	if millis <= g.last {
		millis = g.last + 1
	}
	g.last = millis
	return fmt.Sprintf("capture_%d", millis)
}

// CaptureTime extracts the embedded capture timestamp from an id.
func CaptureTime(id string) (time.Time, bool) {
	raw, ok := strings.CutPrefix(id, "capture_")
	if !ok {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}
