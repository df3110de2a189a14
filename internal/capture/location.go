package capture

import (
	"math"
	"strings"
)

// UnknownAccuracy is the sentinel recorded when the positioning layer did
// not report a horizontal accuracy for a fix.
const UnknownAccuracy = 9999.0

// LocationSource identifies where a fix came from.
type LocationSource string

const (
	SourceGPS     LocationSource = "gps"
	SourceMap     LocationSource = "map"
	SourceUnknown LocationSource = "unknown"
)

// ParseLocationSource converts a string into a known LocationSource,
// falling back to SourceUnknown for anything unrecognized.
func ParseLocationSource(value string) LocationSource {
	switch LocationSource(strings.ToLower(strings.TrimSpace(value))) {
	case SourceGPS:
		return SourceGPS
	case SourceMap:
		return SourceMap
	default:
		return SourceUnknown
	}
}

// Location is the positioning metadata stamped onto a capture at the
// moment the frame is taken. It is immutable once attached to a capture.
//
// Heading is degrees clockwise from true north in [0, 360); BearingSource
// is a free-form provenance tag ("compass", "gps", "map-center").
type Location struct {
	Latitude      float64
	Longitude     float64
	Altitude      *float64
	Accuracy      float64
	Heading       *float64
	Source        LocationSource
	BearingSource string
}

// Valid reports whether the location carries a usable fix. Captures
// without one are rejected before anything is enqueued.
func (l *Location) Valid() bool {
	if l == nil {
		return false
	}
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) {
		return false
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return false
	}
	return l.Longitude >= -180 && l.Longitude <= 180
}

// Normalized returns a copy with the accuracy sentinel applied and the
// source defaulted, suitable for persisting.
func (l Location) Normalized() Location {
	out := l
	if out.Accuracy <= 0 || math.IsNaN(out.Accuracy) {
		out.Accuracy = UnknownAccuracy
	}
	if out.Source == "" {
		out.Source = SourceUnknown
	}
	out.BearingSource = strings.TrimSpace(out.BearingSource)
	return out
}
