// Package timescale converts between timeline milliseconds and pixel offsets.
//
// Everything here is pure: a Mapper is a value, and no function keeps state or
// returns errors. Non-finite input is treated as 0.
package timescale

import (
	"fmt"
	"math"
)

const (
	// BasePixelsPerSecond is the timeline density at zoom 1.
	BasePixelsPerSecond = 100.0

	MinZoom = 0.1
	MaxZoom = 3.0

	// DefaultRulerDuration is used for ruler generation when the project has no duration yet.
	DefaultRulerDuration = 60_000.0

	majorTickEvery = 10_000.0

	// MaxTicks caps one ruler layout. 24h at one tick per second fits.
	MaxTicks = 100_000
)

// ClampZoom limits zoom to [MinZoom, MaxZoom].
func ClampZoom(zoom float64) float64 {
	zoom = finite(zoom)
	if zoom < MinZoom {
		return MinZoom
	}
	if zoom > MaxZoom {
		return MaxZoom
	}
	return zoom
}

func PixelsPerSecond(zoom float64) float64 {
	return BasePixelsPerSecond * finite(zoom)
}

// Mapper maps time to position at one zoom level.
type Mapper struct {
	Zoom float64
}

func (m Mapper) PixelsPerSecond() float64 { return PixelsPerSecond(m.Zoom) }

func (m Mapper) TimeToPosition(ms float64) float64 {
	return (finite(ms) / 1000) * m.PixelsPerSecond()
}

// PositionToTime is the inverse of TimeToPosition. It does not clamp; see Seek.
func (m Mapper) PositionToTime(px float64) float64 {
	pps := m.PixelsPerSecond()
	if pps == 0 {
		return 0
	}
	return (finite(px) / pps) * 1000
}

// Seek maps a click offset on the ruler to a playhead time, never negative.
func (m Mapper) Seek(px float64) float64 {
	return math.Max(0, m.PositionToTime(px))
}

// Tick is one ruler mark. Label is set on major ticks only.
type Tick struct {
	Time     float64 `json:"time"`
	Position float64 `json:"position"`
	Major    bool    `json:"major"`
	Label    string  `json:"label,omitempty"`
}

// Interval returns the tick spacing in ms for the mapper's density.
func (m Mapper) Interval() float64 {
	pps := m.PixelsPerSecond()
	switch {
	case pps >= 100:
		return 1000
	case pps >= 50:
		return 5000
	default:
		return 10_000
	}
}

// Ticks lays out the ruler for a project of the given duration (ms). At most
// MaxTicks are returned; longer durations are cut off.
func (m Mapper) Ticks(duration float64) []Tick {
	duration = finite(duration)
	if duration <= 0 {
		duration = DefaultRulerDuration
	}
	interval := m.Interval()

	n := MaxTicks
	if count := math.Floor(duration/interval) + 1; count < MaxTicks {
		n = int(count)
	}
	ticks := make([]Tick, 0, n)
	for i := 0; i < n; i++ {
		t := float64(i) * interval
		tick := Tick{Time: t, Position: m.TimeToPosition(t)}
		if math.Mod(t, majorTickEvery) == 0 {
			tick.Major = true
			tick.Label = FormatDuration(t)
		}
		ticks = append(ticks, tick)
	}
	return ticks
}

// FormatDuration renders ms as m:ss.
func FormatDuration(ms float64) string {
	ms = math.Max(0, finite(ms))
	minutes := int(ms / 60_000)
	seconds := int(math.Mod(ms, 60_000) / 1000)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatClock renders ms as m:ss:cc, the transport display format.
func FormatClock(ms float64) string {
	ms = math.Max(0, finite(ms))
	centis := int(math.Mod(ms, 1000) / 10)
	return fmt.Sprintf("%s:%02d", FormatDuration(ms), centis)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
