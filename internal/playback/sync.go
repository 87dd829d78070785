package playback

import (
	"fmt"
	"math"
)

// DefaultSyncTolerance is the drift, in ms, a media element may have before it is re-seeked.
const DefaultSyncTolerance = 100.0

// MediaElement is a playable source with its own clock.
type MediaElement interface {
	CurrentTime() float64 // ms
	SeekTo(ms float64) error
}

// Synchronizer keeps media elements on the model's playhead. The model time
// is authoritative.
type Synchronizer struct {
	Tolerance float64 // ms; zero means DefaultSyncTolerance
}

func (s Synchronizer) tolerance() float64 {
	if s.Tolerance <= 0 {
		return DefaultSyncTolerance
	}
	return s.Tolerance
}

// Drift returns how far the media element is from expected, in ms.
func Drift(expected float64, m MediaElement) float64 {
	return math.Abs(m.CurrentTime() - expected)
}

// Sync seeks m to expected when the drift exceeds the tolerance and reports
// whether it did.
func (s Synchronizer) Sync(expected float64, m MediaElement) (bool, error) {
	if Drift(expected, m) <= s.tolerance() {
		return false, nil
	}
	if err := m.SeekTo(expected); err != nil {
		return false, fmt.Errorf("sync media to %.0fms: %w", expected, err)
	}
	return true, nil
}
