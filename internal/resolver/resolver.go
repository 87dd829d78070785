// Package resolver answers which clips are present at a playhead time and in
// which order they are composited.
package resolver

import (
	"math"
	"sort"

	"timeline-editor/internal/models"
)

// Active is one clip present at the query time.
type Active struct {
	Clip  models.Clip
	Track models.Track // header only, Clips is nil
	Index int          // position within the track's clip list
	Lane  int          // track creation order
}

// Visual reports whether the clip contributes pixels. Audio clips are resolved
// for playback coordination but never drawn.
func (a Active) Visual() bool {
	return a.Track.Type != models.TrackAudio
}

// Resolve returns the clips active at t, back-to-front. A clip is active on
// [StartTime, EndTime). Clips on invisible tracks are excluded; locked tracks
// are included.
//
// Order: track type priority (video, audio, text, effect), then the clip's index
// within its track, then the track's lane.
func Resolve(tracks []models.Track, t float64) []Active {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return nil
	}
	var out []Active
	for lane, tr := range tracks {
		if !tr.IsVisible {
			continue
		}
		header := tr.Header()
		for i, c := range tr.Clips {
			if c.ActiveAt(t) {
				out = append(out, Active{Clip: c, Track: header, Index: i, Lane: lane})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := a.Track.Type.Priority(), b.Track.Type.Priority(); pa != pb {
			return pa < pb
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Lane < b.Lane
	})
	return out
}

// Visual filters out clips that draw nothing.
func Visual(active []Active) []Active {
	out := make([]Active, 0, len(active))
	for _, a := range active {
		if a.Visual() {
			out = append(out, a)
		}
	}
	return out
}

// NextEdge returns the nearest clip boundary strictly after t.
func NextEdge(tracks []models.Track, t float64) (float64, bool) {
	best, found := math.Inf(1), false
	for _, tr := range tracks {
		for _, c := range tr.Clips {
			for _, e := range [2]float64{c.StartTime, c.EndTime} {
				if e > t && e < best {
					best, found = e, true
				}
			}
		}
	}
	return best, found
}

// PrevEdge returns the nearest clip boundary strictly before t.
func PrevEdge(tracks []models.Track, t float64) (float64, bool) {
	best, found := math.Inf(-1), false
	for _, tr := range tracks {
		for _, c := range tr.Clips {
			for _, e := range [2]float64{c.StartTime, c.EndTime} {
				if e < t && e > best {
					best, found = e, true
				}
			}
		}
	}
	return best, found
}
