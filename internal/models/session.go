package models

import "github.com/google/uuid"

type PlaybackState string

const (
	Playing PlaybackState = "playing"
	Paused  PlaybackState = "paused"
)

// EditorState is a read snapshot of one editing session. It is never persisted;
// only Project is.
type EditorState struct {
	SessionID        uuid.UUID     `json:"sessionId"`
	Project          Project       `json:"project"`
	CurrentTime      float64       `json:"currentTime"`
	SelectedAssetIDs []uuid.UUID   `json:"selectedAssetIds"`
	SelectedClipIDs  []uuid.UUID   `json:"selectedClipIds"`
	SelectedTrackIDs []uuid.UUID   `json:"selectedTrackIds"`
	PlaybackState    PlaybackState `json:"playbackState"`
	Zoom             float64       `json:"zoom"`
}
