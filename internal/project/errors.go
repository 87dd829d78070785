package project

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors: callers use errors.Is() instead of string matching
var (
	ErrAssetNotFound      = errors.New("asset not found")
	ErrTrackNotFound      = errors.New("track not found")
	ErrClipNotFound       = errors.New("clip not found")
	ErrTrackLocked        = errors.New("track is locked")
	ErrInvalidTrackType   = errors.New("invalid track type")
	ErrKindMismatch       = errors.New("asset type cannot be placed on this track")
	ErrInvalidTimeRange   = errors.New("clip endTime must be greater than startTime")
	ErrInvalidSourceRange = errors.New("clip outPoint must not precede inPoint")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidSettings    = errors.New("invalid project settings")
	ErrInvalidDocument    = errors.New("invalid project document")
)

// Error describes a rejected mutation. The model is unchanged whenever one is returned.
type Error struct {
	Op  string
	ID  uuid.UUID
	Err error
}

func (e *Error) Error() string {
	if e.ID != uuid.Nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op string, id uuid.UUID, err error) error {
	return &Error{Op: op, ID: id, Err: err}
}

func invalid(op string, id uuid.UUID, detail string) error {
	return &Error{Op: op, ID: id, Err: fmt.Errorf("%w: %s", ErrInvalidInput, detail)}
}
