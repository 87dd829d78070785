package project

import (
	"fmt"

	"github.com/google/uuid"

	"timeline-editor/internal/models"
)

// FromDocument rebuilds a model from a serialized project. The document is rejected
// as a whole when any clip would violate the model's invariants.
func FromDocument(doc models.Project, opts ...Option) (*Model, error) {
	m := blank(opts)
	if doc.ID == uuid.Nil {
		return nil, docError("project id is missing")
	}
	m.id = doc.ID
	m.name = doc.Name
	if m.name == "" {
		m.name = DefaultName
	}
	m.createdAt = doc.CreatedAt
	m.updatedAt = doc.UpdatedAt
	m.settings = doc.Settings
	if !m.settings.InBounds() {
		return nil, docError("settings are out of range")
	}

	for _, a := range doc.Assets {
		if a.ID == uuid.Nil || m.assets[a.ID] != nil {
			return nil, docError(fmt.Sprintf("asset id %s is missing or duplicated", a.ID))
		}
		if !a.Type.Valid() {
			return nil, docError(fmt.Sprintf("asset %s has invalid type %q", a.ID, a.Type))
		}
		a := a.Clone()
		m.assets[a.ID] = &a
		m.assetOrder = append(m.assetOrder, a.ID)
	}

	for _, t := range doc.Tracks {
		if t.ID == uuid.Nil || m.tracks[t.ID] != nil {
			return nil, docError(fmt.Sprintf("track id %s is missing or duplicated", t.ID))
		}
		if !t.Type.Valid() {
			return nil, docError(fmt.Sprintf("track %s has invalid type %q", t.ID, t.Type))
		}
		te := &trackEntry{track: t.Header()}
		for _, c := range t.Clips {
			if c.ID == uuid.Nil || m.clips[c.ID] != nil {
				return nil, docError(fmt.Sprintf("clip id %s is missing or duplicated", c.ID))
			}
			if c.TrackID != t.ID {
				return nil, docError(fmt.Sprintf("clip %s lists track %s but is stored on %s", c.ID, c.TrackID, t.ID))
			}
			c := c.Clone()
			if c.Content == nil {
				c.Content = models.NewContent(t.Type.ClipKind())
			}
			if c.Kind() != t.Type.ClipKind() {
				return nil, docError(fmt.Sprintf("clip %s is a %s clip on a %s track", c.ID, c.Kind(), t.Type))
			}
			if err := m.checkPlacement("load", c.AssetID, t); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
			}
			if err := checkRanges("load", c.ID, c); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
			}
			m.clips[c.ID] = &c
			te.clips = append(te.clips, c.ID)
		}
		m.tracks[t.ID] = te
		m.trackOrder = append(m.trackOrder, t.ID)
	}
	return m, nil
}

func docError(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, detail)
}
