// Package jobs holds the background work the API hands to the worker pool.
package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"timeline-editor/internal/media"
	"timeline-editor/internal/models"
	"timeline-editor/internal/project"
	"timeline-editor/internal/storage"
	"timeline-editor/internal/validation"
)

// AssetSink receives imported assets. *session.Session satisfies it.
type AssetSink interface {
	AddAsset(in project.AssetInput) (models.Asset, error)
}

// ImportAsset registers a media source with a session. Name and type are
// derived from the source when empty, and timed media without a known
// duration is probed first.
type ImportAsset struct {
	JobID  string
	Input  project.AssetInput
	Sink   AssetSink
	Source storage.Source
	Prober media.Prober
	Log    logrus.FieldLogger

	// OnDone, if set, is called with the created asset.
	OnDone func(models.Asset)
}

func NewImportAsset(in project.AssetInput, sink AssetSink, src storage.Source, prober media.Prober) *ImportAsset {
	return &ImportAsset{
		JobID:  "import-" + uuid.NewString(),
		Input:  in,
		Sink:   sink,
		Source: src,
		Prober: prober,
		Log:    logrus.StandardLogger(),
	}
}

func (j *ImportAsset) ID() string { return j.JobID }

func (j *ImportAsset) Execute(ctx context.Context) error {
	in := j.Input
	if in.Type == "" {
		t, err := validation.GuessAssetType(in.Src)
		if err != nil {
			return fmt.Errorf("import %s: %w", in.Src, err)
		}
		in.Type = t
	}
	if in.Name == "" {
		in.Name = validation.DisplayName(in.Src)
	}

	if in.Type.Timed() && in.Duration == nil {
		loc, err := j.Source.Locate(ctx, in.Src)
		if err != nil {
			return fmt.Errorf("locate %s: %w", in.Src, err)
		}
		info, err := j.Prober.Probe(ctx, loc)
		if err != nil {
			return fmt.Errorf("probe %s: %w", in.Src, err)
		}
		d := info.DurationMs
		in.Duration = &d
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	a, err := j.Sink.AddAsset(in)
	if err != nil {
		return err
	}
	j.Log.WithFields(logrus.Fields{"assetId": a.ID, "type": a.Type}).Info("asset imported")
	if j.OnDone != nil {
		j.OnDone(a)
	}
	return nil
}
