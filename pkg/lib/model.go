package lib

import (
	"strings"
	"time"

	"github.com/slok/preload/internal/model"
)

// Errors returned by the SDK, check them with [errors.Is].
var (
	ErrNotFound      = model.ErrNotFound
	ErrAlreadyExists = model.ErrAlreadyExists
	ErrNotValid      = model.ErrNotValid
)

// AssetKind is the kind of media an asset is.
type AssetKind string

const (
	// AssetKindImage is a raster image, it's ready once decoded.
	AssetKindImage AssetKind = "image"
	// AssetKindVideo is a video, it's ready once enough of it is buffered.
	AssetKindVideo AssetKind = "video"
	// AssetKindAudio is an audio clip, it's ready once enough of it is buffered.
	AssetKindAudio AssetKind = "audio"
	// AssetKindFont is a TrueType or OpenType font, it's ready once registered.
	AssetKindFont AssetKind = "font"
)

// Asset declares a single asset to preload. Kinds not known by the SDK settle
// right away.
type Asset struct {
	Kind   AssetKind
	Source string
	// FontFamily is the family a font is registered with. When empty the family
	// embedded in the font is used.
	FontFamily string
}

// Manifest is the set of assets preloaded together.
type Manifest struct {
	Name   string
	Assets []Asset
}

// Progress is the aggregate progress of a preload.
type Progress struct {
	Completed int
	Total     int
	// Percent is always between 0 and 100 and never goes down.
	Percent int
	// Ready is set once the ready signal has fired.
	Ready bool
}

// OutcomeStatus is how an asset settled.
type OutcomeStatus string

const (
	OutcomeStatusLoaded   OutcomeStatus = "loaded"
	OutcomeStatusFailed   OutcomeStatus = "failed"
	OutcomeStatusTimedOut OutcomeStatus = "timed-out"
)

// Outcome is how a single asset settled.
type Outcome struct {
	Asset   Asset
	Status  OutcomeStatus
	Error   string
	Elapsed time.Duration
	Bytes   int64
}

// Run is the record of a single preload.
type Run struct {
	ID           string
	ManifestName string
	StartedAt    time.Time
	FinishedAt   time.Time
	Progress     Progress
	// Forced is set when the safety timeout forced the preload to be ready.
	Forced bool
	// Cancelled is set when the preload was torn down before being ready.
	Cancelled bool
	Outcomes  []Outcome
}

func fromModelManifest(m model.Manifest) Manifest {
	assets := make([]Asset, 0, len(m.Assets))
	for _, a := range m.Assets {
		assets = append(assets, fromModelAsset(a))
	}
	return Manifest{Name: m.Name, Assets: assets}
}

func (m Manifest) toModel() model.Manifest {
	assets := make([]model.AssetDescriptor, 0, len(m.Assets))
	for _, a := range m.Assets {
		// An empty kind is kept empty so validation rejects it.
		kind := model.AssetKind("")
		if strings.TrimSpace(string(a.Kind)) != "" {
			kind, _ = model.ParseAssetKind(string(a.Kind))
		}
		assets = append(assets, model.AssetDescriptor{
			Kind:       kind,
			Source:     a.Source,
			FontFamily: a.FontFamily,
		})
	}
	return model.Manifest{Name: m.Name, Assets: assets}
}

func fromModelAsset(a model.AssetDescriptor) Asset {
	return Asset{
		Kind:       AssetKind(a.Kind),
		Source:     a.Source,
		FontFamily: a.FontFamily,
	}
}

func fromModelProgress(s model.ProgressState) Progress {
	return Progress{
		Completed: s.Completed,
		Total:     s.Total,
		Percent:   s.Percent,
		Ready:     s.Done,
	}
}

func fromModelRun(r model.Run) Run {
	outcomes := make([]Outcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		outcomes = append(outcomes, Outcome{
			Asset:   fromModelAsset(o.Descriptor),
			Status:  OutcomeStatus(o.Status()),
			Error:   o.Err,
			Elapsed: o.Elapsed,
			Bytes:   o.Bytes,
		})
	}

	return Run{
		ID:           r.ID,
		ManifestName: r.ManifestName,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Progress: Progress{
			Completed: r.Completed,
			Total:     r.Total,
			Percent:   model.PercentOf(r.Completed, r.Total),
			Ready:     !r.Cancelled && r.Completed == r.Total,
		},
		Forced:    r.Forced,
		Cancelled: r.Cancelled,
		Outcomes:  outcomes,
	}
}
