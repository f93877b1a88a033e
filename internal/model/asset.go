package model

import (
	"fmt"
	"strings"
)

// AssetKind is the kind of media an asset is.
type AssetKind string

const (
	// AssetKindImage is a raster image (png, jpeg, gif, webp, bmp, tiff).
	AssetKindImage AssetKind = "image"
	// AssetKindVideo is a video stream.
	AssetKindVideo AssetKind = "video"
	// AssetKindAudio is an audio stream.
	AssetKindAudio AssetKind = "audio"
	// AssetKindFont is a TrueType or OpenType font.
	AssetKindFont AssetKind = "font"
	// AssetKindUnknown is any kind the loaders don't know about, these load as a no-op.
	AssetKindUnknown AssetKind = "unknown"
)

// ParseAssetKind returns the asset kind for s, unsupported kinds are returned as
// AssetKindUnknown with ok set to false.
func ParseAssetKind(s string) (kind AssetKind, ok bool) {
	switch AssetKind(strings.ToLower(strings.TrimSpace(s))) {
	case AssetKindImage:
		return AssetKindImage, true
	case AssetKindVideo:
		return AssetKindVideo, true
	case AssetKindAudio:
		return AssetKindAudio, true
	case AssetKindFont:
		return AssetKindFont, true
	default:
		return AssetKindUnknown, false
	}
}

// AssetDescriptor declares a single asset to preload.
type AssetDescriptor struct {
	Kind   AssetKind
	Source string
	// FontFamily is the family the font will be registered with, only used by fonts.
	// When empty, the family name embedded in the font is used.
	FontFamily string
}

// Validate validates the asset descriptor.
func (a AssetDescriptor) Validate() error {
	if a.Kind == "" {
		return fmt.Errorf("kind is required: %w", ErrNotValid)
	}
	if a.Kind != AssetKindUnknown && strings.TrimSpace(a.Source) == "" {
		return fmt.Errorf("source is required for %s assets: %w", a.Kind, ErrNotValid)
	}
	return nil
}

func (a AssetDescriptor) String() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.Source)
}

// Manifest is the ordered set of assets a preload run loads. Order is irrelevant to
// progress semantics.
type Manifest struct {
	Name   string
	Assets []AssetDescriptor
}

// Validate validates the manifest.
func (m Manifest) Validate() error {
	for i, a := range m.Assets {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("asset %d: %w", i, err)
		}
	}
	return nil
}

// CountByKind returns the number of assets of each kind.
func (m Manifest) CountByKind() map[AssetKind]int {
	counts := map[AssetKind]int{}
	for _, a := range m.Assets {
		counts[a.Kind]++
	}
	return counts
}
