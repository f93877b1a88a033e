package loader

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	// Decoders registered for image assets.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/slok/preload/internal/model"
)

// DefaultMaxAssetBytes is the maximum size read for images and fonts.
const DefaultMaxAssetBytes int64 = 64 << 20

// ImageLoader loads images, an image is ready once it has been fully decoded.
type ImageLoader struct {
	fetcher  Fetcher
	maxBytes int64
}

// NewImageLoader returns a new image loader.
func NewImageLoader(fetcher Fetcher, maxBytes int64) *ImageLoader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAssetBytes
	}
	return &ImageLoader{fetcher: fetcher, maxBytes: maxBytes}
}

func (i *ImageLoader) Load(ctx context.Context, asset model.AssetDescriptor) model.LoadOutcome {
	start := time.Now()

	body, err := i.fetcher.Fetch(ctx, asset.Source)
	if err != nil {
		return settle(asset, start, 0, err)
	}
	defer body.Close()

	r := &countingReader{r: io.LimitReader(body, i.maxBytes)}
	if _, _, err := image.Decode(r); err != nil {
		return settle(asset, start, r.n, fmt.Errorf("could not decode image: %w", err))
	}

	return settle(asset, start, r.n, nil)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
