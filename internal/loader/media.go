package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slok/preload/internal/model"
)

// DefaultPlayThroughBytes is the amount of buffered media considered enough to play
// without stalling.
const DefaultPlayThroughBytes int64 = 1 << 20

// Media buffers are reused across loads, they are reset and returned to the pool once
// the asset settles.
var mediaBufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// MediaLoader loads video and audio assets. A media asset is ready when enough data has
// been buffered to play through, or the whole resource has been read.
type MediaLoader struct {
	fetcher          Fetcher
	playThroughBytes int64
}

// NewMediaLoader returns a new media loader.
func NewMediaLoader(fetcher Fetcher, playThroughBytes int64) *MediaLoader {
	if playThroughBytes <= 0 {
		playThroughBytes = DefaultPlayThroughBytes
	}
	return &MediaLoader{fetcher: fetcher, playThroughBytes: playThroughBytes}
}

func (m *MediaLoader) Load(ctx context.Context, asset model.AssetDescriptor) model.LoadOutcome {
	start := time.Now()

	body, err := m.fetcher.Fetch(ctx, asset.Source)
	if err != nil {
		return settle(asset, start, 0, err)
	}

	buf := mediaBufferPool.Get().(*bytes.Buffer)
	defer func() {
		// Release the handle, the buffered data is not kept after settlement.
		body.Close()
		buf.Reset()
		mediaBufferPool.Put(buf)
	}()

	n, err := io.CopyN(buf, body, m.playThroughBytes)
	if err != nil && !errors.Is(err, io.EOF) {
		return settle(asset, start, n, fmt.Errorf("buffering media: %w", err))
	}

	if n == 0 {
		return settle(asset, start, 0, fmt.Errorf("empty media resource"))
	}

	if err := checkMediaContent(buf.Bytes()); err != nil {
		return settle(asset, start, n, err)
	}

	return settle(asset, start, n, nil)
}

// checkMediaContent sniffs the buffered data and rejects content that can't be media.
func checkMediaContent(data []byte) error {
	contentType := http.DetectContentType(data)
	if strings.HasPrefix(contentType, "text/") || strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("content %q is not a media resource", contentType)
	}
	return nil
}
