package loader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Fetcher knows how to get the contents of an asset source.
type Fetcher interface {
	// Fetch returns the resource body, the caller must close it.
	Fetch(ctx context.Context, source string) (io.ReadCloser, error)
}

// HTTPFetcher fetches sources with HTTP GET requests.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a new HTTP fetcher, if client is nil the default HTTP client is used.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

func (h *HTTPFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", source, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("requesting %s: unexpected status %d", source, resp.StatusCode)
	}

	return resp.Body, nil
}

// FSFetcher fetches sources from a filesystem. Sources are resolved relative to the
// filesystem root, so web style root paths (`/img/hero.png`) and `file://` URLs work.
// Reads fail once the fetch ctx is done.
type FSFetcher struct {
	fs fs.FS
}

// NewFSFetcher returns a new filesystem fetcher.
func NewFSFetcher(filesystem fs.FS) *FSFetcher {
	return &FSFetcher{fs: filesystem}
}

func (f *FSFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := fsPath(source)
	if err != nil {
		return nil, err
	}

	file, err := f.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", source, err)
	}

	return ctxReadCloser{ctx: ctx, ReadCloser: file}, nil
}

// ctxReadCloser stops reading once ctx is done, filesystem reads don't know about
// contexts.
type ctxReadCloser struct {
	ctx context.Context
	io.ReadCloser
}

func (c ctxReadCloser) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.ReadCloser.Read(p)
}

func fsPath(source string) (string, error) {
	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil {
			return "", fmt.Errorf("invalid file URL %q: %w", source, err)
		}
		source = u.Host + u.Path
	}

	name := strings.TrimPrefix(path.Clean("/"+source), "/")
	if name == "" {
		return "", fmt.Errorf("invalid source %q", source)
	}

	return name, nil
}

// SourceFetcher dispatches HTTP(S) sources to an HTTP fetcher and everything else to
// a filesystem fetcher.
type SourceFetcher struct {
	http Fetcher
	fs   Fetcher
}

// NewSourceFetcher returns a new source fetcher. Any of the fetchers can be nil, sources
// that would need it will fail to fetch.
func NewSourceFetcher(httpFetcher, fsFetcher Fetcher) *SourceFetcher {
	return &SourceFetcher{http: httpFetcher, fs: fsFetcher}
}

func (s *SourceFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	lower := strings.ToLower(source)
	isHTTP := strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")

	switch {
	case isHTTP && s.http != nil:
		return s.http.Fetch(ctx, source)
	case !isHTTP && s.fs != nil:
		return s.fs.Fetch(ctx, source)
	default:
		return nil, fmt.Errorf("no fetcher available for source %q", source)
	}
}
