package manifestcheck_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/preload/internal/app/manifestcheck"
	"github.com/slok/preload/internal/loader/loadermock"
	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
	storageio "github.com/slok/preload/internal/storage/io"
)

const manifestYAML = `name: club-home
assets:
  - kind: image
    source: img/hero.png
  - kind: image
    source: img/missing.png
  - kind: font
    source: fonts/mono.ttf
  - kind: hologram
    source: holo/intro.holo
`

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		req             manifestcheck.Request
		mock            func(m *loadermock.MockFetcher)
		expCounts       map[model.AssetKind]int
		expUnreachable  int
		expProbeErrored []string
		expErr          bool
	}{
		"Checking without probing should only validate the manifest.": {
			req:  manifestcheck.Request{ManifestPath: "manifest.yaml"},
			mock: func(m *loadermock.MockFetcher) {},
			expCounts: map[model.AssetKind]int{
				model.AssetKindImage:   2,
				model.AssetKindFont:    1,
				model.AssetKindUnknown: 1,
			},
		},

		"Probing should report unreachable sources.": {
			req: manifestcheck.Request{ManifestPath: "manifest.yaml", Probe: true},
			mock: func(m *loadermock.MockFetcher) {
				m.On("Fetch", mock.Anything, "img/hero.png").Once().Return(io.NopCloser(strings.NewReader("x")), nil)
				m.On("Fetch", mock.Anything, "img/missing.png").Once().Return(nil, fmt.Errorf("file does not exist"))
				m.On("Fetch", mock.Anything, "fonts/mono.ttf").Once().Return(io.NopCloser(strings.NewReader("x")), nil)
			},
			expCounts: map[model.AssetKind]int{
				model.AssetKindImage:   2,
				model.AssetKindFont:    1,
				model.AssetKindUnknown: 1,
			},
			expUnreachable:  1,
			expProbeErrored: []string{"img/missing.png"},
		},

		"A missing manifest should fail.": {
			req:    manifestcheck.Request{ManifestPath: "missing.yaml"},
			mock:   func(m *loadermock.MockFetcher) {},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			fetcher := loadermock.NewMockFetcher(t)
			test.mock(fetcher)

			fs := fstest.MapFS{"manifest.yaml": &fstest.MapFile{Data: []byte(manifestYAML)}}
			svc, err := manifestcheck.NewService(manifestcheck.ServiceConfig{
				ManifestRepository: storageio.NewManifestYAMLRepository(fs, log.Noop),
				Fetcher:            fetcher,
			})
			require.NoError(err)

			got, err := svc.Run(context.Background(), test.req)
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)

			assert.Equal("club-home", got.Manifest.Name)
			assert.Equal(test.expCounts, got.Counts)
			assert.Equal(test.expUnreachable, got.Unreachable)
			require.Len(got.Assets, 4)

			var errored []string
			for _, a := range got.Assets {
				assert.Equal(test.req.Probe, a.Probed)
				if a.Err != "" {
					errored = append(errored, a.Descriptor.Source)
				}
			}
			assert.Equal(test.expProbeErrored, errored)
		})
	}
}

func TestServiceRunProbeWithoutFetcher(t *testing.T) {
	fs := fstest.MapFS{"manifest.yaml": &fstest.MapFile{Data: []byte(manifestYAML)}}
	svc, err := manifestcheck.NewService(manifestcheck.ServiceConfig{
		ManifestRepository: storageio.NewManifestYAMLRepository(fs, log.Noop),
	})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), manifestcheck.Request{ManifestPath: "manifest.yaml", Probe: true})
	assert.Error(t, err)
}
