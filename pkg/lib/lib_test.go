package lib_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/slok/preload/pkg/lib"
)

func pngData(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var b bytes.Buffer
	require.NoError(t, png.Encode(&b, img))
	return b.Bytes()
}

const homeManifest = `name: home
assets:
  - kind: image
    source: img/hero.png
  - kind: font
    source: fonts/club.ttf
    font_family: Club Lib Sans
`

func testFS(t *testing.T) fstest.MapFS {
	return fstest.MapFS{
		"img/hero.png":        &fstest.MapFile{Data: pngData(t)},
		"img/broken.png":      &fstest.MapFile{Data: []byte("not an image")},
		"fonts/club.ttf":      &fstest.MapFile{Data: goregular.TTF},
		"manifests/home.yaml": &fstest.MapFile{Data: []byte(homeManifest)},
	}
}

func newClient(t *testing.T, cfg lib.Config) *lib.Client {
	t.Helper()

	if cfg.DBPath == "" && !cfg.NoHistory {
		cfg.DBPath = filepath.Join(t.TempDir(), "preload.db")
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = -1
	}
	c, err := lib.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := lib.New(context.Background(), lib.Config{NoHistory: true, MaxConcurrency: -1})
	assert.ErrorIs(t, err, lib.ErrNotValid)
}

func TestPreload(t *testing.T) {
	tests := map[string]struct {
		manifest     lib.Manifest
		expErr       bool
		expStatuses  []lib.OutcomeStatus
		expCompleted int
	}{
		"An empty manifest should be ready right away.": {
			manifest: lib.Manifest{Name: "empty"},
		},

		"Failing assets should still count as settled.": {
			manifest: lib.Manifest{
				Name: "home",
				Assets: []lib.Asset{
					{Kind: lib.AssetKindImage, Source: "img/hero.png"},
					{Kind: lib.AssetKindImage, Source: "img/broken.png"},
					{Kind: lib.AssetKindImage, Source: "img/missing.png"},
				},
			},
			expStatuses:  []lib.OutcomeStatus{lib.OutcomeStatusLoaded, lib.OutcomeStatusFailed, lib.OutcomeStatusFailed},
			expCompleted: 3,
		},

		"Fonts should be registered with their family.": {
			manifest: lib.Manifest{
				Name:   "fonts",
				Assets: []lib.Asset{{Kind: lib.AssetKindFont, Source: "fonts/club.ttf", FontFamily: "Club Lib Mono"}},
			},
			expStatuses:  []lib.OutcomeStatus{lib.OutcomeStatusLoaded},
			expCompleted: 1,
		},

		"Unknown kinds should load right away.": {
			manifest: lib.Manifest{
				Name:   "stickers",
				Assets: []lib.Asset{{Kind: "sticker", Source: "img/sticker.apng"}},
			},
			expStatuses:  []lib.OutcomeStatus{lib.OutcomeStatusLoaded},
			expCompleted: 1,
		},

		"Assets without kind should fail.": {
			manifest: lib.Manifest{
				Name:   "invalid",
				Assets: []lib.Asset{{Source: "img/hero.png"}},
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			client := newClient(t, lib.Config{BaseFS: testFS(t)})

			var (
				mu      sync.Mutex
				percent []int
				ready   int
			)
			run, err := client.Preload(context.Background(), test.manifest, lib.PreloadOpts{
				OnProgress: func(p lib.Progress) {
					mu.Lock()
					percent = append(percent, p.Percent)
					mu.Unlock()
				},
				OnReady: func() {
					mu.Lock()
					ready++
					mu.Unlock()
				},
			})

			if test.expErr {
				assert.ErrorIs(err, lib.ErrNotValid)
				return
			}
			require.NoError(err)

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(1, ready)
			assert.True(run.Progress.Ready)
			assert.Equal(100, run.Progress.Percent)
			assert.Equal(test.expCompleted, run.Progress.Completed)
			assert.IsNonDecreasing(percent)

			statuses := map[string]lib.OutcomeStatus{}
			for _, o := range run.Outcomes {
				statuses[o.Asset.Source] = o.Status
			}
			require.Len(statuses, len(test.expStatuses))
			for i, a := range test.manifest.Assets {
				assert.Equal(test.expStatuses[i], statuses[a.Source], a.Source)
			}

			got, err := client.GetRun(context.Background(), run.ID)
			require.NoError(err)
			assert.Equal(run.ID, got.ID)
			assert.Equal(test.manifest.Name, got.ManifestName)
			assert.Len(got.Outcomes, len(test.expStatuses))
		})
	}
}

func TestFontFamilies(t *testing.T) {
	client := newClient(t, lib.Config{NoHistory: true, BaseFS: testFS(t)})

	_, err := client.Preload(context.Background(), lib.Manifest{
		Assets: []lib.Asset{{Kind: lib.AssetKindFont, Source: "fonts/club.ttf", FontFamily: "Club Lib Serif"}},
	}, lib.PreloadOpts{})
	require.NoError(t, err)

	assert.Contains(t, client.FontFamilies(), "Club Lib Serif")
}

func TestLoadManifest(t *testing.T) {
	client := newClient(t, lib.Config{NoHistory: true})

	m, err := client.LoadManifest(context.Background(), testFS(t), "manifests/home.yaml")
	require.NoError(t, err)

	exp := lib.Manifest{
		Name: "home",
		Assets: []lib.Asset{
			{Kind: lib.AssetKindImage, Source: "img/hero.png"},
			{Kind: lib.AssetKindFont, Source: "fonts/club.ttf", FontFamily: "Club Lib Sans"},
		},
	}
	assert.Equal(t, exp, m)

	_, err = client.LoadManifest(context.Background(), testFS(t), "manifests/missing.yaml")
	assert.Error(t, err)
}

func TestSessionTeardown(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	client := newClient(t, lib.Config{
		NoHistory:   true,
		BaseFS:      testFS(t),
		SettleDelay: time.Hour,
	})

	called := make(chan struct{}, 1)
	session, err := client.Start(context.Background(), lib.Manifest{
		Assets: []lib.Asset{{Kind: lib.AssetKindImage, Source: "img/hero.png"}},
	}, lib.PreloadOpts{OnReady: func() { called <- struct{}{} }})
	require.NoError(err)
	assert.NotEmpty(session.ID())

	require.Eventually(func() bool { return session.Progress().Completed == 1 }, 5*time.Second, 5*time.Millisecond)
	session.Teardown()
	session.Teardown()

	run, err := session.Wait(context.Background())
	assert.Error(err)
	assert.True(run.Cancelled)
	assert.False(run.Progress.Ready)

	select {
	case <-called:
		assert.Fail("ready signal fired after teardown")
	case <-session.Done():
		assert.Fail("session done after teardown")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPreloadCancelled(t *testing.T) {
	client := newClient(t, lib.Config{
		BaseFS:      testFS(t),
		SettleDelay: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	run, err := client.Preload(ctx, lib.Manifest{
		Name:   "slow",
		Assets: []lib.Asset{{Kind: lib.AssetKindImage, Source: "img/hero.png"}},
	}, lib.PreloadOpts{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, run.Cancelled)

	// Interrupted runs are recorded too.
	runs, err := client.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.True(t, runs[0].Cancelled)
}

func TestGetRunMissing(t *testing.T) {
	client := newClient(t, lib.Config{NoHistory: true})

	_, err := client.GetRun(context.Background(), "01JAAAAAAAAAAAAAAAAAAAAAAA")
	assert.ErrorIs(t, err, lib.ErrNotFound)
}

// heldFS blocks opening files until release is closed.
type heldFS struct {
	fstest.MapFS
	release chan struct{}
}

func (h heldFS) Open(name string) (fs.File, error) {
	if strings.HasPrefix(name, "img/") {
		<-h.release
	}
	return h.MapFS.Open(name)
}

func TestSessionTeardownFromProgress(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	release := make(chan struct{})
	client := newClient(t, lib.Config{
		NoHistory: true,
		BaseFS:    heldFS{MapFS: testFS(t), release: release},
	})

	var (
		session atomic.Pointer[lib.Session]
		ready   atomic.Int32
	)
	tornDown := make(chan struct{})
	s, err := client.Start(context.Background(), lib.Manifest{
		Assets: []lib.Asset{
			{Kind: lib.AssetKindImage, Source: "img/missing.png"},
			{Kind: lib.AssetKindImage, Source: "img/hero.png"},
		},
	}, lib.PreloadOpts{
		OnProgress: func(p lib.Progress) {
			if p.Completed == 1 {
				session.Load().Teardown()
				close(tornDown)
			}
		},
		OnReady: func() { ready.Add(1) },
	})
	require.NoError(err)
	session.Store(s)
	close(release)

	select {
	case <-tornDown:
	case <-time.After(5 * time.Second):
		require.FailNow("teardown from a progress callback blocked")
	}

	run, err := s.Wait(context.Background())
	assert.Error(err)
	assert.True(run.Cancelled)
	assert.Equal(1, run.Progress.Completed)
	assert.Equal(int32(0), ready.Load())
}
