package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/preload/internal/log"
)

func TestSourcesDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: x\n"), 0644))

	tests := map[string]struct {
		baseDir      string
		manifestPath string
		expDir       string
		expErr       bool
	}{
		"Without base dir, the manifest directory should be used.": {
			manifestPath: file,
			expDir:       dir,
		},

		"A base dir should be used when set.": {
			baseDir:      dir,
			manifestPath: "/somewhere/else/manifest.yaml",
			expDir:       dir,
		},

		"A missing base dir should fail.": {
			baseDir:      filepath.Join(dir, "missing"),
			manifestPath: file,
			expErr:       true,
		},

		"A base dir that is a file should fail.": {
			baseDir:      file,
			manifestPath: file,
			expErr:       true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := sourcesDir(test.baseDir, test.manifestPath)
			if test.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expDir, got)
		})
	}
}

func TestNewManifestRepository(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: club\nassets:\n  - kind: image\n    source: a.png\n"), 0644))

	repo, name, err := newManifestRepository(file, log.Noop)
	require.NoError(t, err)
	assert.Equal(t, "manifest.yaml", name)

	m, err := repo.GetManifest(context.Background(), name)
	require.NoError(t, err)
	assert.Equal(t, "club", m.Name)
	assert.Len(t, m.Assets, 1)
}
