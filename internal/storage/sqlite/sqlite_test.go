package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/storage/sqlite"
)

func runFixture(id string, startedAt time.Time) model.Run {
	return model.Run{
		ID:           id,
		ManifestName: "club-home",
		StartedAt:    startedAt,
		FinishedAt:   startedAt.Add(1500 * time.Millisecond),
		Total:        3,
		Completed:    3,
		Outcomes: []model.LoadOutcome{
			{
				Descriptor: model.AssetDescriptor{Kind: model.AssetKindImage, Source: "img/logo.png"},
				Succeeded:  true,
				Elapsed:    120 * time.Millisecond,
				Bytes:      2048,
			},
			{
				Descriptor: model.AssetDescriptor{Kind: model.AssetKindFont, Source: "fonts/mono.ttf", FontFamily: "Mono"},
				Err:        "could not parse font",
				Elapsed:    30 * time.Millisecond,
				Bytes:      12,
			},
			{
				Descriptor: model.AssetDescriptor{Kind: model.AssetKindVideo, Source: "https://cdn.example.com/intro.mp4"},
				Succeeded:  true,
				TimedOut:   true,
				Elapsed:    20 * time.Second,
			},
		},
	}
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestNewRepositoryRequiresDBPath(t *testing.T) {
	_, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{})
	assert.Error(t, err)
}

func TestRepositoryCreateAndGetRun(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Date(2024, 5, 10, 18, 30, 0, 123456789, time.UTC)
	run := runFixture("run-1", now)
	require.NoError(t, repo.CreateRun(ctx, run))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, *got)
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
}

func TestRepositoryRunWithoutOutcomes(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	run := model.Run{
		ID:        "run-empty",
		StartedAt: time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC),
		Cancelled: true,
	}
	require.NoError(t, repo.CreateRun(ctx, run))

	got, err := repo.GetRun(ctx, "run-empty")
	require.NoError(t, err)
	assert.Equal(t, run, *got)
	assert.True(t, got.FinishedAt.IsZero())
}

func TestRepositoryListRuns(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	base := time.Date(2024, 5, 10, 18, 30, 0, 0, time.UTC)
	require.NoError(t, repo.CreateRun(ctx, runFixture("run-1", base)))
	require.NoError(t, repo.CreateRun(ctx, runFixture("run-3", base.Add(2*time.Minute))))
	require.NoError(t, repo.CreateRun(ctx, runFixture("run-2", base.Add(time.Minute))))

	runs, err := repo.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
	assert.Equal(t, "run-1", runs[2].ID)
	for _, r := range runs {
		assert.Len(t, r.Outcomes, 3)
		assert.Equal(t, "img/logo.png", r.Outcomes[0].Descriptor.Source)
	}
}

func TestRepositoryConstraints(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now().UTC()
	require.NoError(t, repo.CreateRun(ctx, runFixture("run-1", now)))

	err := repo.CreateRun(ctx, runFixture("run-1", now))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	err = repo.CreateRun(ctx, runFixture("", now))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotValid))

	_, err = repo.GetRun(ctx, "run-x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	// A failed insert should not leave a partial run behind.
	runs, err := repo.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRepositoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "preload.db")

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(t, err)
	require.NoError(t, repo.CreateRun(ctx, runFixture("run-1", time.Now().UTC())))
	require.NoError(t, repo.Close())

	repo, err = sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "club-home", got.ManifestName)
}
