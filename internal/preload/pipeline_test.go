package preload_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/preload/internal/loader"
	"github.com/slok/preload/internal/loader/loadermock"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/preload"
)

func images(n int) model.Manifest {
	m := model.Manifest{Name: "test"}
	for i := range n {
		m.Assets = append(m.Assets, model.AssetDescriptor{Kind: model.AssetKindImage, Source: fmt.Sprintf("img/%d.png", i)})
	}
	return m
}

// controlledLoader settles each asset only when its release channel is closed.
type controlledLoader struct {
	release map[string]chan struct{}
	fail    map[string]bool
}

func newControlledLoader(m model.Manifest) *controlledLoader {
	c := &controlledLoader{release: map[string]chan struct{}{}, fail: map[string]bool{}}
	for _, a := range m.Assets {
		c.release[a.Source] = make(chan struct{})
	}
	return c
}

func (c *controlledLoader) Load(ctx context.Context, a model.AssetDescriptor) model.LoadOutcome {
	select {
	case <-c.release[a.Source]:
	case <-ctx.Done():
		return model.LoadOutcome{Descriptor: a, Err: ctx.Err().Error()}
	}
	if c.fail[a.Source] {
		return model.LoadOutcome{Descriptor: a, Err: "boom"}
	}
	return model.LoadOutcome{Descriptor: a, Succeeded: true}
}

func newPipeline(t *testing.T, cfg preload.PipelineConfig) *preload.Pipeline {
	t.Helper()
	p, err := preload.NewPipeline(cfg)
	require.NoError(t, err)
	return p
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPipelineConfig(t *testing.T) {
	tests := map[string]struct {
		cfg    preload.PipelineConfig
		expErr bool
	}{
		"A missing loader should fail.": {
			cfg:    preload.PipelineConfig{},
			expErr: true,
		},

		"A negative concurrency should fail.": {
			cfg:    preload.PipelineConfig{Loader: loader.Noop, MaxConcurrency: -1},
			expErr: true,
		},

		"A loader should be enough.": {
			cfg: preload.PipelineConfig{Loader: loader.Noop},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := preload.NewPipeline(test.cfg)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPipelineSettlesAnyMixOfOutcomes(t *testing.T) {
	tests := map[string]struct {
		manifest model.Manifest
		loader   loader.Loader
		expState model.ProgressState
		expLoads map[model.OutcomeStatus]int
	}{
		"All assets succeeding should complete.": {
			manifest: images(4),
			loader:   loader.Noop,
			expState: model.ProgressState{Completed: 4, Total: 4, Percent: 100, Done: true},
			expLoads: map[model.OutcomeStatus]int{model.OutcomeStatusLoaded: 4, model.OutcomeStatusFailed: 0, model.OutcomeStatusTimedOut: 0},
		},

		"All assets failing should complete.": {
			manifest: images(3),
			loader: loader.LoaderFunc(func(_ context.Context, a model.AssetDescriptor) model.LoadOutcome {
				return model.LoadOutcome{Descriptor: a, Err: "network down"}
			}),
			expState: model.ProgressState{Completed: 3, Total: 3, Percent: 100, Done: true},
			expLoads: map[model.OutcomeStatus]int{model.OutcomeStatusLoaded: 0, model.OutcomeStatusFailed: 3, model.OutcomeStatusTimedOut: 0},
		},

		"A mix of success, failure and timeouts should complete.": {
			manifest: images(6),
			loader: loader.LoaderFunc(func(_ context.Context, a model.AssetDescriptor) model.LoadOutcome {
				switch a.Source {
				case "img/0.png", "img/1.png":
					return model.LoadOutcome{Descriptor: a, Err: "decode error"}
				case "img/2.png":
					return model.LoadOutcome{Descriptor: a, Succeeded: true, TimedOut: true}
				default:
					return model.LoadOutcome{Descriptor: a, Succeeded: true}
				}
			}),
			expState: model.ProgressState{Completed: 6, Total: 6, Percent: 100, Done: true},
			expLoads: map[model.OutcomeStatus]int{model.OutcomeStatusLoaded: 3, model.OutcomeStatusFailed: 2, model.OutcomeStatusTimedOut: 1},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			var calls atomic.Int32
			p := newPipeline(t, preload.PipelineConfig{Loader: test.loader, SettleDelay: 10 * time.Millisecond})

			report, err := p.Run(waitCtx(t), test.manifest, func() { calls.Add(1) })
			require.NoError(err)

			assert.Equal(test.expState, report.State)
			assert.Len(report.Run.Outcomes, len(test.manifest.Assets))
			assert.Equal(test.expLoads, report.Run.Summary())
			assert.Equal(int32(1), calls.Load())
			assert.False(report.Run.Forced)
			assert.False(report.Run.Cancelled)
			assert.NotEmpty(report.Run.ID)
		})
	}
}

func TestPipelineEmptyManifest(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	// The mock has no expectations, any load would fail the test.
	l := loadermock.NewMockLoader(t)

	var calls atomic.Int32
	p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: -1})

	s, err := p.Start(waitCtx(t), model.Manifest{}, func() { calls.Add(1) })
	require.NoError(err)
	assert.Equal(100, s.State().Percent)

	report, err := s.Wait(waitCtx(t))
	require.NoError(err)
	assert.Equal(model.ProgressState{Percent: 100, Done: true}, report.State)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(int32(1), calls.Load())
}

func TestPipelineSettlementOrderIndependence(t *testing.T) {
	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
		{1, 3, 0, 2},
	}

	var states []model.ProgressState
	for _, order := range orders {
		m := images(4)
		l := newControlledLoader(m)
		l.fail["img/1.png"] = true

		p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: -1})
		s, err := p.Start(waitCtx(t), m, nil)
		require.NoError(t, err)

		for i, idx := range order {
			close(l.release[m.Assets[idx].Source])
			require.Eventually(t, func() bool { return s.State().Completed == i+1 }, time.Second, time.Millisecond)
		}

		report, err := s.Wait(waitCtx(t))
		require.NoError(t, err)
		assert.Equal(t, 1, report.Run.Summary()[model.OutcomeStatusFailed])
		states = append(states, report.State)
	}

	for _, st := range states {
		assert.Equal(t, model.ProgressState{Completed: 4, Total: 4, Percent: 100, Done: true}, st)
	}
}

func TestPipelineMonotonicProgress(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var (
		mu     sync.Mutex
		states []model.ProgressState
	)
	observer := func(s model.ProgressState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	l := loader.LoaderFunc(func(_ context.Context, a model.AssetDescriptor) model.LoadOutcome {
		time.Sleep(time.Millisecond)
		return model.LoadOutcome{Descriptor: a, Succeeded: true}
	})
	p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: -1})

	_, err := p.Run(waitCtx(t), images(50), nil, observer)
	require.NoError(err)

	mu.Lock()
	defer mu.Unlock()

	// 50 settlements plus the done transition.
	require.Len(states, 51)
	for i := 1; i < len(states); i++ {
		assert.GreaterOrEqual(states[i].Completed, states[i-1].Completed)
		assert.GreaterOrEqual(states[i].Percent, states[i-1].Percent)
	}
	assert.True(states[len(states)-1].Done)
}

func TestPipelineTeardownAfterHalfSettled(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := images(4)
	l := newControlledLoader(m)

	var calls atomic.Int32
	p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: 50 * time.Millisecond})
	s, err := p.Start(waitCtx(t), m, func() { calls.Add(1) })
	require.NoError(err)

	close(l.release["img/0.png"])
	close(l.release["img/1.png"])
	require.Eventually(func() bool { return s.State().Completed == 2 }, time.Second, time.Millisecond)

	s.Teardown()
	s.Teardown()

	// Late settlements after teardown must not write.
	close(l.release["img/2.png"])
	close(l.release["img/3.png"])
	time.Sleep(150 * time.Millisecond)

	assert.Equal(model.ProgressState{Completed: 2, Total: 4, Percent: 50}, s.State())
	assert.Equal(int32(0), calls.Load())

	report, err := s.Wait(waitCtx(t))
	assert.ErrorIs(err, preload.ErrTornDown)
	assert.True(report.Run.Cancelled)
	assert.Len(report.Run.Outcomes, 2)
}

func TestPipelineTeardownFromObserver(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := images(3)
	l := newControlledLoader(m)

	var (
		calls   atomic.Int32
		session atomic.Pointer[preload.Session]
	)
	tornDown := make(chan struct{})
	abort := func(state model.ProgressState) {
		if state.Completed == 1 {
			session.Load().Teardown()
			close(tornDown)
		}
	}

	p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: -1})
	s, err := p.Start(waitCtx(t), m, func() { calls.Add(1) }, abort)
	require.NoError(err)
	session.Store(s)

	close(l.release["img/0.png"])
	select {
	case <-tornDown:
	case <-time.After(time.Second):
		require.FailNow("teardown from an observer blocked")
	}

	close(l.release["img/1.png"])
	close(l.release["img/2.png"])

	report, err := s.Wait(waitCtx(t))
	assert.ErrorIs(err, preload.ErrTornDown)
	assert.True(report.Run.Cancelled)
	assert.Equal(1, report.State.Completed)
	assert.Equal(int32(0), calls.Load())
}

func TestPipelineTeardownDuringSettleDelay(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var calls atomic.Int32
	p := newPipeline(t, preload.PipelineConfig{Loader: loader.Noop, SettleDelay: 100 * time.Millisecond})
	s, err := p.Start(waitCtx(t), images(2), func() { calls.Add(1) })
	require.NoError(err)

	require.Eventually(func() bool { return s.State().Completed == 2 }, time.Second, time.Millisecond)
	s.Teardown()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(int32(0), calls.Load())
	assert.False(s.State().Done)
}

func TestPipelineDoneOnlyWhenHandlerDelivered(t *testing.T) {
	p := newPipeline(t, preload.PipelineConfig{Loader: loader.Noop, SettleDelay: -1})

	// Teardown races with the gate firing right after completion.
	for range 200 {
		var calls atomic.Int32
		s, err := p.Start(waitCtx(t), images(1), func() { calls.Add(1) })
		require.NoError(t, err)

		s.Teardown()

		_, err = s.Wait(waitCtx(t))
		if err == nil {
			select {
			case <-s.Done():
			case <-time.After(time.Second):
				require.FailNow(t, "completed session never done")
			}
			assert.Equal(t, int32(1), calls.Load())
			continue
		}

		require.ErrorIs(t, err, preload.ErrTornDown)
		time.Sleep(time.Millisecond)
		select {
		case <-s.Done():
			assert.Fail(t, "torn down session is done")
		default:
		}
		assert.Equal(t, int32(0), calls.Load())
	}
}

func TestPipelineContextCancelTearsDown(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := images(2)
	l := newControlledLoader(m)

	var calls atomic.Int32
	p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: -1})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := p.Start(ctx, m, func() { calls.Add(1) })
	require.NoError(err)

	cancel()

	_, err = s.Wait(waitCtx(t))
	assert.ErrorIs(err, preload.ErrTornDown)
	assert.Equal(int32(0), calls.Load())
	assert.Equal(0, s.State().Completed)
}

func TestPipelineLoaderTimeoutForcesSettlement(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	// The underlying load event never fires.
	never := loader.LoaderFunc(func(ctx context.Context, a model.AssetDescriptor) model.LoadOutcome {
		<-ctx.Done()
		return model.LoadOutcome{Descriptor: a, Err: ctx.Err().Error()}
	})
	l := loader.NewTimeoutLoader(never, 50*time.Millisecond)
	p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: -1})

	start := time.Now()
	report, err := p.Run(waitCtx(t), images(1), nil)
	require.NoError(err)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(elapsed, 50*time.Millisecond)
	assert.Less(elapsed, 2*time.Second)
	assert.Equal(model.ProgressState{Completed: 1, Total: 1, Percent: 100, Done: true}, report.State)
	require.Len(report.Run.Outcomes, 1)
	assert.True(report.Run.Outcomes[0].TimedOut)
	assert.False(report.Run.Forced)
}

func TestPipelineSafetyTimeout(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := images(3)
	l := newControlledLoader(m)
	close(l.release["img/0.png"])

	var calls atomic.Int32
	p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: -1, SafetyTimeout: 50 * time.Millisecond})

	report, err := p.Run(waitCtx(t), m, func() { calls.Add(1) })
	require.NoError(err)

	assert.True(report.Run.Forced)
	assert.Equal(model.ProgressState{Completed: 3, Total: 3, Percent: 100, Done: true}, report.State)
	assert.Equal(int32(1), calls.Load())
}

func TestPipelineMaxConcurrency(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var current, peak atomic.Int32
	l := loader.LoaderFunc(func(_ context.Context, a model.AssetDescriptor) model.LoadOutcome {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return model.LoadOutcome{Descriptor: a, Succeeded: true}
	})

	p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: -1, MaxConcurrency: 2})
	report, err := p.Run(waitCtx(t), images(10), nil)
	require.NoError(err)

	assert.Equal(10, report.State.Completed)
	assert.LessOrEqual(peak.Load(), int32(2))
}

func TestPipelineThreeImagesScenario(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	l := loader.LoaderFunc(func(_ context.Context, a model.AssetDescriptor) model.LoadOutcome {
		if a.Source == "img/2.png" {
			return model.LoadOutcome{Descriptor: a, Err: "404"}
		}
		return model.LoadOutcome{Descriptor: a, Succeeded: true}
	})

	const delay = 80 * time.Millisecond
	var (
		calls   atomic.Int32
		firedAt atomic.Int64
	)
	p := newPipeline(t, preload.PipelineConfig{Loader: l, SettleDelay: delay})

	start := time.Now()
	s, err := p.Start(waitCtx(t), images(3), func() {
		calls.Add(1)
		firedAt.Store(int64(time.Since(start)))
	})
	require.NoError(err)

	report, err := s.Wait(waitCtx(t))
	require.NoError(err)

	assert.Equal(model.ProgressState{Completed: 3, Total: 3, Percent: 100, Done: true}, report.State)
	assert.Equal(int32(1), calls.Load())
	assert.GreaterOrEqual(time.Duration(firedAt.Load()), delay)
}
