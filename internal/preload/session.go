package preload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/slok/preload/internal/gate"
	"github.com/slok/preload/internal/log"
	"github.com/slok/preload/internal/model"
	"github.com/slok/preload/internal/progress"
)

// ErrTornDown is returned when waiting on a session that has been torn down before
// completing.
var ErrTornDown = errors.New("preload session torn down")

// Report is the result of a preload session.
type Report struct {
	Run   model.Run
	State model.ProgressState
}

// Session is a single preload run. Its progress state is only written through the
// aggregator and every write stops once the session is torn down.
type Session struct {
	id         string
	manifest   model.Manifest
	aggregator *progress.Aggregator
	gate       *gate.Gate
	span       trace.Span
	logger     log.Logger

	cancelLoads  context.CancelFunc
	safetyTimer  *time.Timer
	startedAt    time.Time
	stopped      chan struct{}
	ready        chan struct{}
	teardownOnce sync.Once
	releaseOnce  sync.Once

	mu           sync.Mutex
	stopCtxWatch func() bool
	outcomes     []model.LoadOutcome
	forced       bool
	cancelled    bool
	tornDown     bool
	finishedAt   time.Time
}

func newSession(ctx context.Context, p *Pipeline, manifest model.Manifest, onComplete func(), observers []progress.Observer) (*Session, error) {
	id := ulid.Make().String()
	total := len(manifest.Assets)

	ctx, span := p.tracer.Start(ctx, "preload.Session", trace.WithAttributes(
		attribute.String("run.id", id),
		attribute.String("manifest.name", manifest.Name),
		attribute.Int("manifest.assets", total),
	))

	s := &Session{
		id:         id,
		manifest:   manifest,
		aggregator: progress.NewAggregator(total),
		span:       span,
		logger:     p.logger.WithValues(log.Kv{"run-id": id}),
		startedAt:  time.Now().UTC(),
		stopped:    make(chan struct{}),
		ready:      make(chan struct{}),
	}

	g, err := gate.New(gate.Config{
		SettleDelay: p.settleDelay,
		Handler:     func() { s.complete(onComplete) },
		Logger:      s.logger,
	})
	if err != nil {
		span.End()
		return nil, fmt.Errorf("could not create completion gate: %w", err)
	}
	s.gate = g

	for _, o := range observers {
		s.aggregator.Subscribe(o)
	}
	s.aggregator.Subscribe(s.gate.Observe)

	// Loads are only cancelled by the session, a cancelled ctx goes through Teardown first.
	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelLoads = cancel
	if p.safetyTimeout > 0 && total > 0 {
		s.safetyTimer = time.AfterFunc(p.safetyTimeout, s.forceComplete)
	}

	// From here on callbacks can run concurrently.
	stop := context.AfterFunc(ctx, s.Teardown)
	s.mu.Lock()
	s.stopCtxWatch = stop
	s.mu.Unlock()

	s.logger.Infof("Preloading %d assets", total)

	// An empty manifest is complete from the start.
	s.gate.Observe(s.aggregator.State())
	if total == 0 {
		return s, nil
	}

	var sem *semaphore.Weighted
	if p.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(p.maxConcurrency))
	}

	for _, asset := range manifest.Assets {
		go func() {
			if sem != nil {
				if err := sem.Acquire(loadCtx, 1); err != nil {
					s.record(model.LoadOutcome{Descriptor: asset, Err: err.Error()})
					return
				}
				defer sem.Release(1)
			}
			s.record(p.loader.Load(loadCtx, asset))
		}()
	}

	return s, nil
}

// ID returns the session run ID.
func (s *Session) ID() string { return s.id }

// State returns the current progress state.
func (s *Session) State() model.ProgressState { return s.aggregator.State() }

// Done is closed once the completion handler has been called. It's never closed when
// the session is torn down before completing, even if the gate had already fired.
func (s *Session) Done() <-chan struct{} { return s.ready }

// Wait blocks until the session is done, torn down or ctx ends, whatever happens first.
func (s *Session) Wait(ctx context.Context) (Report, error) {
	// Completion wins over teardown.
	select {
	case <-s.ready:
		return s.finalReport()
	default:
	}

	select {
	case <-s.ready:
		return s.finalReport()
	case <-s.stopped:
		// Teardown after MarkDone still counts as completed.
		return s.finalReport()
	case <-ctx.Done():
		s.Teardown()
		return s.Report(), ctx.Err()
	}
}

func (s *Session) finalReport() (Report, error) {
	r := s.Report()
	if !r.State.Done {
		return r, ErrTornDown
	}
	return r, nil
}

// Teardown stops the session. Pending loads are cancelled, their late settlements are
// ignored and the completion handler will not be called if it had not fired yet.
func (s *Session) Teardown() {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.tornDown = true
		s.mu.Unlock()

		// Liveness first so no scheduled callback can write after this point.
		s.aggregator.Stop()
		s.gate.Cancel()
		s.release()

		// Done can't change once the aggregator is stopped.
		if state := s.aggregator.State(); !state.Done {
			s.mu.Lock()
			s.cancelled = true
			s.finishedAt = time.Now().UTC()
			s.mu.Unlock()
			s.logger.Infof("Preload torn down before completion (%d/%d settled)", state.Completed, state.Total)
			s.span.AddEvent("torn-down")
			s.span.End()
		}

		close(s.stopped)
	})
}

// Report returns the current report of the session.
func (s *Session) Report() Report {
	state := s.aggregator.State()

	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes := make([]model.LoadOutcome, len(s.outcomes))
	copy(outcomes, s.outcomes)

	return Report{
		Run: model.Run{
			ID:           s.id,
			ManifestName: s.manifest.Name,
			StartedAt:    s.startedAt,
			FinishedAt:   s.finishedAt,
			Total:        state.Total,
			Completed:    state.Completed,
			Forced:       s.forced,
			Cancelled:    s.cancelled,
			Outcomes:     outcomes,
		},
		State: state,
	}
}

func (s *Session) record(outcome model.LoadOutcome) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.outcomes = append(s.outcomes, outcome)
	s.mu.Unlock()

	if state, ok := s.aggregator.RecordSettlement(); ok {
		s.logger.Debugf("Progress %d%% (%d/%d)", state.Percent, state.Completed, state.Total)
	}
}

func (s *Session) forceComplete() {
	state, ok := s.aggregator.ForceComplete()
	if !ok {
		return
	}

	s.mu.Lock()
	s.forced = true
	s.mu.Unlock()

	s.logger.Warningf("Safety timeout reached, forcing completion (%d assets)", state.Total)
	s.span.AddEvent("safety-timeout")

	// Stalled loads are no longer needed.
	s.cancelLoads()
}

// complete is the gate handler, it runs once.
func (s *Session) complete(onComplete func()) {
	state, ok := s.aggregator.MarkDone()
	if !ok {
		// Torn down between the gate firing and now.
		return
	}

	s.mu.Lock()
	s.finishedAt = time.Now().UTC()
	s.mu.Unlock()

	s.release()
	s.span.SetAttributes(attribute.Int("run.completed", state.Completed))
	s.span.End()
	s.logger.Infof("Preload done (%d/%d)", state.Completed, state.Total)

	defer close(s.ready)
	if onComplete != nil {
		onComplete()
	}
}

// release frees the session resources, it's safe to call multiple times.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.cancelLoads()
		if s.safetyTimer != nil {
			s.safetyTimer.Stop()
		}

		s.mu.Lock()
		stop := s.stopCtxWatch
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
}
