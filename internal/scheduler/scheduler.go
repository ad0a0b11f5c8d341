// Package scheduler debounces embedding cache rebuild requests into single background jobs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/logger"
	"github.com/kozaktomas/face-sorter/internal/refcache"
)

// DefaultDebounce is the quiet period before a requested rebuild runs
const DefaultDebounce = 200 * time.Millisecond

// Rebuilder recomputes the cache for a scope
type Rebuilder interface {
	Rebuild(ctx context.Context, scope refcache.Scope) (*refcache.RebuildStats, error)
}

// Result reports the outcome of one executed rebuild job
type Result struct {
	Scope    refcache.Scope
	Stats    *refcache.RebuildStats
	Err      error
	Duration time.Duration
}

// Scheduler coalesces rebuild requests. Each request resets the debounce timer
// and widens the pending scope; when the timer fires one job runs in the
// background. Requests that fire while a job is running stay pending and are
// re-armed once it finishes, so at most one rebuild executes at a time.
type Scheduler struct {
	rebuilder  Rebuilder
	clock      Clock
	debounce   time.Duration
	logger     *zap.Logger
	onComplete func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	pending   *refcache.Scope
	timer     Timer
	gen       uint64 // invalidates timers that were stopped too late
	running   bool
	flushNext bool
	closed    bool
	executed  int
	changed   chan struct{}
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the real clock, mainly for tests
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithDebounce sets the quiet period
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithOnComplete registers a callback invoked from the worker goroutine after each job
func WithOnComplete(fn func(Result)) Option {
	return func(s *Scheduler) {
		s.onComplete = fn
	}
}

// New creates a scheduler; call Close to release it
func New(rebuilder Rebuilder, log *zap.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		rebuilder: rebuilder,
		clock:     RealClock(),
		debounce:  DefaultDebounce,
		logger:    logger.OrNop(log).Named("scheduler"),
		ctx:       ctx,
		cancel:    cancel,
		changed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestRebuild marks scope stale. It never blocks on a running rebuild.
func (s *Scheduler) RequestRebuild(scope refcache.Scope) {
	if scope.IsEmpty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("rebuild request after close ignored", zap.Stringer("scope", scope))
		return
	}

	if s.pending == nil {
		s.pending = &scope
	} else {
		merged := s.pending.Union(scope)
		s.pending = &merged
	}
	s.logger.Debug("rebuild requested", zap.Stringer("scope", scope), zap.Stringer("pending", *s.pending))

	s.armLocked()
}

// armLocked (re)starts the debounce timer
func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen {
		return
	}
	s.timer = nil
	if s.running {
		// Re-armed when the running job finishes.
		s.logger.Debug("rebuild already running, request queued")
		return
	}
	s.startLocked()
}

// startLocked launches the worker for the pending scope
func (s *Scheduler) startLocked() {
	if s.pending == nil {
		return
	}
	scope := *s.pending
	s.pending = nil
	s.running = true
	s.wg.Add(1)
	go s.run(scope)
}

func (s *Scheduler) run(scope refcache.Scope) {
	defer s.wg.Done()

	start := time.Now()
	stats, err := s.rebuilder.Rebuild(s.ctx, scope)
	result := Result{Scope: scope, Stats: stats, Err: err, Duration: time.Since(start)}

	if err != nil {
		s.logger.Error("rebuild failed", zap.Stringer("scope", scope), zap.Error(err))
	} else {
		s.logger.Debug("rebuild finished", zap.Stringer("scope", scope), zap.Duration("duration", result.Duration))
	}

	if s.onComplete != nil {
		s.onComplete(result)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.executed++
	if s.pending != nil && !s.closed {
		switch {
		case s.flushNext:
			s.flushNext = false
			if s.timer != nil {
				s.timer.Stop()
				s.gen++
				s.timer = nil
			}
			s.startLocked()
		case s.timer == nil:
			s.armLocked()
		}
	}
	s.broadcastLocked()
}

// Flush runs the pending request now instead of waiting for the quiet period.
// If a job is running, the pending request starts as soon as it finishes.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pending == nil {
		return
	}
	if s.running {
		s.flushNext = true
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.gen++
		s.timer = nil
	}
	s.startLocked()
}

// Wait blocks until nothing is pending or running
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if (s.pending == nil || s.closed) && !s.running {
			s.mu.Unlock()
			return nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending reports whether a request is waiting or a job is running
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil || s.running
}

// Executed returns the number of rebuild jobs that have finished
func (s *Scheduler) Executed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed
}

// Close drops pending requests, cancels a running job and waits for it to exit
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.cancel()
	s.broadcastLocked()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
