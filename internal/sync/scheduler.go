package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// maxSessionEntries caps the in-memory cycle history.
const maxSessionEntries = 500

// SessionEntry records the outcome of one cycle for the status view.
type SessionEntry struct {
	Start    time.Time
	Duration time.Duration
	Counts   Counts
	Err      string
}

// Scheduler runs cycles in the background at a fixed interval, backing
// off to a shorter retry interval after a failed cycle. Scheduled and
// manual cycles are serialized through a single-flight mutex.
type Scheduler struct {
	runner        func(ctx context.Context) (Counts, error)
	interval      time.Duration
	retryInterval time.Duration
	logger        *slog.Logger

	cycleMu sync.Mutex // single-flight: one cycle at a time

	mu      sync.Mutex // guards running, stopped, stop, done
	running bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}

	logMu   sync.Mutex
	entries []SessionEntry
}

// NewScheduler creates a scheduler driving the given engine.
func NewScheduler(engine *Engine, interval, retryInterval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		runner:        engine.RunCycle,
		interval:      interval,
		retryInterval: retryInterval,
		logger:        logger,
	}
}

// Start launches the background loop. Calling Start while the loop is
// already running, or after Stop, is a no-op; a stopped scheduler is
// terminal and cannot be restarted. The first cycle runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		s.logger.Debug("scheduler not startable",
			slog.Bool("running", s.running),
			slog.Bool("stopped", s.stopped),
		)

		return
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stop, s.done)

	s.logger.Info("scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("retry_interval", s.retryInterval),
	)
}

// Stop signals the loop and waits for it to exit. A cycle already in
// flight runs to completion; Stop only prevents the next one. Stop is
// terminal: a later Start does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()

	s.stopped = true

	if !s.running {
		s.mu.Unlock()

		return
	}

	close(s.stop)
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	s.logger.Info("scheduler stopped")
}

// SyncNow runs one cycle immediately, waiting for any in-flight
// scheduled cycle to finish first.
func (s *Scheduler) SyncNow(ctx context.Context) (Counts, error) {
	return s.runOnce(ctx)
}

// Log returns a copy of the recorded cycle history, newest last.
func (s *Scheduler) Log() []SessionEntry {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	out := make([]SessionEntry, len(s.entries))
	copy(out, s.entries)

	return out
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	for {
		_, err := s.runOnce(ctx)

		wait := s.interval
		if err != nil {
			wait = s.retryInterval
			s.logger.Warn("cycle failed, retrying sooner",
				slog.Duration("retry_in", wait),
				slog.String("error", err.Error()),
			)
		}

		timer := time.NewTimer(wait)

		select {
		case <-stop:
			timer.Stop()

			return
		case <-ctx.Done():
			timer.Stop()

			return
		case <-timer.C:
		}
	}
}

// runOnce executes one cycle under the single-flight mutex and records
// the outcome in the session log.
func (s *Scheduler) runOnce(ctx context.Context) (Counts, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	counts, err := s.runner(ctx)

	entry := SessionEntry{
		Start:    start,
		Duration: time.Since(start),
		Counts:   counts,
	}
	if err != nil {
		entry.Err = err.Error()
	}

	s.logMu.Lock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > maxSessionEntries {
		s.entries = s.entries[len(s.entries)-maxSessionEntries:]
	}
	s.logMu.Unlock()

	return counts, err
}
