package authlife

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
)

// RotationScheduler fires a callback once per interval on its own goroutine.
// Start arms a single timer; Stop cancels it and waits for an in-flight
// firing to finish, so no firing happens after Stop returns.
type RotationScheduler struct {
	clock    clock.Clock
	interval time.Duration
	fire     func(ctx context.Context)
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	next    time.Time
}

func newRotationScheduler(clk clock.Clock, interval time.Duration, fire func(context.Context), logger *slog.Logger) *RotationScheduler {
	return &RotationScheduler{
		clock:    clk,
		interval: interval,
		fire:     fire,
		logger:   logger,
	}
}

// Start arms the timer. Starting a running scheduler is a no-op.
func (s *RotationScheduler) Start() error {
	if s.interval <= 0 {
		return ErrRotationDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	s.next = s.clock.Now().Add(s.interval)

	timer := s.clock.NewTimer(s.interval)
	go s.loop(ctx, timer, done)

	s.logger.Info("automatic rotation started", slog.Duration("interval", s.interval))
	return nil
}

func (s *RotationScheduler) loop(ctx context.Context, timer clock.Timer, done chan struct{}) {
	defer close(done)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		}

		// Stop may have raced with the timer firing.
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx)
		if ctx.Err() != nil {
			return
		}

		timer.Reset(s.interval)
		s.setNext(s.clock.Now().Add(s.interval))
	}
}

func (s *RotationScheduler) setNext(t time.Time) {
	s.mu.Lock()
	s.next = t
	s.mu.Unlock()
}

// Stop cancels the timer and waits for the loop to exit. It reports whether
// the scheduler was running.
func (s *RotationScheduler) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.next = time.Time{}
	s.mu.Unlock()

	// The loop takes s.mu in setNext; wait without holding it.
	cancel()
	<-done

	s.logger.Info("automatic rotation stopped")
	return true
}

func (s *RotationScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextAt returns when the armed timer fires. ok is false when stopped.
func (s *RotationScheduler) NextAt() (next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}, false
	}
	return s.next, true
}
