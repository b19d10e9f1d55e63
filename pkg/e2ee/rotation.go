package e2ee

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultRotationInterval is the default period between scheduled key
// rotations.
const DefaultRotationInterval = 5 * time.Minute

// RotationScheduler periodically triggers a full re-key. A tick that finds
// a membership re-key in flight is skipped, not queued; the rotation
// happens on the next tick instead.
type RotationScheduler struct {
	interval time.Duration
	rotate   func(ctx context.Context) error
	log      logging.LeveledLogger

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewRotationScheduler creates a scheduler calling rotate every interval.
// An interval of zero or less disables scheduling.
func NewRotationScheduler(interval time.Duration, rotate func(ctx context.Context) error, log logging.LeveledLogger) *RotationScheduler {
	return &RotationScheduler{
		interval: interval,
		rotate:   rotate,
		log:      log,
	}
}

// Start begins the rotation ticker. Calling Start on a running scheduler
// is a no-op.
func (s *RotationScheduler) Start() {
	if s.interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	go s.run(s.stopCh)
}

// Stop halts the ticker. Calling Stop on a stopped scheduler is a no-op.
func (s *RotationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
}

// Running reports whether the scheduler is active.
func (s *RotationScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

func (s *RotationScheduler) run(stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.rotate(context.Background()); err != nil {
				if errors.Is(err, ErrRekeyInFlight) {
					s.log.Debug("rotation deferred to next tick")
					continue
				}
				s.log.Warnf("scheduled rotation: %v", err)
			}
		case <-stopCh:
			return
		}
	}
}
