package connection

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pion/logging"
)

// ReconnectionScheduler decides whether and when to re-attempt connection
// after an unexpected closure. It owns the reconnect timer exclusively: a
// manual disconnect or a successful connect cancels any pending attempt, so
// no stray reconnect can fire afterwards.
//
// Attempt delays back off exponentially with jitter from the policy's base
// interval. The attempt counter resets on every successful connect.
type ReconnectionScheduler struct {
	policy ReconnectPolicy
	log    logging.LeveledLogger

	// begin moves the connection Disconnected -> Reconnecting; a false
	// return means the attempt was superseded and must be abandoned.
	begin func() bool

	// connect re-dials after begin succeeds.
	connect func()

	// exhausted fires once the attempt ceiling is exceeded.
	exhausted func()

	mu       sync.Mutex
	attempts int
	backoff  *backoff.ExponentialBackOff
	timer    *time.Timer
}

// NewReconnectionScheduler creates a scheduler for the given policy.
func NewReconnectionScheduler(
	policy ReconnectPolicy,
	log logging.LeveledLogger,
	begin func() bool,
	connect func(),
	exhausted func(),
) *ReconnectionScheduler {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.Interval
	bo.MaxElapsedTime = 0 // the attempt ceiling bounds retries, not wall time
	bo.Reset()

	return &ReconnectionScheduler{
		policy:    policy,
		log:       log,
		begin:     begin,
		connect:   connect,
		exhausted: exhausted,
		backoff:   bo,
	}
}

// Schedule arms the reconnect timer for the next attempt, or reports
// exhaustion if the attempt ceiling is exceeded. Called once per
// unexpected transition to Disconnected.
func (s *ReconnectionScheduler) Schedule() {
	s.mu.Lock()

	if s.policy.MaxAttempts < 0 {
		s.mu.Unlock()
		s.log.Debug("reconnection disabled by policy")
		s.exhausted()
		return
	}

	s.attempts++
	if s.attempts > s.policy.MaxAttempts {
		s.mu.Unlock()
		s.exhausted()
		return
	}

	delay := s.backoff.NextBackOff()
	attempt := s.attempts
	s.stopTimerLocked()
	s.timer = time.AfterFunc(delay, s.fire)
	s.mu.Unlock()

	s.log.Infof("reconnect attempt %d/%d in %s", attempt, s.policy.MaxAttempts, delay)
}

// fire runs when the reconnect delay elapses.
func (s *ReconnectionScheduler) fire() {
	if !s.begin() {
		// Cancelled or superseded while the timer was pending.
		return
	}
	s.connect()
}

// Reset clears the attempt counter and cancels any pending attempt.
// Called on every successful transition to Connected.
func (s *ReconnectionScheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = 0
	s.backoff.Reset()
	s.stopTimerLocked()
}

// Cancel stops any pending attempt without resetting the counter.
// Called on user disconnect and manual connect.
func (s *ReconnectionScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// Attempts returns the current attempt counter.
func (s *ReconnectionScheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *ReconnectionScheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
