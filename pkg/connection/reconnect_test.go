package connection

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"
)

func testLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("test")
}

func TestReconnectionSchedulerCeiling(t *testing.T) {
	var mu sync.Mutex
	var connects, exhausteds int

	s := NewReconnectionScheduler(
		ReconnectPolicy{Interval: 5 * time.Millisecond, MaxAttempts: 2},
		testLogger(),
		func() bool { return true },
		func() { mu.Lock(); connects++; mu.Unlock() },
		func() { mu.Lock(); exhausteds++; mu.Unlock() },
	)

	// Two attempts run, the third hits the ceiling.
	for i := 0; i < 2; i++ {
		s.Schedule()
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			n := connects
			mu.Unlock()
			if n == i+1 {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
	s.Schedule()

	mu.Lock()
	defer mu.Unlock()
	if connects != 2 {
		t.Errorf("connects = %d, want 2", connects)
	}
	if exhausteds != 1 {
		t.Errorf("exhausted calls = %d, want 1", exhausteds)
	}
}

func TestReconnectionSchedulerCancel(t *testing.T) {
	var mu sync.Mutex
	var connects int

	s := NewReconnectionScheduler(
		ReconnectPolicy{Interval: 30 * time.Millisecond, MaxAttempts: 5},
		testLogger(),
		func() bool { return true },
		func() { mu.Lock(); connects++; mu.Unlock() },
		func() {},
	)

	s.Schedule()
	s.Cancel()

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if connects != 0 {
		t.Errorf("connects = %d after Cancel, want 0", connects)
	}
	if got := s.Attempts(); got != 1 {
		t.Errorf("Attempts() = %d, want 1 (Cancel keeps the counter)", got)
	}
}

func TestReconnectionSchedulerReset(t *testing.T) {
	s := NewReconnectionScheduler(
		ReconnectPolicy{Interval: 30 * time.Millisecond, MaxAttempts: 2},
		testLogger(),
		func() bool { return true },
		func() {},
		func() {},
	)

	s.Schedule()
	s.Schedule()
	if got := s.Attempts(); got != 2 {
		t.Fatalf("Attempts() = %d, want 2", got)
	}

	s.Reset()
	if got := s.Attempts(); got != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", got)
	}
}

func TestReconnectionSchedulerAbandonedWhenBeginFails(t *testing.T) {
	var mu sync.Mutex
	var connects int

	s := NewReconnectionScheduler(
		ReconnectPolicy{Interval: time.Millisecond, MaxAttempts: 5},
		testLogger(),
		func() bool { return false }, // superseded
		func() { mu.Lock(); connects++; mu.Unlock() },
		func() {},
	)

	s.Schedule()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if connects != 0 {
		t.Errorf("connects = %d, want 0 when begin fails", connects)
	}
}

func TestReconnectionDisabledPolicy(t *testing.T) {
	var exhausted bool
	s := NewReconnectionScheduler(
		ReconnectPolicy{Interval: time.Millisecond, MaxAttempts: -1},
		testLogger(),
		func() bool { return true },
		func() {},
		func() { exhausted = true },
	)

	s.Schedule()
	if !exhausted {
		t.Error("negative MaxAttempts must report exhaustion immediately")
	}
}
