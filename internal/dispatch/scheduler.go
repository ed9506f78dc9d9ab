package dispatch

import (
	"sync"
	"time"
)

// Scheduler runs keyed one-shot callbacks. Scheduling an existing key
// replaces the previous timer.
type Scheduler interface {
	Schedule(key string, at time.Time, fn func())
	Cancel(key string)
}

// TimerScheduler is an in-process Scheduler backed by time.AfterFunc. The
// sweeper covers timers lost on restart.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	now    func() time.Time
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer), now: time.Now}
}

func (s *TimerScheduler) Schedule(key string, at time.Time, fn func()) {
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[key] == t {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t
}

func (s *TimerScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Pending returns how many timers are armed.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every timer.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

func expiryKey(orderID string) string     { return "expire:" + orderID }
func autoCancelKey(orderID string) string { return "autocancel:" + orderID }
