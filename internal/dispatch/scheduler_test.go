package dispatch

import (
	"testing"
	"time"
)

func TestTimerSchedulerFires(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()
	fired := make(chan struct{}, 1)

	s.Schedule("expire:a", time.Now().Add(10*time.Millisecond), func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	deadline := time.Now().Add(time.Second)
	for s.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Pending() != 0 {
		t.Fatalf("fired timer still tracked: %d", s.Pending())
	}
}

func TestTimerSchedulerCancel(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()
	fired := make(chan struct{}, 1)

	s.Schedule("expire:a", time.Now().Add(50*time.Millisecond), func() { fired <- struct{}{} })
	s.Cancel("expire:a")
	select {
	case <-fired:
		t.Fatal("canceled timer fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTimerSchedulerReplacesKey(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()
	calls := make(chan string, 2)

	s.Schedule("k", time.Now().Add(time.Hour), func() { calls <- "first" })
	s.Schedule("k", time.Now().Add(10*time.Millisecond), func() { calls <- "second" })
	if s.Pending() > 1 {
		t.Fatalf("expected one timer per key, got %d", s.Pending())
	}
	select {
	case got := <-calls:
		if got != "second" {
			t.Fatalf("expected replacement to fire, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replacement did not fire")
	}
}
