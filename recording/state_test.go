package recording

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type transitions struct {
	mu  sync.Mutex
	got []bool
}

func (r *transitions) listen(active bool) {
	r.mu.Lock()
	r.got = append(r.got, active)
	r.mu.Unlock()
}

func (r *transitions) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.got...)
}

func newTestState(t *testing.T) (*State, *transitions) {
	t.Helper()
	s := New()
	rec := &transitions{}
	s.Subscribe(rec.listen)
	return s, rec
}

func TestStartWithoutCredential(t *testing.T) {
	s, rec := newTestState(t)

	_, started, err := s.Start()
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("got err %v, want ErrNoCredential", err)
	}
	if started {
		t.Error("started should be false")
	}
	if s.IsActive() {
		t.Error("state should remain inactive")
	}
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("unexpected notifications: %v", got)
	}
}

func TestStartIdempotent(t *testing.T) {
	s, rec := newTestState(t)
	s.SetCredential("  key-123 ")

	cred, started, err := s.Start()
	if err != nil {
		t.Fatal(err)
	}
	if !started || cred != "key-123" {
		t.Fatalf("got (%q, %v), want (key-123, true)", cred, started)
	}

	_, started, err = s.Start()
	if err != nil {
		t.Fatal(err)
	}
	if started {
		t.Error("second Start should be a no-op")
	}
	if got := rec.snapshot(); len(got) != 1 || !got[0] {
		t.Errorf("notifications = %v, want [true]", got)
	}
}

func TestStopIdempotent(t *testing.T) {
	s, rec := newTestState(t)
	s.SetCredential("k")

	if s.Stop("test") {
		t.Error("Stop on inactive state should report no transition")
	}
	if _, _, err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if !s.Stop("test") {
		t.Error("Stop on active state should transition")
	}
	if s.Stop("test") {
		t.Error("repeated Stop should be a no-op")
	}
	got := rec.snapshot()
	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("notifications = %v, want [true false]", got)
	}
}

func TestCancelClearsTranscript(t *testing.T) {
	s, rec := newTestState(t)
	s.SetCredential("k")
	if _, _, err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.SetTranscript("hello world")

	s.Cancel("escape")

	if s.IsActive() {
		t.Error("state should be inactive after cancel")
	}
	if got := s.TakeTranscript(); got != "" {
		t.Errorf("transcript = %q, want empty", got)
	}
	if !s.StartedAt().IsZero() {
		t.Error("start time should be reset")
	}

	// Cancel notifies even when already inactive.
	s.Cancel("escape")
	got := rec.snapshot()
	if len(got) != 3 || got[1] || got[2] {
		t.Errorf("notifications = %v, want [true false false]", got)
	}
}

func TestStartClearsPreviousTranscript(t *testing.T) {
	s := New()
	s.SetCredential("k")
	s.SetTranscript("stale")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if _, _, err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if got := s.Transcript(); got != "" {
		t.Errorf("transcript = %q, want empty", got)
	}
	if !s.StartedAt().Equal(fixed) {
		t.Errorf("StartedAt = %v, want %v", s.StartedAt(), fixed)
	}
}

func TestTakeTranscript(t *testing.T) {
	s := New()
	s.SetTranscript("one")
	if got := s.TakeTranscript(); got != "one" {
		t.Errorf("got %q, want one", got)
	}
	if got := s.TakeTranscript(); got != "" {
		t.Errorf("second take = %q, want empty", got)
	}
}

func TestConcurrentStartStop(t *testing.T) {
	s, rec := newTestState(t)
	s.SetCredential("k")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Start()
		}()
		go func() {
			defer wg.Done()
			s.Stop("race")
		}()
	}
	wg.Wait()

	got := rec.snapshot()
	var starts, stops int
	for _, active := range got {
		if active {
			starts++
		} else {
			stops++
		}
	}
	diff := starts - stops
	if s.IsActive() && diff != 1 || !s.IsActive() && diff != 0 {
		t.Errorf("starts=%d stops=%d active=%v: transitions must alternate", starts, stops, s.IsActive())
	}
}
