// Package recording holds the process-wide recording state shared by the
// hotkey handler, the terminal UI and the dictation orchestrator.
package recording

import (
	"errors"
	"strings"
	"sync"
	"time"

	"voxkey/log"
)

var ErrNoCredential = errors.New("transcription API key not set")

// Listener is called after every active/inactive transition, outside the lock.
type Listener func(active bool)

// State is the single source of truth for "are we recording". All fields are
// guarded by mu; no I/O happens while it is held.
type State struct {
	mu         sync.Mutex
	active     bool
	startedAt  time.Time
	transcript string
	credential string
	listeners  []Listener

	now func() time.Time
}

func New() *State {
	return &State{now: time.Now}
}

// Subscribe registers l for state-change notifications.
func (s *State) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *State) SetCredential(v string) {
	s.mu.Lock()
	s.credential = strings.TrimSpace(v)
	s.mu.Unlock()
}

func (s *State) HasCredential() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential != ""
}

// Start transitions to active and returns the credential the new cycle must
// use. started is false when a cycle was already running; that is not an
// error. Without a credential the state is left untouched.
func (s *State) Start() (credential string, started bool, err error) {
	s.mu.Lock()
	if s.credential == "" {
		s.mu.Unlock()
		return "", false, ErrNoCredential
	}
	if s.active {
		s.mu.Unlock()
		return s.credential, false, nil
	}
	s.active = true
	s.startedAt = s.now()
	s.transcript = ""
	credential = s.credential
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	log.Info("recording_start")
	notify(listeners, true)
	return credential, true, nil
}

// Stop transitions to inactive. It reports whether a transition happened;
// stopping an inactive state emits nothing.
func (s *State) Stop(reason string) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		log.Info("recording_stop_ignored reason=" + reason)
		return false
	}
	s.active = false
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	log.Info("recording_stop reason=" + reason)
	notify(listeners, false)
	return true
}

// Cancel forces the inactive state and discards the transcript regardless of
// the current state. Listeners are always notified.
func (s *State) Cancel(reason string) {
	s.mu.Lock()
	s.active = false
	s.transcript = ""
	s.startedAt = time.Time{}
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	log.Info("recording_cancel reason=" + reason)
	notify(listeners, false)
}

func (s *State) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// StartedAt returns the start time of the current or last cycle, zero after a
// cancel.
func (s *State) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *State) SetTranscript(text string) {
	s.mu.Lock()
	s.transcript = text
	s.mu.Unlock()
}

func (s *State) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// TakeTranscript returns the buffered transcript and clears it.
func (s *State) TakeTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.transcript
	s.transcript = ""
	return text
}

func (s *State) snapshotListeners() []Listener {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

func notify(listeners []Listener, active bool) {
	for _, l := range listeners {
		l(active)
	}
}
