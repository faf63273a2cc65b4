package player

import (
	"fmt"

	"streamgate/internal/metrics"
)

// SessionState represents the lifecycle state of one playback session.
type SessionState int

const (
	StateIdle      SessionState = iota
	StateLoading                // manifest fetch / engine attach in progress
	StateReady                  // manifest parsed, levels known
	StatePlaying                // steady-state playback
	StatePaused                 // user-paused
	StateSwitching              // teardown for a track/quality change
	StateError                  // fatal error, user-visible retry
	StateDestroyed              // terminal, session released
)

var stateNames = [...]string{
	"idle", "loading", "ready", "playing",
	"paused", "switching", "error", "destroyed",
}

func (s SessionState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// validTransitions defines the allowed state transitions. Switching is
// re-enterable: a switch request during a switch unwinds the in-flight
// pipeline first. Destroyed is reachable from everywhere and terminal.
var validTransitions = map[SessionState][]SessionState{
	StateIdle:      {StateLoading, StateDestroyed},
	StateLoading:   {StateReady, StateSwitching, StateError, StateDestroyed},
	StateReady:     {StatePlaying, StatePaused, StateSwitching, StateError, StateDestroyed},
	StatePlaying:   {StatePaused, StateSwitching, StateError, StateDestroyed},
	StatePaused:    {StatePlaying, StateSwitching, StateError, StateDestroyed},
	StateSwitching: {StateLoading, StateSwitching, StateError, StateDestroyed},
	StateError:     {StateIdle, StateDestroyed},
	StateDestroyed: {},
}

func canTransition(from, to SessionState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transitionLocked moves the session to the target state. Callers hold s.mu.
func (s *Session) transitionLocked(to SessionState) error {
	from := s.state
	if from == to {
		return nil
	}
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	s.state = to
	if to != StateError {
		s.lastErr = nil
	}
	metrics.PlaybackTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	return nil
}
