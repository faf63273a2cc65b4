package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/metrics"
)

// Manager owns the live playback sessions: one pipeline per session, at most
// one session per user. Opening a new session for a user tears down their
// previous one first, so two pipelines never share a render surface.
type Manager struct {
	factory  ports.EngineFactory
	history  ports.WatchHistoryStore
	profiles ports.ProfileStore
	logger   *slog.Logger
	onChange func(Snapshot)

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]string // userID -> session id
}

func NewManager(factory ports.EngineFactory, history ports.WatchHistoryStore, profiles ports.ProfileStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory:  factory,
		history:  history,
		profiles: profiles,
		logger:   logger,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
	}
}

// OnChange registers the callback invoked with a snapshot after every
// session state change. Set once at wiring time, before any session opens.
func (m *Manager) OnChange(fn func(Snapshot)) {
	m.onChange = fn
}

// Open creates a session for the item, seeds it with the user's saved
// profile and watch position, and starts loading. The previous session of
// the same user, if any, is destroyed first.
func (m *Manager) Open(ctx context.Context, userID string, item domain.MediaItem, tracks []domain.AudioTrackDescriptor) (*Session, error) {
	if prev := m.sessionForUser(userID); prev != nil {
		m.Destroy(prev.ID)
	}

	cfg := Config{
		ID:       uuid.NewString(),
		UserID:   userID,
		Item:     item,
		Tracks:   tracks,
		Factory:  m.factory,
		History:  m.history,
		Logger:   m.logger,
		OnChange: m.onChange,
	}
	if m.profiles != nil {
		if p, err := m.profiles.Get(ctx, userID); err == nil {
			cfg.Speed = p.PlaybackSpeed
			cfg.Quality = p.PreferredHeight
		} else if !errors.Is(err, domain.ErrNotFound) {
			m.logger.Warn("profile lookup failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}
	if m.history != nil {
		if wp, err := m.history.Get(ctx, userID, item.ID); err == nil {
			cfg.ResumeFrom = wp.Position
		} else if !errors.Is(err, domain.ErrNotFound) {
			m.logger.Warn("watch position lookup failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}

	s := NewSession(cfg)

	// Re-check under the registration lock: a concurrent open by the same
	// user may have registered since the lookup above. Replacement and
	// registration happen under one critical section so at most one session
	// per user is ever live.
	m.mu.Lock()
	var displaced *Session
	if prevID, ok := m.byUser[userID]; ok {
		displaced = m.sessions[prevID]
		delete(m.sessions, prevID)
	}
	m.sessions[s.ID] = s
	m.byUser[userID] = s.ID
	m.mu.Unlock()
	metrics.PlaybackSessionsActive.Inc()
	if displaced != nil {
		displaced.Destroy()
		metrics.PlaybackSessionsActive.Dec()
	}

	if err := s.Open(ctx); err != nil {
		// Session stays registered in its Error state so the user can retry.
		m.logger.Warn("initial load failed",
			slog.String("session_id", s.ID),
			slog.String("item_id", string(item.ID)),
			slog.String("error", err.Error()))
	}
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Destroy tears down and unregisters a session.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if m.byUser[s.UserID] == id {
			delete(m.byUser, s.UserID)
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Destroy()
	metrics.PlaybackSessionsActive.Dec()
}

// Snapshots returns the state of every live session, for the WebSocket hub.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snaps = append(snaps, s.Snapshot())
	}
	return snaps
}

// Close destroys every live session. Called on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.byUser = make(map[string]string)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Destroy()
		metrics.PlaybackSessionsActive.Dec()
	}
}

func (m *Manager) sessionForUser(userID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byUser[userID]; ok {
		return m.sessions[id]
	}
	return nil
}
