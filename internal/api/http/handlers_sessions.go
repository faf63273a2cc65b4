package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"streamgate/internal/domain"
	"streamgate/internal/services/session/player"
)

type openSessionRequest struct {
	ItemID string `json:"itemId"`
}

// handleSessions serves POST /sessions (open a playback session) and
// GET /sessions (current sessions, admin debugging aid).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.openSession(w, r)
	case http.MethodGet:
		p, _ := principalFrom(r.Context())
		snapshots := s.sessions.Snapshots()
		if p.Role != domain.RoleAdmin {
			own := snapshots[:0]
			for _, snap := range snapshots {
				if snap.UserID == p.UserID {
					own = append(own, snap)
				}
			}
			snapshots = own
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": snapshots})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
		return
	}
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	itemID := domain.ItemID(strings.TrimSpace(req.ItemID))
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "missing_item", "itemId is required")
		return
	}

	cfg, cred, err := s.upstreamContext(r.Context())
	if err != nil {
		writeStreamError(w, err)
		return
	}
	viewerID, err := s.media.ResolveViewerID(r.Context(), cfg.ServerURL, cred.Token)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	item, err := s.media.GetItem(r.Context(), cfg.ServerURL, cred.Token, viewerID, itemID)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	tracks := s.resolver.ResolveAudioTracks(r.Context(), cfg.ServerURL, cred.Token, itemID)

	session, err := s.sessions.Open(r.Context(), p.UserID, item, tracks)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

type sessionActionRequest struct {
	Position *float64 `json:"position,omitempty"` // seek target, seconds
	Track    *int     `json:"track,omitempty"`    // audio track list position
	Height   *int     `json:"height,omitempty"`   // quality cap, 0 = auto
	Rate     *float64 `json:"rate,omitempty"`     // playback speed
}

// handleSession serves /sessions/{id} and /sessions/{id}/{action}. All
// mutations answer with the post-action snapshot so clients never need a
// follow-up poll.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if rest == "" || rest == r.URL.Path {
		writeError(w, http.StatusBadRequest, "invalid_path", "missing session id")
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	session, ok := s.sessions.Get(parts[0])
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	p, _ := principalFrom(r.Context())
	if session.Snapshot().UserID != p.UserID && p.Role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "not your session")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, session.Snapshot())
		case http.MethodDelete:
			s.sessions.Destroy(parts[0])
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or DELETE")
		}
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req sessionActionRequest
	if r.Body != nil {
		// Empty bodies are fine for play/pause/retry.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var actionErr error
	switch parts[1] {
	case "play":
		actionErr = session.Play()
	case "pause":
		actionErr = session.Pause()
	case "seek":
		if req.Position == nil {
			writeError(w, http.StatusBadRequest, "missing_position", "position is required")
			return
		}
		actionErr = session.SeekTo(*req.Position)
	case "audio":
		if req.Track == nil {
			writeError(w, http.StatusBadRequest, "missing_track", "track is required")
			return
		}
		actionErr = session.SelectAudioTrack(r.Context(), *req.Track)
	case "quality":
		if req.Height == nil {
			writeError(w, http.StatusBadRequest, "missing_height", "height is required")
			return
		}
		actionErr = session.SetQuality(r.Context(), *req.Height)
	case "speed":
		if req.Rate == nil || *req.Rate <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_rate", "rate must be a positive number")
			return
		}
		session.SetSpeed(*req.Rate)
	case "retry":
		actionErr = session.Retry(r.Context())
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown session action")
		return
	}

	if actionErr != nil {
		writeSessionError(w, actionErr)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, player.ErrSessionDestroyed):
		writeError(w, http.StatusGone, "session_destroyed", "session has been destroyed")
	case errors.Is(err, player.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, player.ErrUnknownTrack):
		writeError(w, http.StatusBadRequest, "unknown_track", err.Error())
	default:
		writeError(w, http.StatusConflict, "session_error", err.Error())
	}
}
