package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"streamgate/internal/domain"
)

// handleWatchHistory serves GET /watch-history (recent positions for the
// caller, newest first).
func (s *Server) handleWatchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	p, _ := principalFrom(r.Context())
	limit, err := parseOptionalIntQuery(r.URL.Query().Get("limit"), 20)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}
	positions, err := s.history.ListRecent(r.Context(), p.UserID, limit)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": positions})
}

type watchPositionRequest struct {
	Position   float64 `json:"position"`
	Duration   float64 `json:"duration"`
	ItemName   string  `json:"itemName"`
	SeriesName string  `json:"seriesName"`
}

// handleWatchHistoryItem serves GET, PUT and DELETE /watch-history/{itemId}.
// PUT lets external players report positions directly; sessions opened here
// save their own progress.
func (s *Server) handleWatchHistoryItem(w http.ResponseWriter, r *http.Request) {
	itemID := domain.ItemID(strings.TrimPrefix(r.URL.Path, "/watch-history/"))
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "invalid_path", "missing item id")
		return
	}
	p, _ := principalFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		pos, err := s.history.Get(r.Context(), p.UserID, itemID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	case http.MethodPut:
		var req watchPositionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		if req.Position < 0 {
			writeError(w, http.StatusBadRequest, "invalid_position", "position must be non-negative")
			return
		}
		wp := domain.WatchPosition{
			UserID:     p.UserID,
			ItemID:     itemID,
			Position:   req.Position,
			Duration:   req.Duration,
			ItemName:   req.ItemName,
			SeriesName: req.SeriesName,
			UpdatedAt:  time.Now().UTC(),
		}
		if err := s.history.Upsert(r.Context(), wp); err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wp)
	case http.MethodDelete:
		if err := s.history.Delete(r.Context(), p.UserID, itemID); err != nil {
			writeRepoError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET, PUT or DELETE")
	}
}

type addFavoriteRequest struct {
	ItemID   string `json:"itemId"`
	ItemName string `json:"itemName"`
	ItemType string `json:"itemType"`
}

// handleFavorites serves GET and POST /favorites.
func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		favorites, err := s.favorites.List(r.Context(), p.UserID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"favorites": favorites})
	case http.MethodPost:
		var req addFavoriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		req.ItemID = strings.TrimSpace(req.ItemID)
		if req.ItemID == "" {
			writeError(w, http.StatusBadRequest, "missing_item", "itemId is required")
			return
		}
		fav := domain.Favorite{
			UserID:    p.UserID,
			ItemID:    domain.ItemID(req.ItemID),
			ItemName:  req.ItemName,
			ItemType:  req.ItemType,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.favorites.Add(r.Context(), fav); err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, fav)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

// handleFavoriteItem serves DELETE /favorites/{itemId}.
func (s *Server) handleFavoriteItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use DELETE")
		return
	}
	itemID := domain.ItemID(strings.TrimPrefix(r.URL.Path, "/favorites/"))
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "invalid_path", "missing item id")
		return
	}
	p, _ := principalFrom(r.Context())
	if err := s.favorites.Remove(r.Context(), p.UserID, itemID); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileRequest struct {
	PlaybackSpeed    float64 `json:"playbackSpeed"`
	PreferredHeight  int     `json:"preferredHeight"`
	PreferredAudioLx string  `json:"preferredAudioLanguage"`
}

// handleProfile serves GET and PUT /profile: the caller's playback
// preferences, seeded into every new playback session.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		settings, err := s.profiles.Get(r.Context(), p.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeJSON(w, http.StatusOK, domain.ProfileSettings{UserID: p.UserID, PlaybackSpeed: 1})
				return
			}
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req profileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		if req.PlaybackSpeed <= 0 || req.PlaybackSpeed > 4 {
			writeError(w, http.StatusBadRequest, "invalid_speed", "playbackSpeed must be in (0, 4]")
			return
		}
		if req.PreferredHeight < 0 {
			writeError(w, http.StatusBadRequest, "invalid_height", "preferredHeight must be non-negative")
			return
		}
		settings := domain.ProfileSettings{
			UserID:           p.UserID,
			PlaybackSpeed:    req.PlaybackSpeed,
			PreferredHeight:  req.PreferredHeight,
			PreferredAudioLx: strings.TrimSpace(req.PreferredAudioLx),
		}
		if err := s.profiles.Upsert(r.Context(), settings); err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or PUT")
	}
}
