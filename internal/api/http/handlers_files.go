package apihttp

import (
	"net/http"
	"strings"
	"time"
)

// handleFiles serves the object-store file manager:
//
//	GET    /files?prefix=&max=      list objects
//	DELETE /files?key=              remove one object
//	DELETE /files?prefix=           remove everything under a prefix
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "object store is not configured")
		return
	}
	query := r.URL.Query()

	switch r.Method {
	case http.MethodGet:
		max, err := parseOptionalIntQuery(query.Get("max"), 0)
		if err != nil || max < 0 {
			writeError(w, http.StatusBadRequest, "invalid_max", "max must be a non-negative integer")
			return
		}
		objects, err := s.files.List(r.Context(), query.Get("prefix"), max)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"objects": objects})
	case http.MethodDelete:
		key := strings.TrimSpace(query.Get("key"))
		prefix := strings.TrimSpace(query.Get("prefix"))
		switch {
		case key != "":
			if err := s.files.Remove(r.Context(), key); err != nil {
				writeRepoError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case prefix != "":
			removed, err := s.files.RemovePrefix(r.Context(), prefix)
			if err != nil {
				writeRepoError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
		default:
			writeError(w, http.StatusBadRequest, "missing_target", "key or prefix is required")
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or DELETE")
	}
}

// handleFileStat serves GET /files/stat?key=.
func (s *Server) handleFileStat(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "object store is not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing_key", "key is required")
		return
	}
	info, err := s.files.Stat(r.Context(), key)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleFilePresign serves GET /files/presign?key=&expiryMinutes=.
func (s *Server) handleFilePresign(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "object store is not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	query := r.URL.Query()
	key := strings.TrimSpace(query.Get("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing_key", "key is required")
		return
	}
	minutes, err := parseOptionalIntQuery(query.Get("expiryMinutes"), 15)
	if err != nil || minutes <= 0 || minutes > 24*60 {
		writeError(w, http.StatusBadRequest, "invalid_expiry", "expiryMinutes must be between 1 and 1440")
		return
	}
	url, err := s.files.PresignGet(r.Context(), key, time.Duration(minutes)*time.Minute)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"url": url, "expiresInMinutes": minutes})
}
