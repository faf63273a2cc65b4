package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"streamgate/internal/domain"
	"streamgate/internal/usecase"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeStreamError maps the proxy's error taxonomy onto HTTP statuses. The
// distinct codes matter to the player: not_configured and auth_failed are
// admin problems, upstream_unreachable and upstream_error are retryable.
func writeStreamError(w http.ResponseWriter, err error) {
	var statusErr *usecase.UpstreamStatusError
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "not_configured", "no active media server configured")
	case errors.Is(err, domain.ErrAuthFailed):
		writeError(w, http.StatusBadGateway, "auth_failed", "upstream rejected the proxy credential")
	case errors.Is(err, domain.ErrManifestMismatch):
		writeError(w, http.StatusBadGateway, "manifest_mismatch", "upstream manifest references a different item")
	case errors.Is(err, domain.ErrUpstreamUnreachable):
		writeError(w, http.StatusBadGateway, "upstream_unreachable", "media server unreachable")
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, "upstream_error", statusErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "item not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
}

// parseOptionalIndex parses a non-negative integer query value; empty means
// absent.
func parseOptionalIndex(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 {
		return nil, errors.New("must be a non-negative integer")
	}
	return &parsed, nil
}

func parseOptionalIntQuery(value string, defaultValue int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

// splitStreamPath splits "/stream/{itemId}[/{relativePath}]" into its parts.
func splitStreamPath(path string) (domain.ItemID, string, bool) {
	trimmed := strings.TrimPrefix(path, "/stream/")
	if trimmed == path || trimmed == "" {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "/", 2)
	itemID := domain.ItemID(parts[0])
	if itemID == "" {
		return "", "", false
	}
	if len(parts) == 1 {
		return itemID, "", true
	}
	return itemID, parts[1], true
}
