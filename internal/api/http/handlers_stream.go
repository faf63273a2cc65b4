package apihttp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"streamgate/internal/domain"
)

// handleStream serves GET /stream/{itemId}[/{relativePath}]: the master
// manifest when the relative path is empty, a variant manifest or segment
// otherwise. Manifests come back rewritten to proxy-relative URLs; segments
// are streamed byte-for-byte.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	itemID, relativePath, ok := splitStreamPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_path", "missing item id")
		return
	}

	query := r.URL.Query()
	audioIndex, err := parseOptionalIndex(query.Get("audioTrack"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_audio_track", "audioTrack "+err.Error())
		return
	}
	maxHeight, err := parseOptionalIndex(query.Get("maxHeight"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_max_height", "maxHeight "+err.Error())
		return
	}

	req := domain.StreamRequest{
		ItemID:                   itemID,
		RelativePath:             relativePath,
		AudioStreamIndex:         audioIndex,
		MediaSourceID:            strings.TrimSpace(query.Get("mediaSourceId")),
		MaxHeight:                maxHeight,
		RuntimeTicks:             strings.TrimSpace(query.Get("runtimeTicks")),
		ActualSegmentLengthTicks: strings.TrimSpace(query.Get("actualSegmentLengthTicks")),
	}

	payload, err := s.streams.Execute(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			// Client went away mid-fetch; nothing to answer.
			return
		}
		s.logger.Warn("stream fetch failed",
			slog.String("itemId", string(itemID)),
			slog.String("kind", req.Kind().String()),
			slog.String("error", err.Error()),
		)
		writeStreamError(w, err)
		return
	}

	w.Header().Set("Content-Type", payload.ContentType)
	if payload.Manifest != nil {
		// Manifests carry session-scoped negotiation state and must never be
		// cached between track or quality switches.
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(payload.Manifest)
		}
		return
	}

	defer func() { _ = payload.Body.Close() }()
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, payload.Body); err != nil {
		// Aborted segment downloads are routine during seeks and switches.
		s.logger.Debug("segment copy aborted",
			slog.String("itemId", string(itemID)),
			slog.String("path", relativePath),
			slog.String("error", err.Error()),
		)
	}
}
