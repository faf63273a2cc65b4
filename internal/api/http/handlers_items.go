package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"streamgate/internal/domain"
)

// upstreamContext resolves the active server config and a credential for it.
// Catalog handlers fail with not_configured when no upstream is set up.
func (s *Server) upstreamContext(ctx context.Context) (domain.ServerConfig, domain.UpstreamCredential, error) {
	cfg, err := s.configs.LoadActive(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ServerConfig{}, domain.UpstreamCredential{}, domain.ErrNotConfigured
		}
		return domain.ServerConfig{}, domain.UpstreamCredential{}, err
	}
	cred, err := s.tokens.Token(ctx)
	if err != nil || cred.Token == "" {
		cred = domain.UpstreamCredential{Token: cfg.APIKey, Fallback: true}
	}
	return cfg, cred, nil
}

// handleLibraries serves GET /libraries: the admin-defined catalog sections,
// hidden ones excluded for viewers.
func (s *Server) handleLibraries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	libraries, err := s.libraries.List(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	p, _ := principalFrom(r.Context())
	visible := make([]domain.Library, 0, len(libraries))
	for _, lib := range libraries {
		if lib.Hidden && p.Role != domain.RoleAdmin {
			continue
		}
		visible = append(visible, lib)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"libraries": visible})
}

// handleItems serves GET /items?libraryId=: the contents of one library,
// fetched live from the upstream catalog.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	libraryID := strings.TrimSpace(r.URL.Query().Get("libraryId"))
	if libraryID == "" {
		writeError(w, http.StatusBadRequest, "missing_library", "libraryId query parameter is required")
		return
	}
	library, err := s.libraries.Get(r.Context(), libraryID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	cfg, cred, err := s.upstreamContext(r.Context())
	if err != nil {
		writeStreamError(w, err)
		return
	}
	items, err := s.media.ListItems(r.Context(), cfg.ServerURL, cred.Token, library.UpstreamViewID)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"library": library,
		"items":   items,
	})
}

// handleItem serves GET /items/{id} and GET /items/{id}/tracks.
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/items/")
	if rest == "" || rest == r.URL.Path {
		writeError(w, http.StatusBadRequest, "invalid_path", "missing item id")
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	itemID := domain.ItemID(parts[0])

	cfg, cred, err := s.upstreamContext(r.Context())
	if err != nil {
		writeStreamError(w, err)
		return
	}

	if len(parts) == 2 {
		if parts[1] != "tracks" {
			writeError(w, http.StatusNotFound, "not_found", "unknown item resource")
			return
		}
		tracks := s.resolver.ResolveAudioTracks(r.Context(), cfg.ServerURL, cred.Token, itemID)
		writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
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
	writeJSON(w, http.StatusOK, item)
}
