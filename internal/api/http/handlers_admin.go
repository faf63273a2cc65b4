package apihttp

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"streamgate/internal/domain"
)

type serverConfigRequest struct {
	Name      string `json:"name"`
	ServerURL string `json:"serverUrl"`
	APIKey    string `json:"apiKey"`
}

// handleAdminServers serves GET and POST /admin/servers.
func (s *Server) handleAdminServers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		configs, err := s.configs.List(r.Context())
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"servers": configs})
	case http.MethodPost:
		req, ok := decodeServerConfig(w, r)
		if !ok {
			return
		}
		now := time.Now().UTC()
		cfg := domain.ServerConfig{
			ID:        uuid.NewString(),
			Name:      req.Name,
			ServerURL: req.ServerURL,
			APIKey:    req.APIKey,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.configs.Create(r.Context(), cfg); err != nil {
			writeRepoError(w, err)
			return
		}
		// Token cache state belongs to the previous upstream.
		s.tokens.Invalidate()
		writeJSON(w, http.StatusCreated, cfg)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

// handleAdminServer serves /admin/servers/{id} and /admin/servers/{id}/activate.
func (s *Server) handleAdminServer(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/servers/")
	if rest == "" || rest == r.URL.Path {
		writeError(w, http.StatusBadRequest, "invalid_path", "missing server id")
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]

	if len(parts) == 2 {
		if parts[1] != "activate" || r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "unknown server resource")
			return
		}
		if err := s.configs.SetActive(r.Context(), id); err != nil {
			writeRepoError(w, err)
			return
		}
		s.tokens.Invalidate()
		cfg, err := s.configs.Get(r.Context(), id)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cfg, err := s.configs.Get(r.Context(), id)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		req, ok := decodeServerConfig(w, r)
		if !ok {
			return
		}
		existing, err := s.configs.Get(r.Context(), id)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		existing.Name = req.Name
		existing.ServerURL = req.ServerURL
		existing.APIKey = req.APIKey // empty keeps the stored key
		existing.UpdatedAt = time.Now().UTC()
		if err := s.configs.Update(r.Context(), existing); err != nil {
			writeRepoError(w, err)
			return
		}
		s.tokens.Invalidate()
		writeJSON(w, http.StatusOK, existing)
	case http.MethodDelete:
		if err := s.configs.Delete(r.Context(), id); err != nil {
			writeRepoError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET, PUT or DELETE")
	}
}

func decodeServerConfig(w http.ResponseWriter, r *http.Request) (serverConfigRequest, bool) {
	var req serverConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return serverConfigRequest{}, false
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ServerURL = strings.TrimSpace(strings.TrimSuffix(req.ServerURL, "/"))
	if req.Name == "" || req.ServerURL == "" {
		writeError(w, http.StatusBadRequest, "invalid_config", "name and serverUrl are required")
		return serverConfigRequest{}, false
	}
	if !strings.HasPrefix(req.ServerURL, "http://") && !strings.HasPrefix(req.ServerURL, "https://") {
		writeError(w, http.StatusBadRequest, "invalid_config", "serverUrl must be an http(s) URL")
		return serverConfigRequest{}, false
	}
	return req, true
}

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Disabled bool   `json:"disabled"`
}

// handleAdminUsers serves GET and POST /admin/users.
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.users.List(r.Context())
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
	case http.MethodPost:
		var req userRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || len(req.Password) < 8 {
			writeError(w, http.StatusBadRequest, "invalid_user", "username and a password of at least 8 characters are required")
			return
		}
		role, ok := parseRole(req.Role)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_role", "role must be admin or viewer")
			return
		}
		hash, err := hashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		now := time.Now().UTC()
		user := domain.User{
			ID:           uuid.NewString(),
			Username:     req.Username,
			PasswordHash: hash,
			Role:         role,
			Disabled:     req.Disabled,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.users.Create(r.Context(), user); err != nil {
			writeError(w, http.StatusConflict, "create_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

// handleAdminUser serves GET, PUT and DELETE /admin/users/{id}.
func (s *Server) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_path", "missing user id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := s.users.Get(r.Context(), id)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		var req userRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		user, err := s.users.Get(r.Context(), id)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		if username := strings.TrimSpace(req.Username); username != "" {
			user.Username = username
		}
		if req.Role != "" {
			role, ok := parseRole(req.Role)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_role", "role must be admin or viewer")
				return
			}
			user.Role = role
		}
		user.Disabled = req.Disabled
		if req.Password != "" {
			if len(req.Password) < 8 {
				writeError(w, http.StatusBadRequest, "invalid_user", "password must be at least 8 characters")
				return
			}
			hash, err := hashPassword(req.Password)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}
			user.PasswordHash = hash
		}
		user.UpdatedAt = time.Now().UTC()
		if err := s.users.Update(r.Context(), user); err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := s.users.Delete(r.Context(), id); err != nil {
			writeRepoError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET, PUT or DELETE")
	}
}

func parseRole(raw string) (domain.UserRole, bool) {
	switch domain.UserRole(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.RoleAdmin:
		return domain.RoleAdmin, true
	case domain.RoleViewer, "":
		return domain.RoleViewer, true
	default:
		return "", false
	}
}

type libraryRequest struct {
	Name           string `json:"name"`
	UpstreamViewID string `json:"upstreamViewId"`
	MediaType      string `json:"mediaType"`
	Hidden         bool   `json:"hidden"`
	SortOrder      int    `json:"sortOrder"`
}

// handleAdminLibraries serves GET and POST /admin/libraries.
func (s *Server) handleAdminLibraries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		libraries, err := s.libraries.List(r.Context())
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"libraries": libraries})
	case http.MethodPost:
		req, ok := decodeLibrary(w, r)
		if !ok {
			return
		}
		now := time.Now().UTC()
		library := domain.Library{
			ID:             uuid.NewString(),
			Name:           req.Name,
			UpstreamViewID: req.UpstreamViewID,
			MediaType:      req.MediaType,
			Hidden:         req.Hidden,
			SortOrder:      req.SortOrder,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.libraries.Create(r.Context(), library); err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, library)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}

// handleAdminLibrary serves GET, PUT and DELETE /admin/libraries/{id}.
func (s *Server) handleAdminLibrary(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/admin/libraries/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_path", "missing library id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		library, err := s.libraries.Get(r.Context(), id)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, library)
	case http.MethodPut:
		req, ok := decodeLibrary(w, r)
		if !ok {
			return
		}
		library, err := s.libraries.Get(r.Context(), id)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		library.Name = req.Name
		library.UpstreamViewID = req.UpstreamViewID
		library.MediaType = req.MediaType
		library.Hidden = req.Hidden
		library.SortOrder = req.SortOrder
		library.UpdatedAt = time.Now().UTC()
		if err := s.libraries.Update(r.Context(), library); err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, library)
	case http.MethodDelete:
		if err := s.libraries.Delete(r.Context(), id); err != nil {
			writeRepoError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET, PUT or DELETE")
	}
}

func decodeLibrary(w http.ResponseWriter, r *http.Request) (libraryRequest, bool) {
	var req libraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return libraryRequest{}, false
	}
	req.Name = strings.TrimSpace(req.Name)
	req.UpstreamViewID = strings.TrimSpace(req.UpstreamViewID)
	if req.Name == "" || req.UpstreamViewID == "" {
		writeError(w, http.StatusBadRequest, "invalid_library", "name and upstreamViewId are required")
		return libraryRequest{}, false
	}
	return req, true
}
