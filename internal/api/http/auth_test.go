package apihttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"streamgate/internal/domain"
)

func TestLoginHappyPath(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "alice", domain.RoleViewer)

	rec := env.do(t, http.MethodPost, "/auth/login", "", loginRequest{Username: "alice", Password: "correct horse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	if resp.User.Username != "alice" {
		t.Fatalf("username = %q", resp.User.Username)
	}

	p, err := env.server.parseToken(resp.Token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if p.UserID != "u1" || p.Role != domain.RoleViewer {
		t.Fatalf("principal = %+v", p)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "alice", domain.RoleViewer)

	rec := env.do(t, http.MethodPost, "/auth/login", "", loginRequest{Username: "alice", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginUnknownUserMatchesWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "alice", domain.RoleViewer)

	known := env.do(t, http.MethodPost, "/auth/login", "", loginRequest{Username: "alice", Password: "wrong"})
	unknown := env.do(t, http.MethodPost, "/auth/login", "", loginRequest{Username: "nobody", Password: "wrong"})
	if known.Code != unknown.Code {
		t.Fatalf("status mismatch leaks account existence: %d vs %d", known.Code, unknown.Code)
	}
	var knownEnv, unknownEnv errorEnvelope
	decodeBody(t, known, &knownEnv)
	decodeBody(t, unknown, &unknownEnv)
	if knownEnv.Error.Code != unknownEnv.Error.Code {
		t.Fatalf("error code mismatch leaks account existence: %q vs %q",
			knownEnv.Error.Code, unknownEnv.Error.Code)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "alice", domain.RoleViewer)
	user, _ := env.users.Get(context.Background(), "u1")
	user.Disabled = true
	if err := env.users.Update(context.Background(), user); err != nil {
		t.Fatalf("update: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/auth/login", "", loginRequest{Username: "alice", Password: "correct horse"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAuthMiddlewareRejectsGarbageToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/watch-history", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAccessTokenQueryFallback(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedUser(t, "u1", "alice", domain.RoleViewer)

	req := httptest.NewRequest(http.MethodGet, "/watch-history?access_token="+token, nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t)
	viewerToken := env.seedUser(t, "u1", "alice", domain.RoleViewer)
	adminToken := env.seedUser(t, "u2", "root", domain.RoleAdmin)

	if rec := env.do(t, http.MethodGet, "/admin/users", viewerToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer status = %d, want 403", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/admin/users", adminToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}
}
