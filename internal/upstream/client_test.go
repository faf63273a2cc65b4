package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"streamgate/internal/domain"
)

func TestAuthenticateSendsIdentityHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/AuthenticateByName" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Emby-Authorization") == "" {
			t.Error("missing identity header")
		}
		var req wireAuthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Username != "public" {
			t.Errorf("unexpected username %q", req.Username)
		}
		json.NewEncoder(w).Encode(wireAuthResponse{AccessToken: "tok-xyz"})
	}))
	defer srv.Close()

	token, err := NewClient(nil).Authenticate(context.Background(), srv.URL, "public", "pw")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if token != "tok-xyz" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestAuthenticateRejectionMapsToAuthFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(nil).Authenticate(context.Background(), srv.URL, "public", "pw")
	if !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestGetItemMapsWirePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Users/viewer-1/Items/movie-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Emby-Token") != "tok" {
			t.Error("missing token header")
		}
		json.NewEncoder(w).Encode(wireItem{
			ID:   "movie-9",
			Name: "Solaris",
			Type: "Movie",
			MediaSources: []wireMediaSource{{
				ID: "src-1",
				MediaStreams: []wireMediaStream{
					{Index: 1, Type: "Audio", Codec: "aac", Language: "eng", DisplayTitle: "English"},
				},
			}},
		})
	}))
	defer srv.Close()

	item, err := NewClient(nil).GetItem(context.Background(), srv.URL, "tok", "viewer-1", "movie-9")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.ID != "movie-9" || item.Name != "Solaris" {
		t.Fatalf("unexpected item %+v", item)
	}
	if len(item.MediaSources) != 1 || item.MediaSources[0].ID != "src-1" {
		t.Fatalf("media sources not mapped: %+v", item.MediaSources)
	}
	if s := item.MediaSources[0].Streams[0]; s.Index != 1 || s.Title != "English" {
		t.Fatalf("stream not mapped: %+v", s)
	}
}

func TestGetItemNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(nil).GetItem(context.Background(), srv.URL, "tok", "viewer-1", "gone")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchManifestPreReadsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		io.WriteString(w, "#EXTM3U\n")
	}))
	defer srv.Close()

	resp, err := NewClient(nil).Fetch(context.Background(), srv.URL+"/master.m3u8", true)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Body != nil {
		t.Fatal("manifest fetch should not return a streamed body")
	}
	if resp.Text != "#EXTM3U\n" {
		t.Fatalf("unexpected manifest %q", resp.Text)
	}
}

func TestFetchSegmentStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Write([]byte{0x47, 0x00, 0x11})
	}))
	defer srv.Close()

	resp, err := NewClient(nil).Fetch(context.Background(), srv.URL+"/seg0.ts", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Body == nil {
		t.Fatal("segment fetch must stream the body")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(data) != 3 || data[0] != 0x47 {
		t.Fatalf("unexpected segment bytes %v", data)
	}
}
