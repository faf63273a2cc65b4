package mongo

import (
	"testing"
	"time"

	"streamgate/internal/domain"
)

func TestServerConfigDocRoundtrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cfg := domain.ServerConfig{
		ID:        "cfg-1",
		Name:      "home",
		ServerURL: "http://media.local:8096",
		APIKey:    "secret",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
	}

	got := serverConfigFromDoc(serverConfigToDoc(cfg))
	if got != cfg {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestUserDocRoundtrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	u := domain.User{
		ID:           "user-1",
		Username:     "alice",
		PasswordHash: "$2a$10$abcdef",
		Role:         domain.RoleAdmin,
		Disabled:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	got := userFromDoc(userToDoc(u))
	if got != u {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", got, u)
	}
}

func TestLibraryDocRoundtrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	l := domain.Library{
		ID:             "lib-1",
		Name:           "Movies",
		UpstreamViewID: "view-abc",
		MediaType:      "movies",
		Hidden:         false,
		SortOrder:      2,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	got := libraryFromDoc(libraryToDoc(l))
	if got != l {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", got, l)
	}
}

func TestFavoriteDocID(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		itemID domain.ItemID
		want   string
	}{
		{"basic", "user-1", "movie-42", "user-1:movie-42"},
		{"empty item", "user-1", "", "user-1:"},
		{"uuid-like", "9f8e", "a1b2c3", "9f8e:a1b2c3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := favoriteDocID(tc.userID, tc.itemID); got != tc.want {
				t.Errorf("favoriteDocID(%q, %q) = %q, want %q", tc.userID, tc.itemID, got, tc.want)
			}
		})
	}
}
