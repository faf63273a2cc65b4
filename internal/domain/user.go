package domain

import "time"

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleViewer UserRole = "viewer"
)

// User is a front-end account. Upstream viewer identities are unrelated; the
// streaming proxy always uses its own synthetic upstream identity.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Favorite marks an item a user pinned in the catalog.
type Favorite struct {
	UserID    string    `json:"userId"`
	ItemID    ItemID    `json:"itemId"`
	ItemName  string    `json:"itemName"`
	ItemType  string    `json:"itemType"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProfileSettings are per-user playback preferences applied to every new
// playback session.
type ProfileSettings struct {
	UserID           string  `json:"userId"`
	PlaybackSpeed    float64 `json:"playbackSpeed"`
	PreferredHeight  int     `json:"preferredHeight"` // 0 = auto
	PreferredAudioLx string  `json:"preferredAudioLanguage,omitempty"`
}
