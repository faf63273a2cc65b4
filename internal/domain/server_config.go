package domain

import "time"

// ServerConfig describes one upstream media server the front end can proxy
// to. At most one config is active at a time; the streaming proxy fails
// closed when none is.
type ServerConfig struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ServerURL string    `json:"serverUrl"`
	APIKey    string    `json:"-"` // static fallback credential, never serialized
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Library is an admin-defined slice of the upstream catalog.
type Library struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	UpstreamViewID string    `json:"upstreamViewId"`
	MediaType      string    `json:"mediaType"` // movies, series, mixed
	Hidden         bool      `json:"hidden"`
	SortOrder      int       `json:"sortOrder"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
