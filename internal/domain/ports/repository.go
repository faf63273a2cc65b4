package ports

import (
	"context"

	"streamgate/internal/domain"
)

// ServerConfigStore persists upstream media server configurations. The
// streaming proxy only ever needs LoadActive; the admin surface uses the
// rest.
type ServerConfigStore interface {
	Create(ctx context.Context, cfg domain.ServerConfig) error
	Update(ctx context.Context, cfg domain.ServerConfig) error
	Get(ctx context.Context, id string) (domain.ServerConfig, error)
	List(ctx context.Context) ([]domain.ServerConfig, error)
	Delete(ctx context.Context, id string) error
	// SetActive marks one config active and deactivates the rest.
	SetActive(ctx context.Context, id string) error
	// LoadActive returns the active config, or domain.ErrNotFound when the
	// front end has not been pointed at an upstream yet.
	LoadActive(ctx context.Context) (domain.ServerConfig, error)
}

type UserStore interface {
	Create(ctx context.Context, u domain.User) error
	Update(ctx context.Context, u domain.User) error
	Get(ctx context.Context, id string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Delete(ctx context.Context, id string) error
}

type FavoriteStore interface {
	Add(ctx context.Context, f domain.Favorite) error
	Remove(ctx context.Context, userID string, itemID domain.ItemID) error
	List(ctx context.Context, userID string) ([]domain.Favorite, error)
	Has(ctx context.Context, userID string, itemID domain.ItemID) (bool, error)
}

type LibraryStore interface {
	Create(ctx context.Context, l domain.Library) error
	Update(ctx context.Context, l domain.Library) error
	Get(ctx context.Context, id string) (domain.Library, error)
	List(ctx context.Context) ([]domain.Library, error)
	Delete(ctx context.Context, id string) error
}

// WatchHistoryStore is the progress store: best-effort, non-blocking from
// the playback session's perspective.
type WatchHistoryStore interface {
	Upsert(ctx context.Context, wp domain.WatchPosition) error
	Get(ctx context.Context, userID string, itemID domain.ItemID) (domain.WatchPosition, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.WatchPosition, error)
	Delete(ctx context.Context, userID string, itemID domain.ItemID) error
}

type ProfileStore interface {
	Get(ctx context.Context, userID string) (domain.ProfileSettings, error)
	Upsert(ctx context.Context, p domain.ProfileSettings) error
}
