package ports

import (
	"context"
	"time"
)

// ObjectInfo describes one object in the S3-compatible store.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType,omitempty"`
}

// ObjectStore is the file-manager boundary over the S3-compatible object
// store used for artwork and download housekeeping.
type ObjectStore interface {
	List(ctx context.Context, prefix string, max int) ([]ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Remove(ctx context.Context, key string) error
	// RemovePrefix deletes every object under prefix and reports how many
	// were removed.
	RemovePrefix(ctx context.Context, prefix string) (int, error)
	// PresignGet returns a time-limited download URL for key.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
