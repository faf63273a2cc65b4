package ports

import (
	"context"
	"io"

	"streamgate/internal/domain"
)

// UpstreamResponse is one proxied fetch result. Body is nil for manifest
// responses, which arrive pre-read in Text.
type UpstreamResponse struct {
	StatusCode  int
	ContentType string
	Text        string        // manifest body
	Body        io.ReadCloser // segment body, streamed
}

// MediaServer is the upstream media server boundary. Implemented by the
// concrete client in internal/upstream; faked in tests.
type MediaServer interface {
	// Authenticate logs in the synthetic public viewer and returns a bearer
	// token.
	Authenticate(ctx context.Context, serverURL, username, password string) (string, error)
	// ResolveViewerID finds the upstream user id for the synthetic viewer.
	ResolveViewerID(ctx context.Context, serverURL, token string) (string, error)
	// GetItem fetches item metadata with user context.
	GetItem(ctx context.Context, serverURL, token, viewerID string, itemID domain.ItemID) (domain.MediaItem, error)
	// ListItems browses a library view.
	ListItems(ctx context.Context, serverURL, token, viewID string) ([]domain.MediaItem, error)
	// Fetch performs one raw streaming fetch against target (a fully built
	// upstream URL). asText selects manifest (pre-read) vs segment
	// (streamed) handling.
	Fetch(ctx context.Context, target string, asText bool) (UpstreamResponse, error)
}
