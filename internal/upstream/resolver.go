package upstream

import (
	"context"
	"log/slog"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

// Resolver answers playback negotiation lookups against the upstream server.
// Resolution is advisory: any failure yields an empty result and the caller
// proceeds without the parameter rather than failing the stream.
type Resolver struct {
	media  ports.MediaServer
	logger *slog.Logger
}

func NewResolver(media ports.MediaServer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{media: media, logger: logger}
}

// ResolveDefaultSource returns the id of the item's first media source, or ""
// when it cannot be determined. Costs at most two upstream calls.
func (r *Resolver) ResolveDefaultSource(ctx context.Context, serverURL, token string, itemID domain.ItemID) string {
	item, ok := r.lookupItem(ctx, serverURL, token, itemID)
	if !ok || len(item.MediaSources) == 0 {
		return ""
	}
	return item.MediaSources[0].ID
}

// ResolveAudioTracks lists the selectable audio tracks of the item's default
// media source. Failures yield an empty list.
func (r *Resolver) ResolveAudioTracks(ctx context.Context, serverURL, token string, itemID domain.ItemID) []domain.AudioTrackDescriptor {
	item, ok := r.lookupItem(ctx, serverURL, token, itemID)
	if !ok || len(item.MediaSources) == 0 {
		return nil
	}

	source := item.MediaSources[0]
	var tracks []domain.AudioTrackDescriptor
	for _, s := range source.Streams {
		if s.Type != "Audio" {
			continue
		}
		name := s.Title
		if name == "" {
			name = s.Language
		}
		tracks = append(tracks, domain.AudioTrackDescriptor{
			Index:         s.Index,
			Language:      s.Language,
			Name:          name,
			Codec:         s.Codec,
			MediaSourceID: source.ID,
		})
	}
	return tracks
}

func (r *Resolver) lookupItem(ctx context.Context, serverURL, token string, itemID domain.ItemID) (domain.MediaItem, bool) {
	viewerID, err := r.media.ResolveViewerID(ctx, serverURL, token)
	if err != nil {
		r.logger.Debug("viewer lookup failed", slog.String("error", err.Error()))
		return domain.MediaItem{}, false
	}
	item, err := r.media.GetItem(ctx, serverURL, token, viewerID, itemID)
	if err != nil {
		r.logger.Debug("item lookup failed",
			slog.String("item_id", string(itemID)),
			slog.String("error", err.Error()))
		return domain.MediaItem{}, false
	}
	return item, true
}
