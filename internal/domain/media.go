package domain

// ItemID identifies a media item on the upstream media server. Opaque; the
// front end never parses it.
type ItemID string

// MediaItem is the catalog view of an upstream item, reduced to the fields
// the front end needs for browsing and playback negotiation.
type MediaItem struct {
	ID           ItemID        `json:"id"`
	Name         string        `json:"name"`
	Type         string        `json:"type"` // Movie, Episode, Series
	SeriesName   string        `json:"seriesName,omitempty"`
	Overview     string        `json:"overview,omitempty"`
	RuntimeTicks int64         `json:"runtimeTicks,omitempty"`
	MediaSources []MediaSource `json:"mediaSources,omitempty"`
}

// MediaSource is one playable representation of an item (a specific file or
// transcode target) identified by an opaque id.
type MediaSource struct {
	ID        string        `json:"id"`
	Container string        `json:"container,omitempty"`
	Streams   []MediaStream `json:"streams,omitempty"`
}

// MediaStream is a single elementary stream inside a media source.
type MediaStream struct {
	Index    int    `json:"index"`
	Type     string `json:"type"` // Video, Audio, Subtitle
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
	Default  bool   `json:"default"`
	Height   int    `json:"height,omitempty"`
}

// AudioTrackDescriptor describes one selectable audio track. Index is the
// upstream-native stream index and is the only value ever sent upstream; the
// position of a descriptor inside a slice is a UI concern and must never
// leave the process.
type AudioTrackDescriptor struct {
	Index         int    `json:"index"`
	Language      string `json:"language"`
	Name          string `json:"name"`
	Codec         string `json:"codec"`
	MediaSourceID string `json:"mediaSourceId"`
}
