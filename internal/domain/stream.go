package domain

import (
	"strings"
	"time"
)

const (
	// ManifestExt marks adaptive-bitrate playlist files.
	ManifestExt = ".m3u8"
	// SegmentExt marks transcoded segment files, streamed byte-for-byte.
	SegmentExt = ".ts"
)

// TicksPerSecond converts upstream runtime ticks (100ns units) to seconds.
const TicksPerSecond = 10_000_000

// StreamKind classifies what a StreamRequest addresses.
type StreamKind int

const (
	StreamMaster  StreamKind = iota // empty relative path
	StreamVariant                   // relative path ending in ManifestExt
	StreamSegment                   // relative path ending in SegmentExt
	StreamOther                     // anything else (init files etc.)
)

var streamKindNames = [...]string{"master", "variant", "segment", "other"}

func (k StreamKind) String() string {
	if int(k) < len(streamKindNames) {
		return streamKindNames[k]
	}
	return "unknown"
}

// StreamRequest identifies one proxied fetch against the upstream server.
type StreamRequest struct {
	ItemID       ItemID
	RelativePath string // empty means master manifest

	// Negotiation parameters, only meaningful on manifest requests.
	AudioStreamIndex *int // upstream-native index, never a list position
	MediaSourceID    string
	MaxHeight        *int // quality-forcing, vertical resolution

	// Pass-through transcoding parameters, only forwarded on segments.
	RuntimeTicks             string
	ActualSegmentLengthTicks string
}

// Kind classifies the request by its relative path. Empty always means the
// master manifest; callers disambiguate root playlists via the route
// contract, not the extension.
func (r StreamRequest) Kind() StreamKind {
	switch {
	case r.RelativePath == "":
		return StreamMaster
	case strings.HasSuffix(r.RelativePath, ManifestExt):
		return StreamVariant
	case strings.HasSuffix(r.RelativePath, SegmentExt):
		return StreamSegment
	default:
		return StreamOther
	}
}

// IsManifest reports whether the response body must be rewritten before it
// leaves the proxy.
func (r StreamRequest) IsManifest() bool {
	k := r.Kind()
	return k == StreamMaster || k == StreamVariant
}

// UpstreamCredential is a bearer token for the upstream media server plus
// its acquisition time. Valid for TokenTTL, shared process-wide.
type UpstreamCredential struct {
	Token      string
	AcquiredAt time.Time
	// Fallback is true when the credential is the statically configured API
	// key rather than a per-viewer token (degraded mode).
	Fallback bool
}

// TokenTTL is how long an upstream credential is reused before a refresh.
const TokenTTL = time.Hour

// Expired reports whether the credential is past its TTL at now.
func (c UpstreamCredential) Expired(now time.Time) bool {
	if c.Token == "" {
		return true
	}
	return now.Sub(c.AcquiredAt) >= TokenTTL
}
