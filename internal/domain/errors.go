package domain

import "errors"

var ErrNotFound = errors.New("not found")

// Streaming error taxonomy. The proxy and the playback session map these to
// externally visible statuses; see the api/http error helpers.
var (
	// ErrNotConfigured means no active upstream server configuration exists.
	// Surfaced as a distinct, user-actionable status rather than a generic
	// failure.
	ErrNotConfigured = errors.New("upstream server not configured")

	// ErrAuthFailed means the upstream rejected our credential even after a
	// forced refresh.
	ErrAuthFailed = errors.New("upstream authentication failed")

	// ErrUpstreamUnreachable covers network-level failures talking to the
	// upstream media server, including fetch timeouts.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrManifestMismatch means a fetched manifest embeds an item identifier
	// other than the requested one. Fatal for that session, never played.
	ErrManifestMismatch = errors.New("manifest item mismatch")

	// ErrCodecFatal means the decode pipeline cannot accept the stream and a
	// full destroy/reload cycle is required.
	ErrCodecFatal = errors.New("codec cannot play stream")

	// ErrCancelled marks work abandoned because the session was torn down
	// mid-flight. Discarded silently, never surfaced to the user.
	ErrCancelled = errors.New("session cancelled")
)
