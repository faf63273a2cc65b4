package ports

import (
	"context"
	"errors"
)

// QualityLevel is one rendition the adaptive engine discovered in a parsed
// manifest.
type QualityLevel struct {
	Height  int
	Bitrate int64
}

// EngineErrorKind buckets engine failures for the session's recovery policy.
type EngineErrorKind int

const (
	EngineErrorNetwork EngineErrorKind = iota
	EngineErrorMedia
	EngineErrorCodec
	EngineErrorOther
)

var engineErrorKindNames = [...]string{"network", "media", "codec", "other"}

func (k EngineErrorKind) String() string {
	if int(k) < len(engineErrorKindNames) {
		return engineErrorKindNames[k]
	}
	return "unknown"
}

// EngineError is reported by the adaptive engine through EngineCallbacks.
type EngineError struct {
	Kind  EngineErrorKind
	Fatal bool
	Err   error
}

// EngineCallbacks are attached on Load and detached by Destroy. Callbacks
// fire asynchronously; receivers must guard against their session having
// been torn down in the meantime.
type EngineCallbacks struct {
	// OnManifestParsed fires once the manifest is parsed and quality levels
	// are known.
	OnManifestParsed func(levels []QualityLevel)
	// OnError fires for every engine-level failure, fatal or not.
	OnError func(e EngineError)
}

// ErrEngineNotReady is returned by SeekTo when the pipeline cannot accept a
// seek yet; callers retry with backoff.
var ErrEngineNotReady = errors.New("engine not ready")

// AdaptiveEngine is the decode/ABR pipeline collaborator. One instance
// drives one render surface; track or quality changes require destroying
// the instance and creating a fresh one (the upstream protocol has no live
// track switching).
type AdaptiveEngine interface {
	// Load fetches and parses the manifest at url, attaching cb for the
	// lifetime of the instance.
	Load(ctx context.Context, url string, cb EngineCallbacks) error
	// Levels reports the renditions of the parsed manifest.
	Levels() []QualityLevel
	// SetLevel pins rendition i; -1 re-enables automatic selection.
	SetLevel(i int) error
	Play() error
	Pause()
	// SeekTo moves playback to pos seconds. May return ErrEngineNotReady.
	SeekTo(pos float64) error
	SetRate(rate float64)
	Position() float64
	// StartLoad restarts network loading after a non-fatal network error.
	StartLoad()
	// RecoverMedia attempts the engine's built-in media-error recovery.
	RecoverMedia()
	// Destroy releases the pipeline and detaches the render surface and all
	// callbacks. Idempotent.
	Destroy()
}

// EngineFactory builds a fresh pipeline for each (re)load.
type EngineFactory func() AdaptiveEngine
