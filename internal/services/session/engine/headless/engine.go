// Package headless implements ports.AdaptiveEngine without a render surface:
// it drives manifest negotiation through the streaming proxy and keeps a
// wall-clock playback position. The media bytes themselves flow straight
// from /stream/ handlers to the client's video element; this engine is the
// server-side half of the pipeline that the session state machine owns.
package headless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/usecase"
)

// Fetcher is the streaming-proxy boundary the engine loads manifests through.
type Fetcher interface {
	Execute(ctx context.Context, req domain.StreamRequest) (usecase.StreamPayload, error)
}

type Engine struct {
	streams Fetcher
	logger  *slog.Logger

	mu        sync.Mutex
	cb        ports.EngineCallbacks
	req       domain.StreamRequest
	levels    []ports.QualityLevel
	level     int // pinned rendition, -1 = auto
	loaded    bool
	destroyed bool

	playing  bool
	rate     float64
	position float64   // seconds at anchor
	anchor   time.Time // when position was last fixed
}

// NewFactory returns a ports.EngineFactory producing headless engines bound
// to the given proxy fetcher.
func NewFactory(streams Fetcher, logger *slog.Logger) ports.EngineFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func() ports.AdaptiveEngine {
		return &Engine{streams: streams, logger: logger, level: -1, rate: 1}
	}
}

func (e *Engine) Load(ctx context.Context, rawURL string, cb ports.EngineCallbacks) error {
	req, err := parseStreamURL(rawURL)
	if err != nil {
		return err
	}

	payload, err := e.streams.Execute(ctx, req)
	if err != nil {
		return err
	}
	if payload.Body != nil {
		_ = payload.Body.Close()
		return errors.New("manifest request answered with a stream body")
	}
	levels := parseLevels(string(payload.Manifest))

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.cb = cb
	e.req = req
	e.levels = levels
	e.loaded = true
	e.anchor = time.Now()
	parsed := cb.OnManifestParsed
	e.mu.Unlock()

	if parsed != nil {
		parsed(levels)
	}
	return nil
}

func (e *Engine) Levels() []ports.QualityLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ports.QualityLevel, len(e.levels))
	copy(out, e.levels)
	return out
}

func (e *Engine) SetLevel(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < -1 || i >= len(e.levels) {
		return fmt.Errorf("level %d out of range", i)
	}
	e.level = i
	return nil
}

func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return errors.New("engine destroyed")
	}
	if !e.playing {
		e.anchor = time.Now()
		e.playing = true
	}
	return nil
}

func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		e.position = e.positionLocked()
		e.playing = false
	}
}

func (e *Engine) SeekTo(pos float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return errors.New("engine destroyed")
	}
	if !e.loaded {
		return ports.ErrEngineNotReady
	}
	if pos < 0 {
		pos = 0
	}
	e.position = pos
	e.anchor = time.Now()
	return nil
}

func (e *Engine) SetRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rate <= 0 {
		return
	}
	e.position = e.positionLocked()
	e.anchor = time.Now()
	e.rate = rate
}

func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

// positionLocked extrapolates the clock from the last anchor point.
func (e *Engine) positionLocked() float64 {
	if !e.playing {
		return e.position
	}
	return e.position + time.Since(e.anchor).Seconds()*e.rate
}

// StartLoad re-fetches the manifest after a network error. Failures are
// reported through the attached callbacks, not returned.
func (e *Engine) StartLoad() {
	e.mu.Lock()
	if e.destroyed || !e.loaded {
		e.mu.Unlock()
		return
	}
	req := e.req
	onError := e.cb.OnError
	e.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		payload, err := e.streams.Execute(ctx, req)
		if err != nil {
			e.logger.Debug("manifest reload failed", slog.String("error", err.Error()))
			if onError != nil {
				onError(ports.EngineError{Kind: ports.EngineErrorNetwork, Err: err})
			}
			return
		}
		if payload.Body != nil {
			_ = payload.Body.Close()
		}
	}()
}

// RecoverMedia is a no-op: with no decode pipeline on this side there is no
// media buffer to flush. The session treats a second media error as
// unrecovered and reloads.
func (e *Engine) RecoverMedia() {}

func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.destroyed = true
	e.playing = false
	e.loaded = false
	e.cb = ports.EngineCallbacks{}
	e.levels = nil
}

// parseStreamURL turns a proxy-relative manifest URL back into the request
// the proxy understands.
func parseStreamURL(rawURL string) (domain.StreamRequest, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return domain.StreamRequest{}, fmt.Errorf("parse manifest url: %w", err)
	}
	trimmed := strings.TrimPrefix(parsed.Path, "/stream/")
	if trimmed == parsed.Path || trimmed == "" {
		return domain.StreamRequest{}, fmt.Errorf("not a stream url: %q", rawURL)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	itemID, err := url.PathUnescape(parts[0])
	if err != nil || itemID == "" {
		return domain.StreamRequest{}, fmt.Errorf("bad item id in %q", rawURL)
	}

	req := domain.StreamRequest{ItemID: domain.ItemID(itemID)}
	if len(parts) == 2 {
		req.RelativePath = parts[1]
	}
	query := parsed.Query()
	if raw := query.Get("audioTrack"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil || index < 0 {
			return domain.StreamRequest{}, fmt.Errorf("bad audioTrack in %q", rawURL)
		}
		req.AudioStreamIndex = &index
	}
	if raw := query.Get("maxHeight"); raw != "" {
		height, err := strconv.Atoi(raw)
		if err != nil || height < 0 {
			return domain.StreamRequest{}, fmt.Errorf("bad maxHeight in %q", rawURL)
		}
		req.MaxHeight = &height
	}
	req.MediaSourceID = query.Get("mediaSourceId")
	return req, nil
}

// parseLevels extracts the renditions from a master playlist's
// #EXT-X-STREAM-INF attribute lines.
func parseLevels(manifest string) []ports.QualityLevel {
	var levels []ports.QualityLevel
	for _, line := range strings.Split(manifest, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			continue
		}
		var level ports.QualityLevel
		for _, attr := range splitAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:")) {
			key, value, ok := strings.Cut(attr, "=")
			if !ok {
				continue
			}
			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "RESOLUTION":
				if _, h, ok := strings.Cut(value, "x"); ok {
					if height, err := strconv.Atoi(strings.TrimSpace(h)); err == nil {
						level.Height = height
					}
				}
			case "BANDWIDTH":
				if bw, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
					level.Bitrate = bw
				}
			}
		}
		levels = append(levels, level)
	}
	return levels
}

// splitAttributes splits an M3U8 attribute list on commas outside quotes.
func splitAttributes(raw string) []string {
	var (
		attrs    []string
		start    int
		inQuotes bool
	)
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				attrs = append(attrs, raw[start:i])
				start = i + 1
			}
		}
	}
	attrs = append(attrs, raw[start:])
	return attrs
}
