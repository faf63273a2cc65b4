package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/metrics"
)

const (
	defaultSettleDelay      = 150 * time.Millisecond
	defaultProgressInterval = 15 * time.Second
	progressSaveTimeout     = 5 * time.Second
	maxSeekRestoreAttempts  = 5
	seekRestoreBackoff      = 100 * time.Millisecond
	maxNetworkRetries       = 3
)

var (
	ErrSessionDestroyed = errors.New("playback session destroyed")
	// ErrInvalidTransition is reported when a control action is not legal in
	// the session's current state.
	ErrInvalidTransition = errors.New("invalid playback state transition")
	// ErrUnknownTrack is reported for an audio track list position outside
	// the session's track list.
	ErrUnknownTrack = errors.New("unknown audio track")
)

// Session drives one playback pipeline for one viewer and item. It owns at
// most one ports.AdaptiveEngine at a time; audio track, media source and
// forced-quality changes destroy the pipeline and load a fresh one, because
// the upstream protocol cannot switch tracks inside a live manifest.
//
// All engine callbacks carry the generation current at attach time. Teardown
// bumps the generation, so a late callback from a torn-down pipeline is
// discarded instead of mutating the session.
type Session struct {
	ID     string
	UserID string
	ItemID domain.ItemID

	factory ports.EngineFactory
	history ports.WatchHistoryStore
	logger  *slog.Logger

	settleDelay      time.Duration
	progressInterval time.Duration

	itemName   string
	seriesName string
	duration   float64 // seconds

	onChange func(Snapshot)

	mu            sync.Mutex
	state         SessionState
	generation    uint64
	engine        ports.AdaptiveEngine
	levels        []ports.QualityLevel
	tracks        []domain.AudioTrackDescriptor
	trackPos      int // array position presented to the user; -1 = default
	audioIndex    int // upstream-native index, valid when trackPos >= 0
	mediaSourceID string
	qualityHeight int // 0 = auto
	speed         float64
	currentTime   float64
	playIntent    bool
	hasResumed    bool
	resumeFrom    float64
	lastErr       error

	networkRetries int
	mediaRecovered bool
	codecReloaded  bool
	progressStop   chan struct{}
}

// Snapshot is the externally visible session state, broadcast over the
// WebSocket hub.
type Snapshot struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	ItemID        domain.ItemID `json:"itemId"`
	State         string        `json:"state"`
	Position      float64       `json:"position"`
	Speed         float64       `json:"speed"`
	QualityHeight int           `json:"qualityHeight"`
	AudioTrackPos int           `json:"audioTrackPosition"`
	Error         string        `json:"error,omitempty"`
}

// Config seeds a new session.
type Config struct {
	ID         string
	UserID     string
	Item       domain.MediaItem
	Tracks     []domain.AudioTrackDescriptor
	ResumeFrom float64 // saved watch position, seconds; 0 = start over
	Speed      float64 // 0 = normal
	Quality    int     // preferred height, 0 = auto

	Factory  ports.EngineFactory
	History  ports.WatchHistoryStore
	Logger   *slog.Logger
	OnChange func(Snapshot)
}

func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	speed := cfg.Speed
	if speed == 0 {
		speed = 1.0
	}
	duration := float64(cfg.Item.RuntimeTicks) / float64(domain.TicksPerSecond)
	return &Session{
		ID:               cfg.ID,
		UserID:           cfg.UserID,
		ItemID:           cfg.Item.ID,
		factory:          cfg.Factory,
		history:          cfg.History,
		logger:           logger,
		settleDelay:      defaultSettleDelay,
		progressInterval: defaultProgressInterval,
		itemName:         cfg.Item.Name,
		seriesName:       cfg.Item.SeriesName,
		duration:         duration,
		onChange:         cfg.OnChange,
		state:            StateIdle,
		tracks:           cfg.Tracks,
		trackPos:         -1,
		qualityHeight:    cfg.Quality,
		speed:            speed,
		resumeFrom:       cfg.ResumeFrom,
		playIntent:       true,
	}
}

// Open loads the manifest and attaches the first pipeline.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if err := s.transitionLocked(StateLoading); err != nil {
		s.mu.Unlock()
		return err
	}
	gen := s.generation
	intent := s.playIntent
	if s.progressStop == nil && s.history != nil {
		s.progressStop = make(chan struct{})
		go s.progressLoop(s.progressStop)
	}
	s.mu.Unlock()

	s.notify()
	if err := s.attach(ctx, gen, -1, intent); err != nil && !errors.Is(err, domain.ErrCancelled) {
		return err
	}
	return nil
}

// SelectAudioTrack switches to the track at the given array position. The
// position indexes the session's ordered descriptor list; what goes upstream
// is always the descriptor's native stream index, never the position.
func (s *Session) SelectAudioTrack(ctx context.Context, position int) error {
	s.mu.Lock()
	if position < 0 || position >= len(s.tracks) {
		s.mu.Unlock()
		return fmt.Errorf("%w: position %d out of range", ErrUnknownTrack, position)
	}
	track := s.tracks[position]
	s.mu.Unlock()

	return s.doSwitch(ctx, "audio", func() {
		s.trackPos = position
		s.audioIndex = track.Index
		if track.MediaSourceID != "" {
			s.mediaSourceID = track.MediaSourceID
		}
	})
}

// SetQuality pins playback to the rendition with the given height; 0 returns
// to automatic selection. When the current manifest has a matching rendition
// the level is switched in place; otherwise the pipeline is reloaded with a
// quality-forcing parameter.
func (s *Session) SetQuality(ctx context.Context, height int) error {
	s.mu.Lock()
	engine := s.engine
	if height == 0 {
		s.qualityHeight = 0
		s.mu.Unlock()
		if engine != nil {
			if err := engine.SetLevel(-1); err != nil {
				return err
			}
		}
		s.notify()
		return nil
	}
	if engine != nil {
		if idx := levelIndexByHeight(s.levels, height); idx >= 0 {
			s.qualityHeight = height
			s.mu.Unlock()
			if err := engine.SetLevel(idx); err != nil {
				return err
			}
			s.notify()
			return nil
		}
	}
	s.mu.Unlock()

	return s.doSwitch(ctx, "quality", func() {
		s.qualityHeight = height
	})
}

// Play records play intent and starts the pipeline.
func (s *Session) Play() error {
	s.mu.Lock()
	s.playIntent = true
	engine := s.engine
	if s.state == StateReady || s.state == StatePaused {
		if err := s.transitionLocked(StatePlaying); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	if engine != nil {
		if err := engine.Play(); err != nil {
			return err
		}
	}
	s.notify()
	return nil
}

// Pause records pause intent and halts the pipeline.
func (s *Session) Pause() error {
	s.mu.Lock()
	s.playIntent = false
	engine := s.engine
	if s.state == StateReady || s.state == StatePlaying {
		if err := s.transitionLocked(StatePaused); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	if engine != nil {
		engine.Pause()
	}
	s.notify()
	return nil
}

// SeekTo moves playback to pos seconds.
func (s *Session) SeekTo(pos float64) error {
	s.mu.Lock()
	engine := s.engine
	s.currentTime = pos
	s.mu.Unlock()

	if engine == nil {
		return ports.ErrEngineNotReady
	}
	return engine.SeekTo(pos)
}

// SetSpeed changes the playback rate and remembers it across reloads.
func (s *Session) SetSpeed(rate float64) {
	s.mu.Lock()
	s.speed = rate
	engine := s.engine
	s.mu.Unlock()

	if engine != nil {
		engine.SetRate(rate)
	}
}

// Retry re-enters the load path after a fatal error.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateError {
		s.mu.Unlock()
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, s.state)
	}
	if err := s.transitionLocked(StateIdle); err != nil {
		s.mu.Unlock()
		return err
	}
	s.networkRetries = 0
	s.mediaRecovered = false
	s.codecReloaded = false
	s.mu.Unlock()

	return s.Open(ctx)
}

// Destroy tears the session down: the engine is released, callbacks are
// detached by the generation bump, and the progress timer stops. Terminal
// and idempotent.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	if s.engine != nil {
		s.currentTime = s.engine.Position()
	}
	pos := s.currentTime
	_ = s.transitionLocked(StateDestroyed)
	s.teardownLocked()
	stop := s.progressStop
	s.progressStop = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	s.saveProgress(pos)
	s.notify()
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that put the session into the Error state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Position returns the current playback position in seconds.
func (s *Session) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		return s.engine.Position()
	}
	return s.currentTime
}

// Snapshot returns the externally visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:            s.ID,
		UserID:        s.UserID,
		ItemID:        s.ItemID,
		State:         s.state.String(),
		Position:      s.currentTime,
		Speed:         s.speed,
		QualityHeight: s.qualityHeight,
		AudioTrackPos: s.trackPos,
	}
	if s.engine != nil {
		snap.Position = s.engine.Position()
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

// doSwitch is the single teardown-then-reload path shared by track, quality
// and recovery reloads. The old pipeline is destroyed and the surface
// cleared synchronously, under lock, before the new manifest URL is even
// built; attaching the replacement is gated on that teardown's generation.
func (s *Session) doSwitch(ctx context.Context, trigger string, mutate func()) error {
	s.mu.Lock()
	if s.state == StateDestroyed {
		s.mu.Unlock()
		return ErrSessionDestroyed
	}
	if s.state == StateIdle || s.state == StateError {
		// No pipeline yet; remember the selection for the next load.
		if mutate != nil {
			mutate()
		}
		s.mu.Unlock()
		return nil
	}

	wasPlaying := s.playIntent
	restoreAt := s.currentTime
	if s.engine != nil {
		s.engine.Pause()
		if pos := s.engine.Position(); pos > 0 {
			restoreAt = pos
		}
	}
	if err := s.transitionLocked(StateSwitching); err != nil {
		s.mu.Unlock()
		return err
	}
	s.teardownLocked()
	if mutate != nil {
		mutate()
	}
	if err := s.transitionLocked(StateLoading); err != nil {
		s.mu.Unlock()
		return err
	}
	gen := s.generation
	s.mu.Unlock()

	metrics.PlaybackSwitchesTotal.WithLabelValues(trigger).Inc()
	s.notify()
	if err := s.attach(ctx, gen, restoreAt, wasPlaying); err != nil && !errors.Is(err, domain.ErrCancelled) {
		return err
	}
	return nil
}

// attach builds a fresh pipeline and loads the manifest. gen is the
// generation recorded when the previous pipeline finished tearing down: if it
// no longer matches, the session was destroyed or re-switched in the
// meantime and nothing is attached. Abandoned attaches report
// domain.ErrCancelled, which callers discard.
func (s *Session) attach(ctx context.Context, gen uint64, restoreAt float64, wasPlaying bool) error {
	if s.settleDelay > 0 {
		select {
		case <-time.After(s.settleDelay):
		case <-ctx.Done():
			return domain.ErrCancelled
		}
	}

	s.mu.Lock()
	if gen != s.generation || s.state == StateDestroyed {
		s.mu.Unlock()
		return domain.ErrCancelled
	}
	engine := s.factory()
	s.engine = engine
	target := s.manifestURLLocked()
	s.mu.Unlock()

	cb := ports.EngineCallbacks{
		OnManifestParsed: func(levels []ports.QualityLevel) {
			s.handleManifestParsed(gen, levels, restoreAt, wasPlaying)
		},
		OnError: func(e ports.EngineError) {
			s.handleEngineError(ctx, gen, e)
		},
	}
	if err := engine.Load(ctx, target, cb); err != nil {
		if ctx.Err() != nil {
			return domain.ErrCancelled
		}
		s.fail(gen, fmt.Errorf("manifest load: %w", err))
		return err
	}
	return nil
}

func (s *Session) handleManifestParsed(gen uint64, levels []ports.QualityLevel, restoreAt float64, wasPlaying bool) {
	s.mu.Lock()
	if gen != s.generation || s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	if err := s.transitionLocked(StateReady); err != nil {
		s.mu.Unlock()
		return
	}
	s.levels = levels
	engine := s.engine

	levelIdx := -1 // auto
	if s.qualityHeight > 0 {
		levelIdx = levelIndexByHeight(levels, s.qualityHeight)
	}
	speed := s.speed

	// Resume the saved watch position at most once per session; a position
	// snapshotted for a switch takes precedence and does not consume the
	// one-shot.
	seekTo := -1.0
	if restoreAt >= 0 {
		seekTo = restoreAt
	} else if !s.hasResumed && s.resumeFrom > 0 {
		seekTo = s.resumeFrom
		s.hasResumed = true
	}
	s.mu.Unlock()

	if err := engine.SetLevel(levelIdx); err != nil {
		s.logger.Debug("level select failed", slog.Int("level", levelIdx), slog.String("error", err.Error()))
	}
	if speed != 1.0 {
		engine.SetRate(speed)
	}
	s.notify()

	go s.restoreAndResume(gen, engine, seekTo, wasPlaying)
}

// restoreAndResume seeks to the restored position, retrying with backoff
// while the pipeline is not yet seekable, then settles into Playing or
// Paused per the recorded intent.
func (s *Session) restoreAndResume(gen uint64, engine ports.AdaptiveEngine, seekTo float64, wasPlaying bool) {
	if seekTo >= 0 {
		backoff := seekRestoreBackoff
		for attempt := 1; attempt <= maxSeekRestoreAttempts; attempt++ {
			if s.stale(gen) {
				return
			}
			err := engine.SeekTo(seekTo)
			if err == nil {
				break
			}
			if !errors.Is(err, ports.ErrEngineNotReady) || attempt == maxSeekRestoreAttempts {
				s.logger.Warn("position restore failed",
					slog.Float64("position", seekTo),
					slog.Int("attempts", attempt),
					slog.String("error", err.Error()))
				break
			}
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	s.mu.Lock()
	if gen != s.generation || s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	if seekTo >= 0 {
		s.currentTime = seekTo
	}
	target := StatePaused
	if wasPlaying {
		target = StatePlaying
	}
	if err := s.transitionLocked(target); err != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if wasPlaying {
		if err := engine.Play(); err != nil {
			s.logger.Warn("autoplay failed", slog.String("error", err.Error()))
		}
	}
	s.notify()
}

func (s *Session) handleEngineError(ctx context.Context, gen uint64, e ports.EngineError) {
	s.mu.Lock()
	if gen != s.generation || s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	engine := s.engine

	switch {
	case e.Fatal:
		s.failLocked(e.Err)
		s.mu.Unlock()
		s.notify()
		return

	case e.Kind == ports.EngineErrorNetwork:
		if s.networkRetries < maxNetworkRetries {
			s.networkRetries++
			s.mu.Unlock()
			metrics.PlaybackRecoveriesTotal.WithLabelValues("network").Inc()
			engine.StartLoad()
			return
		}
		s.failLocked(fmt.Errorf("network recovery exhausted: %w", e.Err))
		s.mu.Unlock()
		s.notify()
		return

	case e.Kind == ports.EngineErrorMedia:
		if !s.mediaRecovered {
			s.mediaRecovered = true
			s.mu.Unlock()
			metrics.PlaybackRecoveriesTotal.WithLabelValues("media").Inc()
			engine.RecoverMedia()
			return
		}
		s.mu.Unlock()
		metrics.PlaybackRecoveriesTotal.WithLabelValues("reload").Inc()
		if err := s.doSwitch(ctx, "recovery", nil); err != nil {
			s.logger.Warn("recovery reload failed", slog.String("error", err.Error()))
		}
		return

	case e.Kind == ports.EngineErrorCodec:
		if !s.codecReloaded {
			s.codecReloaded = true
			s.mu.Unlock()
			metrics.PlaybackRecoveriesTotal.WithLabelValues("codec").Inc()
			if err := s.doSwitch(ctx, "recovery", nil); err != nil {
				s.logger.Warn("codec reload failed", slog.String("error", err.Error()))
			}
			return
		}
		s.failLocked(fmt.Errorf("%w: %v", domain.ErrCodecFatal, e.Err))
		s.mu.Unlock()
		s.notify()
		return

	default:
		s.mu.Unlock()
		s.logger.Debug("non-fatal engine error ignored",
			slog.String("kind", e.Kind.String()),
			slog.String("error", e.Err.Error()))
	}
}

// teardownLocked destroys the current pipeline and bumps the generation so
// its late callbacks are discarded. Recovery budgets reset with the pipeline.
func (s *Session) teardownLocked() {
	s.generation++
	if s.engine != nil {
		s.engine.Destroy()
		s.engine = nil
	}
	s.levels = nil
	s.networkRetries = 0
	s.mediaRecovered = false
	s.codecReloaded = false
}

func (s *Session) failLocked(err error) {
	if terr := s.transitionLocked(StateError); terr != nil {
		s.logger.Warn("error transition rejected", slog.String("error", terr.Error()))
	}
	s.lastErr = err
	s.generation++
	if s.engine != nil {
		s.engine.Destroy()
		s.engine = nil
	}
}

func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation || s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	s.failLocked(err)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.generation || s.state == StateDestroyed
}

// manifestURLLocked builds the proxy-relative manifest URL for the current
// selection. The audioTrack value is the upstream-native stream index.
func (s *Session) manifestURLLocked() string {
	vals := url.Values{}
	if s.trackPos >= 0 {
		vals.Set("audioTrack", strconv.Itoa(s.audioIndex))
	}
	if s.mediaSourceID != "" {
		vals.Set("mediaSourceId", s.mediaSourceID)
	}
	if s.qualityHeight > 0 {
		vals.Set("maxHeight", strconv.Itoa(s.qualityHeight))
	}
	u := "/stream/" + url.PathEscape(string(s.ItemID))
	if len(vals) > 0 {
		u += "?" + vals.Encode()
	}
	return u
}

func (s *Session) progressLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state != StatePlaying || s.engine == nil {
				s.mu.Unlock()
				continue
			}
			s.currentTime = s.engine.Position()
			pos := s.currentTime
			s.mu.Unlock()
			s.saveProgress(pos)
		}
	}
}

// saveProgress is fire-and-forget: a failed write is counted and logged,
// never surfaced to playback.
func (s *Session) saveProgress(pos float64) {
	if s.history == nil || pos <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), progressSaveTimeout)
	defer cancel()

	wp := domain.WatchPosition{
		UserID:     s.UserID,
		ItemID:     s.ItemID,
		Position:   pos,
		Duration:   s.duration,
		ItemName:   s.itemName,
		SeriesName: s.seriesName,
		UpdatedAt:  time.Now(),
	}
	if err := s.history.Upsert(ctx, wp); err != nil {
		metrics.ProgressSavesTotal.WithLabelValues("error").Inc()
		s.logger.Debug("progress save failed",
			slog.String("item_id", string(s.ItemID)),
			slog.String("error", err.Error()))
		return
	}
	metrics.ProgressSavesTotal.WithLabelValues("ok").Inc()
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}

func levelIndexByHeight(levels []ports.QualityLevel, height int) int {
	for i, l := range levels {
		if l.Height == height {
			return i
		}
	}
	return -1
}
