package headless

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/usecase"
)

const masterManifest = "#EXTM3U\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=6000000,RESOLUTION=1920x1080,CODECS=\"avc1.640028,mp4a.40.2\"\n" +
	"/stream/movie-1/main_0.m3u8\n" +
	"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n" +
	"/stream/movie-1/main_1.m3u8\n"

type fetcherFake struct {
	mu      sync.Mutex
	reqs    []domain.StreamRequest
	payload usecase.StreamPayload
	err     error
}

func (f *fetcherFake) Execute(ctx context.Context, req domain.StreamRequest) (usecase.StreamPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.payload, f.err
}

func (f *fetcherFake) requests() []domain.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StreamRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}

func newTestEngine(fetcher *fetcherFake) *Engine {
	return NewFactory(fetcher, nil)().(*Engine)
}

func TestLoadParsesLevelsAndFiresCallback(t *testing.T) {
	fetcher := &fetcherFake{payload: usecase.StreamPayload{Manifest: []byte(masterManifest)}}
	engine := newTestEngine(fetcher)

	var parsed []ports.QualityLevel
	err := engine.Load(context.Background(), "/stream/movie-1?audioTrack=2&mediaSourceId=src-1", ports.EngineCallbacks{
		OnManifestParsed: func(levels []ports.QualityLevel) { parsed = levels },
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("levels = %+v", parsed)
	}
	if parsed[0].Height != 1080 || parsed[0].Bitrate != 6000000 {
		t.Fatalf("level 0 = %+v", parsed[0])
	}
	if parsed[1].Height != 720 {
		t.Fatalf("level 1 = %+v", parsed[1])
	}

	reqs := fetcher.requests()
	if len(reqs) != 1 {
		t.Fatalf("fetches = %d", len(reqs))
	}
	req := reqs[0]
	if req.ItemID != "movie-1" || req.RelativePath != "" {
		t.Fatalf("request = %+v", req)
	}
	if req.AudioStreamIndex == nil || *req.AudioStreamIndex != 2 || req.MediaSourceID != "src-1" {
		t.Fatalf("negotiation params = %+v", req)
	}
}

func TestLoadRejectsNonStreamURL(t *testing.T) {
	engine := newTestEngine(&fetcherFake{})
	if err := engine.Load(context.Background(), "/items/movie-1", ports.EngineCallbacks{}); err == nil {
		t.Fatal("expected error for non-stream url")
	}
}

func TestLoadPropagatesFetchError(t *testing.T) {
	fetcher := &fetcherFake{err: domain.ErrUpstreamUnreachable}
	engine := newTestEngine(fetcher)
	err := engine.Load(context.Background(), "/stream/movie-1", ports.EngineCallbacks{})
	if !errors.Is(err, domain.ErrUpstreamUnreachable) {
		t.Fatalf("err = %v", err)
	}
}

func TestSeekBeforeLoadIsNotReady(t *testing.T) {
	engine := newTestEngine(&fetcherFake{})
	if err := engine.SeekTo(10); !errors.Is(err, ports.ErrEngineNotReady) {
		t.Fatalf("err = %v, want ErrEngineNotReady", err)
	}
}

func TestClockAdvancesOnlyWhilePlaying(t *testing.T) {
	fetcher := &fetcherFake{payload: usecase.StreamPayload{Manifest: []byte(masterManifest)}}
	engine := newTestEngine(fetcher)
	if err := engine.Load(context.Background(), "/stream/movie-1", ports.EngineCallbacks{}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := engine.SeekTo(100); err != nil {
		t.Fatalf("SeekTo: %v", err)
	}
	if pos := engine.Position(); pos != 100 {
		t.Fatalf("paused position = %v, want 100", pos)
	}

	if err := engine.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	engine.Pause()
	pos := engine.Position()
	if pos <= 100 || pos > 101 {
		t.Fatalf("position after ~50ms of playback = %v", pos)
	}

	time.Sleep(30 * time.Millisecond)
	if engine.Position() != pos {
		t.Fatal("position advanced while paused")
	}
}

func TestSetRateScalesClock(t *testing.T) {
	fetcher := &fetcherFake{payload: usecase.StreamPayload{Manifest: []byte(masterManifest)}}
	engine := newTestEngine(fetcher)
	if err := engine.Load(context.Background(), "/stream/movie-1", ports.EngineCallbacks{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	engine.SetRate(2)
	if err := engine.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	engine.Pause()
	pos := engine.Position()
	if pos < 0.15 || pos > 0.6 {
		t.Fatalf("position at 2x after ~100ms = %v", pos)
	}
}

func TestSetLevelBounds(t *testing.T) {
	fetcher := &fetcherFake{payload: usecase.StreamPayload{Manifest: []byte(masterManifest)}}
	engine := newTestEngine(fetcher)
	if err := engine.Load(context.Background(), "/stream/movie-1", ports.EngineCallbacks{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := engine.SetLevel(1); err != nil {
		t.Fatalf("SetLevel(1): %v", err)
	}
	if err := engine.SetLevel(-1); err != nil {
		t.Fatalf("SetLevel(-1): %v", err)
	}
	if err := engine.SetLevel(2); err == nil {
		t.Fatal("SetLevel(2) out of range accepted")
	}
}

func TestDestroyIsIdempotentAndDetaches(t *testing.T) {
	fetcher := &fetcherFake{payload: usecase.StreamPayload{Manifest: []byte(masterManifest)}}
	engine := newTestEngine(fetcher)
	if err := engine.Load(context.Background(), "/stream/movie-1", ports.EngineCallbacks{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	engine.Destroy()
	engine.Destroy()
	if err := engine.Play(); err == nil {
		t.Fatal("Play succeeded on destroyed engine")
	}
	if err := engine.SeekTo(5); err == nil {
		t.Fatal("SeekTo succeeded on destroyed engine")
	}
}

func TestStartLoadReportsNetworkErrors(t *testing.T) {
	fetcher := &fetcherFake{payload: usecase.StreamPayload{Manifest: []byte(masterManifest)}}
	engine := newTestEngine(fetcher)

	errCh := make(chan ports.EngineError, 1)
	err := engine.Load(context.Background(), "/stream/movie-1", ports.EngineCallbacks{
		OnError: func(e ports.EngineError) { errCh <- e },
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	fetcher.mu.Lock()
	fetcher.err = domain.ErrUpstreamUnreachable
	fetcher.mu.Unlock()
	engine.StartLoad()

	select {
	case engineErr := <-errCh:
		if engineErr.Kind != ports.EngineErrorNetwork {
			t.Fatalf("kind = %v", engineErr.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
}

func TestParseLevelsIgnoresQuotedCommas(t *testing.T) {
	manifest := "#EXT-X-STREAM-INF:BANDWIDTH=1000,CODECS=\"a,b\",RESOLUTION=640x360\nvar.m3u8\n"
	levels := parseLevels(manifest)
	if len(levels) != 1 || levels[0].Height != 360 || levels[0].Bitrate != 1000 {
		t.Fatalf("levels = %+v", levels)
	}
}
