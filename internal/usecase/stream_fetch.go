package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/metrics"
)

// defaultFetchTimeout is generous because transcoded streams start slowly:
// the upstream may spend tens of seconds producing the first segment.
const defaultFetchTimeout = 30 * time.Second

// TokenSource hands out the shared upstream credential. Implemented by the
// token cache in internal/upstream.
type TokenSource interface {
	Token(ctx context.Context) (domain.UpstreamCredential, error)
	Invalidate()
}

// SourceResolver determines the default media source for an item. Failures
// are swallowed by the implementation and surface as the empty string.
type SourceResolver interface {
	ResolveDefaultSource(ctx context.Context, serverURL, token string, itemID domain.ItemID) string
}

// StreamPayload is the proxy's answer to one StreamRequest. Exactly one of
// Manifest and Body is set: manifests arrive rewritten and fully in memory,
// segments are streamed byte-for-byte.
type StreamPayload struct {
	ContentType string
	Manifest    []byte
	Body        io.ReadCloser
}

// FetchStream is the streaming-proxy orchestrator: it resolves the upstream
// config, credential and media source, builds the upstream target URL,
// fetches it, and rewrites manifest responses.
type FetchStream struct {
	Config   ports.ServerConfigStore
	Media    ports.MediaServer
	Tokens   TokenSource
	Resolver SourceResolver
	Logger   *slog.Logger
	Timeout  time.Duration
}

func (uc FetchStream) Execute(ctx context.Context, req domain.StreamRequest) (StreamPayload, error) {
	if req.ItemID == "" {
		return StreamPayload{}, fmt.Errorf("%w: empty item id", domain.ErrNotFound)
	}

	cfg, err := uc.Config.LoadActive(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return StreamPayload{}, domain.ErrNotConfigured
		}
		return StreamPayload{}, wrapRepo(err)
	}

	cred := uc.credential(ctx, cfg)

	mediaSourceID := req.MediaSourceID
	if req.Kind() == domain.StreamMaster && mediaSourceID == "" && uc.Resolver != nil {
		mediaSourceID = uc.Resolver.ResolveDefaultSource(ctx, cfg.ServerURL, cred.Token, req.ItemID)
	}

	target := buildTargetURL(cfg.ServerURL, req, cred.Token, mediaSourceID)
	resp, err := uc.fetch(ctx, target, req.IsManifest())
	if err != nil {
		return StreamPayload{}, classifyFetchError(ctx, err)
	}

	// Credential staleness is recovered locally: one transparent retry with
	// a forced refresh, then give up.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		closeBody(resp)
		if uc.Tokens != nil {
			uc.Tokens.Invalidate()
		}
		fresh := uc.credential(ctx, cfg)
		target = buildTargetURL(cfg.ServerURL, req, fresh.Token, mediaSourceID)
		resp, err = uc.fetch(ctx, target, req.IsManifest())
		if err != nil {
			return StreamPayload{}, classifyFetchError(ctx, err)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			closeBody(resp)
			metrics.StreamUpstreamErrors.WithLabelValues("auth").Inc()
			return StreamPayload{}, domain.ErrAuthFailed
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		closeBody(resp)
		metrics.StreamUpstreamErrors.WithLabelValues("status").Inc()
		statusErr := &UpstreamStatusError{Status: resp.StatusCode, Target: sanitizeTarget(target)}
		uc.logger().Warn("stream upstream status",
			slog.String("itemId", string(req.ItemID)),
			slog.String("kind", req.Kind().String()),
			slog.Int("status", resp.StatusCode),
			slog.String("target", statusErr.Target),
		)
		return StreamPayload{}, statusErr
	}

	if req.IsManifest() {
		for _, id := range PlaylistItemIDs(resp.Text) {
			if id != string(req.ItemID) {
				metrics.StreamUpstreamErrors.WithLabelValues("mismatch").Inc()
				return StreamPayload{}, fmt.Errorf("%w: manifest references %q, requested %q",
					domain.ErrManifestMismatch, id, req.ItemID)
			}
		}
		rewritten := RewritePlaylist(resp.Text, ProxyBase(req.ItemID))
		metrics.StreamRequestsTotal.WithLabelValues(req.Kind().String()).Inc()
		return StreamPayload{
			ContentType: manifestContentType,
			Manifest:    []byte(rewritten),
		}, nil
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = fallbackStreamContentType(req.RelativePath)
	}
	metrics.StreamRequestsTotal.WithLabelValues(req.Kind().String()).Inc()
	return StreamPayload{ContentType: contentType, Body: resp.Body}, nil
}

// credential returns the best credential available: the cached viewer token,
// or the statically configured API key when acquisition fails entirely.
// Credential failure never fails the fetch.
func (uc FetchStream) credential(ctx context.Context, cfg domain.ServerConfig) domain.UpstreamCredential {
	if uc.Tokens != nil {
		cred, err := uc.Tokens.Token(ctx)
		if err == nil && cred.Token != "" {
			return cred
		}
		if err != nil {
			uc.logger().Warn("stream credential unavailable, using static key",
				slog.String("error", err.Error()))
		}
	}
	return domain.UpstreamCredential{Token: cfg.APIKey, Fallback: true}
}

// classifyFetchError separates the caller going away from the upstream being
// down: a fetch that died because the request context ended is discarded
// silently, everything else is a network failure worth counting.
func classifyFetchError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.ErrCancelled
	}
	metrics.StreamUpstreamErrors.WithLabelValues("network").Inc()
	return fmt.Errorf("%w: %w", domain.ErrUpstreamUnreachable, err)
}

func (uc FetchStream) fetch(ctx context.Context, target string, asText bool) (ports.UpstreamResponse, error) {
	timeout := uc.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := uc.Media.Fetch(fetchCtx, target, asText)
	if err != nil {
		cancel()
		return ports.UpstreamResponse{}, err
	}
	if asText || resp.Body == nil {
		cancel()
		return resp, nil
	}
	// Segment bodies outlive this call; tie the timeout to the body.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (uc FetchStream) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func closeBody(resp ports.UpstreamResponse) {
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
}

const manifestContentType = "application/vnd.apple.mpegurl"

// ProxyBase is the proxy-relative prefix every rewritten manifest line gets.
func ProxyBase(itemID domain.ItemID) string {
	return "/stream/" + string(itemID)
}

// buildTargetURL assembles the upstream URL for a stream request. Negotiation
// parameters travel only on manifest requests; segment addressing is already
// track-specific from the variant manifest, so segments carry only the
// transcoding pass-through parameters. A request with no parameters gets no
// trailing '?'.
func buildTargetURL(serverURL string, req domain.StreamRequest, token, mediaSourceID string) string {
	base := strings.TrimSuffix(serverURL, "/") + upstreamMediaPath + url.PathEscape(string(req.ItemID))

	vals := url.Values{}
	if token != "" {
		vals.Set("api_key", token)
	}
	if mediaSourceID != "" {
		vals.Set("MediaSourceId", mediaSourceID)
	}

	var path string
	switch req.Kind() {
	case domain.StreamMaster:
		path = base + "/master" + domain.ManifestExt
		if req.AudioStreamIndex != nil {
			vals.Set("AudioStreamIndex", fmt.Sprintf("%d", *req.AudioStreamIndex))
		}
		if req.MaxHeight != nil {
			vals.Set("MaxHeight", fmt.Sprintf("%d", *req.MaxHeight))
		}
	case domain.StreamVariant:
		path = base + "/" + req.RelativePath
	default:
		path = base + "/" + req.RelativePath
		if req.RuntimeTicks != "" {
			vals.Set("runTimeTicks", req.RuntimeTicks)
		}
		if req.ActualSegmentLengthTicks != "" {
			vals.Set("actualSegmentLengthTicks", req.ActualSegmentLengthTicks)
		}
	}

	if len(vals) == 0 {
		return path
	}
	return path + "?" + vals.Encode()
}

// sanitizeTarget strips the query string (which carries the credential) for
// logging and error payloads.
func sanitizeTarget(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

func fallbackStreamContentType(relativePath string) string {
	switch {
	case strings.HasSuffix(relativePath, domain.SegmentExt):
		return "video/mp2t"
	case strings.HasSuffix(relativePath, domain.ManifestExt):
		return manifestContentType
	case strings.HasSuffix(relativePath, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(relativePath, ".vtt"):
		return "text/vtt"
	default:
		return "application/octet-stream"
	}
}
