package upstream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/metrics"
)

const refreshTimeout = 15 * time.Second

// TokenCache holds the upstream session token for the shared synthetic viewer
// and refreshes it when it goes stale. At most one refresh runs at a time;
// callers that still hold a usable token are answered from cache while the
// refresh completes in the background.
type TokenCache struct {
	config   ports.ServerConfigStore
	media    ports.MediaServer
	logger   *slog.Logger
	username string
	password string
	now      func() time.Time

	mu    sync.RWMutex
	cred  domain.UpstreamCredential
	group singleflight.Group
}

func NewTokenCache(config ports.ServerConfigStore, media ports.MediaServer, username, password string, logger *slog.Logger) *TokenCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenCache{
		config:   config,
		media:    media,
		logger:   logger,
		username: username,
		password: password,
		now:      time.Now,
	}
}

// Token returns the cached credential, refreshing it when expired. When a
// stale token is still present, the refresh happens asynchronously and the
// stale token is returned immediately; only a caller with no token at all
// blocks on the refresh.
func (c *TokenCache) Token(ctx context.Context) (domain.UpstreamCredential, error) {
	c.mu.RLock()
	cred := c.cred
	c.mu.RUnlock()

	if cred.Token != "" && !cred.Expired(c.now()) {
		return cred, nil
	}
	if cred.Token != "" {
		// Stale but usable. Kick the refresh and answer from cache.
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			if _, err := c.refreshShared(bg); err != nil {
				c.logger.Warn("background token refresh failed", slog.String("error", err.Error()))
			}
		}()
		return cred, nil
	}
	return c.refreshShared(ctx)
}

// Invalidate drops the cached credential so the next Token call authenticates
// from scratch. Called when the upstream rejects a request with 401/403.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.cred = domain.UpstreamCredential{}
	c.mu.Unlock()
}

func (c *TokenCache) refreshShared(ctx context.Context) (domain.UpstreamCredential, error) {
	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return domain.UpstreamCredential{}, err
	}
	return v.(domain.UpstreamCredential), nil
}

func (c *TokenCache) refresh(ctx context.Context) (domain.UpstreamCredential, error) {
	cfg, err := c.config.LoadActive(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.UpstreamCredential{}, domain.ErrNotConfigured
		}
		return domain.UpstreamCredential{}, err
	}

	token, err := c.media.Authenticate(ctx, cfg.ServerURL, c.username, c.password)
	if err != nil {
		// Session auth is best effort. Fall back to the configured static
		// key so playback keeps working in degraded mode.
		if cfg.APIKey == "" {
			metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
			return domain.UpstreamCredential{}, err
		}
		c.logger.Warn("session auth failed, using static api key",
			slog.String("error", err.Error()))
		metrics.TokenRefreshesTotal.WithLabelValues("fallback").Inc()
		cred := domain.UpstreamCredential{
			Token:      cfg.APIKey,
			AcquiredAt: c.now(),
			Fallback:   true,
		}
		c.store(cred)
		return cred, nil
	}

	metrics.TokenRefreshesTotal.WithLabelValues("ok").Inc()
	cred := domain.UpstreamCredential{Token: token, AcquiredAt: c.now()}
	c.store(cred)
	return cred, nil
}

func (c *TokenCache) store(cred domain.UpstreamCredential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}
