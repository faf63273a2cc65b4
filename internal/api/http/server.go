package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamgate/internal/domain"
	domainports "streamgate/internal/domain/ports"
	"streamgate/internal/services/session/player"
	"streamgate/internal/usecase"
)

// StreamFetcher is the streaming-proxy use case boundary.
type StreamFetcher interface {
	Execute(ctx context.Context, req domain.StreamRequest) (usecase.StreamPayload, error)
}

// TrackResolver lists the selectable audio tracks of an item. Failures are
// swallowed and surface as an empty list.
type TrackResolver interface {
	ResolveAudioTracks(ctx context.Context, serverURL, token string, itemID domain.ItemID) []domain.AudioTrackDescriptor
}

const defaultJWTTTL = 12 * time.Hour

type Server struct {
	streams   StreamFetcher
	tokens    usecase.TokenSource
	media     domainports.MediaServer
	resolver  TrackResolver
	sessions  *player.Manager
	configs   domainports.ServerConfigStore
	users     domainports.UserStore
	favorites domainports.FavoriteStore
	libraries domainports.LibraryStore
	history   domainports.WatchHistoryStore
	profiles  domainports.ProfileStore
	files     domainports.ObjectStore

	jwtSecret []byte
	jwtTTL    time.Duration
	rateRPS   float64
	rateBurst int

	logger  *slog.Logger
	handler http.Handler
	hub     *wsHub
}

type ServerOption func(*Server)

func WithTokenSource(tokens usecase.TokenSource) ServerOption {
	return func(s *Server) { s.tokens = tokens }
}

func WithMediaServer(media domainports.MediaServer) ServerOption {
	return func(s *Server) { s.media = media }
}

func WithTrackResolver(resolver TrackResolver) ServerOption {
	return func(s *Server) { s.resolver = resolver }
}

func WithSessionManager(manager *player.Manager) ServerOption {
	return func(s *Server) { s.sessions = manager }
}

func WithServerConfigs(store domainports.ServerConfigStore) ServerOption {
	return func(s *Server) { s.configs = store }
}

func WithUsers(store domainports.UserStore) ServerOption {
	return func(s *Server) { s.users = store }
}

func WithFavorites(store domainports.FavoriteStore) ServerOption {
	return func(s *Server) { s.favorites = store }
}

func WithLibraries(store domainports.LibraryStore) ServerOption {
	return func(s *Server) { s.libraries = store }
}

func WithWatchHistory(store domainports.WatchHistoryStore) ServerOption {
	return func(s *Server) { s.history = store }
}

func WithProfiles(store domainports.ProfileStore) ServerOption {
	return func(s *Server) { s.profiles = store }
}

// WithObjectStore enables the /files file-manager surface. Optional.
func WithObjectStore(store domainports.ObjectStore) ServerOption {
	return func(s *Server) { s.files = store }
}

func WithJWT(secret string, ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.jwtSecret = []byte(secret)
		if ttl > 0 {
			s.jwtTTL = ttl
		}
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func NewServer(streams StreamFetcher, opts ...ServerOption) *Server {
	s := &Server{
		streams:   streams,
		jwtTTL:    defaultJWTTTL,
		rateRPS:   50,
		rateBurst: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.hub = newWSHub(s.logger)
	go s.hub.run()
	if s.sessions != nil {
		s.sessions.OnChange(s.hub.BroadcastSnapshot)
	}

	auth := func(h http.HandlerFunc) http.Handler { return s.authMiddleware(h) }
	admin := func(h http.HandlerFunc) http.Handler { return s.authMiddleware(s.adminOnly(h)) }

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.Handle("/stream/", auth(s.handleStream))
	mux.Handle("/libraries", auth(s.handleLibraries))
	mux.Handle("/items", auth(s.handleItems))
	mux.Handle("/items/", auth(s.handleItem))
	mux.Handle("/sessions", auth(s.handleSessions))
	mux.Handle("/sessions/", auth(s.handleSession))
	mux.Handle("/watch-history", auth(s.handleWatchHistory))
	mux.Handle("/watch-history/", auth(s.handleWatchHistoryItem))
	mux.Handle("/favorites", auth(s.handleFavorites))
	mux.Handle("/favorites/", auth(s.handleFavoriteItem))
	mux.Handle("/profile", auth(s.handleProfile))
	mux.Handle("/admin/servers", admin(s.handleAdminServers))
	mux.Handle("/admin/servers/", admin(s.handleAdminServer))
	mux.Handle("/admin/users", admin(s.handleAdminUsers))
	mux.Handle("/admin/users/", admin(s.handleAdminUser))
	mux.Handle("/admin/libraries", admin(s.handleAdminLibraries))
	mux.Handle("/admin/libraries/", admin(s.handleAdminLibrary))
	mux.Handle("/files", admin(s.handleFiles))
	mux.Handle("/files/stat", admin(s.handleFileStat))
	mux.Handle("/files/presign", admin(s.handleFilePresign))
	mux.Handle("/ws", auth(s.handleWS))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "streamgate",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" &&
				!(strings.HasPrefix(p, "/stream/") && strings.HasSuffix(p, domain.SegmentExt))
		}),
	)
	s.handler = recoveryMiddleware(s.logger,
		rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(corsMiddleware(traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Close disconnects all WebSocket clients. Playback sessions belong to the
// manager and are shut down by the caller.
func (s *Server) Close() {
	if s.hub != nil {
		s.hub.Close()
	}
}
