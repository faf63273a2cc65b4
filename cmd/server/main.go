package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	apihttp "streamgate/internal/api/http"
	"streamgate/internal/app"
	"streamgate/internal/domain"
	"streamgate/internal/metrics"
	mongorepo "streamgate/internal/repository/mongo"
	"streamgate/internal/services/session/engine/headless"
	"streamgate/internal/services/session/player"
	sessionmongo "streamgate/internal/services/session/repository/mongo"
	"streamgate/internal/storage/s3"
	"streamgate/internal/telemetry"
	"streamgate/internal/upstream"
	"streamgate/internal/usecase"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "streamgate")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "streamgate"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("mongoDb", cfg.MongoDatabase),
		slog.Bool("s3Enabled", cfg.S3Endpoint != ""),
	)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI,
		options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	configRepo := mongorepo.NewServerConfigRepository(mongoClient, cfg.MongoDatabase)
	userRepo := mongorepo.NewUserRepository(mongoClient, cfg.MongoDatabase)
	favoriteRepo := mongorepo.NewFavoriteRepository(mongoClient, cfg.MongoDatabase)
	libraryRepo := mongorepo.NewLibraryRepository(mongoClient, cfg.MongoDatabase)
	historyRepo := sessionmongo.NewWatchHistoryRepository(mongoClient, cfg.MongoDatabase)
	profileRepo := sessionmongo.NewProfileSettingsRepository(mongoClient, cfg.MongoDatabase)

	if err := userRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}

	if err := bootstrapAdmin(ctx, userRepo, cfg, logger); err != nil {
		logger.Warn("admin bootstrap failed", slog.String("error", err.Error()))
	}

	mediaClient := upstream.NewClient(logger)
	tokenCache := upstream.NewTokenCache(configRepo, mediaClient,
		cfg.UpstreamUsername, cfg.UpstreamPassword, logger)
	resolver := upstream.NewResolver(mediaClient, logger)

	streamUC := usecase.FetchStream{
		Config:   configRepo,
		Media:    mediaClient,
		Tokens:   tokenCache,
		Resolver: resolver,
		Logger:   logger,
	}

	sessionManager := player.NewManager(
		headless.NewFactory(streamUC, logger),
		historyRepo, profileRepo, logger,
	)

	serverOptions := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithTokenSource(tokenCache),
		apihttp.WithMediaServer(mediaClient),
		apihttp.WithTrackResolver(resolver),
		apihttp.WithSessionManager(sessionManager),
		apihttp.WithServerConfigs(configRepo),
		apihttp.WithUsers(userRepo),
		apihttp.WithFavorites(favoriteRepo),
		apihttp.WithLibraries(libraryRepo),
		apihttp.WithWatchHistory(historyRepo),
		apihttp.WithProfiles(profileRepo),
		apihttp.WithJWT(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute),
		apihttp.WithRateLimit(float64(cfg.RateLimitRPS), cfg.RateLimitBurst),
	}

	if cfg.S3Endpoint != "" {
		fileManager, err := s3.NewFileManager(s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			logger.Error("s3 init failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		serverOptions = append(serverOptions, apihttp.WithObjectStore(fileManager))
	}

	handler := apihttp.NewServer(streamUC, serverOptions...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // segment responses run long
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	sessionManager.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// bootstrapAdmin creates the configured admin account on first start so a
// fresh deployment has a way in. Does nothing when the account exists or no
// credentials are configured.
func bootstrapAdmin(ctx context.Context, users *mongorepo.UserRepository, cfg app.Config, logger *slog.Logger) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	if _, err := users.GetByUsername(ctx, cfg.AdminUsername); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	admin := domain.User{
		ID:           uuid.NewString(),
		Username:     cfg.AdminUsername,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}
	logger.Info("bootstrap admin created", slog.String("username", cfg.AdminUsername))
	return nil
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	handlerOptions := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOptions))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOptions))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
