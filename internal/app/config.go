package app

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr      string
	MongoURI      string
	MongoDatabase string
	LogLevel      string
	LogFormat     string

	// Synthetic upstream viewer identity used by the token cache.
	UpstreamUsername string
	UpstreamPassword string

	// Admin API.
	JWTSecret     string
	JWTTTLMinutes int64
	AdminUsername string
	AdminPassword string // bootstrap admin, created on first start if set

	// S3 file manager; disabled when the endpoint is empty.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	RateLimitRPS   int
	RateLimitBurst int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "streamgate"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),

		UpstreamUsername: getEnv("UPSTREAM_USERNAME", "public"),
		UpstreamPassword: getEnv("UPSTREAM_PASSWORD", ""),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTTTLMinutes: getEnvInt64("JWT_TTL_MINUTES", 720),
		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", "streamgate"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", false),

		RateLimitRPS:   int(getEnvInt64("RATE_LIMIT_RPS", 50)),
		RateLimitBurst: int(getEnvInt64("RATE_LIMIT_BURST", 100)),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
