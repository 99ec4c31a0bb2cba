package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the scene generation service.
type Config struct {
	BindAddr         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration
	AllowAnyOrigin   bool

	DatabaseURL string
	RedisAddr   string

	GeneratorMode   string
	GeneratorURL    string
	GeneratorAPIKey string
	GeneratorModel  string

	RendererMode   string
	RendererBinary string
	MediaDir       string
	ScriptsDir     string
	VideosDir      string

	MaxAttempts  int
	RetryBackoff time.Duration

	SyncInterval time.Duration

	AuthSecret string
	TokenTTL   time.Duration

	GeneratePerMinute int
}

// Load reads the optional .env file, then environment variables, and
// applies safe defaults.
func Load() (Config, error) {
	// Missing .env is the normal case outside local dev.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "scenegen"),
		ShutdownTimeout:   15 * time.Second,
		AllowAnyOrigin:    false,
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		RedisAddr:         stringsTrimSpace("REDIS_ADDR"),
		GeneratorMode:     envOrDefault("GENERATOR_MODE", "auto"),
		GeneratorURL:      stringsTrimSpace("GENERATOR_URL"),
		GeneratorAPIKey:   stringsTrimSpace("GENERATOR_API_KEY"),
		GeneratorModel:    envOrDefault("GENERATOR_MODEL", "gpt-4o-mini"),
		RendererMode:      envOrDefault("RENDERER_MODE", "auto"),
		RendererBinary:    envOrDefault("RENDERER_BINARY", "manim"),
		MediaDir:          envOrDefault("MEDIA_DIR", "media"),
		ScriptsDir:        envOrDefault("SCRIPTS_DIR", "scripts"),
		VideosDir:         envOrDefault("VIDEOS_DIR", filepath.Join("static", "videos")),
		MaxAttempts:       3,
		RetryBackoff:      time.Second,
		SyncInterval:      5 * time.Minute,
		AuthSecret:        envOrDefault("AUTH_SECRET", "dev-only-secret"),
		TokenTTL:          time.Hour,
		GeneratePerMinute: 6,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAttempts, err = intFromEnv("GENERATION_MAX_ATTEMPTS", cfg.MaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoff, err = durationFromEnv("GENERATION_RETRY_BACKOFF", cfg.RetryBackoff)
	if err != nil {
		return Config{}, err
	}
	cfg.SyncInterval, err = durationFromEnv("SYNC_INTERVAL", cfg.SyncInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenTTL, err = durationFromEnv("AUTH_TOKEN_TTL", cfg.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.GeneratePerMinute, err = intFromEnv("GENERATE_PER_MINUTE", cfg.GeneratePerMinute)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxAttempts <= 0 {
		return Config{}, fmt.Errorf("GENERATION_MAX_ATTEMPTS must be positive")
	}
	if cfg.SyncInterval < time.Second {
		return Config{}, fmt.Errorf("SYNC_INTERVAL must be at least 1s")
	}
	if cfg.TokenTTL < time.Minute {
		return Config{}, fmt.Errorf("AUTH_TOKEN_TTL must be at least 1m")
	}
	if cfg.GeneratePerMinute <= 0 {
		return Config{}, fmt.Errorf("GENERATE_PER_MINUTE must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
