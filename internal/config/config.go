// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"timeline-editor/internal/validation"
)

// Config is everything the API process reads from its environment.
type Config struct {
	AppEnv         string   `validate:"omitempty,oneof=development staging production test"`
	Port           string   `validate:"required,numeric"`
	DatabaseURL    string   // empty disables persistence
	AllowedOrigins []string `validate:"min=1,dive,required"`
	LogLevel       string   `validate:"oneof=trace debug info warn warning error fatal panic"`

	WorkerCount     int `validate:"gte=1,lte=64"`
	WorkerQueueSize int `validate:"gte=1"`

	SyncToleranceMs float64       `validate:"gte=0"`
	PlaybackTick    time.Duration `validate:"gte=0"`

	StorageType string `validate:"oneof=local s3"`
	UploadDir   string `validate:"required"`
	AWSRegion   string `validate:"required_if=StorageType s3"`

	FFmpegPath  string `validate:"required"`
	FFprobePath string `validate:"required"`
}

func (c Config) Production() bool { return c.AppEnv == "production" }

// Load reads .env (outside production) and then the process environment.
// Production injects env vars through infra (K8s secrets, etc.)
func Load() (Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function; tests pass a map.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		AppEnv:      get("APP_ENV", "development"),
		Port:        get("PORT", "8083"),
		DatabaseURL: get("DATABASE_URL", ""),
		LogLevel:    strings.ToLower(get("LOG_LEVEL", "info")),
		StorageType: get("STORAGE_TYPE", "local"),
		UploadDir:   get("UPLOAD_DIR", "./uploads"),
		AWSRegion:   get("AWS_REGION", ""),
		FFmpegPath:  get("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: get("FFPROBE_PATH", "ffprobe"),
	}
	for _, o := range strings.Split(get("ALLOWED_ORIGINS", "http://localhost:5173"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	var err error
	if cfg.WorkerCount, err = atoi(get("WORKER_COUNT", "2"), "WORKER_COUNT"); err != nil {
		return Config{}, err
	}
	if cfg.WorkerQueueSize, err = atoi(get("WORKER_QUEUE_SIZE", "64"), "WORKER_QUEUE_SIZE"); err != nil {
		return Config{}, err
	}
	if cfg.SyncToleranceMs, err = strconv.ParseFloat(get("MEDIA_SYNC_TOLERANCE_MS", "100"), 64); err != nil {
		return Config{}, fmt.Errorf("MEDIA_SYNC_TOLERANCE_MS: %w", err)
	}
	tick, err := atoi(get("PLAYBACK_TICK_MS", "16"), "PLAYBACK_TICK_MS")
	if err != nil {
		return Config{}, err
	}
	cfg.PlaybackTick = time.Duration(tick) * time.Millisecond

	if err := validation.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func atoi(v, key string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
