package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/storage"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Redis (job queue, default session store)
	RedisURL   string
	SessionTTL time.Duration

	// Session store (redis | postgres)
	SessionStore string
	DatabaseURL  string

	// Job storage: one directory per session under WorkDir
	WorkDir         string
	MaxUploadMB     int
	MaxClipsPerRole int

	// Variation rules
	MaxSelectedProducts      int
	TargetDurationSec        float64
	ProductTimeBudgetSec     float64
	EstimatedClipDurationSec float64
	AssemblyPolicy           models.AssemblyPolicy

	// Encoder
	FFmpegPath       string
	FFprobePath      string
	OutputResolution string  // WIDTHxHEIGHT
	MusicVolume      float64 // music bed gain under the clip audio

	// Worker
	MaxConcurrentJobs int
	RenderConcurrency int // variations rendered at once within a batch

	// Delivery (local | supabase | s3)
	DeliveryBackend       string
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	S3Bucket              string
	S3Prefix              string
	S3Region              string
	S3Profile             string
	S3UsePathStyle        bool
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:                  getEnv("API_PORT", "8080"),
		WorkerEnabled:            getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:            getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:       getEnv("CORS_ALLOWED_ORIGINS", ""),
		RedisURL:                 getEnv("REDIS_URL", "redis://localhost:6379"),
		SessionTTL:               time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		SessionStore:             getEnv("SESSION_STORE", "redis"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		WorkDir:                  getEnv("WORK_DIR", filepath.Join(os.TempDir(), "clipmix")),
		MaxUploadMB:              getEnvInt("MAX_UPLOAD_MB", 500),
		MaxClipsPerRole:          getEnvInt("MAX_CLIPS_PER_ROLE", 20),
		MaxSelectedProducts:      getEnvInt("MAX_SELECTED_PRODUCTS", 3),
		TargetDurationSec:        getEnvFloat("TARGET_DURATION_SECONDS", 30),
		ProductTimeBudgetSec:     getEnvFloat("PRODUCT_TIME_BUDGET_SECONDS", 20),
		EstimatedClipDurationSec: getEnvFloat("ESTIMATED_CLIP_DURATION_SECONDS", 6.5),
		AssemblyPolicy:           models.AssemblyPolicy(getEnv("ASSEMBLY_POLICY", string(models.PolicyCurated))),
		FFmpegPath:               getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:              getEnv("FFPROBE_PATH", "ffprobe"),
		OutputResolution:         getEnv("OUTPUT_RESOLUTION", "1080x1920"),
		MusicVolume:              getEnvFloat("MUSIC_VOLUME", 0.5),
		MaxConcurrentJobs:        getEnvInt("MAX_CONCURRENT_JOBS", 2),
		RenderConcurrency:        getEnvInt("RENDER_CONCURRENCY", 1),
		DeliveryBackend:          getEnv("DELIVERY_BACKEND", storage.BackendLocal),
		SupabaseURL:              getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:       getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket:    getEnv("SUPABASE_STORAGE_BUCKET", "clipmix-archives"),
		S3Bucket:                 getEnv("S3_BUCKET", ""),
		S3Prefix:                 getEnv("S3_PREFIX", ""),
		S3Region:                 getEnv("S3_REGION", ""),
		S3Profile:                getEnv("S3_PROFILE", ""),
		S3UsePathStyle:           getEnvBool("S3_USE_PATH_STYLE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Delivery returns the archive delivery settings.
func (c *Config) Delivery() storage.DeliveryConfig {
	return storage.DeliveryConfig{
		Backend:            c.DeliveryBackend,
		SupabaseURL:        c.SupabaseURL,
		SupabaseServiceKey: c.SupabaseServiceKey,
		SupabaseBucket:     c.SupabaseStorageBucket,
		S3: storage.S3Config{
			Bucket:       c.S3Bucket,
			Prefix:       c.S3Prefix,
			Region:       c.S3Region,
			Profile:      c.S3Profile,
			UsePathStyle: c.S3UsePathStyle,
		},
	}
}

// Validate checks the values Load cannot default its way out of.
func (c *Config) Validate() error {
	switch c.AssemblyPolicy {
	case models.PolicyCurated, models.PolicyBudgetSlice:
	default:
		return fmt.Errorf("ASSEMBLY_POLICY must be %q or %q, got %q", models.PolicyCurated, models.PolicyBudgetSlice, c.AssemblyPolicy)
	}

	if c.MaxSelectedProducts < 1 {
		return fmt.Errorf("MAX_SELECTED_PRODUCTS must be at least 1")
	}
	if !finite(c.TargetDurationSec) || c.TargetDurationSec <= 0 {
		return fmt.Errorf("TARGET_DURATION_SECONDS must be positive")
	}
	if !finite(c.EstimatedClipDurationSec) || c.EstimatedClipDurationSec <= 0 {
		return fmt.Errorf("ESTIMATED_CLIP_DURATION_SECONDS must be positive")
	}
	if !finite(c.ProductTimeBudgetSec) || c.ProductTimeBudgetSec < 0 {
		return fmt.Errorf("PRODUCT_TIME_BUDGET_SECONDS must be a non-negative number")
	}
	if !finite(c.MusicVolume) || c.MusicVolume < 0 {
		return fmt.Errorf("MUSIC_VOLUME must be a non-negative number")
	}
	if c.MaxUploadMB < 1 || c.MaxClipsPerRole < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB and MAX_CLIPS_PER_ROLE must be at least 1")
	}
	if c.RenderConcurrency < 1 || c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("RENDER_CONCURRENCY and MAX_CONCURRENT_JOBS must be at least 1")
	}

	switch c.SessionStore {
	case "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres session store")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be redis or postgres, got %q", c.SessionStore)
	}

	switch c.DeliveryBackend {
	case storage.BackendLocal:
	case storage.BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for supabase delivery")
		}
	case storage.BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for s3 delivery")
		}
	default:
		return fmt.Errorf("DELIVERY_BACKEND must be local, supabase or s3, got %q", c.DeliveryBackend)
	}

	return nil
}

// MaxUploadBytes converts MaxUploadMB to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
