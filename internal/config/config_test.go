package config

import (
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bobarin/clipmix/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no stray .env
	t.Setenv("REDIS_URL", "")
	t.Setenv("DELIVERY_BACKEND", "")
	t.Setenv("ASSEMBLY_POLICY", "")
	t.Setenv("SESSION_STORE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MaxSelectedProducts != 3 {
		t.Errorf("MaxSelectedProducts = %d, want 3", cfg.MaxSelectedProducts)
	}
	if cfg.TargetDurationSec != 30 || cfg.ProductTimeBudgetSec != 20 || cfg.EstimatedClipDurationSec != 6.5 {
		t.Errorf("unexpected duration defaults: %+v", cfg)
	}
	if cfg.AssemblyPolicy != models.PolicyCurated {
		t.Errorf("AssemblyPolicy = %q, want curated", cfg.AssemblyPolicy)
	}
	if cfg.MaxUploadBytes() != 500<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes())
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.DeliveryBackend != "local" {
		t.Errorf("DeliveryBackend = %q", cfg.DeliveryBackend)
	}
	if cfg.SessionStore != "redis" {
		t.Errorf("SessionStore = %q", cfg.SessionStore)
	}
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ASSEMBLY_POLICY", "budget_slice")
	t.Setenv("ESTIMATED_CLIP_DURATION_SECONDS", "4")
	t.Setenv("MAX_SELECTED_PRODUCTS", "5")
	t.Setenv("RENDER_CONCURRENCY", "not-a-number")
	t.Setenv("DELIVERY_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "exports")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AssemblyPolicy != models.PolicyBudgetSlice || cfg.EstimatedClipDurationSec != 4 || cfg.MaxSelectedProducts != 5 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.RenderConcurrency != 1 {
		t.Errorf("unparseable value should fall back to default, got %d", cfg.RenderConcurrency)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			MaxSelectedProducts:      3,
			TargetDurationSec:        30,
			EstimatedClipDurationSec: 6.5,
			AssemblyPolicy:           models.PolicyCurated,
			MaxUploadMB:              500,
			MaxClipsPerRole:          20,
			RenderConcurrency:        1,
			MaxConcurrentJobs:        1,
			DeliveryBackend:          "local",
			SessionStore:             "redis",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown policy", func(c *Config) { c.AssemblyPolicy = "random" }, "ASSEMBLY_POLICY"},
		{"zero estimate", func(c *Config) { c.EstimatedClipDurationSec = 0 }, "ESTIMATED_CLIP_DURATION_SECONDS"},
		{"nan estimate", func(c *Config) { c.EstimatedClipDurationSec = math.NaN() }, "ESTIMATED_CLIP_DURATION_SECONDS"},
		{"inf budget", func(c *Config) { c.ProductTimeBudgetSec = math.Inf(1) }, "PRODUCT_TIME_BUDGET_SECONDS"},
		{"negative budget", func(c *Config) { c.ProductTimeBudgetSec = -1 }, "PRODUCT_TIME_BUDGET_SECONDS"},
		{"nan volume", func(c *Config) { c.MusicVolume = math.NaN() }, "MUSIC_VOLUME"},
		{"zero max selected", func(c *Config) { c.MaxSelectedProducts = 0 }, "MAX_SELECTED_PRODUCTS"},
		{"supabase without key", func(c *Config) { c.DeliveryBackend = "supabase"; c.SupabaseURL = "https://x" }, "SUPABASE_SERVICE_KEY"},
		{"s3 without bucket", func(c *Config) { c.DeliveryBackend = "s3" }, "S3_BUCKET"},
		{"postgres without url", func(c *Config) { c.SessionStore = "postgres" }, "DATABASE_URL"},
		{"postgres with url", func(c *Config) { c.SessionStore = "postgres"; c.DatabaseURL = "postgres://localhost/clipmix" }, ""},
		{"unknown store", func(c *Config) { c.SessionStore = "etcd" }, "SESSION_STORE"},
		{"unknown backend", func(c *Config) { c.DeliveryBackend = "ftp" }, "DELIVERY_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
