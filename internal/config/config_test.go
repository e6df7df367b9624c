package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if settings.Mode != ModeBalanced {
		t.Errorf("Mode = %q, want %q", settings.Mode, ModeBalanced)
	}
	if settings.Processing.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", settings.Processing.MaxWorkers)
	}
	if settings.Processing.MaxImagesPerPost != 1 {
		t.Errorf("MaxImagesPerPost = %d, want 1", settings.Processing.MaxImagesPerPost)
	}
	if settings.Processing.MaxPostsWithImages != 5 {
		t.Errorf("MaxPostsWithImages = %d, want 5", settings.Processing.MaxPostsWithImages)
	}
	if settings.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", settings.Cache.TTL)
	}
	if settings.Cache.SubKeyLimit != 10 {
		t.Errorf("Cache.SubKeyLimit = %d, want 10", settings.Cache.SubKeyLimit)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `mode: aggressive
processing:
  max_workers: 8
cache:
  ttl: 30m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if settings.Mode != ModeAggressive {
		t.Errorf("Mode = %q, want aggressive", settings.Mode)
	}
	if settings.Processing.MaxWorkers != 8 {
		t.Errorf("MaxWorkers = %d, want 8", settings.Processing.MaxWorkers)
	}
	if settings.Cache.TTL != 30*time.Minute {
		t.Errorf("Cache.TTL = %v, want 30m", settings.Cache.TTL)
	}
	// Untouched keys keep defaults.
	if settings.Processing.MaxImagesPerPost != 1 {
		t.Errorf("MaxImagesPerPost = %d, want default 1", settings.Processing.MaxImagesPerPost)
	}
}

func TestLoadRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "mode: [unclosed"},
		{"unknown mode", "mode: paranoid"},
		{"zero workers", "processing:\n  max_workers: 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			os.WriteFile(path, []byte(tt.content), 0644)

			if _, err := Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		intensity int
		expected  float64
	}{
		{"balanced low intensity", ModeBalanced, 1, 0.8},
		{"balanced max intensity", ModeBalanced, 5, 0.7},
		{"aggressive low intensity", ModeAggressive, 1, 0.7},
		{"aggressive max intensity", ModeAggressive, 5, 0.3},
		{"unknown intensity", ModeBalanced, 9, 0.7},
		{"unknown mode falls back to balanced", "bogus", 1, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Threshold(tt.mode, tt.intensity); got != tt.expected {
				t.Errorf("Threshold(%q, %d) = %v, want %v", tt.mode, tt.intensity, got, tt.expected)
			}
		})
	}
}
