// Package config loads feedveil settings from YAML with embedded defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Processing modes.
const (
	ModeBalanced   = "balanced"
	ModeAggressive = "aggressive"
)

// Settings represents the YAML configuration structure.
type Settings struct {
	Mode       string `yaml:"mode"`
	Processing struct {
		MaxWorkers         int `yaml:"max_workers"`
		MaxImagesPerPost   int `yaml:"max_images_per_post"`
		MaxPostsWithImages int `yaml:"max_posts_with_images"`
	} `yaml:"processing"`
	LLM struct {
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`
	Cache struct {
		TTL         time.Duration `yaml:"ttl"`
		SubKeyLimit int           `yaml:"sub_key_limit"`
	} `yaml:"cache"`
	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		BaseDelay   time.Duration `yaml:"base_delay"`
		MaxDelay    time.Duration `yaml:"max_delay"`
	} `yaml:"retry"`
	Redis struct {
		URL         string `yaml:"url"`
		JobStream   string `yaml:"job_stream"`
		JobGroup    string `yaml:"job_group"`
		EventStream string `yaml:"event_stream"`
	} `yaml:"redis"`
	Worker struct {
		ReplacementEndpoint string `yaml:"replacement_endpoint"`
		BlobDir             string `yaml:"blob_dir"`
		DownloadTimeout     time.Duration `yaml:"download_timeout"`
	} `yaml:"worker"`
}

// Default returns the settings used when no file is present.
func Default() *Settings {
	s := &Settings{}
	s.Mode = ModeBalanced
	s.Processing.MaxWorkers = 4
	s.Processing.MaxImagesPerPost = 1
	s.Processing.MaxPostsWithImages = 5
	s.LLM.Model = "claude-sonnet-4-20250514"
	s.LLM.MaxTokens = 2048
	s.LLM.Temperature = 0.2
	s.Cache.TTL = time.Hour
	s.Cache.SubKeyLimit = 10
	s.Retry.MaxAttempts = 3
	s.Retry.BaseDelay = time.Second
	s.Retry.MaxDelay = 30 * time.Second
	s.Redis.URL = "redis://localhost:6379"
	s.Redis.JobStream = "feedveil:jobs:replacements"
	s.Redis.JobGroup = "feedveil-workers"
	s.Redis.EventStream = "feedveil:events:images"
	s.Worker.BlobDir = "blobs"
	s.Worker.DownloadTimeout = 60 * time.Second
	return s
}

// Load reads settings from the given path, falling back to defaults when the
// file does not exist. A file that exists but does not parse is an error.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}

	settings := Default()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}

	return settings, nil
}

func (s *Settings) validate() error {
	if s.Mode != ModeBalanced && s.Mode != ModeAggressive {
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	if s.Processing.MaxWorkers < 1 {
		return fmt.Errorf("processing.max_workers must be at least 1, got %d", s.Processing.MaxWorkers)
	}
	if s.Processing.MaxImagesPerPost < 0 {
		return fmt.Errorf("processing.max_images_per_post must not be negative")
	}
	if s.Cache.SubKeyLimit < 1 {
		return fmt.Errorf("cache.sub_key_limit must be at least 1, got %d", s.Cache.SubKeyLimit)
	}
	return nil
}

// Confidence thresholds per filter intensity. Balanced mode demands high
// confidence before acting; aggressive mode trades precision for recall on
// stricter filters.
var confidenceThresholds = map[string]map[int]float64{
	ModeBalanced: {
		1: 0.8,
		2: 0.8,
		3: 0.7,
		4: 0.7,
		5: 0.7,
	},
	ModeAggressive: {
		1: 0.7,
		2: 0.6,
		3: 0.5,
		4: 0.4,
		5: 0.3,
	},
}

// Threshold returns the confidence required for a filter of the given
// intensity to count as matched. Unknown intensities fall back to 0.7.
func Threshold(mode string, intensity int) float64 {
	table, ok := confidenceThresholds[mode]
	if !ok {
		table = confidenceThresholds[ModeBalanced]
	}
	if threshold, ok := table[intensity]; ok {
		return threshold
	}
	return 0.7
}
