// Package config handles hlscaps configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/heyjunin/hlscaps/pkg/errors"
	"github.com/heyjunin/hlscaps/pkg/sampler"
)

// Level is a named sampling level: how segments are picked and how large the
// resulting caption file must be to count as usable.
type Level struct {
	// Stride keeps every Nth segment. 1 keeps everything.
	Stride int `yaml:"stride"`
	// Cap bounds the number of kept segments. 0 means unlimited.
	Cap int `yaml:"cap"`
	// MinCaptionBytes is the smallest caption artifact accepted at this level.
	MinCaptionBytes int64 `yaml:"min_caption_bytes"`
}

// Policy converts the level to a sampling policy.
func (l Level) Policy() sampler.Policy {
	return sampler.Policy{Stride: l.Stride, Cap: l.Cap}
}

// Config holds all hlscaps configuration.
type Config struct {
	OutputDir  string           `yaml:"output_dir"`
	ScratchDir string           `yaml:"scratch_dir"` // empty means the system temp dir
	Level      string           `yaml:"level"`
	Levels     map[string]Level `yaml:"levels"`
	Language   string           `yaml:"language"`
	FFmpeg     string           `yaml:"ffmpeg"`
	YtDlp      string           `yaml:"ytdlp"`
	UserAgent  string           `yaml:"user_agent"`

	FetchTimeoutSec int `yaml:"fetch_timeout_sec"` // per segment GET
	RemuxTimeoutSec int `yaml:"remux_timeout_sec"` // per stream-copy ffmpeg run
	BulkTimeoutSec  int `yaml:"bulk_timeout_sec"`  // per whole-stream decode or yt-dlp run

	// SkipFailed continues past individual segment failures. Refused when the
	// effective level keeps every segment.
	SkipFailed bool `yaml:"skip_failed"`

	LogLevel   string `yaml:"log_level"`
	ProgressDB string `yaml:"progress_db"`
	Catalog    string `yaml:"catalog"`
}

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./hlscaps.yaml, ~/.config/hlscaps/config.yaml, /etc/hlscaps/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"hlscaps.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hlscaps", "config.yaml"))
	}

	paths = append(paths, "/etc/hlscaps/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the search paths are tried in order and the first hit wins.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.New(errors.ValidationError, "config file not found", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", errors.New(errors.ValidationError, "no config file found",
		fmt.Sprintf("searched: %v", DefaultSearchPaths()))
}

// Load reads configuration from a YAML file. Environment variables in the
// file are expanded before parsing. File values override defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "failed to read config file")
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, "failed to parse config file")
	}

	return cfg, nil
}

// Default returns the default configuration: three sampling levels tuned for
// probing large archives, representative sampling, and complete extraction.
func Default() *Config {
	return &Config{
		OutputDir: "captions",
		Level:     "sample",
		Levels: map[string]Level{
			"probe":  {Stride: 250, Cap: 20, MinCaptionBytes: 1 * 1024},
			"sample": {Stride: 25, Cap: 300, MinCaptionBytes: 10 * 1024},
			"full":   {Stride: 1, Cap: 0, MinCaptionBytes: 50 * 1024},
		},
		Language:        "en",
		FFmpeg:          "ffmpeg",
		YtDlp:           "yt-dlp",
		UserAgent:       "hlscaps/1.0",
		FetchTimeoutSec: 30,
		RemuxTimeoutSec: 120,
		BulkTimeoutSec:  900,
		LogLevel:        "info",
		ProgressDB:      "hlscaps-progress.db",
	}
}

// LevelPolicy resolves a named level, case-insensitively. An empty name uses
// the configured default level.
func (c *Config) LevelPolicy(name string) (Level, error) {
	if name == "" {
		name = c.Level
	}
	for k, v := range c.Levels {
		if strings.EqualFold(k, name) {
			return v, nil
		}
	}
	return Level{}, errors.New(errors.ValidationError, "unknown sampling level", name)
}
