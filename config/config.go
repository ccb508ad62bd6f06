package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	HN       HNConfig       `yaml:"hn"`
	GH       GHConfig       `yaml:"gh"`
	Comments CommentsConfig `yaml:"comments"`
	Lock     LockConfig     `yaml:"lock"`

	SummaryRefreshDays int    `yaml:"summary_refresh_days"`
	FetchTimeoutSec    int    `yaml:"fetch_timeout_secs"`
	OutputDir          string `yaml:"output_dir"`
	BackfillDir        string `yaml:"backfill_dir"`
	MetricsTextfile    string `yaml:"metrics_textfile"`
	DigestTime         string `yaml:"digest_time"`
	Timezone           string `yaml:"timezone"`
	LogLevel           string `yaml:"log_level"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// LLMConfig selects the generation provider.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // "openai", "anthropic" or "gemini"
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_secs"`
}

// HNConfig tunes the discussion feed fetch.
type HNConfig struct {
	FetchWorkers      int     `yaml:"fetch_workers"`
	MaxItems          int     `yaml:"max_items"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	RenderLimit       int     `yaml:"render_limit"`
}

// GHConfig tunes the trending feed.
type GHConfig struct {
	RenderLimit int `yaml:"render_limit"`
}

// CommentsConfig bounds comment traversal and sampling.
type CommentsConfig struct {
	SampleSize   int `yaml:"sample_size"`
	MaxNodes     int `yaml:"max_nodes"`
	MaxDepth     int `yaml:"max_depth"`
	MaxPerBranch int `yaml:"max_per_branch"`
	MinTextLen   int `yaml:"min_text_len"`
}

// LockConfig selects the run lock backend.
type LockConfig struct {
	Backend    string        `yaml:"backend"` // "sql" or "redis"
	Name       string        `yaml:"name"`
	StaleAfter time.Duration `yaml:"stale_after"`
	RedisURL   string        `yaml:"redis_url"`
}

// Defaults returns a Config with all default values set.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    DefaultDBPath(),
		},
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-5-mini",
			TimeoutSec: 300,
		},
		HN: HNConfig{
			FetchWorkers: 20,
			RenderLimit:  10,
		},
		Comments: CommentsConfig{
			SampleSize:   16,
			MaxNodes:     300,
			MaxDepth:     6,
			MaxPerBranch: 4,
			MinTextLen:   40,
		},
		Lock: LockConfig{
			Backend:    "sql",
			Name:       "trending-digest",
			StaleAfter: 6 * time.Hour,
		},
		SummaryRefreshDays: 60,
		FetchTimeoutSec:    20,
		OutputDir:          "./docs",
		DigestTime:         "07:00",
		Timezone:           "UTC",
		LogLevel:           "info",
	}
}

// DefaultDBPath is the SQLite file used when no DSN is configured.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, "trending-digest", "digest.db")
}

// Load reads a YAML config file and returns a validated Config.
// A missing file is not an error: defaults and environment overrides still apply.
// DIGEST_CONFIG overrides the file path.
func Load(path string) (Config, error) {
	if envPath := os.Getenv("DIGEST_CONFIG"); envPath != "" {
		path = envPath
	}

	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DIGEST_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Lock.RedisURL = v
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "gemini":
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// Validate checks that required fields are present and values are valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.LLM.TimeoutSec <= 0 {
		return fmt.Errorf("llm.timeout_secs must be positive, got %d", c.LLM.TimeoutSec)
	}

	switch c.Lock.Backend {
	case "sql":
	case "redis":
		if c.Lock.RedisURL == "" {
			return fmt.Errorf("lock.redis_url is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("unsupported lock backend %q", c.Lock.Backend)
	}

	if c.SummaryRefreshDays <= 0 {
		return fmt.Errorf("summary_refresh_days must be positive, got %d", c.SummaryRefreshDays)
	}
	if c.FetchTimeoutSec <= 0 {
		return fmt.Errorf("fetch_timeout_secs must be positive, got %d", c.FetchTimeoutSec)
	}
	if c.HN.FetchWorkers < 1 {
		c.HN.FetchWorkers = 1
	}
	if c.Comments.SampleSize <= 0 || c.Comments.MaxNodes <= 0 || c.Comments.MaxDepth <= 0 || c.Comments.MaxPerBranch <= 0 {
		return fmt.Errorf("comment budgets must be positive")
	}

	if err := ValidateTime(c.DigestTime); err != nil {
		return err
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	return nil
}

// FetchTimeout returns the per-request timeout for remote fetches.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// LLMTimeout returns the per-request timeout for generation calls.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

// ValidateTime checks that a time string is in valid HH:MM 24-hour format.
func ValidateTime(t string) error {
	if len(t) != 5 || t[2] != ':' {
		return fmt.Errorf("invalid time format %q: must be HH:MM", t)
	}

	if t[0] < '0' || t[0] > '9' || t[1] < '0' || t[1] > '9' ||
		t[3] < '0' || t[3] > '9' || t[4] < '0' || t[4] > '9' {
		return fmt.Errorf("invalid time format %q: must be HH:MM", t)
	}

	hour := (int(t[0]-'0') * 10) + int(t[1]-'0')
	minute := (int(t[3]-'0') * 10) + int(t[4]-'0')

	if hour > 23 {
		return fmt.Errorf("invalid time %q: hour must be 0-23", t)
	}
	if minute > 59 {
		return fmt.Errorf("invalid time %q: minute must be 0-59", t)
	}

	return nil
}
