package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DIGEST_CONFIG", "DIGEST_DB_DRIVER", "DATABASE_URL", "REDIS_URL", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.Database.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %s", d.Database.Driver)
	}
	if d.LLM.Model != "gpt-5-mini" {
		t.Errorf("expected default model gpt-5-mini, got %s", d.LLM.Model)
	}
	if d.LLMTimeout() != 5*time.Minute {
		t.Errorf("expected llm timeout 5m, got %v", d.LLMTimeout())
	}
	if d.FetchTimeout() == d.LLMTimeout() {
		t.Error("expected generation and fetch timeouts to differ")
	}
	if d.SummaryRefreshDays != 60 {
		t.Errorf("expected default refresh days 60, got %d", d.SummaryRefreshDays)
	}
	if d.HN.FetchWorkers != 20 {
		t.Errorf("expected 20 fetch workers, got %d", d.HN.FetchWorkers)
	}
	if d.HN.RenderLimit != 10 {
		t.Errorf("expected hn render limit 10, got %d", d.HN.RenderLimit)
	}
	if d.GH.RenderLimit != 0 {
		t.Errorf("expected unlimited gh render limit, got %d", d.GH.RenderLimit)
	}
	c := d.Comments
	if c.SampleSize != 16 || c.MaxNodes != 300 || c.MaxDepth != 6 || c.MaxPerBranch != 4 || c.MinTextLen != 40 {
		t.Errorf("unexpected comment defaults: %+v", c)
	}
	if d.Lock.Backend != "sql" {
		t.Errorf("expected sql lock backend, got %s", d.Lock.Backend)
	}
	if d.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", d.LogLevel)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: "postgres://localhost/digest"
llm:
  provider: anthropic
  model: claude-haiku
  api_key: "test-key"
summary_refresh_days: 30
digest_time: "18:30"
timezone: "Europe/Rome"
lock:
  stale_after: 2h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.Database.Driver)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.APIKey != "test-key" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.SummaryRefreshDays != 30 {
		t.Errorf("expected 30 refresh days, got %d", cfg.SummaryRefreshDays)
	}
	if cfg.Timezone != "Europe/Rome" {
		t.Errorf("expected timezone Europe/Rome, got %s", cfg.Timezone)
	}
	if cfg.Lock.StaleAfter != 2*time.Hour {
		t.Errorf("expected 2h stale_after, got %s", cfg.Lock.StaleAfter)
	}
	// Defaults should be preserved for unset fields
	if cfg.Comments.SampleSize != 16 {
		t.Errorf("expected default sample size, got %d", cfg.Comments.SampleSize)
	}
}

func TestLoad_FileNotFoundUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected default driver, got %s", cfg.Database.Driver)
	}
}

func TestLoad_UnsupportedDriver(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  driver: mysql
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoad_UnsupportedProvider(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
llm:
  provider: cohere
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestLoad_RedisLockNeedsURL(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
lock:
  backend: redis
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing redis url")
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Lock.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("expected redis url from env, got %s", cfg.Lock.RedisURL)
	}
}

func TestLoad_InvalidTime(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
digest_time: "25:00"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid time")
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
timezone: "Invalid/Zone"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestLoad_InvalidRefreshDays(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
summary_refresh_days: 0
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for zero refresh days")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
output_dir: "test
  invalid: yaml: [
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvConfigPath(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
output_dir: "/srv/site"
`)
	t.Setenv("DIGEST_CONFIG", path)
	cfg, err := Load("wrong-path.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OutputDir != "/srv/site" {
		t.Errorf("expected /srv/site, got %s", cfg.OutputDir)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
llm:
  provider: openai
`)
	t.Setenv("DIGEST_DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://db/digest")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://db/digest" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.LLM.APIKey != "sk-env" {
		t.Errorf("expected api key from env, got %q", cfg.LLM.APIKey)
	}
}

func TestValidateTime(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"00:00", true},
		{"07:00", true},
		{"23:59", true},
		{"12:30", true},
		{"24:00", false},
		{"23:60", false},
		{"9:00", false},
		{"abc", false},
		{"12:0a", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidateTime(tt.input)
		if tt.valid && err != nil {
			t.Errorf("ValidateTime(%q) returned unexpected error: %v", tt.input, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidateTime(%q) expected error, got nil", tt.input)
		}
	}
}

func TestLoad_InvalidLLMTimeout(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "llm:\n  timeout_secs: 0\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for zero llm timeout")
	}
}
