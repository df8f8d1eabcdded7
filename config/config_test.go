package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Listen != ":10001" {
		t.Fatalf("server.listen = %q", cfg.Server.Listen)
	}
	if cfg.Exploration.MaxIterations != 15 || cfg.Exploration.MaxConcurrent != 4 {
		t.Fatalf("exploration defaults = %+v", cfg.Exploration)
	}
	if cfg.Generation.MaxIterations != 5 || cfg.Generation.Interpreter != "python3" {
		t.Fatalf("generation defaults = %+v", cfg.Generation)
	}
	if cfg.Generation.TestTimeout != 30*time.Second {
		t.Fatalf("generation.test_timeout = %s", cfg.Generation.TestTimeout)
	}
	if !cfg.Browser.Headless {
		t.Fatal("browser.headless default is false")
	}
	if cfg.LLM.Provider != "" && os.Getenv("OPENAI_API_KEY") == "" {
		t.Fatalf("llm.provider = %q without an api key in the environment", cfg.LLM.Provider)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webscout.yaml")
	content := []byte(`
server:
  listen: ":9000"
exploration:
  max_iterations: 3
generation:
  interpreter: "python3.12"
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Listen != ":9000" {
		t.Fatalf("server.listen = %q, want :9000", cfg.Server.Listen)
	}
	if cfg.Exploration.MaxIterations != 3 {
		t.Fatalf("exploration.max_iterations = %d, want 3", cfg.Exploration.MaxIterations)
	}
	if cfg.Generation.Interpreter != "python3.12" {
		t.Fatalf("generation.interpreter = %q", cfg.Generation.Interpreter)
	}
	// Untouched sections keep their defaults.
	if cfg.Generation.MaxIterations != 5 {
		t.Fatalf("generation.max_iterations = %d, want default 5", cfg.Generation.MaxIterations)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("WEBSCOUT_JWT_SECRET", "tops3cret")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.JWTSecret != "tops3cret" {
		t.Fatalf("server.jwt_secret = %q", cfg.Server.JWTSecret)
	}
	if got := cfg.RedisAddr(); got != "redis.internal:6380" {
		t.Fatalf("RedisAddr = %q", got)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webscout.yaml")
	if err := os.WriteFile(path, []byte("exploration:\n  max_iterations: 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for zero max_iterations")
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{}
	if got := cfg.PostgresDSN(); got != "" {
		t.Fatalf("unconfigured DSN = %q, want empty", got)
	}

	cfg.Storage.Postgres.URL = "postgres://u:p@h:5432/db"
	if got := cfg.PostgresDSN(); got != "postgres://u:p@h:5432/db" {
		t.Fatalf("url DSN = %q", got)
	}

	cfg.Storage.Postgres = PostgresConfig{Host: "db.internal", User: "scout", Password: "pw", DBName: "webscout"}
	want := "postgres://scout:pw@db.internal:5432/webscout?sslmode=disable"
	if got := cfg.PostgresDSN(); got != want {
		t.Fatalf("assembled DSN = %q, want %q", got, want)
	}
}
