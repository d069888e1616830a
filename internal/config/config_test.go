package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/mailer")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.Worker.NumWorkers != 50 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 2*time.Second || cfg.Retry.Backoff != "exponential" {
		t.Errorf("retry defaults = %+v", cfg.Retry)
	}
	if cfg.Mail.Transport != "log" {
		t.Errorf("transport = %q, want log", cfg.Mail.Transport)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "mailer.yaml")
	yml := `
port: "9000"
redis_url: redis://file:6379
store_backend: memory
public_url: https://mail.example.com/
worker:
  num_workers: 8
  poll_interval: 250ms
retry:
  max_attempts: 5
mail:
  transport: smtp
  smtp_host: smtp.example.com
  smtp_port: 2525
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("NUM_WORKERS", "16")
	t.Setenv("SMTP_STARTTLS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9000" || cfg.StoreBackend != "memory" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Worker.NumWorkers != 16 {
		t.Errorf("NumWorkers = %d, env should win", cfg.Worker.NumWorkers)
	}
	if cfg.Worker.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %s", cfg.Worker.PollInterval)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay != 2*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Mail.SMTPPort != 2525 || !cfg.Mail.SMTPStartTLS {
		t.Errorf("mail = %+v", cfg.Mail)
	}
	if cfg.PublicURL != "https://mail.example.com" {
		t.Errorf("PublicURL = %q, trailing slash should be trimmed", cfg.PublicURL)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	env := "STORE_BACKEND=memory\nREDIS_URL=redis://dotenv:6379\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables that are already set, even to "".
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("REDIS_URL", "")
	os.Unsetenv("STORE_BACKEND")
	os.Unsetenv("REDIS_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RedisURL != "redis://dotenv:6379" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"REDIS_URL": "redis://x"}},
		{"missing redis", map[string]string{"STORE_BACKEND": "memory"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "bolt", "REDIS_URL": "redis://x"}},
		{"smtp without host", map[string]string{"STORE_BACKEND": "memory", "REDIS_URL": "redis://x", "MAIL_TRANSPORT": "smtp"}},
		{"http without url", map[string]string{"STORE_BACKEND": "memory", "REDIS_URL": "redis://x", "MAIL_TRANSPORT": "http"}},
		{"unknown transport", map[string]string{"STORE_BACKEND": "memory", "REDIS_URL": "redis://x", "MAIL_TRANSPORT": "pigeon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for _, k := range []string{"DATABASE_URL", "REDIS_URL", "STORE_BACKEND", "MAIL_TRANSPORT", "CONFIG_FILE"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
