package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadClient_Defaults(t *testing.T) {
	t.Setenv("COTE_ENV", "")
	t.Setenv("COTE_API_URL", "")
	t.Setenv("COTE_DEBOUNCE", "")

	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if cfg.APIURL != productionAPIURL {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, productionAPIURL)
	}
	if cfg.WSURL != productionWSURL {
		t.Errorf("WSURL = %q, want %q", cfg.WSURL, productionWSURL)
	}
	if cfg.Debounce != DefaultDebounce {
		t.Errorf("Debounce = %s, want %s", cfg.Debounce, DefaultDebounce)
	}
}

func TestLoadClient_Development(t *testing.T) {
	t.Setenv("COTE_ENV", "development")
	t.Setenv("COTE_API_URL", "")

	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if cfg.APIURL != "http://localhost:8080" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.WSURL != "ws://localhost:8080" {
		t.Errorf("WSURL = %q", cfg.WSURL)
	}
}

func TestLoadClient_FileThenEnv(t *testing.T) {
	t.Setenv("COTE_ENV", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "env: development\ndebounce: 500ms\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COTE_API_URL", "http://example.test/")
	t.Setenv("COTE_DEBOUNCE", "")

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if cfg.APIURL != "http://example.test" {
		t.Errorf("APIURL = %q, want env override without trailing slash", cfg.APIURL)
	}
	if cfg.WSURL != "ws://localhost:8080" {
		t.Errorf("WSURL = %q, want development default from file env", cfg.WSURL)
	}
	if cfg.Debounce != 500*time.Millisecond {
		t.Errorf("Debounce = %s, want 500ms", cfg.Debounce)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadClient_MissingFileIgnored(t *testing.T) {
	if _, err := LoadClient(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}

func TestLoadClient_InvalidDebounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("debounce: -1s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COTE_DEBOUNCE", "")
	if _, err := LoadClient(path); err == nil {
		t.Error("expected error for negative debounce")
	}
}

func TestLoadServer(t *testing.T) {
	t.Setenv("DEV_MODE", "true")
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("GOOGLE_REDIRECT_URL", "")
	t.Setenv("ACCESS_TTL_SECONDS", "60")
	t.Setenv("AWS_ENDPOINT_URL", "")

	s := LoadServer()
	if !s.DevMode {
		t.Error("expected DevMode")
	}
	if s.UseDynamo {
		t.Error("expected in-memory stores without a LocalStack endpoint")
	}
	if s.AccessTTL != time.Minute {
		t.Errorf("AccessTTL = %s, want 1m", s.AccessTTL)
	}
	if got := s.RedirectURL(); got != "http://localhost:9090/auth/google/callback" {
		t.Errorf("RedirectURL = %q", got)
	}
}

func TestLoadServer_Production(t *testing.T) {
	t.Setenv("DEV_MODE", "")
	t.Setenv("DEMO_LOGIN", "true")

	s := LoadServer()
	if s.DevMode {
		t.Error("unexpected DevMode")
	}
	if !s.UseDynamo {
		t.Error("expected DynamoDB outside DevMode")
	}
	if !s.DemoLogin {
		t.Error("expected DemoLogin")
	}
	if s.RefreshTTL != 30*24*time.Hour {
		t.Errorf("RefreshTTL = %s, want 720h", s.RefreshTTL)
	}
}
