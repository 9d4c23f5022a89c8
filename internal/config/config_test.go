package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"campflow/internal/config"
)

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
server:
  addr: ":9999"
  base_path: /api/v1
auth:
  jwt_secret: s3cret
  allow_actor_header: true
webhooks:
  - url: https://example.com/hook
    events: [state-changed]
    enabled: true
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.ListenAddr() != ":9999" {
		t.Fatalf("addr = %q", cfg.ListenAddr())
	}
	if cfg.Auth.JWTSecret != "s3cret" || !cfg.Auth.AllowActorHeader {
		t.Fatalf("auth mismatch: %+v", cfg.Auth)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "https://example.com/hook" {
		t.Fatalf("webhooks mismatch: %+v", cfg.Webhooks)
	}
}

func TestValidateRejectsBadWebhook(t *testing.T) {
	cases := []string{
		"webhooks:\n  - url: \"\"\n",
		"webhooks:\n  - url: ftp://example.com/hook\n",
		"webhooks:\n  - url: https://example.com/hook\n    timeout_seconds: -1\n",
	}
	for _, raw := range cases {
		if _, err := config.FromYAML([]byte(raw)); err == nil {
			t.Fatalf("accepted invalid config:\n%s", raw)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "cfl config init") {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("optional load: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config, got %+v", cfg)
	}
}

func TestDefaultRoundtrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campflow.yml")
	if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr() != ":8080" {
		t.Fatalf("addr = %q", cfg.ListenAddr())
	}
	if cfg.Server.BasePath != "/api/v1" {
		t.Fatalf("base path = %q", cfg.Server.BasePath)
	}
}

func TestNilConfigListenAddr(t *testing.T) {
	var cfg *config.Config
	if cfg.ListenAddr() != ":8080" {
		t.Fatalf("nil config addr = %q", cfg.ListenAddr())
	}
}
