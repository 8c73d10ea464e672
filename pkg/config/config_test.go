package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  address: 127.0.0.1
  port: 9090
storage:
  db_path: /tmp/pawtalk-db
security:
  cors:
    allowed_origins: ["https://app.example.com"]
  rate_limit:
    rps: 25
    burst: 50
  api_keys:
    backend: ["bk-1"]
    frontend: ["fk-1"]
  signing_keys: ["sk-1", "sk-2"]
limits:
  max_content_runes: 5000
  max_attachments: 4
  max_attachment_bytes: 10MB
search:
  page_size: 25
retention:
  enabled: true
  cron: "0 3 * * *"
  period: 720h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("Addr=%q", cfg.Addr())
	}
	if cfg.Storage.DBPath != "/tmp/pawtalk-db" {
		t.Fatalf("db path: %q", cfg.Storage.DBPath)
	}
	if cfg.Security.RateLimit.RPS != 25 || cfg.Security.RateLimit.Burst != 50 {
		t.Fatalf("rate limit: %+v", cfg.Security.RateLimit)
	}
	if got := cfg.Limits.MaxAttachmentBytes.Int64(); got != 10*1000*1000 {
		t.Fatalf("max_attachment_bytes=%d", got)
	}
	if len(cfg.Security.SigningKeys) != 2 {
		t.Fatalf("signing keys: %v", cfg.Security.SigningKeys)
	}
	if !cfg.Retention.Enabled || cfg.Retention.Period.Duration() != 720*time.Hour {
		t.Fatalf("retention: %+v", cfg.Retention)
	}
}

func TestAddrDefaults(t *testing.T) {
	var cfg Config
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("Addr=%q", cfg.Addr())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file did not error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAWTALK_ADDR", "0.0.0.0:9999")
	t.Setenv("PAWTALK_DB_PATH", "/data/pawtalk")
	t.Setenv("PAWTALK_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("PAWTALK_RATE_RPS", "5")
	t.Setenv("PAWTALK_API_BACKEND_KEYS", "bk-env")
	t.Setenv("PAWTALK_SIGNING_KEYS", "sk-env")

	cfg := &Config{}
	backendKeys, signingKeys, envUsed := LoadEnvOverrides(cfg)
	if !envUsed {
		t.Fatal("envUsed=false")
	}
	if cfg.Server.Port != 9999 || cfg.Storage.DBPath != "/data/pawtalk" {
		t.Fatalf("overrides not applied: %+v", cfg.Server)
	}
	if len(cfg.Security.CORS.AllowedOrigins) != 2 {
		t.Fatalf("cors origins: %v", cfg.Security.CORS.AllowedOrigins)
	}
	if cfg.Security.RateLimit.RPS != 5 {
		t.Fatalf("rps: %v", cfg.Security.RateLimit.RPS)
	}
	if _, ok := backendKeys["bk-env"]; !ok {
		t.Fatalf("backend keys: %v", backendKeys)
	}
	if _, ok := signingKeys["sk-env"]; !ok {
		t.Fatalf("signing keys: %v", signingKeys)
	}
}

func TestBackendKeysDoubleAsSigningKeys(t *testing.T) {
	cfg := &Config{}
	cfg.Security.APIKeys.Backend = []string{"bk-1", "bk-2"}

	_, signingKeys, _ := LoadEnvOverrides(cfg)
	if len(signingKeys) != 2 {
		t.Fatalf("signing keys: %v", signingKeys)
	}
	if _, ok := signingKeys["bk-1"]; !ok {
		t.Fatal("backend key not promoted to signing key")
	}

	// explicit signing keys win
	cfg.Security.SigningKeys = []string{"sk-1"}
	_, signingKeys, _ = LoadEnvOverrides(cfg)
	if len(signingKeys) != 1 {
		t.Fatalf("signing keys with explicit config: %v", signingKeys)
	}
}

func TestSizeBytesParsing(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{`v: 25MB`, 25 * 1000 * 1000},
		{`v: 1024`, 1024},
		{`v: 1KiB`, 1024},
	}
	for _, tc := range cases {
		var out struct {
			V SizeBytes `yaml:"v"`
		}
		if err := yaml.Unmarshal([]byte(tc.in), &out); err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if out.V.Int64() != tc.want {
			t.Fatalf("%q: got %d, want %d", tc.in, out.V.Int64(), tc.want)
		}
	}

	var out struct {
		V SizeBytes `yaml:"v"`
	}
	if err := yaml.Unmarshal([]byte(`v: banana`), &out); err == nil {
		t.Fatal("garbage size accepted")
	}
}

func TestDurationParsing(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{`v: 750ms`, 750 * time.Millisecond},
		{`v: 2h`, 2 * time.Hour},
		{`v: 30`, 30 * time.Second},
	}
	for _, tc := range cases {
		var out struct {
			V Duration `yaml:"v"`
		}
		if err := yaml.Unmarshal([]byte(tc.in), &out); err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if out.V.Duration() != tc.want {
			t.Fatalf("%q: got %v, want %v", tc.in, out.V.Duration(), tc.want)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("./flag.yaml", true); got != "./flag.yaml" {
		t.Fatalf("explicit flag: %q", got)
	}
	t.Setenv("PAWTALK_CONFIG", "/etc/pawtalk/config.yaml")
	if got := ResolveConfigPath("./default.yaml", false); got != "/etc/pawtalk/config.yaml" {
		t.Fatalf("env fallback: %q", got)
	}
}
