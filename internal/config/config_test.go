package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	retries := 1
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Upstream: UpstreamConfig{
			BaseURL:   "https://example.com/solr/core",
			APIToken:  "token",
			TimeoutMs: 8000,
			Retries:   &retries,
		},
		Sessions: SessionsConfig{Store: SessionStoreConfig{Driver: "none"}},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingToken(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.APIToken = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing token")
	}
	if !strings.Contains(err.Error(), "upstream.api_token") {
		t.Errorf("error should name upstream.api_token, got %q", err.Error())
	}
}

func TestValidate_MissingBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.BaseURL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing base url")
	}
	if !strings.Contains(err.Error(), "upstream.base_url") {
		t.Errorf("error should name upstream.base_url, got %q", err.Error())
	}
}

func TestValidate_RelativeBaseURL(t *testing.T) {
	for _, raw := range []string{"example.com", "/solr", "ftp://example.com"} {
		t.Run(raw, func(t *testing.T) {
			cfg := validConfig()
			cfg.Upstream.BaseURL = raw
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error for base url %q", raw)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 70000

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_RetriesOutOfRange(t *testing.T) {
	for _, r := range []int{-1, MaxRetries + 1} {
		cfg := validConfig()
		cfg.Upstream.Retries = &r
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for retries=%d", r)
		}
	}
}

func TestValidate_StoreDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Sessions.Store.Driver = "memcached"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown store driver")
	}

	cfg.Sessions.Store.Driver = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for redis driver without addrs")
	}

	cfg.Sessions.Store.Addrs = []string{"localhost:6379"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 3000 {
		t.Errorf("expected Port=3000, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Upstream.TimeoutMs != 8000 {
		t.Errorf("expected TimeoutMs=8000, got %d", cfg.Upstream.TimeoutMs)
	}
	if cfg.Upstream.RetryCount() != 1 {
		t.Errorf("expected RetryCount=1, got %d", cfg.Upstream.RetryCount())
	}
	if cfg.Upstream.SelectPath != "/select" {
		t.Errorf("expected SelectPath=/select, got %q", cfg.Upstream.SelectPath)
	}
	if cfg.Upstream.AuthScheme != "Bearer" {
		t.Errorf("expected AuthScheme=Bearer, got %q", cfg.Upstream.AuthScheme)
	}
	if cfg.Sessions.Store.Driver != "none" {
		t.Errorf("expected store driver none, got %q", cfg.Sessions.Store.Driver)
	}
}

func TestApplyDefaults_ZeroRetriesKept(t *testing.T) {
	zero := 0
	cfg := Config{Upstream: UpstreamConfig{Retries: &zero}}
	cfg.ApplyDefaults()

	if cfg.Upstream.RetryCount() != 0 {
		t.Errorf("explicit retries=0 must survive defaults, got %d", cfg.Upstream.RetryCount())
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_UPSTREAM_TOKEN", "from-env")

	data := []byte(`
upstream:
  base_url: https://example.com
  api_token: ${TEST_UPSTREAM_TOKEN}
  timeout_ms: ${TEST_UPSTREAM_TIMEOUT:-250}
  retries: 0
actions:
  api_key: ${TEST_ACTIONS_KEY:-}
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Upstream.APIToken != "from-env" {
		t.Errorf("api_token = %q, want from-env", cfg.Upstream.APIToken)
	}
	if cfg.Upstream.TimeoutMs != 250 {
		t.Errorf("timeout_ms = %d, want 250", cfg.Upstream.TimeoutMs)
	}
	if cfg.Upstream.RetryCount() != 0 {
		t.Errorf("retries = %d, want 0", cfg.Upstream.RetryCount())
	}
	if cfg.Actions.APIKey != "" {
		t.Errorf("api_key = %q, want empty", cfg.Actions.APIKey)
	}
}

func TestLoadFile_MissingTokenNamesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("upstream:\n  base_url: https://example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "upstream.api_token") {
		t.Errorf("error should mention upstream.api_token, got %q", err.Error())
	}
}
