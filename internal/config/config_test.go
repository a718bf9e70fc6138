package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rescale/rescale-foldernav/internal/constants"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Backend != BackendHTTP {
		t.Errorf("expected default backend http, got %s", cfg.Backend)
	}
	if cfg.Navigation.HistoryLimit != 100 {
		t.Errorf("expected default HistoryLimit 100, got %d", cfg.Navigation.HistoryLimit)
	}
	if cfg.Navigation.FetchConcurrency != 4 {
		t.Errorf("expected default FetchConcurrency 4, got %d", cfg.Navigation.FetchConcurrency)
	}
	if cfg.Server.DeletePolicy != "reject" {
		t.Errorf("expected default delete policy reject, got %s", cfg.Server.DeletePolicy)
	}
	if cfg.FetchTimeout() != 30*time.Second {
		t.Errorf("expected fetch timeout 30s, got %v", cfg.FetchTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != constants.DefaultAPIBaseURL {
		t.Errorf("expected default api url, got %s", cfg.APIBaseURL)
	}
}

func TestSaveAndLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "foldernav")

	cfg := NewConfig()
	cfg.Backend = BackendS3
	cfg.APIKey = "test-api-key-12345"
	cfg.ProxyMode = "basic"
	cfg.ProxyHost = "proxy.local"
	cfg.ProxyPort = 3128
	cfg.ProxyPassword = "not-persisted"
	cfg.Navigation.HistoryLimit = 50
	cfg.Navigation.FetchConcurrency = 8
	cfg.S3.Bucket = "reports"
	cfg.S3.Prefix = "team-a"
	cfg.S3.UsePathStyle = true
	cfg.Server.DeletePolicy = "cascade"
	cfg.Logging.File = "foldernav.log"

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if info.Mode().Perm() != 0600 && os.PathSeparator == '/' {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Backend != BackendS3 {
		t.Errorf("Backend mismatch: got %s", loaded.Backend)
	}
	if loaded.APIKey != cfg.APIKey {
		t.Errorf("APIKey mismatch: got %s", loaded.APIKey)
	}
	if loaded.ProxyHost != "proxy.local" || loaded.ProxyPort != 3128 {
		t.Errorf("proxy mismatch: %s:%d", loaded.ProxyHost, loaded.ProxyPort)
	}
	if loaded.ProxyPassword != "" {
		t.Error("proxy password should not be written to disk")
	}
	if loaded.Navigation.HistoryLimit != 50 || loaded.Navigation.FetchConcurrency != 8 {
		t.Errorf("navigation mismatch: %+v", loaded.Navigation)
	}
	if loaded.S3.Bucket != "reports" || loaded.S3.Prefix != "team-a" || !loaded.S3.UsePathStyle {
		t.Errorf("s3 mismatch: %+v", loaded.S3)
	}
	if loaded.Server.DeletePolicy != "cascade" {
		t.Errorf("delete policy mismatch: %s", loaded.Server.DeletePolicy)
	}
	if loaded.Logging.File != "foldernav.log" {
		t.Errorf("log file mismatch: %s", loaded.Logging.File)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "foldernav")
	content := "[service]\nbackend = MEMORY\n\n[navigation]\nhistory_limit = 7\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != BackendMemory {
		t.Errorf("backend should be lower-cased, got %s", cfg.Backend)
	}
	if cfg.Navigation.HistoryLimit != 7 {
		t.Errorf("expected history_limit 7, got %d", cfg.Navigation.HistoryLimit)
	}
	if cfg.Navigation.FetchConcurrency != 4 {
		t.Errorf("fetch_concurrency should keep default, got %d", cfg.Navigation.FetchConcurrency)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "foldernav")
	if err := os.WriteFile(configPath, []byte("[service\nbroken"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected error for malformed INI")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"valid http", func(c *Config) {}, nil},
		{"unknown backend", func(c *Config) { c.Backend = "ftp" }, ErrUnknownBackend},
		{"missing url", func(c *Config) { c.APIBaseURL = " " }, ErrMissingAPIURL},
		{"relative url", func(c *Config) { c.APIBaseURL = "localhost:8080" }, ErrInvalidAPIURL},
		{"memory needs nothing", func(c *Config) { c.Backend = BackendMemory; c.APIBaseURL = "" }, nil},
		{"s3 without bucket", func(c *Config) { c.Backend = BackendS3 }, ErrMissingBucket},
		{"azure without container", func(c *Config) { c.Backend = BackendAzure; c.Azure.Account = "acct" }, ErrMissingContainer},
		{"azure without credential", func(c *Config) {
			c.Backend = BackendAzure
			c.Azure.Account = "acct"
			c.Azure.Container = "reports"
		}, ErrMissingAzureCredential},
		{"azure with sas", func(c *Config) {
			c.Backend = BackendAzure
			c.Azure.Account = "acct"
			c.Azure.Container = "reports"
			c.Azure.SASURL = "https://acct.blob.core.windows.net/?sv=x"
		}, nil},
		{"bad proxy mode", func(c *Config) { c.ProxyMode = "socks" }, ErrInvalidProxyMode},
		{"zero history", func(c *Config) { c.Navigation.HistoryLimit = 0 }, ErrInvalidHistoryLimit},
		{"too much concurrency", func(c *Config) { c.Navigation.FetchConcurrency = 64 }, ErrInvalidConcurrency},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }, ErrInvalidTimeout},
		{"bad delete policy", func(c *Config) { c.Server.DeletePolicy = "purge" }, ErrInvalidDeletePolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(constants.EnvAPIKey, "env-key")
	t.Setenv(constants.EnvAPIURL, "")

	cfg := NewConfig()
	if !cfg.ApplyEnv() {
		t.Error("ApplyEnv should report a change")
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.APIKey)
	}
	if cfg.APIBaseURL != constants.DefaultAPIBaseURL {
		t.Errorf("empty env var should not override api url, got %s", cfg.APIBaseURL)
	}
}

func TestRedacted(t *testing.T) {
	cfg := NewConfig()
	cfg.APIKey = "abcdefghijkl"
	cfg.S3.SecretKey = "xy"

	r := cfg.Redacted()
	if strings.Contains(r.APIKey, "efgh") {
		t.Errorf("api key not masked: %s", r.APIKey)
	}
	if r.S3.SecretKey != "****" {
		t.Errorf("short secret should be fully masked, got %s", r.S3.SecretKey)
	}
	if cfg.APIKey != "abcdefghijkl" {
		t.Error("Redacted must not modify the original")
	}
}

func TestResolveLogFile(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "x.log")
	got, err := ResolveLogFile(abs)
	if err != nil || got != abs {
		t.Errorf("absolute path should pass through, got %q, %v", got, err)
	}
	got, err = ResolveLogFile("")
	if err != nil || got != "" {
		t.Errorf("empty name should disable file logging, got %q, %v", got, err)
	}
}
