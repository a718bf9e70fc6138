// Package config provides configuration management for rescale-foldernav.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/rescale/rescale-foldernav/internal/constants"
)

// Config is the full runtime configuration, loaded from an INI file and
// overridden by environment variables and command-line flags.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\rescale\foldernav
//   - Unix: ~/.config/rescale/foldernav
//
// INI format:
//
//	[service]
//	backend = http
//	api_url = http://localhost:8080
//	api_key = <token>
//	timeout_seconds = 30
//
//	[proxy]
//	mode = no-proxy
//	host = proxy.example.com
//	port = 8080
//
//	[navigation]
//	history_limit = 100
//	fetch_concurrency = 4
//	fetch_timeout_seconds = 30
//
//	[s3]
//	bucket = reports
//	region = us-east-1
//
//	[azure]
//	account = myaccount
//	container = reports
//
//	[logging]
//	level = info
//
//	[server]
//	listen = :8080
//	delete_policy = reject
type Config struct {
	// Folder service selection
	Backend        string // "http", "memory", "s3", "azure"
	APIBaseURL     string
	APIKey         string
	TimeoutSeconds int

	// Proxy settings, consumed by internal/http
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	Navigation NavigationConfig
	S3         S3Config
	Azure      AzureConfig
	Logging    LoggingConfig
	Server     ServerConfig
}

// NavigationConfig tunes the navigation engine.
type NavigationConfig struct {
	// HistoryLimit bounds back/forward history. Default: 100
	HistoryLimit int

	// FetchConcurrency bounds parallel fetches during refresh-all and
	// prefetch. Minimum 1, maximum 32, default 4.
	FetchConcurrency int

	// FetchTimeoutSeconds bounds a single folder fetch. Default: 30
	FetchTimeoutSeconds int
}

// S3Config selects the bucket used by the s3 backend. Empty credentials
// fall back to the default AWS credential chain.
type S3Config struct {
	Bucket       string
	Region       string
	Prefix       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// AzureConfig selects the container used by the azure backend. Either
// AccountKey or SASURL must be set.
type AzureConfig struct {
	Account    string
	Container  string
	Prefix     string
	AccountKey string
	SASURL     string
}

// LoggingConfig controls log level and the optional rotating log file.
type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// ServerConfig configures `serve`.
type ServerConfig struct {
	Listen       string
	APIKey       string
	DeletePolicy string // "reject" or "cascade"
	Seed         bool   // seed the in-memory store with sample reports
}

// Backend names
const (
	BackendHTTP   = "http"
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendAzure  = "azure"
)

// Validation errors
var (
	ErrUnknownBackend         = errors.New("backend must be one of http, memory, s3, azure")
	ErrMissingAPIURL          = errors.New("api_url is required for the http backend")
	ErrInvalidAPIURL          = errors.New("api_url must be an absolute http(s) URL")
	ErrMissingBucket          = errors.New("s3 bucket is required for the s3 backend")
	ErrMissingContainer       = errors.New("azure account and container are required for the azure backend")
	ErrMissingAzureCredential = errors.New("azure account_key or sas_url is required for the azure backend")
	ErrInvalidHistoryLimit    = errors.New("history_limit must be between 1 and 10000")
	ErrInvalidConcurrency     = errors.New("fetch_concurrency must be between 1 and 32")
	ErrInvalidTimeout         = errors.New("timeout values must be positive")
	ErrInvalidDeletePolicy    = errors.New("delete_policy must be reject or cascade")
	ErrInvalidProxyMode       = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
)

// DefaultConfigPath returns the default path for the config file.
// - Windows: %USERPROFILE%\.config\rescale\foldernav
// - Unix: ~/.config/rescale/foldernav
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", "rescale")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "rescale")
	}

	return filepath.Join(configDir, "foldernav"), nil
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Backend:        BackendHTTP,
		APIBaseURL:     constants.DefaultAPIBaseURL,
		TimeoutSeconds: int(constants.APIContextTimeout / time.Second),
		ProxyMode:      "no-proxy",
		Navigation: NavigationConfig{
			HistoryLimit:        constants.DefaultHistoryLimit,
			FetchConcurrency:    constants.DefaultFetchConcurrency,
			FetchTimeoutSeconds: int(constants.DefaultFetchTimeout / time.Second),
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  constants.DefaultLogMaxSizeMB,
			MaxBackups: constants.DefaultLogMaxBackups,
		},
		Server: ServerConfig{
			Listen:       constants.DefaultListenAddr,
			DeletePolicy: "reject",
			Seed:         true,
		},
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	service := iniFile.Section("service")
	cfg.Backend = strings.ToLower(service.Key("backend").MustString(cfg.Backend))
	cfg.APIBaseURL = service.Key("api_url").MustString(cfg.APIBaseURL)
	cfg.APIKey = service.Key("api_key").String()
	cfg.TimeoutSeconds = service.Key("timeout_seconds").MustInt(cfg.TimeoutSeconds)

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(0)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()
	cfg.ProxyWarmup = proxy.Key("warmup").MustBool(false)

	nav := iniFile.Section("navigation")
	cfg.Navigation.HistoryLimit = nav.Key("history_limit").MustInt(cfg.Navigation.HistoryLimit)
	cfg.Navigation.FetchConcurrency = nav.Key("fetch_concurrency").MustInt(cfg.Navigation.FetchConcurrency)
	cfg.Navigation.FetchTimeoutSeconds = nav.Key("fetch_timeout_seconds").MustInt(cfg.Navigation.FetchTimeoutSeconds)

	s3 := iniFile.Section("s3")
	cfg.S3.Bucket = s3.Key("bucket").String()
	cfg.S3.Region = s3.Key("region").MustString(cfg.S3.Region)
	cfg.S3.Prefix = s3.Key("prefix").String()
	cfg.S3.Endpoint = s3.Key("endpoint").String()
	cfg.S3.AccessKey = s3.Key("access_key").String()
	cfg.S3.SecretKey = s3.Key("secret_key").String()
	cfg.S3.UsePathStyle = s3.Key("use_path_style").MustBool(false)

	az := iniFile.Section("azure")
	cfg.Azure.Account = az.Key("account").String()
	cfg.Azure.Container = az.Key("container").String()
	cfg.Azure.Prefix = az.Key("prefix").String()
	cfg.Azure.AccountKey = az.Key("account_key").String()
	cfg.Azure.SASURL = az.Key("sas_url").String()

	logging := iniFile.Section("logging")
	cfg.Logging.Level = logging.Key("level").MustString(cfg.Logging.Level)
	cfg.Logging.File = logging.Key("file").String()
	cfg.Logging.MaxSizeMB = logging.Key("max_size_mb").MustInt(cfg.Logging.MaxSizeMB)
	cfg.Logging.MaxBackups = logging.Key("max_backups").MustInt(cfg.Logging.MaxBackups)

	server := iniFile.Section("server")
	cfg.Server.Listen = server.Key("listen").MustString(cfg.Server.Listen)
	cfg.Server.APIKey = server.Key("api_key").String()
	cfg.Server.DeletePolicy = strings.ToLower(server.Key("delete_policy").MustString(cfg.Server.DeletePolicy))
	cfg.Server.Seed = server.Key("seed").MustBool(cfg.Server.Seed)

	return cfg, nil
}

// ApplyEnv overrides the API key and URL from the environment. Returns
// true when anything changed.
func (cfg *Config) ApplyEnv() bool {
	changed := false
	if v := strings.TrimSpace(os.Getenv(constants.EnvAPIKey)); v != "" {
		cfg.APIKey = v
		changed = true
	}
	if v := strings.TrimSpace(os.Getenv(constants.EnvAPIURL)); v != "" {
		cfg.APIBaseURL = v
		changed = true
	}
	return changed
}

// Save writes the configuration to an INI file.
// Creates parent directories if they don't exist.
// Secrets are stored in the file - ensure appropriate file permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	sections := []struct {
		name string
		keys [][2]string
	}{
		{"service", [][2]string{
			{"backend", cfg.Backend},
			{"api_url", cfg.APIBaseURL},
			{"api_key", cfg.APIKey},
			{"timeout_seconds", fmt.Sprintf("%d", cfg.TimeoutSeconds)},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.ProxyMode},
			{"host", cfg.ProxyHost},
			{"port", fmt.Sprintf("%d", cfg.ProxyPort)},
			{"user", cfg.ProxyUser},
			{"no_proxy", cfg.NoProxy},
			{"warmup", fmt.Sprintf("%t", cfg.ProxyWarmup)},
		}},
		{"navigation", [][2]string{
			{"history_limit", fmt.Sprintf("%d", cfg.Navigation.HistoryLimit)},
			{"fetch_concurrency", fmt.Sprintf("%d", cfg.Navigation.FetchConcurrency)},
			{"fetch_timeout_seconds", fmt.Sprintf("%d", cfg.Navigation.FetchTimeoutSeconds)},
		}},
		{"s3", [][2]string{
			{"bucket", cfg.S3.Bucket},
			{"region", cfg.S3.Region},
			{"prefix", cfg.S3.Prefix},
			{"endpoint", cfg.S3.Endpoint},
			{"access_key", cfg.S3.AccessKey},
			{"secret_key", cfg.S3.SecretKey},
			{"use_path_style", fmt.Sprintf("%t", cfg.S3.UsePathStyle)},
		}},
		{"azure", [][2]string{
			{"account", cfg.Azure.Account},
			{"container", cfg.Azure.Container},
			{"prefix", cfg.Azure.Prefix},
			{"account_key", cfg.Azure.AccountKey},
			{"sas_url", cfg.Azure.SASURL},
		}},
		{"logging", [][2]string{
			{"level", cfg.Logging.Level},
			{"file", cfg.Logging.File},
			{"max_size_mb", fmt.Sprintf("%d", cfg.Logging.MaxSizeMB)},
			{"max_backups", fmt.Sprintf("%d", cfg.Logging.MaxBackups)},
		}},
		{"server", [][2]string{
			{"listen", cfg.Server.Listen},
			{"api_key", cfg.Server.APIKey},
			{"delete_policy", cfg.Server.DeletePolicy},
			{"seed", fmt.Sprintf("%t", cfg.Server.Seed)},
		}},
	}

	for _, sec := range sections {
		section, err := iniFile.NewSection(sec.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", sec.name, err)
		}
		for _, kv := range sec.keys {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the settings the selected backend needs.
// Returns nil if valid, or the first sentinel error found.
func (cfg *Config) Validate() error {
	switch cfg.Backend {
	case BackendHTTP:
		if strings.TrimSpace(cfg.APIBaseURL) == "" {
			return ErrMissingAPIURL
		}
		u, err := url.Parse(cfg.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidAPIURL
		}
	case BackendMemory:
	case BackendS3:
		if strings.TrimSpace(cfg.S3.Bucket) == "" {
			return ErrMissingBucket
		}
	case BackendAzure:
		if strings.TrimSpace(cfg.Azure.Account) == "" || strings.TrimSpace(cfg.Azure.Container) == "" {
			return ErrMissingContainer
		}
		if cfg.Azure.AccountKey == "" && cfg.Azure.SASURL == "" {
			return ErrMissingAzureCredential
		}
	default:
		return ErrUnknownBackend
	}

	switch strings.ToLower(cfg.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}

	if cfg.Navigation.HistoryLimit < 1 || cfg.Navigation.HistoryLimit > 10000 {
		return ErrInvalidHistoryLimit
	}
	if cfg.Navigation.FetchConcurrency < 1 || cfg.Navigation.FetchConcurrency > constants.MaxFetchConcurrency {
		return ErrInvalidConcurrency
	}
	if cfg.TimeoutSeconds <= 0 || cfg.Navigation.FetchTimeoutSeconds <= 0 {
		return ErrInvalidTimeout
	}

	return cfg.ValidateServer()
}

// ValidateServer checks only the [server] section. `serve` calls this
// instead of Validate since it never dials a remote backend.
func (cfg *Config) ValidateServer() error {
	switch cfg.Server.DeletePolicy {
	case "reject", "cascade":
		return nil
	default:
		return ErrInvalidDeletePolicy
	}
}

// Timeout returns the per-request API timeout.
func (cfg *Config) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

// FetchTimeout returns the per-folder fetch timeout.
func (cfg *Config) FetchTimeout() time.Duration {
	return time.Duration(cfg.Navigation.FetchTimeoutSeconds) * time.Second
}

// Redacted returns a copy safe to print: secrets are masked.
func (cfg *Config) Redacted() *Config {
	c := *cfg
	c.APIKey = mask(c.APIKey)
	c.ProxyPassword = mask(c.ProxyPassword)
	c.S3.SecretKey = mask(c.S3.SecretKey)
	c.Azure.AccountKey = mask(c.Azure.AccountKey)
	c.Azure.SASURL = mask(c.Azure.SASURL)
	c.Server.APIKey = mask(c.Server.APIKey)
	return &c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", 8)
}
