package constants

import (
	"time"
)

// Application identity
const (
	// AppName is the binary and log component name.
	AppName = "rescale-foldernav"

	// EnvAPIKey overrides [service] api_key.
	EnvAPIKey = "RESCALE_FOLDERNAV_API_KEY"

	// EnvAPIURL overrides [service] api_url.
	EnvAPIURL = "RESCALE_FOLDERNAV_API_URL"
)

// Folder API
const (
	// FoldersPath is the single resource path served and consumed by the
	// HTTP backend.
	FoldersPath = "/api/folders"

	// HealthPath answers liveness probes on the folder server.
	HealthPath = "/health"

	// DefaultAPIBaseURL is used when no api_url is configured.
	DefaultAPIBaseURL = "http://localhost:8080"

	// DefaultListenAddr is the folder server bind address.
	DefaultListenAddr = ":8080"
)

// Navigation
const (
	// DefaultHistoryLimit - entries kept by the navigation history before
	// the oldest is dropped (100)
	DefaultHistoryLimit = 100

	// DefaultFetchConcurrency - parallel folder fetches for refresh-all and
	// prefetch (4)
	DefaultFetchConcurrency = 4

	// MaxFetchConcurrency caps fetch_concurrency.
	MaxFetchConcurrency = 32

	// DefaultFetchTimeout - timeout for a single folder fetch (30 seconds)
	DefaultFetchTimeout = 30 * time.Second

	// DefaultPrefetchDepth - levels loaded by `prefetch` and `tree` when no
	// depth is given
	DefaultPrefetchDepth = 3
)

// Retry configuration
const (
	// MaxRetries - maximum number of retries for transient HTTP errors
	MaxRetries = 3

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second
)

// Rate limiting for the folder API client
const (
	// FolderAPIRatePerSec - sustained request rate (20 req/s)
	FolderAPIRatePerSec = 20.0

	// FolderAPIBurst - requests allowed back to back before throttling
	FolderAPIBurst = 40

	// RateLimitWarningThreshold - delay threshold to show warning (2 seconds)
	RateLimitWarningThreshold = 2 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for API operations (30 seconds)
	APIContextTimeout = 30 * time.Second

	// ProxyWarmupTimeout - timeout for the optional proxy warmup request
	ProxyWarmupTimeout = 15 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPServerReadHeaderTimeout guards the folder server against slowloris.
	HTTPServerReadHeaderTimeout = 10 * time.Second

	// HTTPServerShutdownTimeout - grace period for in-flight requests on stop
	HTTPServerShutdownTimeout = 5 * time.Second
)

// Request limits
const (
	// MaxRequestBodyBytes caps JSON bodies accepted by the folder server (8 MB)
	MaxRequestBodyBytes = 8 * 1024 * 1024
)

// Pagination Safety Limits
const (
	// MaxPaginationPages - maximum pages to fetch from an object store listing
	// before stopping (prevents infinite loops)
	MaxPaginationPages = 1000
)

// Logging
const (
	// DefaultLogMaxSizeMB - size at which the log file is rotated
	DefaultLogMaxSizeMB = 10

	// DefaultLogMaxBackups - rotated log files kept on disk
	DefaultLogMaxBackups = 3
)
