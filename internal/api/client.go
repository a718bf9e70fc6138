package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/rescale-foldernav/internal/config"
	"github.com/rescale/rescale-foldernav/internal/constants"
	"github.com/rescale/rescale-foldernav/internal/http"
	"github.com/rescale/rescale-foldernav/internal/logging"
	"github.com/rescale/rescale-foldernav/internal/models"
	"github.com/rescale/rescale-foldernav/internal/ratelimit"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 * 1024

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls    int64
	callsByMethod map[string]int64
	windowStart   time.Time
	callsInWindow int64
}

// Client talks to a folder API server. It implements the navigator's
// FolderService.
type Client struct {
	httpClient *nethttp.Client
	retry      *retryablehttp.Client
	config     *config.Config
	baseURL    string
	apiKey     string
	limiter    *ratelimit.RateLimiter
	logger     *logging.Logger
	metrics    *apiMetrics
}

// NewClient creates a new API client
func NewClient(cfg *config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, errors.New("API base URL is empty: set [service] api_url or --api-url")
	}

	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	logger := logging.NewLogger("api", nil)

	// Transient failures (connection errors, 429, 5xx) are retried here;
	// Retry-After is honored by the default backoff.
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = constants.MaxRetries
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.Logger = &retryLogger{logger: logger}
	// Hand the last response back so the server's error body is kept.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limiter := ratelimit.NewFolderAPIRateLimiter()
	limiter.SetLogger(logger)

	return &Client{
		httpClient: retryClient.StandardClient(),
		retry:      retryClient,
		config:     cfg,
		baseURL:    strings.TrimSuffix(cfg.APIBaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    limiter,
		logger:     logger,
		metrics: &apiMetrics{
			callsByMethod: make(map[string]int64),
			windowStart:   time.Now(),
		},
	}, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(l *logging.Logger) {
	if l == nil {
		return
	}
	c.logger = l
	c.retry.Logger = &retryLogger{logger: l}
	c.limiter.SetLogger(l)
}

// GetConfig returns the configuration used by this API client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// TotalCalls returns the number of requests sent so far.
func (c *Client) TotalCalls() int64 {
	c.metrics.Lock()
	defer c.metrics.Unlock()
	return c.metrics.totalCalls
}

func (c *Client) track(method string) {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	c.metrics.totalCalls++
	c.metrics.callsByMethod[method]++
	c.metrics.callsInWindow++

	if elapsed := time.Since(c.metrics.windowStart); elapsed >= 30*time.Second {
		c.logger.Debug().
			Float64("req_per_sec", float64(c.metrics.callsInWindow)/elapsed.Seconds()).
			Int64("total", c.metrics.totalCalls).
			Msg("API usage")
		c.metrics.callsInWindow = 0
		c.metrics.windowStart = time.Now()
	}
}

// doRequest performs an HTTP request with authentication and rate limiting
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}
	c.track(method)

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("API call failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		cooldown := retryAfter(resp.Header.Get("Retry-After"))
		c.limiter.SetCooldown(cooldown)
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Dur("cooldown", cooldown).
			Msg("Throttled by folder API")
	}

	return resp, nil
}

// retryAfter parses a Retry-After header in seconds; anything else maps
// to one second.
func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}

// decodeResponse closes resp and decodes a 2xx JSON body into out, or
// turns any other status into an *Error.
func decodeResponse(resp *nethttp.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readError(resp *nethttp.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.Path = resp.Request.URL.Path
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && (er.Error != "" || er.Code != "") {
		apiErr.Message = er.Error
		apiErr.Code = er.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// FetchNode returns a node with its direct children.
func (c *Client) FetchNode(ctx context.Context, id string) (models.Node, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodGet, constants.FoldersPath, url.Values{"id": {id}}, nil)
	if err != nil {
		return models.Node{}, err
	}

	var node models.Node
	if err := decodeResponse(resp, &node); err != nil {
		return models.Node{}, err
	}
	if node.ID == "" {
		node.ID = id
	}
	return node, nil
}

// CreateNode creates a file or folder under parentID.
func (c *Client) CreateNode(ctx context.Context, parentID string, draft models.Draft) (models.Node, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodPost, constants.FoldersPath, nil, CreateRequest{ParentID: parentID, Item: draft})
	if err != nil {
		return models.Node{}, err
	}

	var node models.Node
	if err := decodeResponse(resp, &node); err != nil {
		return models.Node{}, err
	}
	return node, nil
}

// RenameNode renames a node.
func (c *Client) RenameNode(ctx context.Context, id, newName string) (models.Node, error) {
	req := RenameRequest{ID: id, Updates: NodeUpdates{Name: newName}}
	resp, err := c.doRequest(ctx, nethttp.MethodPatch, constants.FoldersPath, nil, req)
	if err != nil {
		return models.Node{}, err
	}

	var node models.Node
	if err := decodeResponse(resp, &node); err != nil {
		return models.Node{}, err
	}
	return node, nil
}

// DeleteNode deletes a node. Whether non-empty folders can be deleted is
// up to the server.
func (c *Client) DeleteNode(ctx context.Context, id string) error {
	resp, err := c.doRequest(ctx, nethttp.MethodDelete, constants.FoldersPath, url.Values{"id": {id}}, nil)
	if err != nil {
		return err
	}

	var result DeleteResponse
	if err := decodeResponse(resp, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("delete %s: server did not confirm", id)
	}
	return nil
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodGet, constants.HealthPath, nil, nil)
	if err != nil {
		return HealthResponse{}, err
	}

	var h HealthResponse
	err = decodeResponse(resp, &h)
	return h, err
}
