// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the service client.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type, so a 401 carrying the server's
// message still satisfies errors.Is(err, ErrUnauthorized).
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeUnreachable
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeUnauthorized
	ErrTypeStatus
	ErrTypeInvalidRequest
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrUnreachable     = &ClientError{Type: ErrTypeUnreachable, Message: "service unreachable"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrCanceled        = &ClientError{Type: ErrTypeCanceled, Message: "request canceled"}
	ErrUnauthorized    = &ClientError{Type: ErrTypeUnauthorized, Message: "unauthorized"}
	ErrInvalidRequest  = &ClientError{Type: ErrTypeInvalidRequest, Message: "invalid request"}
	ErrInvalidResponse = &ClientError{Type: ErrTypeInvalidResponse, Message: "invalid response"}
)

// IsUnauthorized reports whether err is a rejected credential or session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsCanceled reports whether err was caused by the caller cancelling.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the client.
type ClientConfig struct {
	// BaseURL is the service base URL (default: http://127.0.0.1:4000)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// ConnectTimeout bounds dialing and response headers on streaming
	// requests; the body itself is only bounded by the context (default: 15s)
	ConnectTimeout time.Duration

	// RequestsPerSecond paces outgoing requests (default: 5, negative disables)
	RequestsPerSecond float64

	// Burst is the number of requests allowed at once (default: 3)
	Burst int

	// MaxAudioBytes bounds synthesized audio responses (default: 16 MiB)
	MaxAudioBytes int64

	// UserAgent is sent with every request
	UserAgent string

	// Logger receives request events (default: log.Default())
	Logger *log.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           "http://127.0.0.1:4000",
		Timeout:           30 * time.Second,
		ConnectTimeout:    15 * time.Second,
		RequestsPerSecond: 5,
		Burst:             3,
		MaxAudioBytes:     16 << 20,
		UserAgent:         "grealth",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the assistant service.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	logger       *log.Logger
}

// NewClient creates a new client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.MaxAudioBytes <= 0 {
		config.MaxAudioBytes = defaults.MaxAudioBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	limit := rate.Limit(config.RequestsPerSecond)
	if config.RequestsPerSecond < 0 {
		limit = rate.Inf
	}

	// Streams have no overall timeout; they end with the context
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: config.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: config.ConnectTimeout,
		MaxIdleConnsPerHost:   4,
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{Transport: transport},
		limiter:      rate.NewLimiter(limit, config.Burst),
		logger:       config.Logger,
	}
}

// BaseURL returns the configured service URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// SESSION
// =============================================================================

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

// StartSession exchanges a bearer credential for a new session id.
func (c *Client) StartSession(ctx context.Context, credential string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/start_session", credential, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, c.httpClient, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result startSessionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&result); err != nil {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode session response", Cause: err}
	}
	if result.SessionID == "" {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "session response has no session_id"}
	}
	return result.SessionID, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// newRequest builds an authenticated request.
func (c *Client) newRequest(ctx context.Context, method, path, credential string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	return req, nil
}

// do paces, sends and checks a request. On success the caller owns the
// response body.
func (c *Client) do(ctx context.Context, hc *http.Client, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError(ctx, err)
	}

	start := time.Now()
	resp, err := hc.Do(req)

	// SECURITY: Drop the credential so it cannot leak into logs
	req.Header.Del("Authorization")

	if err != nil {
		c.logger.Printf("API_REQUEST_FAILED | method=%s path=%s error=%v", req.Method, req.URL.Path, err)
		return nil, transportError(ctx, err)
	}
	c.logger.Printf("API_REQUEST | method=%s path=%s status=%d elapsed=%s",
		req.Method, req.URL.Path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, statusError(resp.StatusCode, body)
	}
	return resp, nil
}

// transportError classifies a failed round trip.
func transportError(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, context.DeadlineExceeded) {
			return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: cause}
		}
		return &ClientError{Type: ErrTypeCanceled, Message: "request canceled", Cause: cause}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	return &ClientError{Type: ErrTypeUnreachable, Message: "service unreachable", Cause: err}
}

// statusError converts a non-2xx response into a ClientError, keeping the
// service's {"error": "..."} message when there is one.
func statusError(status int, body []byte) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &apiErr); err == nil {
		msg = apiErr.Error
	}

	if status == http.StatusUnauthorized {
		if msg == "" {
			msg = "unauthorized"
		}
		return &ClientError{Type: ErrTypeUnauthorized, Message: msg, StatusCode: status}
	}

	if msg == "" {
		msg = fmt.Sprintf("service returned %d %s", status, http.StatusText(status))
	}
	return &ClientError{Type: ErrTypeStatus, Message: msg, StatusCode: status}
}
