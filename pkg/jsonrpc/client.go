// Package jsonrpc is the node's JSON-RPC client for executing application methods.
package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultPath        = "/jsonrpc"
	DefaultTimeout     = 30 * time.Second
	DefaultExecTimeout = 1000
)

// ErrNotConfigured is returned by Execute when the context or executor is unset
var ErrNotConfigured = errors.New("context id and executor public key are required")

// Options configures a Client
type Options struct {
	Path      string
	AuthToken string
	// Timeout bounds each HTTP request
	Timeout time.Duration
	// ExecTimeout is the execution timeout in milliseconds sent with execute calls
	ExecTimeout       int
	ContextID         string
	ExecutorPublicKey string
	HTTPClient        *http.Client
}

// Client sends JSON-RPC requests to a node over HTTP
type Client struct {
	endpoint    string
	authToken   string
	execTimeout int
	httpClient  *http.Client
	logger      zerolog.Logger

	reqID int64

	mu        sync.RWMutex
	contextID string
	executor  string
}

// New creates a Client for the node at baseURL
func New(baseURL string, opts Options, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("empty node URL")
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = DefaultExecTimeout
	}

	endpoint, err := endpointURL(base, opts.Path)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: opts.Timeout,
		}
	}

	return &Client{
		endpoint:    endpoint,
		authToken:   opts.AuthToken,
		execTimeout: opts.ExecTimeout,
		httpClient:  httpClient,
		logger:      logger.With().Str("component", "jsonrpc").Logger(),
		contextID:   opts.ContextID,
		executor:    opts.ExecutorPublicKey,
	}, nil
}

// endpointURL appends path to base unless base's path already ends with it.
// Only the URL path is compared, so a host name containing the path does not
// count.
func endpointURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid node URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid node URL %q: scheme and host are required", base)
	}
	suffix := "/" + strings.Trim(path, "/")
	current := strings.TrimRight(u.Path, "/")
	if suffix != "/" && !strings.HasSuffix(current, suffix) {
		current += suffix
	}
	u.Path = current
	u.RawPath = ""
	return u.String(), nil
}

// Endpoint returns the JSON-RPC URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// SetContext sets the context id used by Execute
func (c *Client) SetContext(contextID string) {
	c.mu.Lock()
	c.contextID = contextID
	c.mu.Unlock()
}

// SetExecutor sets the executor public key used by Execute
func (c *Client) SetExecutor(publicKey string) {
	c.mu.Lock()
	c.executor = publicKey
	c.mu.Unlock()
}

// CanExecute reports whether both the context id and executor are set
func (c *Client) CanExecute() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contextID != "" && c.executor != ""
}

// Execute calls an application method in the configured context
func (c *Client) Execute(ctx context.Context, method string, args interface{}) (*Response, error) {
	c.mu.RLock()
	contextID, executor := c.contextID, c.executor
	c.mu.RUnlock()
	if contextID == "" || executor == "" {
		return nil, ErrNotConfigured
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	return c.Call(ctx, MethodExecute, ExecuteParams{
		ContextID:         contextID,
		Method:            method,
		ArgsJSON:          args,
		ExecutorPublicKey: executor,
		Timeout:           c.execTimeout,
	})
}

// Query calls a read-only application method
func (c *Client) Query(ctx context.Context, params ExecuteParams) (*Response, error) {
	return c.Call(ctx, MethodQuery, c.withDefaults(params))
}

// Mutate calls a state-changing application method
func (c *Client) Mutate(ctx context.Context, params ExecuteParams) (*Response, error) {
	return c.Call(ctx, MethodMutate, c.withDefaults(params))
}

func (c *Client) withDefaults(params ExecuteParams) ExecuteParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if params.ContextID == "" {
		params.ContextID = c.contextID
	}
	if params.ExecutorPublicKey == "" {
		params.ExecutorPublicKey = c.executor
	}
	if params.ArgsJSON == nil {
		params.ArgsJSON = map[string]interface{}{}
	}
	if params.Timeout == 0 {
		params.Timeout = c.execTimeout
	}
	return params
}

// Call sends method with params. A JSON-RPC error object is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	req, err := NewRequest(method, params, NewIDInt(atomic.AddInt64(&c.reqID, 1)))
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.HasError() {
		c.logger.Debug().Str("method", method).Int("code", resp.Error.Code).Str("message", resp.Error.Message).Msg("JSON-RPC error response")
		return nil, resp.Error
	}
	return resp, nil
}

// Do sends a prepared request and returns the parsed response, including error responses
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	reqBytes, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug().
		Str("method", req.Method).
		Stringer("id", req.ID).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("JSON-RPC request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	rpcResp, err := ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return rpcResp, nil
}

// CloseIdleConnections releases pooled HTTP connections
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
