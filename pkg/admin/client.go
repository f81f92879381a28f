// Package admin is a client for the node's admin API.
//
// Responses use a {"data": ...} envelope, optionally with "success" and
// "error" fields. Every manager method unwraps the envelope and decodes the
// data into typed results. Non-2xx answers and {"success": false} bodies are
// returned as *APIError.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/calimero-network/calimero-client-go/internal/cache"
)

const (
	// APIPrefix is the path prefix of every admin endpoint
	APIPrefix = "/admin-api"

	DefaultTimeout = 30 * time.Second
)

// ErrNotFound is matched by an *APIError with status 404
var ErrNotFound = errors.New("not found")

// APIError is returned for non-2xx responses and for bodies reporting success=false
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin API error %d: %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrNotFound) true for 404 responses
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Options configures a Client
type Options struct {
	AuthToken  string
	Timeout    time.Duration
	HTTPClient *http.Client

	// CacheSize enables the GET response cache when positive
	CacheSize int
	CacheTTL  time.Duration
	// NoCachePaths lists admin paths that are never cached
	NoCachePaths []string
}

// Client talks to the admin API of one node
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	cache      cache.Cache
	policy     *cache.Policy
	logger     zerolog.Logger

	// cacheMu orders cache writes against purges. epoch counts purges so a
	// GET that overlapped a mutation does not store its response.
	cacheMu sync.Mutex
	epoch   uint64

	Contexts     *ContextsManager
	Identities   *IdentitiesManager
	Applications *ApplicationsManager
	Blobs        *BlobsManager
	Capabilities *CapabilitiesManager
	Proposals    *ProposalsManager
	Aliases      *AliasesManager
	System       *SystemManager
}

// New creates a Client for the node at baseURL
func New(baseURL string, opts Options, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("empty node URL")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid node URL %q", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
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

	var respCache cache.Cache = cache.Nop{}
	if opts.CacheSize > 0 {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Second
		}
		lruCache, err := cache.NewLRU(opts.CacheSize, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		respCache = lruCache
	}

	c := &Client{
		baseURL:    base,
		authToken:  opts.AuthToken,
		httpClient: httpClient,
		cache:      respCache,
		policy:     cache.NewPolicy(opts.NoCachePaths),
		logger:     logger.With().Str("component", "admin").Logger(),
	}
	c.Contexts = &ContextsManager{c: c}
	c.Identities = &IdentitiesManager{c: c}
	c.Applications = &ApplicationsManager{c: c}
	c.Blobs = &BlobsManager{c: c}
	c.Capabilities = &CapabilitiesManager{c: c}
	c.Proposals = &ProposalsManager{c: c}
	c.Aliases = &AliasesManager{c: c}
	c.System = &SystemManager{c: c}
	return c, nil
}

// BaseURL returns the node URL the client was created with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close stops the response cache and releases idle connections
func (c *Client) Close() {
	c.cache.Close()
	c.httpClient.CloseIdleConnections()
}

// get issues a GET and returns the unwrapped data
func (c *Client) get(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	path = APIPrefix + path
	cacheable := c.policy.IsCacheable(path)
	key := ""
	if cacheable {
		key = cache.GenerateCacheKey(http.MethodGet, path, query)
		if body, ok := c.cache.Get(key); ok {
			c.logger.Debug().Str("path", path).Msg("admin cache hit")
			return unwrap(body), nil
		}
	}

	epoch := c.cacheEpoch()
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	if cacheable {
		c.cacheMu.Lock()
		if c.epoch == epoch {
			c.cache.Set(key, body)
		} else {
			c.logger.Debug().Str("path", path).Msg("admin cache write skipped, purged during request")
		}
		c.cacheMu.Unlock()
	}
	return unwrap(body), nil
}

func (c *Client) cacheEpoch() uint64 {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return c.epoch
}

// send issues a mutating request and purges the response cache
func (c *Client) send(ctx context.Context, method, path string, payload interface{}) (gjson.Result, error) {
	body, err := c.do(ctx, method, APIPrefix+path, nil, payload)
	c.cacheMu.Lock()
	c.epoch++
	c.cache.Purge()
	c.cacheMu.Unlock()
	if err != nil {
		return gjson.Result{}, err
	}
	return unwrap(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("admin request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("null"), nil
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to parse response: invalid JSON (%d bytes)", len(body))
	}
	if success := gjson.GetBytes(body, "success"); success.Exists() && !success.Bool() {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// unwrap returns the envelope's data field, or the whole body when there is none
func unwrap(body []byte) gjson.Result {
	root := gjson.ParseBytes(body)
	if root.IsObject() {
		if data := root.Get("data"); data.Exists() {
			return data
		}
	}
	return root
}

func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, field := range []string{"error.message", "error", "message"} {
			if v := gjson.GetBytes(body, field); v.Exists() && v.Type == gjson.String {
				return v.String()
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return msg
}

// decode unmarshals a data result into v
func decode(result gjson.Result, v interface{}) error {
	if !result.Exists() || result.Type == gjson.Null {
		return nil
	}
	if err := json.Unmarshal([]byte(result.Raw), v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// listOf returns the array under key when data is an object, or data itself
// when it is an array. Anything else yields an empty result.
func listOf(data gjson.Result, key string) gjson.Result {
	if data.IsObject() {
		data = data.Get(key)
	}
	if !data.IsArray() {
		return gjson.Result{}
	}
	return data
}

func raw(result gjson.Result) json.RawMessage {
	if !result.Exists() {
		return json.RawMessage("null")
	}
	return json.RawMessage(result.Raw)
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
