package subscription

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultPath           = "/ws"
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultReadTimeout    = 60 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultEventQueueSize = 1024

	DefaultReconnectAttempts   = 5
	DefaultReconnectInitial    = 500 * time.Millisecond
	DefaultReconnectMax        = 30 * time.Second
	DefaultReconnectMultiplier = 2.0
	DefaultReconnectJitter     = 0.2

	slowHandlerThreshold = 2 * time.Second
)

// ReconnectPolicy controls automatic redial after the connection drops.
// MaxAttempts of zero disables reconnection.
type ReconnectPolicy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultReconnectPolicy returns capped exponential backoff with five attempts
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:         DefaultReconnectAttempts,
		InitialInterval:     DefaultReconnectInitial,
		MaxInterval:         DefaultReconnectMax,
		Multiplier:          DefaultReconnectMultiplier,
		RandomizationFactor: DefaultReconnectJitter,
	}
}

// Enabled reports whether the policy allows any reconnect attempt
func (p ReconnectPolicy) Enabled() bool {
	return p.MaxAttempts > 0
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultReconnectInitial
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultReconnectMax
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultReconnectMultiplier
	}
	if p.RandomizationFactor < 0 || p.RandomizationFactor >= 1 {
		p.RandomizationFactor = DefaultReconnectJitter
	}
	return p
}

func (p ReconnectPolicy) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.RandomizationFactor
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(p.MaxAttempts))
}

// Options configures a Client. The zero value is usable: timeouts fall back to
// the package defaults and reconnection is disabled. DefaultOptions enables the
// default reconnect policy.
type Options struct {
	// Path is appended to the base URL, "/ws" when empty
	Path string
	// AuthToken is sent as a bearer token on the upgrade request
	AuthToken string
	Header    http.Header

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	EventQueueSize int

	Reconnect ReconnectPolicy

	// Dialer overrides the gorilla websocket dialer
	Dialer Dialer

	// OnError receives decode errors and handler failures. When nil they are logged.
	OnError func(err error)
	// OnDisconnect is called after an unexpected drop and when reconnection gives up.
	// It runs on its own goroutine and may call any Client method.
	OnDisconnect func(err error)
	// OnStateChange receives every state transition in order. It shares the
	// OnDisconnect goroutine: a drop is reported as StateDisconnected, then
	// StateConnecting when a reconnect starts, then OnDisconnect.
	OnStateChange func(state ConnectionState)
}

// DefaultOptions returns the options used by the CLI and the unified client
func DefaultOptions() Options {
	return Options{
		Path:           DefaultPath,
		ConnectTimeout: DefaultConnectTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		ReadTimeout:    DefaultReadTimeout,
		PingInterval:   DefaultPingInterval,
		EventQueueSize: DefaultEventQueueSize,
		Reconnect:      DefaultReconnectPolicy(),
	}
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.ReadTimeout < 0 {
		o.ReadTimeout = 0
	}
	if o.PingInterval < 0 {
		o.PingInterval = 0
	}
	if o.EventQueueSize <= 0 {
		o.EventQueueSize = DefaultEventQueueSize
	}
	if o.Reconnect.Enabled() {
		o.Reconnect = o.Reconnect.withDefaults()
	}
	return o
}

func (o Options) header() http.Header {
	h := http.Header{}
	for k, v := range o.Header {
		h[k] = append([]string(nil), v...)
	}
	if o.AuthToken != "" {
		h.Set("Authorization", "Bearer "+o.AuthToken)
	}
	return h
}

// BuildURL derives the websocket endpoint from a node base URL.
// http becomes ws, https becomes wss and a missing scheme defaults to ws.
func BuildURL(baseURL, path string) (string, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return "", fmt.Errorf("empty node URL")
	}
	if !strings.Contains(base, "://") {
		base = "ws://" + base
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid node URL %q: %w", baseURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid node URL %q: missing host", baseURL)
	}

	basePath := strings.TrimRight(u.Path, "/")
	if path != "" {
		suffix := "/" + strings.TrimLeft(path, "/")
		if !strings.HasSuffix(basePath, suffix) {
			basePath += suffix
		}
	}
	u.Path = basePath
	return u.String(), nil
}
