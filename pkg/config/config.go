// Package config loads client settings. CALIMERO_* environment variables
// override the config file, which overrides the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/calimero-network/calimero-client-go/pkg/admin"
	"github.com/calimero-network/calimero-client-go/pkg/jsonrpc"
	"github.com/calimero-network/calimero-client-go/pkg/keypair"
	"github.com/calimero-network/calimero-client-go/pkg/subscription"
)

// EnvPrefix prefixes every environment override, e.g. CALIMERO_NODE_URL
const EnvPrefix = "CALIMERO"

// DefaultConfigPath returns ~/.calimero/config.toml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(DefaultConfigDirName, DefaultConfigFile)
	}
	return filepath.Join(home, DefaultConfigDirName, DefaultConfigFile)
}

// Load reads the configuration file at path, applies environment overrides
// and defaults, and validates the result. An empty path skips the file.
// The format follows the file extension (toml, yaml or json).
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := applyLegacyKeys(v); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.NodeURL = strings.TrimRight(strings.TrimSpace(cfg.NodeURL), "/")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.Keypair != "" && cfg.JSONRPC.ExecutorPublicKey == "" {
		kp, err := cfg.LoadKeypair()
		if err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		cfg.JSONRPC.ExecutorPublicKey = kp.PublicKeyBase58()
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv builds the configuration from environment variables and defaults only
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// LoadDefault reads DefaultConfigPath when it exists and falls back to LoadFromEnv
func LoadDefault() (*Config, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err != nil {
		return LoadFromEnv()
	}
	return Load(path)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// CALIMERO_EXECUTOR_PUBLIC_KEY is the older name and is still honoured
	_ = v.BindEnv("jsonrpc.executor_public_key",
		EnvPrefix+"_JSONRPC_EXECUTOR_PUBLIC_KEY",
		EnvPrefix+"_EXECUTOR_PUBLIC_KEY")
	applyDefaults(v)
	return v
}

// legacyKeys maps the older sectioned layout
//
//	[node] url, [application] id, [executor] public_key
//
// onto the current keys. A current key set in the same file wins.
var legacyKeys = map[string]string{
	"node.url":            "node_url",
	"application.id":      "application_id",
	"executor.public_key": "jsonrpc.executor_public_key",
}

// applyLegacyKeys copies legacy file values into the config layer so that
// environment overrides keep their precedence
func applyLegacyKeys(v *viper.Viper) error {
	merged := map[string]interface{}{}
	for legacy, key := range legacyKeys {
		if !v.InConfig(legacy) || v.InConfig(key) {
			continue
		}
		value := v.Get(legacy)
		section, leaf, nested := strings.Cut(key, ".")
		if !nested {
			merged[key] = value
			continue
		}
		sub, _ := merged[section].(map[string]interface{})
		if sub == nil {
			sub = map[string]interface{}{}
			merged[section] = sub
		}
		sub[leaf] = value
	}
	if len(merged) == 0 {
		return nil
	}
	if err := v.MergeConfigMap(merged); err != nil {
		return fmt.Errorf("failed to apply legacy config keys: %w", err)
	}
	return nil
}

// applyDefaults registers default values. Every key needs one so that
// environment overrides are seen by Unmarshal.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("node_url", DefaultNodeURL)
	v.SetDefault("auth_token", "")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("application_id", "")
	v.SetDefault("keypair", "")

	v.SetDefault("subscription.path", DefaultSubscriptionPath)
	v.SetDefault("subscription.connect_timeout", DefaultConnectTimeout)
	v.SetDefault("subscription.write_timeout", DefaultWriteTimeout)
	v.SetDefault("subscription.read_timeout", DefaultReadTimeout)
	v.SetDefault("subscription.ping_interval", DefaultPingInterval)
	v.SetDefault("subscription.event_queue_size", DefaultEventQueueSize)

	v.SetDefault("reconnect.enabled", DefaultReconnectEnabled)
	v.SetDefault("reconnect.max_attempts", DefaultReconnectAttempts)
	v.SetDefault("reconnect.initial_interval", DefaultReconnectInitial)
	v.SetDefault("reconnect.max_interval", DefaultReconnectMax)
	v.SetDefault("reconnect.multiplier", DefaultReconnectMultiplier)
	v.SetDefault("reconnect.jitter", DefaultReconnectJitter)

	v.SetDefault("jsonrpc.path", DefaultJSONRPCPath)
	v.SetDefault("jsonrpc.timeout", DefaultRPCTimeout)
	v.SetDefault("jsonrpc.exec_timeout", DefaultExecTimeout)
	v.SetDefault("jsonrpc.context_id", "")
	v.SetDefault("jsonrpc.executor_public_key", "")

	v.SetDefault("admin.timeout", DefaultAdminTimeout)
	v.SetDefault("admin.cache_enabled", false)
	v.SetDefault("admin.cache_size", DefaultCacheSize)
	v.SetDefault("admin.cache_ttl", DefaultCacheTTL)
	v.SetDefault("admin.no_cache_paths", []string{})
}

// Validate checks the configuration after fields were changed in code
func (c *Config) Validate() error {
	return validate(c)
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.NodeURL == "" {
		return errors.New("node_url is required")
	}
	u, err := url.Parse(cfg.NodeURL)
	if err != nil {
		return fmt.Errorf("node_url is invalid: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("node_url must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("node_url must include a host")
	}

	if cfg.Keypair != "" {
		if _, err := keypair.FromBase58(cfg.Keypair); err != nil {
			return fmt.Errorf("keypair is invalid: %w", err)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	sub := cfg.Subscription
	if sub.ConnectTimeout < 0 || sub.WriteTimeout < 0 || sub.ReadTimeout < 0 || sub.PingInterval < 0 {
		return fmt.Errorf("subscription timeouts must be non-negative")
	}
	if sub.EventQueueSize <= 0 {
		return fmt.Errorf("subscription.event_queue_size must be positive")
	}

	if cfg.Reconnect.Enabled {
		rc := cfg.Reconnect
		if rc.MaxAttempts <= 0 {
			return fmt.Errorf("reconnect.max_attempts must be positive when reconnect is enabled")
		}
		if rc.InitialInterval <= 0 || rc.MaxInterval < rc.InitialInterval {
			return fmt.Errorf("reconnect intervals must satisfy 0 < initial_interval <= max_interval")
		}
		if rc.Multiplier < 1 {
			return fmt.Errorf("reconnect.multiplier must be at least 1")
		}
		if rc.Jitter < 0 || rc.Jitter >= 1 {
			return fmt.Errorf("reconnect.jitter must be in [0, 1)")
		}
	}

	if cfg.JSONRPC.Timeout < 0 || cfg.JSONRPC.ExecTimeout < 0 {
		return fmt.Errorf("jsonrpc timeouts must be non-negative")
	}
	if cfg.Admin.Timeout < 0 {
		return fmt.Errorf("admin.timeout must be non-negative")
	}

	if cfg.Admin.CacheEnabled {
		if cfg.Admin.CacheTTL <= 0 {
			return fmt.Errorf("admin.cache_ttl must be positive when cache is enabled")
		}
		if cfg.Admin.CacheSize <= 0 {
			return fmt.Errorf("admin.cache_size must be positive when cache is enabled")
		}
	}

	return nil
}

// LoadKeypair decodes the configured keypair
func (c *Config) LoadKeypair() (*keypair.Keypair, error) {
	if c.Keypair == "" {
		return nil, errors.New("keypair is not configured")
	}
	kp, err := keypair.FromBase58(c.Keypair)
	if err != nil {
		return nil, fmt.Errorf("keypair is invalid: %w", err)
	}
	return kp, nil
}

// SubscriptionOptions builds the subscription client options
func (c *Config) SubscriptionOptions() subscription.Options {
	opts := subscription.Options{
		Path:           c.Subscription.Path,
		AuthToken:      c.AuthToken,
		ConnectTimeout: c.GetConnectTimeoutDuration(),
		WriteTimeout:   c.GetWriteTimeoutDuration(),
		ReadTimeout:    c.GetReadTimeoutDuration(),
		PingInterval:   c.GetPingIntervalDuration(),
		EventQueueSize: c.Subscription.EventQueueSize,
	}
	if c.Reconnect.Enabled {
		opts.Reconnect = subscription.ReconnectPolicy{
			MaxAttempts:         c.Reconnect.MaxAttempts,
			InitialInterval:     c.GetReconnectInitialDuration(),
			MaxInterval:         c.GetReconnectMaxDuration(),
			Multiplier:          c.Reconnect.Multiplier,
			RandomizationFactor: c.Reconnect.Jitter,
		}
	}
	return opts
}

// JSONRPCOptions builds the JSON-RPC client options
func (c *Config) JSONRPCOptions() jsonrpc.Options {
	return jsonrpc.Options{
		Path:              c.JSONRPC.Path,
		AuthToken:         c.AuthToken,
		Timeout:           c.GetRPCTimeoutDuration(),
		ExecTimeout:       c.JSONRPC.ExecTimeout,
		ContextID:         c.JSONRPC.ContextID,
		ExecutorPublicKey: c.JSONRPC.ExecutorPublicKey,
	}
}

// AdminOptions builds the admin client options. The response cache is off
// unless admin.cache_enabled is set.
func (c *Config) AdminOptions() admin.Options {
	opts := admin.Options{
		AuthToken:    c.AuthToken,
		Timeout:      c.GetAdminTimeoutDuration(),
		NoCachePaths: c.Admin.NoCachePaths,
	}
	if c.Admin.CacheEnabled {
		opts.CacheSize = c.Admin.CacheSize
		opts.CacheTTL = c.GetCacheTTLDuration()
	}
	return opts
}
