package config

import "time"

// Config represents the client configuration
type Config struct {
	NodeURL       string `mapstructure:"node_url"`
	AuthToken     string `mapstructure:"auth_token"`
	LogLevel      string `mapstructure:"log_level"`
	ApplicationID string `mapstructure:"application_id"`
	// Keypair is a base58 Ed25519 private key. When set it supplies
	// jsonrpc.executor_public_key if that is empty.
	Keypair string `mapstructure:"keypair"`

	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Reconnect    ReconnectConfig    `mapstructure:"reconnect"`
	JSONRPC      JSONRPCConfig      `mapstructure:"jsonrpc"`
	Admin        AdminConfig        `mapstructure:"admin"`
}

// SubscriptionConfig configures the websocket subscription client
type SubscriptionConfig struct {
	Path           string `mapstructure:"path"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // ms
	WriteTimeout   int    `mapstructure:"write_timeout"`   // ms
	ReadTimeout    int    `mapstructure:"read_timeout"`    // ms - 0 disables the read deadline
	PingInterval   int    `mapstructure:"ping_interval"`   // ms - 0 disables keepalive pings
	EventQueueSize int    `mapstructure:"event_queue_size"`
}

// ReconnectConfig configures automatic redial after a dropped connection
type ReconnectConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	MaxAttempts     int     `mapstructure:"max_attempts"`
	InitialInterval int     `mapstructure:"initial_interval"` // ms
	MaxInterval     int     `mapstructure:"max_interval"`     // ms
	Multiplier      float64 `mapstructure:"multiplier"`
	Jitter          float64 `mapstructure:"jitter"`
}

// JSONRPCConfig configures the JSON-RPC client
type JSONRPCConfig struct {
	Path              string `mapstructure:"path"`
	Timeout           int    `mapstructure:"timeout"`      // ms
	ExecTimeout       int    `mapstructure:"exec_timeout"` // ms - sent to the node with execute calls
	ContextID         string `mapstructure:"context_id"`
	ExecutorPublicKey string `mapstructure:"executor_public_key"`
}

// AdminConfig configures the admin API client
type AdminConfig struct {
	Timeout      int      `mapstructure:"timeout"` // ms
	CacheEnabled bool     `mapstructure:"cache_enabled"`
	CacheSize    int      `mapstructure:"cache_size"` // number of entries
	CacheTTL     int      `mapstructure:"cache_ttl"`  // ms
	NoCachePaths []string `mapstructure:"no_cache_paths"`
}

// Default values
const (
	DefaultNodeURL  = "http://localhost:2428"
	DefaultLogLevel = "info"

	DefaultSubscriptionPath = "/ws"
	DefaultConnectTimeout   = 10000 // ms
	DefaultWriteTimeout     = 10000 // ms
	DefaultReadTimeout      = 60000 // ms
	DefaultPingInterval     = 30000 // ms
	DefaultEventQueueSize   = 1024

	DefaultReconnectEnabled    = true
	DefaultReconnectAttempts   = 5
	DefaultReconnectInitial    = 500   // ms
	DefaultReconnectMax        = 30000 // ms
	DefaultReconnectMultiplier = 2.0
	DefaultReconnectJitter     = 0.2

	DefaultJSONRPCPath   = "/jsonrpc"
	DefaultRPCTimeout    = 30000 // ms
	DefaultExecTimeout   = 1000  // ms
	DefaultAdminTimeout  = 30000 // ms
	DefaultCacheSize     = 256
	DefaultCacheTTL      = 5000 // ms
	DefaultConfigDirName = ".calimero"
	DefaultConfigFile    = "config.toml"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// GetConnectTimeoutDuration returns the websocket connect timeout as time.Duration
func (c *Config) GetConnectTimeoutDuration() time.Duration {
	return ms(c.Subscription.ConnectTimeout)
}

// GetWriteTimeoutDuration returns the websocket write timeout as time.Duration
func (c *Config) GetWriteTimeoutDuration() time.Duration {
	return ms(c.Subscription.WriteTimeout)
}

// GetReadTimeoutDuration returns the websocket read timeout as time.Duration
func (c *Config) GetReadTimeoutDuration() time.Duration {
	return ms(c.Subscription.ReadTimeout)
}

// GetPingIntervalDuration returns the keepalive ping interval as time.Duration
func (c *Config) GetPingIntervalDuration() time.Duration {
	return ms(c.Subscription.PingInterval)
}

// GetReconnectInitialDuration returns the first reconnect delay as time.Duration
func (c *Config) GetReconnectInitialDuration() time.Duration {
	return ms(c.Reconnect.InitialInterval)
}

// GetReconnectMaxDuration returns the reconnect delay cap as time.Duration
func (c *Config) GetReconnectMaxDuration() time.Duration {
	return ms(c.Reconnect.MaxInterval)
}

// GetRPCTimeoutDuration returns the JSON-RPC request timeout as time.Duration
func (c *Config) GetRPCTimeoutDuration() time.Duration {
	return ms(c.JSONRPC.Timeout)
}

// GetAdminTimeoutDuration returns the admin request timeout as time.Duration
func (c *Config) GetAdminTimeoutDuration() time.Duration {
	return ms(c.Admin.Timeout)
}

// GetCacheTTLDuration returns the admin cache TTL as time.Duration
func (c *Config) GetCacheTTLDuration() time.Duration {
	return ms(c.Admin.CacheTTL)
}
