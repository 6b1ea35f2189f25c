// Package config loads opsdec's configuration from layered sources: built-in
// defaults, an optional YAML file, and environment variables, in that order
// of increasing precedence.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Logging      LoggingConfig      `koanf:"logging"`
	Security     SecurityConfig     `koanf:"security"`
	SessionEngine SessionEngineConfig `koanf:"session_engine"`
	History      HistoryConfig      `koanf:"history"`
	ImageCache   ImageCacheConfig   `koanf:"image_cache"`
	JobRunner    JobRunnerConfig    `koanf:"job_runner"`
	Bootstrap    BootstrapConfig    `koanf:"bootstrap"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Environment     string        `koanf:"environment"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig configures CryptoKit and the HTTP auth surface.
type SecurityConfig struct {
	JWTSecret             string        `koanf:"jwt_secret"`
	EncryptionKey          string        `koanf:"encryption_key"`
	AccessTokenTTL        time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `koanf:"refresh_token_ttl"`
	RateLimitRequests     int           `koanf:"rate_limit_requests"`
	RateLimitWindow       time.Duration `koanf:"rate_limit_window"`
	LoginRateLimitRequests int          `koanf:"login_rate_limit_requests"`
	LoginRateLimitWindow  time.Duration `koanf:"login_rate_limit_window"`
	CORSOrigins           []string      `koanf:"cors_origins"`
}

// SessionEngineConfig configures the upstream polling loop.
type SessionEngineConfig struct {
	PollInterval       time.Duration `koanf:"poll_interval"`
	FetchTimeout       time.Duration `koanf:"fetch_timeout"`
	MaxConcurrentPolls int           `koanf:"max_concurrent_polls"`
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// HistoryConfig configures the history-recording policy applied at session
// termination.
type HistoryConfig struct {
	MinDurationSeconds  float64  `koanf:"min_duration_seconds"`
	MinPercent          float64  `koanf:"min_percent"`
	ExclusionPatterns   []string `koanf:"exclusion_patterns"`
}

// ImageCacheConfig configures the on-disk proxied-thumbnail cache.
type ImageCacheConfig struct {
	Directory      string        `koanf:"directory"`
	TTL            time.Duration `koanf:"ttl"`
	MaxSizeBytes   int64         `koanf:"max_size_bytes"`
	AllowedSchemes []string      `koanf:"allowed_schemes"`

	// AllowedProxyHosts is the SSRF allow-list for the image proxy endpoint:
	// a request is only forwarded upstream if its host matches one of these
	// entries or is the base host of an enabled Server.
	AllowedProxyHosts []string `koanf:"allowed_proxy_hosts"`
}

// JobRunnerConfig configures the periodic maintenance sweep.
type JobRunnerConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// BootstrapConfig configures Servers injected from the environment at
// startup rather than through the admin API.
type BootstrapConfig struct {
	ServersJSON string `koanf:"servers_json"`
}
