package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations searched in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/opsdec/config.yaml",
}

// ConfigPathEnvVar overrides the search paths with an explicit file.
const ConfigPathEnvVar = "OPSDEC_CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Environment:     "development",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/opsdec.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			AccessTokenTTL:         15 * time.Minute,
			RefreshTokenTTL:        30 * 24 * time.Hour,
			RateLimitRequests:      300,
			RateLimitWindow:        time.Minute,
			LoginRateLimitRequests: 5,
			LoginRateLimitWindow:   time.Minute,
			CORSOrigins:            []string{"*"},
		},
		SessionEngine: SessionEngineConfig{
			PollInterval:       5 * time.Second,
			FetchTimeout:       8 * time.Second,
			MaxConcurrentPolls: 8,
			BreakerMaxRequests: 1,
			BreakerInterval:    time.Minute,
			BreakerTimeout:     30 * time.Second,
		},
		History: HistoryConfig{
			MinDurationSeconds: 120,
			MinPercent:         50,
			ExclusionPatterns:  []string{},
		},
		ImageCache: ImageCacheConfig{
			Directory:         "/data/imagecache",
			TTL:               30 * 24 * time.Hour,
			MaxSizeBytes:      1 << 30,
			AllowedSchemes:    []string{"http", "https"},
			AllowedProxyHosts: []string{},
		},
		JobRunner: JobRunnerConfig{
			SweepInterval: time.Hour,
		},
		Bootstrap: BootstrapConfig{
			ServersJSON: "",
		},
	}
}

// sliceConfigPaths lists koanf paths that accept comma-separated env strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"history.exclusion_patterns",
	"image_cache.allowed_schemes",
	"image_cache.allowed_proxy_hosts",
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment, in that order of increasing precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("OPSDEC_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps OPSDEC_-prefixed environment variable names to koanf
// paths, e.g. OPSDEC_JWT_SECRET -> security.jwt_secret.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "OPSDEC_"))

	mappings := map[string]string{
		"host":                  "server.host",
		"port":                  "server.port",
		"environment":           "server.environment",
		"shutdown_timeout":      "server.shutdown_timeout",

		"database_path":       "database.path",
		"database_max_memory": "database.max_memory",
		"database_threads":    "database.threads",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"jwt_secret":                 "security.jwt_secret",
		"encryption_key":             "security.encryption_key",
		"access_token_ttl":           "security.access_token_ttl",
		"refresh_token_ttl":          "security.refresh_token_ttl",
		"rate_limit_requests":        "security.rate_limit_requests",
		"rate_limit_window":          "security.rate_limit_window",
		"login_rate_limit_requests":  "security.login_rate_limit_requests",
		"login_rate_limit_window":    "security.login_rate_limit_window",
		"cors_origins":               "security.cors_origins",

		"poll_interval":         "session_engine.poll_interval",
		"fetch_timeout":         "session_engine.fetch_timeout",
		"max_concurrent_polls":  "session_engine.max_concurrent_polls",
		"breaker_max_requests":  "session_engine.breaker_max_requests",
		"breaker_interval":      "session_engine.breaker_interval",
		"breaker_timeout":       "session_engine.breaker_timeout",

		"history_min_duration_seconds": "history.min_duration_seconds",
		"history_min_percent":           "history.min_percent",
		"history_exclusion_patterns":    "history.exclusion_patterns",

		"image_cache_directory":            "image_cache.directory",
		"image_cache_ttl":                  "image_cache.ttl",
		"image_cache_max_size_bytes":       "image_cache.max_size_bytes",
		"image_cache_allowed_schemes":      "image_cache.allowed_schemes",
		"image_cache_allowed_proxy_hosts":  "image_cache.allowed_proxy_hosts",

		"job_runner_sweep_interval": "job_runner.sweep_interval",

		"bootstrap_servers": "bootstrap.servers_json",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}
