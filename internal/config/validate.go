package config

import "fmt"

// Validate checks that required configuration is present and internally
// consistent, returning the first problem found.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	return c.validateSessionEngine()
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Environment {
	case "development", "production", "test":
	default:
		return fmt.Errorf("server.environment must be development, production, or test, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("OPSDEC_JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("OPSDEC_JWT_SECRET must be at least 32 bytes")
	}
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("OPSDEC_ENCRYPTION_KEY is required")
	}
	if len(c.Security.EncryptionKey) < 32 {
		return fmt.Errorf("OPSDEC_ENCRYPTION_KEY must be at least 32 bytes")
	}
	if c.Security.AccessTokenTTL <= 0 {
		return fmt.Errorf("security.access_token_ttl must be positive")
	}
	if c.Security.RefreshTokenTTL <= c.Security.AccessTokenTTL {
		return fmt.Errorf("security.refresh_token_ttl must be longer than access_token_ttl")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func (c *Config) validateSessionEngine() error {
	if c.SessionEngine.PollInterval <= 0 {
		return fmt.Errorf("session_engine.poll_interval must be positive")
	}
	if c.SessionEngine.FetchTimeout <= 0 {
		return fmt.Errorf("session_engine.fetch_timeout must be positive")
	}
	if c.SessionEngine.MaxConcurrentPolls <= 0 {
		return fmt.Errorf("session_engine.max_concurrent_polls must be positive")
	}
	return nil
}
