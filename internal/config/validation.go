package config

import "fmt"

// Validate checks configuration consistency after defaults are applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Build.ConcurrentBuilds < 0 {
		return fmt.Errorf("build.concurrent_builds must not be negative, got %d", c.Build.ConcurrentBuilds)
	}
	if c.Build.Workdir == "" {
		return fmt.Errorf("build.workdir must not be empty")
	}
	if c.Messaging.Enabled && c.Messaging.URL == "" {
		return fmt.Errorf("messaging.url is required when messaging is enabled")
	}
	if c.Retention.Enabled {
		if c.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention.max_age must be positive when retention is enabled")
		}
		if c.Retention.SweepInterval <= 0 {
			return fmt.Errorf("retention.sweep_interval must be positive when retention is enabled")
		}
	}
	return nil
}
