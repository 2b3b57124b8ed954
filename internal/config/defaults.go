package config

import "time"

const (
	defaultPort             = 3000
	defaultShutdownTimeout  = 30 * time.Second
	defaultWorkdir          = "./forge-data"
	defaultConcurrentBuilds = 2
	defaultEventsPath       = "./forge-data/events.db"
	defaultNATSSubject      = "osforge.builds"
	defaultRetentionMaxAge  = 7 * 24 * time.Hour
	defaultSweepInterval    = time.Hour
)

// applyDefaults fills unset fields with daemon defaults.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Build.Workdir == "" {
		c.Build.Workdir = defaultWorkdir
	}
	if c.Build.ConcurrentBuilds == 0 {
		c.Build.ConcurrentBuilds = defaultConcurrentBuilds
	}
	if c.Events.Path == "" {
		c.Events.Path = defaultEventsPath
	}
	if c.Messaging.Subject == "" {
		c.Messaging.Subject = defaultNATSSubject
	}
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = defaultRetentionMaxAge
	}
	if c.Retention.SweepInterval == 0 {
		c.Retention.SweepInterval = defaultSweepInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = string(LogLevelInfo)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = string(LogFormatText)
	}
}
