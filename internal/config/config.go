// Package config loads and validates osforge daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Build     BuildConfig     `yaml:"build"`
	Events    EventsConfig    `yaml:"events"`
	Messaging MessagingConfig `yaml:"messaging"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig represents the HTTP API server configuration
type ServerConfig struct {
	Host            string        `yaml:"host,omitempty"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// BuildConfig represents pipeline execution configuration
type BuildConfig struct {
	// Workdir is the root directory for per-build staging and artifacts.
	Workdir string `yaml:"workdir"`
	// ConcurrentBuilds caps how many pipelines run at once; 0 means unlimited.
	ConcurrentBuilds int `yaml:"concurrent_builds,omitempty"`
	// RegistryPrefix, when set, produces an additional docker-image-ref
	// artifact pointing at <prefix>/<name>:<buildId>.
	RegistryPrefix string `yaml:"registry_prefix,omitempty"`
	// KeepStaging retains the staged root filesystem after a build completes.
	KeepStaging bool `yaml:"keep_staging,omitempty"`
}

// EventsConfig represents the build event journal configuration
type EventsConfig struct {
	// Path is the sqlite database path; ":memory:" keeps the journal in-process.
	Path string `yaml:"path"`
}

// MessagingConfig represents optional NATS lifecycle event publishing
type MessagingConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// RetentionConfig represents eviction of old terminal build records
type RetentionConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxAge        time.Duration `yaml:"max_age,omitempty"`
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env/.env.local if present; existing environment wins.
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				fmt.Fprintf(os.Stderr, "Note: %s couldn't be loaded: %v\n", envPath, err)
			}
			break
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := `# osforge daemon configuration
server:
  port: 3000

build:
  workdir: ./forge-data
  concurrent_builds: 2
  # registry_prefix: registry.example.com/osforge

events:
  path: ./forge-data/events.db

messaging:
  enabled: false
  # url: nats://localhost:4222
  # subject: osforge.builds

retention:
  enabled: false
  # max_age: 168h
  # sweep_interval: 1h

logging:
  level: info
  format: text
`
	return os.WriteFile(configPath, []byte(example), 0o644)
}
