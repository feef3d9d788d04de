package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Upstream    UpstreamConfig   `toml:"upstream"`
	Reconciler  ReconcilerConfig `toml:"reconciler"`
	Sweeper     SweeperConfig    `toml:"sweeper"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig      `toml:"badger"`
	Object ObjectStoreConfig `toml:"object"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// ObjectStoreConfig selects and configures the durable asset store.
// Type "s3" targets any S3-compatible endpoint; "filesystem" keeps assets
// on local disk for development.
type ObjectStoreConfig struct {
	Type          string `toml:"type"`            // "s3" or "filesystem"
	Bucket        string `toml:"bucket"`          // S3 bucket name
	Region        string `toml:"region"`          // S3 region
	Endpoint      string `toml:"endpoint"`        // Custom endpoint for S3-compatible stores (empty = AWS)
	AccessKey     string `toml:"access_key"`      // Static credentials (empty = default chain)
	SecretKey     string `toml:"secret_key"`
	PublicBaseURL string `toml:"public_base_url"` // Base URL that serves uploaded objects
	Directory     string `toml:"directory"`       // Filesystem store root
}

// UpstreamConfig configures the external render-status API client.
type UpstreamConfig struct {
	BaseURL        string        `toml:"base_url"`        // Render provider API base URL
	APIKey         string        `toml:"api_key"`         // API key sent on every status request
	RequestTimeout time.Duration `toml:"request_timeout"` // Per-request timeout
	RateLimit      time.Duration `toml:"rate_limit"`      // Minimum spacing between status calls, all jobs combined
	FetchTimeout   time.Duration `toml:"fetch_timeout"`   // Timeout for downloading finished assets
	MaxAssetSize   int64         `toml:"max_asset_size"`  // Maximum asset download size in bytes
}

// ReconcilerConfig configures the per-job monitoring loops.
type ReconcilerConfig struct {
	PollInterval         time.Duration `toml:"poll_interval"`          // Delay between reconciliation passes per job
	MaxTransientFailures int           `toml:"max_transient_failures"` // Consecutive upstream failures before giving up
}

// SweeperConfig configures the stale-job sweep.
type SweeperConfig struct {
	Enabled        bool          `toml:"enabled"`
	Schedule       string        `toml:"schedule"`        // Cron schedule for the sweep
	StaleThreshold time.Duration `toml:"stale_threshold"` // In-flight jobs untouched this long get their monitor restarted
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the default configuration
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/renderwatch",
				ResetOnStartup: false,
			},
			Object: ObjectStoreConfig{
				Type:          "filesystem",
				Directory:     "./data/assets",
				PublicBaseURL: "http://localhost:8085/assets",
			},
		},
		Upstream: UpstreamConfig{
			RequestTimeout: 15 * time.Second,
			RateLimit:      200 * time.Millisecond,
			FetchTimeout:   2 * time.Minute,
			MaxAssetSize:   512 * 1024 * 1024, // 512MB
		},
		Reconciler: ReconcilerConfig{
			PollInterval:         10 * time.Second,
			MaxTransientFailures: 5,
		},
		Sweeper: SweeperConfig{
			Enabled:        true,
			Schedule:       "*/5 * * * *", // Every 5 minutes
			StaleThreshold: 3 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files. Later files override
// earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RENDERWATCH_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("RENDERWATCH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RENDERWATCH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if key := os.Getenv("RENDERWATCH_UPSTREAM_API_KEY"); key != "" {
		config.Upstream.APIKey = key
	}
	if url := os.Getenv("RENDERWATCH_UPSTREAM_BASE_URL"); url != "" {
		config.Upstream.BaseURL = url
	}

	if access := os.Getenv("RENDERWATCH_S3_ACCESS_KEY"); access != "" {
		config.Storage.Object.AccessKey = access
	}
	if secret := os.Getenv("RENDERWATCH_S3_SECRET_KEY"); secret != "" {
		config.Storage.Object.SecretKey = secret
	}

	if level := os.Getenv("RENDERWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks that required settings are present for the selected modes.
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	switch c.Storage.Object.Type {
	case "s3":
		if c.Storage.Object.Bucket == "" {
			return fmt.Errorf("storage.object.bucket is required for s3 object store")
		}
	case "filesystem":
		if c.Storage.Object.Directory == "" {
			return fmt.Errorf("storage.object.directory is required for filesystem object store")
		}
	default:
		return fmt.Errorf("unknown object store type: %s", c.Storage.Object.Type)
	}
	return nil
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
