package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	GitHub      GitHubConfig    `toml:"github"`
	Analyzer    AnalyzerConfig  `toml:"analyzer"`
	Templates   TemplatesConfig `toml:"templates"`
	Secrets     SecretsConfig   `toml:"secrets"`
	Cache       CacheConfig     `toml:"cache"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// GitHubConfig contains GitHub API configuration
type GitHubConfig struct {
	Token          string        `toml:"token"`            // Personal access token; prefer MUNIO_GITHUB_TOKEN
	BaseURL        string        `toml:"base_url"`         // Override for GitHub Enterprise, empty for github.com
	RequestTimeout time.Duration `toml:"request_timeout"`  // HTTP request timeout
	RateLimit      string        `toml:"rate_limit"`       // Minimum interval between API requests, e.g. "100ms"
	CommitterName  string        `toml:"committer_name"`   // Author on generated commits
	CommitterEmail string        `toml:"committer_email"`  // Author email on generated commits
	DefaultBranch  string        `toml:"default_branch"`   // Fallback when repository metadata omits one
	BranchPrefix   string        `toml:"branch_prefix"`    // Prefix for enhancement branches
}

// AnalyzerConfig contains configuration for repository analysis runs
type AnalyzerConfig struct {
	Concurrency  int    `toml:"concurrency"`    // Repositories analyzed in parallel per batch
	FetchTimeout string `toml:"fetch_timeout"`  // Per-repository fetch timeout as duration string
	MaxTreeSize  int    `toml:"max_tree_size"`  // Max files listed per repository tree
}

// TemplatesConfig contains configuration for template catalog loading
type TemplatesConfig struct {
	SeedDir string `toml:"seed_dir"` // Directory containing template seed files (TOML)
}

// SecretsConfig contains configuration for secret encryption at rest
type SecretsConfig struct {
	KeyFile string `toml:"key_file"` // Path to the encryption key file; generated on first start when absent
}

// CacheConfig contains configuration for the analysis result cache
type CacheConfig struct {
	TTL           string `toml:"ttl"`            // Entry lifetime as duration string
	SweepSchedule string `toml:"sweep_schedule"` // Cron schedule for expired-entry sweeps
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// WebSocketConfig contains configuration for analysis progress streaming
type WebSocketConfig struct {
	MinLevel      string   `toml:"min_level"`      // Minimum log level to broadcast ("debug", "info", "warn", "error")
	AllowedEvents []string `toml:"allowed_events"` // Whitelist of event types to broadcast; empty allows all
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in munio.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		GitHub: GitHubConfig{
			RequestTimeout: 30 * time.Second,
			RateLimit:      "100ms", // ~10 requests/second, well under the authenticated API quota
			CommitterName:  "munio",
			CommitterEmail: "munio@localhost",
			DefaultBranch:  "main",
			BranchPrefix:   "munio/security-scan",
		},
		Analyzer: AnalyzerConfig{
			Concurrency:  10,
			FetchTimeout: "60s",
			MaxTreeSize:  10000,
		},
		Templates: TemplatesConfig{
			SeedDir: "./templates",
		},
		Secrets: SecretsConfig{
			KeyFile: "./data/secrets.key",
		},
		Cache: CacheConfig{
			TTL:           "15m",
			SweepSchedule: "0 */5 * * * *", // Every 5 minutes (cron format with seconds)
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			MinLevel:      "info",
			AllowedEvents: []string{},
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

// LoadFromFiles loads configuration from multiple files; later files override
// earlier files. Priority system: CLI flags > Environment variables > Last
// config file > ... > First config file > Defaults
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

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: MUNIO_ENV, fallback: GO_ENV)
	if env := os.Getenv("MUNIO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("MUNIO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("MUNIO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("MUNIO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// GitHub configuration
	if token := os.Getenv("MUNIO_GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	} else if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}
	if baseURL := os.Getenv("MUNIO_GITHUB_BASE_URL"); baseURL != "" {
		config.GitHub.BaseURL = baseURL
	}
	if timeout := os.Getenv("MUNIO_GITHUB_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			config.GitHub.RequestTimeout = t
		}
	}
	if rateLimit := os.Getenv("MUNIO_GITHUB_RATE_LIMIT"); rateLimit != "" {
		if _, err := time.ParseDuration(rateLimit); err == nil {
			config.GitHub.RateLimit = rateLimit
		}
	}
	if branch := os.Getenv("MUNIO_GITHUB_DEFAULT_BRANCH"); branch != "" {
		config.GitHub.DefaultBranch = branch
	}

	// Analyzer configuration
	if concurrency := os.Getenv("MUNIO_ANALYZER_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil && c > 0 {
			config.Analyzer.Concurrency = c
		}
	}
	if fetchTimeout := os.Getenv("MUNIO_ANALYZER_FETCH_TIMEOUT"); fetchTimeout != "" {
		if _, err := time.ParseDuration(fetchTimeout); err == nil {
			config.Analyzer.FetchTimeout = fetchTimeout
		}
	}
	if maxTreeSize := os.Getenv("MUNIO_ANALYZER_MAX_TREE_SIZE"); maxTreeSize != "" {
		if m, err := strconv.Atoi(maxTreeSize); err == nil && m > 0 {
			config.Analyzer.MaxTreeSize = m
		}
	}

	// Templates configuration
	if seedDir := os.Getenv("MUNIO_TEMPLATES_SEED_DIR"); seedDir != "" {
		config.Templates.SeedDir = seedDir
	}

	// Secrets configuration
	if keyFile := os.Getenv("MUNIO_SECRETS_KEY_FILE"); keyFile != "" {
		config.Secrets.KeyFile = keyFile
	}

	// Cache configuration
	if ttl := os.Getenv("MUNIO_CACHE_TTL"); ttl != "" {
		if _, err := time.ParseDuration(ttl); err == nil {
			config.Cache.TTL = ttl
		}
	}
	if schedule := os.Getenv("MUNIO_CACHE_SWEEP_SCHEDULE"); schedule != "" {
		config.Cache.SweepSchedule = schedule
	}

	// Logging configuration
	if level := os.Getenv("MUNIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("MUNIO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("MUNIO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// WebSocket configuration
	if minLevel := os.Getenv("MUNIO_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}
	if allowedEvents := os.Getenv("MUNIO_WEBSOCKET_ALLOWED_EVENTS"); allowedEvents != "" {
		events := []string{}
		for _, e := range strings.Split(allowedEvents, ",") {
			trimmed := strings.TrimSpace(e)
			if trimmed != "" {
				events = append(events, trimmed)
			}
		}
		if len(events) > 0 {
			config.WebSocket.AllowedEvents = events
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// FetchTimeout returns the analyzer's per-repository fetch timeout, falling
// back to a minute when the configured value does not parse.
func (c *Config) FetchTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Analyzer.FetchTimeout); err == nil && d > 0 {
		return d
	}
	return time.Minute
}

// CacheTTL returns the analysis cache entry lifetime, falling back to fifteen
// minutes when the configured value does not parse.
func (c *Config) CacheTTL() time.Duration {
	if d, err := time.ParseDuration(c.Cache.TTL); err == nil && d > 0 {
		return d
	}
	return 15 * time.Minute
}

// GitHubRateInterval returns the minimum interval between GitHub API calls.
func (c *Config) GitHubRateInterval() time.Duration {
	if d, err := time.ParseDuration(c.GitHub.RateLimit); err == nil && d > 0 {
		return d
	}
	return 100 * time.Millisecond
}

// DeepCloneConfig creates a deep copy of the Config struct so callers can
// mutate their view without affecting the loaded configuration.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.WebSocket.AllowedEvents) > 0 {
		clone.WebSocket.AllowedEvents = make([]string, len(c.WebSocket.AllowedEvents))
		copy(clone.WebSocket.AllowedEvents, c.WebSocket.AllowedEvents)
	}

	return &clone
}
