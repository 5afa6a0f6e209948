package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/tokenscope/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Browser     BrowserConfig     `toml:"browser"`
	Capture     CaptureSeed       `toml:"capture"` // Seeds the persisted capture config on first run
	Rules       RulesConfig       `toml:"rules"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Type   string       `toml:"type"` // only "badger" is supported
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
	InMemory       bool   `toml:"in_memory"`        // Keep everything in memory (tests, throwaway sessions)
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
}

// BrowserConfig controls the Chrome instance that feeds intercepted requests
type BrowserConfig struct {
	Enabled   bool     `toml:"enabled"`
	Headless  bool     `toml:"headless"`
	ExecPath  string   `toml:"exec_path"`  // Chrome binary, empty = chromedp lookup
	UserAgent string   `toml:"user_agent"` // empty = browser default
	NoSandbox bool     `toml:"no_sandbox"`
	StartURLs []string `toml:"start_urls"` // Pages opened on startup
	// PendingRequests bounds the request ids kept while waiting for extra-info headers
	PendingRequests int `toml:"pending_requests"`
}

// CaptureSeed mirrors models.CaptureConfig for the TOML file
type CaptureSeed struct {
	Enabled         bool     `toml:"enabled"`
	AllowedDomains  []string `toml:"allowed_domains"`
	BlockedDomains  []string `toml:"blocked_domains"`
	AuthHeaders     []string `toml:"auth_headers"`
	AuthURLPatterns []string `toml:"auth_url_patterns"`
	CookiePatterns  []string `toml:"cookie_patterns"`
	QueryParams     []string `toml:"query_params"`
}

// RulesConfig contains configuration for custom rule file loading
type RulesConfig struct {
	Dir string `toml:"dir"` // Directory containing rule files (.toml, .yaml, .yml)
}

// MaintenanceConfig schedules storage housekeeping
type MaintenanceConfig struct {
	GCSchedule     string  `toml:"gc_schedule"`      // 5-field cron expression, empty disables
	GCDiscardRatio float64 `toml:"gc_discard_ratio"` // Badger value log discard ratio
}

// WebSocketConfig contains configuration for live event streaming
type WebSocketConfig struct {
	// EndpointThrottle limits endpoint_tracked broadcasts, e.g. "250ms". Empty disables throttling.
	EndpointThrottle string `toml:"endpoint_throttle"`
	// RevealValues sends unmasked credential values over the socket
	RevealValues bool `toml:"reveal_values"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8787,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Browser: BrowserConfig{
			Enabled:         true,
			Headless:        false, // Developer browses in the launched window
			StartURLs:       []string{},
			PendingRequests: 1000,
		},
		Capture: CaptureSeed{
			Enabled:         true,
			AllowedDomains:  []string{},
			BlockedDomains:  []string{},
			AuthHeaders:     append([]string(nil), models.DefaultAuthHeaders...),
			AuthURLPatterns: []string{},
			CookiePatterns:  append([]string(nil), models.DefaultCookiePatterns...),
			QueryParams:     append([]string(nil), models.DefaultQueryParams...),
		},
		Rules: RulesConfig{
			Dir: "./rules",
		},
		Maintenance: MaintenanceConfig{
			GCSchedule:     "*/30 * * * *",
			GCDiscardRatio: 0.5,
		},
		WebSocket: WebSocketConfig{
			EndpointThrottle: "250ms",
		},
	}
}

// CaptureConfig converts the TOML seed to the persisted model
func (s CaptureSeed) CaptureConfig() *models.CaptureConfig {
	config := models.NewDefaultCaptureConfig()
	config.Enabled = s.Enabled
	config.AllowedDomains = append([]string{}, s.AllowedDomains...)
	config.BlockedDomains = append([]string{}, s.BlockedDomains...)
	if len(s.AuthHeaders) > 0 {
		config.AuthHeaders = append([]string{}, s.AuthHeaders...)
	}
	config.AuthURLPatterns = append([]string{}, s.AuthURLPatterns...)
	if len(s.CookiePatterns) > 0 {
		config.CookiePatterns = append([]string{}, s.CookiePatterns...)
	}
	if len(s.QueryParams) > 0 {
		config.QueryParams = append([]string{}, s.QueryParams...)
	}
	return config
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied separately by ApplyFlagOverrides.
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

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TOKENSCOPE_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("TOKENSCOPE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TOKENSCOPE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("TOKENSCOPE_STORAGE_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("TOKENSCOPE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if headless := os.Getenv("TOKENSCOPE_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if execPath := os.Getenv("TOKENSCOPE_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	if rulesDir := os.Getenv("TOKENSCOPE_RULES_DIR"); rulesDir != "" {
		config.Rules.Dir = rulesDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, headless bool) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if headless {
		config.Browser.Headless = true
	}
}

// Validate checks values that would otherwise fail late at startup
func (c *Config) Validate() error {
	if c.Storage.Type != "" && c.Storage.Type != "badger" {
		return fmt.Errorf("unsupported storage type: %s (only 'badger' is supported)", c.Storage.Type)
	}
	if c.Maintenance.GCSchedule != "" {
		if err := ValidateSchedule(c.Maintenance.GCSchedule); err != nil {
			return fmt.Errorf("invalid maintenance.gc_schedule: %w", err)
		}
	}
	return nil
}

// ValidateSchedule validates a standard 5-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if len(strings.Fields(schedule)) != 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// DeepCloneConfig creates a deep copy of the Config struct
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c
	clone.Logging.Output = append([]string(nil), c.Logging.Output...)
	clone.Browser.StartURLs = append([]string(nil), c.Browser.StartURLs...)
	clone.Capture.AllowedDomains = append([]string(nil), c.Capture.AllowedDomains...)
	clone.Capture.BlockedDomains = append([]string(nil), c.Capture.BlockedDomains...)
	clone.Capture.AuthHeaders = append([]string(nil), c.Capture.AuthHeaders...)
	clone.Capture.AuthURLPatterns = append([]string(nil), c.Capture.AuthURLPatterns...)
	clone.Capture.CookiePatterns = append([]string(nil), c.Capture.CookiePatterns...)
	clone.Capture.QueryParams = append([]string(nil), c.Capture.QueryParams...)

	return &clone
}
