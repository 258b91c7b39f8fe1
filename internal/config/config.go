// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Store drivers understood by the store factory.
const (
	StoreDriverMemory = "memory"
	StoreDriverRedis  = "redis"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Backend  BackendConfig  `mapstructure:"backend" yaml:"backend"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Bus      BusConfig      `mapstructure:"bus" yaml:"bus"`
	Observer ObserverConfig `mapstructure:"observer" yaml:"observer"`
	Overlay  OverlayConfig  `mapstructure:"overlay" yaml:"overlay"`
	Popup    PopupConfig    `mapstructure:"popup" yaml:"popup"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
	// Quiet drops the console core. The TUI sets this so log lines do not
	// tear the terminal; the file core is unaffected.
	Quiet bool `mapstructure:"quiet" yaml:"quiet"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig describes how the companion reaches the user's browser tab.
type BrowserConfig struct {
	// RemoteURL is the DevTools websocket (or http://host:port) of an already
	// running Chrome. When empty a browser is launched.
	RemoteURL string        `mapstructure:"remote_url" yaml:"remote_url"`
	StartURL  string        `mapstructure:"start_url" yaml:"start_url"`
	Headless  bool          `mapstructure:"headless" yaml:"headless"`
	Args      []string      `mapstructure:"args" yaml:"args"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// SignalBuffer sizes the channel that carries page signals to the content script.
	SignalBuffer int `mapstructure:"signal_buffer" yaml:"signal_buffer"`
}

// BackendConfig points at the hint/solution service.
type BackendConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int           `mapstructure:"burst" yaml:"burst"`
}

// StoreConfig selects and configures the shared key-value store.
type StoreConfig struct {
	Driver string      `mapstructure:"driver" yaml:"driver"`
	Origin string      `mapstructure:"origin" yaml:"origin"`
	Redis  RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig holds connection details for the Redis store and bus bridge.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"-"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// BusConfig tunes the in-process message bus.
type BusConfig struct {
	BufferSize int          `mapstructure:"buffer_size" yaml:"buffer_size"`
	Bridge     BridgeConfig `mapstructure:"bridge" yaml:"bridge"`
}

// BridgeConfig controls relaying bus messages over Redis pub/sub.
type BridgeConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// ObserverConfig captures the host site's markup. The site is an external,
// versioned schema; everything here is expected to drift.
type ObserverConfig struct {
	SiteName              string        `mapstructure:"site_name" yaml:"site_name"`
	ProblemPathMarker     string        `mapstructure:"problem_path_marker" yaml:"problem_path_marker"`
	SubmissionsPathMarker string        `mapstructure:"submissions_path_marker" yaml:"submissions_path_marker"`
	TitleSelector         string        `mapstructure:"title_selector" yaml:"title_selector"`
	ResultSelector        string        `mapstructure:"result_selector" yaml:"result_selector"`
	SuccessMarker         string        `mapstructure:"success_marker" yaml:"success_marker"`
	CodeSelectors         []string      `mapstructure:"code_selectors" yaml:"code_selectors"`
	// CodeContainerSelector picks the editor; only the first match is read.
	CodeContainerSelector string        `mapstructure:"code_container_selector" yaml:"code_container_selector"`
	CodeLineSelector      string        `mapstructure:"code_line_selector" yaml:"code_line_selector"`
	SettleDelay           time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// OverlayConfig holds the reserved overlay identities and embed settings.
type OverlayConfig struct {
	LearnID      string `mapstructure:"learn_id" yaml:"learn_id"`
	OptimalID    string `mapstructure:"optimal_id" yaml:"optimal_id"`
	EmbedBaseURL string `mapstructure:"embed_base_url" yaml:"embed_base_url"`
}

// PopupConfig tunes the popup controller.
type PopupConfig struct {
	SimilarLimit int `mapstructure:"similar_limit" yaml:"similar_limit"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "codebuddy")
	v.SetDefault("logger.log_file", "~/.codebuddy/codebuddy.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.start_url", "https://leetcode.com/problemset/")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.timeout", "30s")
	v.SetDefault("browser.signal_buffer", 64)

	// -- Backend --
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", "60s")
	v.SetDefault("backend.rate_limit", 2.0)
	v.SetDefault("backend.burst", 4)

	// -- Store --
	v.SetDefault("store.driver", StoreDriverMemory)
	v.SetDefault("store.origin", "https://leetcode.com")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.ttl", "0s")

	// -- Bus --
	v.SetDefault("bus.buffer_size", 16)
	v.SetDefault("bus.bridge.enabled", false)
	v.SetDefault("bus.bridge.channel", "codebuddy:bus")

	// -- Observer --
	v.SetDefault("observer.site_name", "LeetCode")
	v.SetDefault("observer.problem_path_marker", "/problems/")
	v.SetDefault("observer.submissions_path_marker", "/submissions/")
	v.SetDefault("observer.title_selector", ".text-title-large a")
	v.SetDefault("observer.result_selector", `[data-e2e-locator="submission-result"]`)
	v.SetDefault("observer.success_marker", "Success")
	v.SetDefault("observer.code_selectors", []string{
		`[data-mode-id="text/x-python"]`,
		`[data-mode-id="text/javascript"]`,
	})
	v.SetDefault("observer.code_container_selector", ".flexlayout__tabset_content .view-lines")
	v.SetDefault("observer.code_line_selector", ".view-line")
	v.SetDefault("observer.settle_delay", "1s")

	// -- Overlay --
	v.SetDefault("overlay.learn_id", "code-buddy-learn-overlay")
	v.SetDefault("overlay.optimal_id", "code-buddy-optimal-overlay")
	v.SetDefault("overlay.embed_base_url", "https://www.youtube.com/embed/")

	// -- Popup --
	v.SetDefault("popup.similar_limit", 5)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.redis.password", "CODEBUDDY_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Logger.LogFile != "" {
		expanded, err := homedir.Expand(cfg.Logger.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand log file path: %w", err)
		}
		cfg.Logger.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is a required configuration field")
	}
	if c.Backend.RateLimit <= 0 {
		return fmt.Errorf("backend.rate_limit must be positive")
	}
	if c.Backend.Burst <= 0 {
		return fmt.Errorf("backend.burst must be a positive integer")
	}
	if c.Bus.BufferSize < 0 {
		return fmt.Errorf("bus.buffer_size cannot be negative")
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if err := c.Observer.Validate(); err != nil {
		return fmt.Errorf("observer configuration invalid: %w", err)
	}
	if c.Overlay.LearnID == "" || c.Overlay.OptimalID == "" {
		return fmt.Errorf("overlay.learn_id and overlay.optimal_id are required")
	}
	if c.Overlay.LearnID == c.Overlay.OptimalID {
		return fmt.Errorf("overlay identities must be distinct")
	}
	if c.Popup.SimilarLimit <= 0 {
		return fmt.Errorf("popup.similar_limit must be a positive integer")
	}
	return nil
}

// Validate checks the store settings.
func (s *StoreConfig) Validate() error {
	switch s.Driver {
	case StoreDriverMemory:
	case StoreDriverRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	if s.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	return nil
}

// Validate checks the observer settings.
func (o *ObserverConfig) Validate() error {
	if o.TitleSelector == "" || o.ResultSelector == "" {
		return fmt.Errorf("title_selector and result_selector are required")
	}
	if len(o.CodeSelectors) == 0 {
		return fmt.Errorf("at least one code selector is required")
	}
	if o.CodeContainerSelector == "" || o.CodeLineSelector == "" {
		return fmt.Errorf("code_container_selector and code_line_selector are required")
	}
	if o.SettleDelay <= 0 {
		return fmt.Errorf("settle_delay must be a positive duration")
	}
	return nil
}
