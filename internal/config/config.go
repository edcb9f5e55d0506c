package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Data      DataConfig      `yaml:"data" envconfig:"DATA"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// StudyTimeout bounds a single study run end to end.
	StudyTimeout time.Duration `yaml:"study_timeout" envconfig:"STUDY_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     *bool           `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled *bool   `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// DataConfig selects the dataset the service researches over
type DataConfig struct {
	// Market is the dataset name, the first path element under the base.
	Market string `yaml:"market" envconfig:"MARKET"`
	// BaseURL is a local directory or an http(s) base hosting the dataset.
	BaseURL   string `yaml:"base_url" envconfig:"BASE_URL"`
	Timeframe string `yaml:"timeframe" envconfig:"TIMEFRAME"`
	// CacheDir holds downloads when BaseURL is remote. Empty means the
	// user cache directory.
	CacheDir       string        `yaml:"cache_dir" envconfig:"CACHE_DIR"`
	CacheTTL       time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	MaxConcurrency int           `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY"`
	// ReportsDir is where study reports (CSV, XLSX, HTML) are written.
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Load builds the configuration from, in order of precedence, environment
// variables (VQUANT_*), an optional YAML file and built-in defaults.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs fills fields the environment left unset from the file config.
func mergeConfigs(fileConfig, envConfig Config) Config {
	out := envConfig

	if out.Server.Port == 0 {
		out.Server.Port = fileConfig.Server.Port
	}
	if out.Server.ReadTimeout == 0 {
		out.Server.ReadTimeout = fileConfig.Server.ReadTimeout
	}
	if out.Server.WriteTimeout == 0 {
		out.Server.WriteTimeout = fileConfig.Server.WriteTimeout
	}
	if out.Server.IdleTimeout == 0 {
		out.Server.IdleTimeout = fileConfig.Server.IdleTimeout
	}
	if out.Server.MaxHeaderBytes == 0 {
		out.Server.MaxHeaderBytes = fileConfig.Server.MaxHeaderBytes
	}
	if out.Server.ShutdownTimeout == 0 {
		out.Server.ShutdownTimeout = fileConfig.Server.ShutdownTimeout
	}
	if out.Server.StudyTimeout == 0 {
		out.Server.StudyTimeout = fileConfig.Server.StudyTimeout
	}

	if len(out.Security.AllowedOrigins) == 0 {
		out.Security.AllowedOrigins = fileConfig.Security.AllowedOrigins
	}
	if out.Security.EnableCORS == nil {
		out.Security.EnableCORS = fileConfig.Security.EnableCORS
	}
	if out.Security.RateLimit.Enabled == nil {
		out.Security.RateLimit.Enabled = fileConfig.Security.RateLimit.Enabled
	}
	if out.Security.RateLimit.RPS == 0 {
		out.Security.RateLimit.RPS = fileConfig.Security.RateLimit.RPS
	}
	if out.Security.RateLimit.Burst == 0 {
		out.Security.RateLimit.Burst = fileConfig.Security.RateLimit.Burst
	}

	if out.Logging.Level == "" {
		out.Logging.Level = fileConfig.Logging.Level
	}
	if out.Logging.Format == "" {
		out.Logging.Format = fileConfig.Logging.Format
	}
	if out.Logging.Output == "" {
		out.Logging.Output = fileConfig.Logging.Output
	}
	if out.Logging.FilePath == "" {
		out.Logging.FilePath = fileConfig.Logging.FilePath
	}

	if out.Data.Market == "" {
		out.Data.Market = fileConfig.Data.Market
	}
	if out.Data.BaseURL == "" {
		out.Data.BaseURL = fileConfig.Data.BaseURL
	}
	if out.Data.Timeframe == "" {
		out.Data.Timeframe = fileConfig.Data.Timeframe
	}
	if out.Data.CacheDir == "" {
		out.Data.CacheDir = fileConfig.Data.CacheDir
	}
	if out.Data.CacheTTL == 0 {
		out.Data.CacheTTL = fileConfig.Data.CacheTTL
	}
	if out.Data.MaxConcurrency == 0 {
		out.Data.MaxConcurrency = fileConfig.Data.MaxConcurrency
	}
	if out.Data.ReportsDir == "" {
		out.Data.ReportsDir = fileConfig.Data.ReportsDir
	}

	if out.WebSocket.ReadBufferSize == 0 {
		out.WebSocket.ReadBufferSize = fileConfig.WebSocket.ReadBufferSize
	}
	if out.WebSocket.WriteBufferSize == 0 {
		out.WebSocket.WriteBufferSize = fileConfig.WebSocket.WriteBufferSize
	}
	if out.WebSocket.PingPeriod == 0 {
		out.WebSocket.PingPeriod = fileConfig.WebSocket.PingPeriod
	}
	if out.WebSocket.PongWait == 0 {
		out.WebSocket.PongWait = fileConfig.WebSocket.PongWait
	}

	return out
}

// applyDefaults fills whatever env and file left unset.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = d.Server.IdleTimeout
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = d.Server.MaxHeaderBytes
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Server.StudyTimeout == 0 {
		c.Server.StudyTimeout = d.Server.StudyTimeout
	}

	if len(c.Security.AllowedOrigins) == 0 {
		c.Security.AllowedOrigins = d.Security.AllowedOrigins
	}
	if c.Security.EnableCORS == nil {
		c.Security.EnableCORS = d.Security.EnableCORS
	}
	if c.Security.RateLimit.Enabled == nil {
		c.Security.RateLimit.Enabled = d.Security.RateLimit.Enabled
	}
	if c.Security.RateLimit.RPS == 0 {
		c.Security.RateLimit.RPS = d.Security.RateLimit.RPS
	}
	if c.Security.RateLimit.Burst == 0 {
		c.Security.RateLimit.Burst = d.Security.RateLimit.Burst
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = d.Logging.Output
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = d.Logging.FilePath
	}

	if c.Data.Market == "" {
		c.Data.Market = d.Data.Market
	}
	if c.Data.BaseURL == "" {
		c.Data.BaseURL = d.Data.BaseURL
	}
	if c.Data.Timeframe == "" {
		c.Data.Timeframe = d.Data.Timeframe
	}
	if c.Data.CacheTTL == 0 {
		c.Data.CacheTTL = d.Data.CacheTTL
	}
	if c.Data.MaxConcurrency == 0 {
		c.Data.MaxConcurrency = d.Data.MaxConcurrency
	}
	if c.Data.ReportsDir == "" {
		c.Data.ReportsDir = d.Data.ReportsDir
	}

	if c.WebSocket.ReadBufferSize == 0 {
		c.WebSocket.ReadBufferSize = d.WebSocket.ReadBufferSize
	}
	if c.WebSocket.WriteBufferSize == 0 {
		c.WebSocket.WriteBufferSize = d.WebSocket.WriteBufferSize
	}
	if c.WebSocket.PingPeriod == 0 {
		c.WebSocket.PingPeriod = d.WebSocket.PingPeriod
	}
	if c.WebSocket.PongWait == 0 {
		c.WebSocket.PongWait = d.WebSocket.PongWait
	}
}

// validate checks the assembled configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		return fmt.Errorf("invalid log output: %q", c.Logging.Output)
	}

	if c.Data.Market == "" {
		return fmt.Errorf("data market must be set")
	}
	if c.Data.BaseURL == "" {
		return fmt.Errorf("data base URL must be set")
	}
	if c.Data.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1")
	}
	if c.Data.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}

	return nil
}

// IsRemote reports whether the dataset is fetched over HTTP rather than read
// from a local directory.
func (d DataConfig) IsRemote() bool {
	return strings.HasPrefix(d.BaseURL, "http://") || strings.HasPrefix(d.BaseURL, "https://")
}

// getConfigFilePath returns the first config file found in the usual spots.
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

func boolPtr(b bool) *bool { return &b }

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			StudyTimeout:    DefaultStudyTimeout,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     boolPtr(true),
			RateLimit: RateLimitConfig{
				Enabled: boolPtr(true),
				RPS:     DefaultRateLimitRPS,
				Burst:   DefaultRateLimitBurst,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/vquant.log",
		},
		Data: DataConfig{
			Market:         DefaultMarket,
			BaseURL:        DefaultDataDir,
			Timeframe:      DefaultTimeframe,
			CacheTTL:       DefaultCacheTTL,
			MaxConcurrency: DefaultMaxConcurrency,
			ReportsDir:     DefaultReportsDir,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
