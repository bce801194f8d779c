package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration tree.
type Config struct {
	Server        ServerConfig        `yaml:"server" envconfig:"SERVER"`
	Security      SecurityConfig      `yaml:"security" envconfig:"SECURITY"`
	Logging       LoggingConfig       `yaml:"logging" envconfig:"LOGGING"`
	Observability ObservabilityConfig `yaml:"observability" envconfig:"OBSERVABILITY"`
	Paths         PathsConfig         `yaml:"paths" envconfig:"PATHS"`
	Source        SourceConfig        `yaml:"source" envconfig:"SOURCE"`
	Watch         WatchConfig         `yaml:"watch" envconfig:"WATCH"`
}

// ServerConfig sizes the HTTP listener and its per-request budgets.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// SecurityConfig gathers the CORS allowlist and the rate limiter settings.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig bounds the per-client request rate.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig shapes the structured log output.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// ObservabilityConfig selects the OpenTelemetry exporters. Exporter "none"
// turns the signal off; unset fields keep the development defaults.
type ObservabilityConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// PathsConfig holds the directory overrides; resolution always anchors at
// the executable.
type PathsConfig struct {
	ExecutableDir string `yaml:"executable_dir" envconfig:"EXECUTABLE_DIR"`
	DataDir       string `yaml:"data_dir" envconfig:"DATA_DIR"`
	WebDir        string `yaml:"web_dir" envconfig:"WEB_DIR"`
	LogsDir       string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// SourceConfig describes where the task sheet is loaded from. Type "file"
// reads a workbook from the uploads directory; type "gsheet" pulls the
// values from a Google Sheets spreadsheet.
type SourceConfig struct {
	Type            string `yaml:"type" envconfig:"TYPE"`
	File            string `yaml:"file" envconfig:"FILE"`
	SpreadsheetID   string `yaml:"spreadsheet_id" envconfig:"SPREADSHEET_ID"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	APIKey          string `yaml:"api_key" envconfig:"API_KEY"`
}

// WatchConfig controls the uploads-directory watcher. When enabled, a new or
// changed workbook that has settled for SettleDelay triggers a wholesale
// snapshot reload.
type WatchConfig struct {
	Enabled     bool          `yaml:"enabled" envconfig:"ENABLED"`
	SettleDelay time.Duration `yaml:"settle_delay" envconfig:"SETTLE_DELAY"`
}

// Load builds the configuration from three layers, weakest first: the
// built-in defaults, an optional yaml config file, and TEAMPULSE_ environment
// variables. Each layer only changes what it explicitly sets, so a file can
// override a default and the environment can override both.
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("TEAMPULSE", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// applyFile overlays the yaml file at path onto cfg. Only keys present in
// the document change; everything else keeps its current value.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// configFilePath picks the config file to load. TEAMPULSE_CONFIG wins when
// set, even if the file it names is missing, so a typo fails loudly instead
// of silently running on defaults. Otherwise the conventional locations are
// probed relative to the working directory; empty means no file layer.
func configFilePath() string {
	if path := os.Getenv("TEAMPULSE_CONFIG"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		filepath.Join("configs", "config.yaml"),
		filepath.Join("..", "configs", "config.yaml"),
		filepath.Join("..", "..", "configs", "config.yaml"),
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// resolvePaths pins the executable directory the rest of the path
// resolution anchors at, and creates the layout. The directories must exist
// by the time the logger opens its file under logs.
func (c *Config) resolvePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}

	c.Paths.ExecutableDir = paths.ExecutableDir
	return paths.EnsureDirectories()
}

// GetWebDir reports where the frontend assets live.
func (c *Config) GetWebDir() string {
	if paths, err := GetPaths(); err == nil {
		return paths.WebDir
	}
	return anchorDir(c.Paths.ExecutableDir, c.Paths.WebDir)
}

// GetLogsDir reports where log files land.
func (c *Config) GetLogsDir() string {
	if paths, err := GetPaths(); err == nil {
		return paths.LogsDir
	}
	return anchorDir(c.Paths.ExecutableDir, c.Paths.LogsDir)
}

// LogFilePath resolves the configured log file location. A relative path
// lands in the logs directory next to the executable, never under the
// working directory.
func (c *Config) LogFilePath() string {
	if filepath.IsAbs(c.Logging.FilePath) {
		return c.Logging.FilePath
	}
	return filepath.Join(c.GetLogsDir(), filepath.Base(c.Logging.FilePath))
}

// anchorDir joins dir onto base unless dir is already absolute.
func anchorDir(base, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// validate checks the configuration and coerces the few settings that have
// exactly one supported shape.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}
	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin is required")
	}

	switch c.Source.Type {
	case "", SourceTypeFile:
		c.Source.Type = SourceTypeFile
	case SourceTypeGSheet:
		if c.Source.SpreadsheetID == "" {
			return fmt.Errorf("source type %q requires a spreadsheet id", SourceTypeGSheet)
		}
	default:
		return fmt.Errorf("unknown source type: %q", c.Source.Type)
	}

	if c.Watch.Enabled && c.Watch.SettleDelay <= 0 {
		c.Watch.SettleDelay = DefaultWatchSettleDelay
	}

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return fmt.Errorf("trace sample ratio must be between 0 and 1: %v", c.Observability.SampleRatio)
	}

	// Structured logs are always JSON, written to the log file and, unless
	// output is "file", to stderr as well
	c.Logging.Format = "json"
	if c.Logging.Output != "file" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(DefaultLogsDir, "app.log")
	}

	return nil
}

// Default returns the built-in configuration every load starts from.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "both",
			FilePath:    filepath.Join(DefaultLogsDir, "app.log"),
			Development: true,
		},
		Observability: ObservabilityConfig{
			Environment:    "development",
			TraceExporter:  "stdout",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Paths: PathsConfig{
			DataDir: DefaultDataDir,
			WebDir:  DefaultWebDir,
			LogsDir: DefaultLogsDir,
		},
		Source: SourceConfig{
			Type: SourceTypeFile,
		},
		Watch: WatchConfig{
			Enabled:     false,
			SettleDelay: DefaultWatchSettleDelay,
		},
	}
}
