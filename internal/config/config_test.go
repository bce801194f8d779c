package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withWorkingDir switches the process working directory for the duration of
// the test. Config file discovery is relative to the working directory, so
// tests that exercise it must pin one.
func withWorkingDir(t *testing.T, dir string) {
	t.Helper()

	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			t.Errorf("failed to restore working directory: %v", err)
		}
	})
}

// clearTeamPulseEnv unsets any TEAMPULSE_ variables inherited from the host
// environment and restores them when the test finishes.
func clearTeamPulseEnv(t *testing.T) {
	t.Helper()

	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "TEAMPULSE_") {
			continue
		}
		val := os.Getenv(name)
		require.NoError(t, os.Unsetenv(name))
		t.Cleanup(func() { os.Setenv(name, val) })
	}
}

// TestLoad_Defaults verifies the configuration produced when no environment
// variables and no config file are present.
func TestLoad_Defaults(t *testing.T) {
	clearTeamPulseEnv(t)
	withWorkingDir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 1048576, cfg.Server.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)

	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.Security.EnableCORS)
	assert.True(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, 100.0, cfg.Security.RateLimit.RPS)
	assert.Equal(t, 50, cfg.Security.RateLimit.Burst)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.Equal(t, "logs/app.log", cfg.Logging.FilePath)

	assert.Equal(t, SourceTypeFile, cfg.Source.Type)
	assert.Empty(t, cfg.Source.File)
	assert.Empty(t, cfg.Source.SpreadsheetID)

	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, DefaultWatchSettleDelay, cfg.Watch.SettleDelay)

	assert.True(t, filepath.IsAbs(cfg.Paths.ExecutableDir),
		"executable dir should be resolved to an absolute path")
}

// TestLoad_EnvOverrides verifies that TEAMPULSE_ environment variables take
// precedence over the built-in defaults.
func TestLoad_EnvOverrides(t *testing.T) {
	clearTeamPulseEnv(t)
	withWorkingDir(t, t.TempDir())

	t.Setenv("TEAMPULSE_SERVER_PORT", "9090")
	t.Setenv("TEAMPULSE_SERVER_READ_TIMEOUT", "30s")
	t.Setenv("TEAMPULSE_SECURITY_ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("TEAMPULSE_SECURITY_RATE_LIMIT_ENABLED", "false")
	t.Setenv("TEAMPULSE_LOGGING_LEVEL", "debug")
	t.Setenv("TEAMPULSE_SOURCE_FILE", "weekly.xlsx")
	t.Setenv("TEAMPULSE_WATCH_ENABLED", "true")
	t.Setenv("TEAMPULSE_WATCH_SETTLE_DELAY", "5s")
	t.Setenv("TEAMPULSE_OBSERVABILITY_TRACE_EXPORTER", "none")
	t.Setenv("TEAMPULSE_OBSERVABILITY_SAMPLE_RATIO", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Security.AllowedOrigins)
	assert.False(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "weekly.xlsx", cfg.Source.File)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Watch.SettleDelay)
	assert.Equal(t, "none", cfg.Observability.TraceExporter)
	assert.Equal(t, 0.5, cfg.Observability.SampleRatio)
}

// TestLoad_InvalidEnv verifies that bad environment values surface as errors
// rather than silently falling back to defaults.
func TestLoad_InvalidEnv(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{
			name:    "unparseable port",
			key:     "TEAMPULSE_SERVER_PORT",
			value:   "not-a-number",
			wantErr: "failed to load config from env",
		},
		{
			name:    "port zero",
			key:     "TEAMPULSE_SERVER_PORT",
			value:   "0",
			wantErr: "invalid server port",
		},
		{
			name:    "port out of range",
			key:     "TEAMPULSE_SERVER_PORT",
			value:   "70000",
			wantErr: "invalid server port",
		},
		{
			name:    "gsheet without spreadsheet id",
			key:     "TEAMPULSE_SOURCE_TYPE",
			value:   "gsheet",
			wantErr: "requires a spreadsheet id",
		},
		{
			name:    "unknown source type",
			key:     "TEAMPULSE_SOURCE_TYPE",
			value:   "carrier-pigeon",
			wantErr: "unknown source type",
		},
		{
			name:    "sample ratio above one",
			key:     "TEAMPULSE_OBSERVABILITY_SAMPLE_RATIO",
			value:   "1.5",
			wantErr: "sample ratio must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTeamPulseEnv(t)
			withWorkingDir(t, t.TempDir())
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestLoad_ConfigFile verifies the yaml config file discovery and the merge
// with environment variables.
func TestLoad_ConfigFile(t *testing.T) {
	t.Run("file supplies source settings", func(t *testing.T) {
		clearTeamPulseEnv(t)
		dir := t.TempDir()
		yaml := `source:
  file: quarterly.xlsx
  spreadsheet_id: sheet-abc123
  credentials_file: sa.json
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
		withWorkingDir(t, dir)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "quarterly.xlsx", cfg.Source.File)
		assert.Equal(t, "sheet-abc123", cfg.Source.SpreadsheetID)
		assert.Equal(t, "sa.json", cfg.Source.CredentialsFile)
	})

	t.Run("environment beats file beats defaults", func(t *testing.T) {
		clearTeamPulseEnv(t)
		dir := t.TempDir()
		yaml := `server:
  port: 9999
source:
  file: quarterly.xlsx
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
		withWorkingDir(t, dir)
		t.Setenv("TEAMPULSE_SOURCE_FILE", "from-env.xlsx")

		cfg, err := Load()
		require.NoError(t, err)

		// Environment overrides the file value
		assert.Equal(t, "from-env.xlsx", cfg.Source.File)
		// The file overrides the default, and settings touched by neither
		// layer keep their defaults
		assert.Equal(t, 9999, cfg.Server.Port)
		assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	})

	t.Run("explicit config path via environment", func(t *testing.T) {
		clearTeamPulseEnv(t)
		dir := t.TempDir()
		path := filepath.Join(dir, "elsewhere.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7777\n"), 0644))
		withWorkingDir(t, t.TempDir())
		t.Setenv("TEAMPULSE_CONFIG", path)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 7777, cfg.Server.Port)
	})

	t.Run("explicit config path that does not exist fails load", func(t *testing.T) {
		clearTeamPulseEnv(t)
		withWorkingDir(t, t.TempDir())
		t.Setenv("TEAMPULSE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

		cfg, err := Load()
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to load config from file")
	})

	t.Run("env type with file spreadsheet id", func(t *testing.T) {
		clearTeamPulseEnv(t)
		dir := t.TempDir()
		yaml := `source:
  spreadsheet_id: sheet-xyz789
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
		withWorkingDir(t, dir)
		t.Setenv("TEAMPULSE_SOURCE_TYPE", "gsheet")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, SourceTypeGSheet, cfg.Source.Type)
		assert.Equal(t, "sheet-xyz789", cfg.Source.SpreadsheetID)
	})

	t.Run("malformed file fails load", func(t *testing.T) {
		clearTeamPulseEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [not a map"), 0644))
		withWorkingDir(t, dir)

		cfg, err := Load()
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to load config from file")
	})
}

func TestConfigFilePath(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		clearTeamPulseEnv(t)
		withWorkingDir(t, t.TempDir())
		assert.Empty(t, configFilePath())
	})

	t.Run("working directory config", func(t *testing.T) {
		clearTeamPulseEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), nil, 0644))
		withWorkingDir(t, dir)

		assert.Equal(t, "config.yaml", configFilePath())
	})

	t.Run("configs subdirectory", func(t *testing.T) {
		clearTeamPulseEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), nil, 0644))
		withWorkingDir(t, dir)

		assert.Equal(t, filepath.Join("configs", "config.yaml"), configFilePath())
	})

	t.Run("environment override wins without probing", func(t *testing.T) {
		clearTeamPulseEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), nil, 0644))
		withWorkingDir(t, dir)
		t.Setenv("TEAMPULSE_CONFIG", "/srv/teampulse/config.yaml")

		assert.Equal(t, "/srv/teampulse/config.yaml", configFilePath())
	})
}

// TestApplyFile verifies the overlay semantics: keys present in the file
// change, everything else keeps its value.
func TestApplyFile(t *testing.T) {
	t.Run("present keys override, absent keys survive", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := `server:
  port: 7070
  read_timeout: 45s
logging:
  level: warn
watch:
  enabled: true
  settle_delay: 10s
`
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

		cfg := Default()
		require.NoError(t, applyFile(cfg, path))

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.True(t, cfg.Watch.Enabled)
		assert.Equal(t, 10*time.Second, cfg.Watch.SettleDelay)

		// Untouched by the file
		assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, applyFile(Default(), filepath.Join(t.TempDir(), "absent.yaml")))
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{{nope"), 0644))

		assert.Error(t, applyFile(Default(), path))
	})
}

// TestValidate drives the validation rules directly, including the coercions
// it applies to logging and watch settings.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
		check   func(*testing.T, *Config)
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 65536 },
			wantErr: "invalid server port",
		},
		{
			name:    "read timeout must be positive",
			mutate:  func(c *Config) { c.Server.ReadTimeout = -time.Second },
			wantErr: "read timeout must be positive",
		},
		{
			name:    "write timeout must be positive",
			mutate:  func(c *Config) { c.Server.WriteTimeout = 0 },
			wantErr: "write timeout must be positive",
		},
		{
			name:    "origins required",
			mutate:  func(c *Config) { c.Security.AllowedOrigins = nil },
			wantErr: "at least one allowed origin",
		},
		{
			name:   "empty source type becomes file",
			mutate: func(c *Config) { c.Source.Type = "" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, SourceTypeFile, c.Source.Type)
			},
		},
		{
			name:    "gsheet needs spreadsheet id",
			mutate:  func(c *Config) { c.Source.Type = SourceTypeGSheet },
			wantErr: "requires a spreadsheet id",
		},
		{
			name: "gsheet with spreadsheet id",
			mutate: func(c *Config) {
				c.Source.Type = SourceTypeGSheet
				c.Source.SpreadsheetID = "sheet-abc"
			},
		},
		{
			name:    "unknown source type",
			mutate:  func(c *Config) { c.Source.Type = "ftp" },
			wantErr: "unknown source type",
		},
		{
			name: "watch settle delay defaulted",
			mutate: func(c *Config) {
				c.Watch.Enabled = true
				c.Watch.SettleDelay = 0
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, DefaultWatchSettleDelay, c.Watch.SettleDelay)
			},
		},
		{
			name:   "logging format coerced to json",
			mutate: func(c *Config) { c.Logging.Format = "text" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "json", c.Logging.Format)
			},
		},
		{
			name:   "console output coerced to both",
			mutate: func(c *Config) { c.Logging.Output = "console" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "both", c.Logging.Output)
			},
		},
		{
			name:   "file output preserved",
			mutate: func(c *Config) { c.Logging.Output = "file" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "file", c.Logging.Output)
			},
		},
		{
			name:   "empty log file path defaulted",
			mutate: func(c *Config) { c.Logging.FilePath = "" },
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "logs/app.log", c.Logging.FilePath)
			},
		},
		{
			name:    "negative sample ratio",
			mutate:  func(c *Config) { c.Observability.SampleRatio = -0.5 },
			wantErr: "sample ratio must be between 0 and 1",
		},
		{
			name:   "zero sample ratio allowed",
			mutate: func(c *Config) { c.Observability.SampleRatio = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 1<<20, cfg.Server.MaxHeaderBytes)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.Security.EnableCORS)
	assert.Equal(t, 100.0, cfg.Security.RateLimit.RPS)
	assert.Equal(t, 50, cfg.Security.RateLimit.Burst)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "stdout", cfg.Observability.TraceExporter)
	assert.Equal(t, "prometheus", cfg.Observability.MetricExporter)
	assert.Equal(t, 1.0, cfg.Observability.SampleRatio)
	assert.Equal(t, "data", cfg.Paths.DataDir)
	assert.Equal(t, "web", cfg.Paths.WebDir)
	assert.Equal(t, "logs", cfg.Paths.LogsDir)
	assert.Equal(t, SourceTypeFile, cfg.Source.Type)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, DefaultWatchSettleDelay, cfg.Watch.SettleDelay)

	// Defaults should pass their own validation
	assert.NoError(t, cfg.validate())
}

// TestConfigDirAccessors verifies the resolved-directory accessors agree with
// the executable-relative path resolution.
func TestConfigDirAccessors(t *testing.T) {
	paths, err := GetPaths()
	require.NoError(t, err)

	cfg := Default()
	assert.Equal(t, paths.WebDir, cfg.GetWebDir())
	assert.Equal(t, paths.LogsDir, cfg.GetLogsDir())
}

func TestLogFilePath(t *testing.T) {
	paths, err := GetPaths()
	require.NoError(t, err)

	cfg := Default()
	assert.Equal(t, filepath.Join(paths.LogsDir, "app.log"), cfg.LogFilePath(),
		"relative log files land in the executable's logs directory")

	cfg.Logging.FilePath = filepath.Join(t.TempDir(), "run.log")
	assert.Equal(t, cfg.Logging.FilePath, cfg.LogFilePath(),
		"absolute log files are taken as configured")
}
