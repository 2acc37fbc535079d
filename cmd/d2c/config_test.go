package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/d2c/internal/core/assemble"
	"github.com/artpar/d2c/internal/shell/scheduler"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "./data/d2c.db", cfg.Database.DSN)
	assert.Equal(t, 100, cfg.Database.Retention)
	assert.True(t, cfg.Docker.All)
	assert.Equal(t, 30*time.Second, cfg.Docker.PingInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "./compose", cfg.Output.Dir)
	assert.Equal(t, "0 2 * * *", cfg.Schedule.Expression)

	assert.True(t, cfg.Settings.ShowNetwork)
	assert.True(t, cfg.Settings.ShowHealthcheck)
	assert.True(t, cfg.Settings.ShowCapAdd)
	assert.True(t, cfg.Settings.ShowCommand)
	assert.True(t, cfg.Settings.ShowEntrypoint)
	assert.Equal(t, "UTC", cfg.Settings.Timezone)
	assert.Empty(t, cfg.Settings.EnvFilterKeywords)
	assert.Equal(t, string(assemble.ScopeGlobal), cfg.Assemble.DependencyScope)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"
  retention: 10

output:
  dir: "/backup"

schedule:
  expression: "manual"

settings:
  network: false
  show_command: false
  timezone: "Europe/Berlin"
  env_filter_keywords: "SECRET,TOKEN"

assemble:
  dependency_scope: "document"

log:
  level: "debug"
  format: "text"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, 10, cfg.Database.Retention)
	assert.Equal(t, "/backup", cfg.Output.Dir)
	assert.Equal(t, "manual", cfg.Schedule.Expression)
	assert.False(t, cfg.Settings.ShowNetwork)
	assert.False(t, cfg.Settings.ShowCommand)
	assert.True(t, cfg.Settings.ShowEntrypoint)
	assert.Equal(t, "Europe/Berlin", cfg.Settings.Timezone)
	assert.Equal(t, "SECRET,TOKEN", cfg.Settings.EnvFilterKeywords)
	assert.Equal(t, "debug", cfg.Log.Level)

	bc := cfg.BackupConfig()
	assert.Equal(t, assemble.ScopeDocument, bc.Assemble.DependencyScope)
	assert.Equal(t, 10, bc.Retention)
	assert.Equal(t, cfg.Settings, bc.Settings)

	sc := cfg.SchedulerConfig()
	assert.Equal(t, scheduler.Config{Expression: "manual", Timezone: "Europe/Berlin"}, sc)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("D2C_SERVER_PORT", "3000")
	t.Setenv("D2C_DATABASE_DSN", "/custom/path.db")
	t.Setenv("D2C_LOG_LEVEL", "warn")
	t.Setenv("D2C_SETTINGS_SHOW_CAP_ADD", "false")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Settings.ShowCapAdd)
}

func TestLoadConfig_FlatAliases(t *testing.T) {
	clearEnv(t)

	t.Setenv("CRON", "*/5 * * * *")
	t.Setenv("NETWORK", "false")
	t.Setenv("SHOW_HEALTHCHECK", "false")
	t.Setenv("SHOW_CAP_ADD", "false")
	t.Setenv("SHOW_COMMAND", "false")
	t.Setenv("SHOW_ENTRYPOINT", "false")
	t.Setenv("ENV_FILTER_KEYWORDS", "PASSWORD")
	t.Setenv("TZ", "Asia/Shanghai")
	t.Setenv("OUTPUT_DIR", "/app/compose")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "*/5 * * * *", cfg.Schedule.Expression)
	assert.False(t, cfg.Settings.ShowNetwork)
	assert.False(t, cfg.Settings.ShowHealthcheck)
	assert.False(t, cfg.Settings.ShowCapAdd)
	assert.False(t, cfg.Settings.ShowCommand)
	assert.False(t, cfg.Settings.ShowEntrypoint)
	assert.Equal(t, "PASSWORD", cfg.Settings.EnvFilterKeywords)
	assert.Equal(t, "Asia/Shanghai", cfg.Settings.Timezone)
	assert.Equal(t, "/app/compose", cfg.Output.Dir)
}

func TestLoadConfig_PrefixedNameWinsOverAlias(t *testing.T) {
	clearEnv(t)

	t.Setenv("CRON", "once")
	t.Setenv("D2C_SCHEDULE_EXPRESSION", "manual")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "manual", cfg.Schedule.Expression)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestLoadConfig_InvalidCron(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRON", "0 2 * *")

	_, err := LoadConfig("")

	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrInvalidExpression)
}

func TestLoadConfig_InvalidTimezone(t *testing.T) {
	clearEnv(t)
	t.Setenv("TZ", "Mars/Olympus")

	_, err := LoadConfig("")

	assert.Error(t, err)
}

func TestLoadConfig_InvalidDependencyScope(t *testing.T) {
	clearEnv(t)
	t.Setenv("D2C_ASSEMBLE_DEPENDENCY_SCOPE", "galaxy")

	_, err := LoadConfig("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency_scope")
}

func TestLoadConfig_NegativeRetention(t *testing.T) {
	clearEnv(t)
	t.Setenv("D2C_DATABASE_RETENTION", "-1")

	_, err := LoadConfig("")

	assert.Error(t, err)
}

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "invalid"} {
		for _, format := range []string{"json", "text"} {
			logger := SetupLogger(&Config{Log: LogConfig{Level: level, Format: format}})
			assert.NotNil(t, logger, "%s/%s", level, format)
		}
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"D2C_SERVER_HOST",
		"D2C_SERVER_PORT",
		"D2C_DATABASE_DSN",
		"D2C_DATABASE_RETENTION",
		"D2C_LOG_LEVEL",
		"D2C_LOG_FORMAT",
		"D2C_SCHEDULE_EXPRESSION",
		"D2C_ASSEMBLE_DEPENDENCY_SCOPE",
		"D2C_SETTINGS_SHOW_CAP_ADD",
	}
	for _, alias := range envAliases {
		envVars = append(envVars, alias)
	}
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
