package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/d2c/internal/core/assemble"
	"github.com/artpar/d2c/internal/core/domain"
	"github.com/artpar/d2c/internal/shell/backup"
	"github.com/artpar/d2c/internal/shell/scheduler"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Docker   DockerConfig    `mapstructure:"docker"`
	Log      LogConfig       `mapstructure:"log"`
	Output   OutputConfig    `mapstructure:"output"`
	Schedule ScheduleConfig  `mapstructure:"schedule"`
	Settings domain.Settings `mapstructure:"settings"`
	Assemble AssembleConfig  `mapstructure:"assemble"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds run history configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
	// Retention is the number of runs kept; 0 keeps all.
	Retention int `mapstructure:"retention"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
	// All includes stopped containers in snapshots.
	All          bool          `mapstructure:"all"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PingTimeout  time.Duration `mapstructure:"ping_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OutputConfig holds document output configuration.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// ScheduleConfig holds the backup trigger: once, manual or a cron expression.
type ScheduleConfig struct {
	Expression string `mapstructure:"expression"`
}

// AssembleConfig holds document assembly options.
type AssembleConfig struct {
	DependencyScope string `mapstructure:"dependency_scope"`
}

// envAliases binds the flat variable names to their config keys. The
// prefixed name takes precedence.
var envAliases = map[string]string{
	"schedule.expression":          "CRON",
	"settings.network":             "NETWORK",
	"settings.show_healthcheck":    "SHOW_HEALTHCHECK",
	"settings.show_cap_add":        "SHOW_CAP_ADD",
	"settings.show_command":        "SHOW_COMMAND",
	"settings.show_entrypoint":     "SHOW_ENTRYPOINT",
	"settings.env_filter_keywords": "ENV_FILTER_KEYWORDS",
	"settings.timezone":            "TZ",
	"output.dir":                   "OUTPUT_DIR",
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/d2c.db")
	v.SetDefault("database.retention", 100)
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.all", true)
	v.SetDefault("docker.ping_interval", "30s")
	v.SetDefault("docker.ping_timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("output.dir", "./compose")
	v.SetDefault("schedule.expression", "0 2 * * *")

	defaults := domain.DefaultSettings()
	v.SetDefault("settings.network", defaults.ShowNetwork)
	v.SetDefault("settings.show_healthcheck", defaults.ShowHealthcheck)
	v.SetDefault("settings.show_cap_add", defaults.ShowCapAdd)
	v.SetDefault("settings.show_command", defaults.ShowCommand)
	v.SetDefault("settings.show_entrypoint", defaults.ShowEntrypoint)
	v.SetDefault("settings.timezone", defaults.Timezone)
	v.SetDefault("settings.env_filter_keywords", "")
	v.SetDefault("assemble.dependency_scope", string(assemble.ScopeGlobal))

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("D2C")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		envName := "D2C_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", alias, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Settings.Timezone = strings.TrimSpace(cfg.Settings.Timezone)
	if cfg.Settings.Timezone == "" {
		cfg.Settings.Timezone = domain.DefaultTimezone
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail at the first run.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Settings.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("settings: %w", err))
	}
	if !assemble.DependencyScope(c.Assemble.DependencyScope).IsValid() {
		errs = append(errs, fmt.Errorf("assemble.dependency_scope: unknown scope %q", c.Assemble.DependencyScope))
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}
	if c.Database.Retention < 0 {
		errs = append(errs, errors.New("database.retention must not be negative"))
	}
	return errors.Join(errs...)
}

// BackupConfig returns the part of the configuration a run depends on.
func (c *Config) BackupConfig() backup.Config {
	return backup.Config{
		Settings:  c.Settings,
		Assemble:  assemble.Options{DependencyScope: assemble.DependencyScope(c.Assemble.DependencyScope)},
		Retention: c.Database.Retention,
	}
}

// SchedulerConfig returns the trigger configuration. Cron expressions are
// evaluated in the settings timezone.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Expression: c.Schedule.Expression,
		Timezone:   c.Settings.Timezone,
	}
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
