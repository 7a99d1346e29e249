package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FOCUSGATE_SERVER_PORT
const EnvPrefix = "FOCUSGATE"

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrNotWatchable       = errors.New("configuration has no file to watch")
)

// DefaultAllowList holds the system UI and keyboard packages of each platform.
// Android reports package names; the Windows poller reports executable names.
var DefaultAllowList = []string{
	"com.android.systemui",
	"com.google.android.inputmethod.latin",
	"explorer.exe",
	"TextInputHost.exe",
	"ShellExperienceHost.exe",
	"StartMenuExperienceHost.exe",
	"SearchHost.exe",
	"LockApp.exe",
	"focusgate.exe",
}

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Prefs     PrefsConfig     `mapstructure:"prefs"`
	Timezone  string          `mapstructure:"timezone"`
	Log       LogConfig       `mapstructure:"log"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	location *time.Location
	v        *viper.Viper
}

// ServerConfig contains control API settings
type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"` // empty disables authentication
}

// DatabaseConfig contains ledger database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PrefsConfig contains the fallback key-value file settings
type PrefsConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MonitorConfig contains foreground monitor settings
type MonitorConfig struct {
	SelfPackage  string        `mapstructure:"self_package"`
	AllowList    []string      `mapstructure:"allow_list"`
	Debounce     time.Duration `mapstructure:"debounce"`
	QueueSize    int           `mapstructure:"queue_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// SchedulerConfig contains refresh trigger settings
type SchedulerConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Prefs.Path == "" {
		return fmt.Errorf("%w: prefs path is required", ErrInvalidConfig)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidConfig, c.Timezone)
	}
	c.location = loc

	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("%w: log format must be json or text", ErrInvalidConfig)
	}

	if c.Monitor.SelfPackage == "" {
		return fmt.Errorf("%w: monitor self package is required", ErrInvalidConfig)
	}

	if c.Monitor.Debounce <= 0 || c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("%w: monitor intervals must be positive", ErrInvalidConfig)
	}

	if c.Monitor.QueueSize <= 0 {
		return fmt.Errorf("%w: monitor queue size must be positive", ErrInvalidConfig)
	}

	if c.Scheduler.RefreshInterval <= 0 || c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("%w: scheduler intervals must be positive", ErrInvalidConfig)
	}

	return nil
}

// Location returns the configured timezone. Valid after Validate.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Address returns the host:port the control API listens on
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BaseURL returns the control API URL for local clients
func (c *Config) BaseURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
}

// Load reads configuration from defaults, an optional YAML file and FOCUSGATE_* environment
// variables, in increasing precedence. A .env file beside the config file (or in the working
// directory when path is empty) is loaded first; it never overrides variables already set.
func Load(path string) (*Config, error) {
	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrConfigFileNotFound
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.v = v

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Watch reloads the config file whenever it changes and passes the new configuration to fn.
// Invalid edits are logged and skipped; the previous configuration stays in effect.
func (c *Config) Watch(logger *slog.Logger, fn func(next *Config)) error {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return ErrNotWatchable
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(c.v)
		if err != nil {
			logger.Warn("Ignoring invalid config change",
				"component", "config",
				"file", e.Name,
				"error", err)
			return
		}
		logger.Info("Config reloaded",
			"component", "config",
			"file", e.Name)
		fn(next)
	})
	c.v.WatchConfig()
	return nil
}

// setDefaults sets the default values
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.api_key", "")

	// Storage
	v.SetDefault("database.path", "./focusgate.db")
	v.SetDefault("prefs.path", "./focusgate-prefs.yaml")
	v.SetDefault("timezone", "Local")

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Monitor
	v.SetDefault("monitor.self_package", "focusgate")
	v.SetDefault("monitor.allow_list", DefaultAllowList)
	v.SetDefault("monitor.debounce", "2s")
	v.SetDefault("monitor.queue_size", 64)
	v.SetDefault("monitor.poll_interval", "500ms")

	// Scheduler
	v.SetDefault("scheduler.refresh_interval", "15m")
	v.SetDefault("scheduler.sweep_interval", "5s")
}
