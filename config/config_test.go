package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"focusgate/internal/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Server:   ServerConfig{Host: "127.0.0.1", Port: 8787},
		Database: DatabaseConfig{Path: "/path/to/db"},
		Prefs:    PrefsConfig{Path: "/path/to/prefs.yaml"},
		Timezone: "UTC",
		Log:      LogConfig{Level: "info", Format: "json"},
		Monitor: MonitorConfig{
			SelfPackage:  "focusgate",
			Debounce:     3 * time.Second,
			QueueSize:    64,
			PollInterval: 500 * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			RefreshInterval: 15 * time.Minute,
			SweepInterval:   5 * time.Second,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "invalid port - zero", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "invalid port - too large", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "missing prefs path", mutate: func(c *Config) { c.Prefs.Path = "" }, wantErr: true},
		{name: "unknown timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: true},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "missing self package", mutate: func(c *Config) { c.Monitor.SelfPackage = "" }, wantErr: true},
		{name: "zero debounce", mutate: func(c *Config) { c.Monitor.Debounce = 0 }, wantErr: true},
		{name: "zero queue", mutate: func(c *Config) { c.Monitor.QueueSize = 0 }, wantErr: true},
		{name: "zero sweep interval", mutate: func(c *Config) { c.Scheduler.SweepInterval = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Location(t *testing.T) {
	cfg := validConfig()
	cfg.Timezone = "Europe/Moscow"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Europe/Moscow", cfg.Location().String())
}

func TestConfig_Addresses(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "127.0.0.1:8787", cfg.Address())
	assert.Equal(t, "http://127.0.0.1:8787", cfg.BaseURL())

	cfg.Server.Host = "0.0.0.0"
	assert.Equal(t, "0.0.0.0:8787", cfg.Address())
	assert.Equal(t, "http://127.0.0.1:8787", cfg.BaseURL())
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "./focusgate.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Monitor.Debounce)
	assert.Equal(t, monitor.DefaultDebounce, cfg.Monitor.Debounce)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.PollInterval)
	assert.Equal(t, DefaultAllowList, cfg.Monitor.AllowList)
	assert.Contains(t, cfg.Monitor.AllowList, "com.android.systemui")
	assert.Contains(t, cfg.Monitor.AllowList, "explorer.exe")
	assert.Contains(t, cfg.Monitor.AllowList, "TextInputHost.exe")
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.RefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.SweepInterval)
}

func TestLoad_FileAndEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  port: 9090
database:
  path: /tmp/focusgate-test.db
timezone: UTC
log:
  level: debug
  format: text
monitor:
  self_package: com.example.focusgate
  allow_list:
    - com.android.launcher
  debounce: 1500ms
scheduler:
  refresh_interval: 1m
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	t.Setenv("FOCUSGATE_SERVER_HOST", "0.0.0.0")
	t.Setenv("FOCUSGATE_MONITOR_QUEUE_SIZE", "8")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "env overrides defaults")
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/focusgate-test.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "com.example.focusgate", cfg.Monitor.SelfPackage)
	assert.Equal(t, []string{"com.android.launcher"}, cfg.Monitor.AllowList)
	assert.Equal(t, 1500*time.Millisecond, cfg.Monitor.Debounce)
	assert.Equal(t, 8, cfg.Monitor.QueueSize)
	assert.Equal(t, time.Minute, cfg.Scheduler.RefreshInterval)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_DotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("timezone: UTC\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("FOCUSGATE_SERVER_API_KEY=from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("FOCUSGATE_SERVER_API_KEY") })

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Server.APIKey)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_InvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0644))

	_, err := Load(configPath)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Watch(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("timezone: UTC\nmonitor:\n  allow_list: [com.a]\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	var mu sync.Mutex
	var reloaded *Config
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, cfg.Watch(logger, func(next *Config) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = next
	}))

	require.NoError(t, os.WriteFile(configPath, []byte("timezone: UTC\nmonitor:\n  allow_list: [com.a, com.b]\n"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded != nil && len(reloaded.Monitor.AllowList) == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestConfig_WatchWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Watch(slog.Default(), func(*Config) {}), ErrNotWatchable)
}
