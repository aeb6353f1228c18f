package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagKeys maps command-line flag names to the config keys they override.
var FlagKeys = map[string]string{
	"user":      "user_id",
	"log-level": "log.level",
}

// EnvPrefix is prepended to every environment override, e.g.
// WORKNOTIFY_API_BASE_URL overrides api.base_url.
const EnvPrefix = "WORKNOTIFY"

// APIConfig holds settings for the REST boundary.
type APIConfig struct {
	// BaseURL is the root of the REST API, e.g. http://localhost:8080/api.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every REST call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// Token is the bearer token. Usually left empty and read from the
	// environment or the system keyring instead.
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// RealtimeConfig holds settings for the STOMP-over-WebSocket channel.
type RealtimeConfig struct {
	URL                 string `mapstructure:"url" yaml:"url"`
	ReconnectDelayMs    int    `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	MaxReconnectDelayMs int    `mapstructure:"max_reconnect_delay_ms" yaml:"max_reconnect_delay_ms"`
	HeartbeatMs         int    `mapstructure:"heartbeat_ms" yaml:"heartbeat_ms"`
}

// NotificationsConfig holds alerting and reconciliation preferences.
type NotificationsConfig struct {
	Desktop        bool   `mapstructure:"desktop" yaml:"desktop"`
	Sound          bool   `mapstructure:"sound" yaml:"sound"`
	DismissAfterMs int    `mapstructure:"dismiss_after_ms" yaml:"dismiss_after_ms"`
	ConfirmPolicy  string `mapstructure:"confirm_policy" yaml:"confirm_policy"`

	// OfflineFallback is "samples" or "empty".
	OfflineFallback string `mapstructure:"offline_fallback" yaml:"offline_fallback"`

	// PollIntervalSec is how often the unread count is polled while the
	// realtime channel is down. Zero disables polling.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// NavigationConfig holds cross-view navigation settings.
type NavigationConfig struct {
	SettleDelayMs int `mapstructure:"settle_delay_ms" yaml:"settle_delay_ms"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Locale string `mapstructure:"locale" yaml:"locale"`
	Theme  string `mapstructure:"theme" yaml:"theme"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	UserID        int64               `mapstructure:"user_id" yaml:"user_id"`
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Realtime      RealtimeConfig      `mapstructure:"realtime" yaml:"realtime"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Navigation    NavigationConfig    `mapstructure:"navigation" yaml:"navigation"`
	Display       DisplayConfig       `mapstructure:"display" yaml:"display"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
}

// ReconnectDelay returns the fixed delay between reconnect attempts.
func (c RealtimeConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// MaxReconnectDelay returns the backoff cap, or zero for a fixed delay.
func (c RealtimeConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(c.MaxReconnectDelayMs) * time.Millisecond
}

// Heartbeat returns the outgoing heartbeat interval.
func (c RealtimeConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

// DismissAfter returns how long a desktop notification stays on screen.
func (c NotificationsConfig) DismissAfter() time.Duration {
	return time.Duration(c.DismissAfterMs) * time.Millisecond
}

// PollInterval returns the unread-count poll interval.
func (c NotificationsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// SettleDelay returns the wait between expanding groups and filtering.
func (c NavigationConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// Timeout returns the REST call timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// ConfigDir returns ~/.config/worknotify.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "worknotify")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/worknotify/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8080/api",
			TimeoutSec: 10,
		},
		Realtime: RealtimeConfig{
			URL:              "ws://localhost:8080/ws",
			ReconnectDelayMs: 5000,
			HeartbeatMs:      4000,
		},
		Notifications: NotificationsConfig{
			Desktop:         true,
			Sound:           true,
			DismissAfterMs:  5000,
			ConfirmPolicy:   "keep",
			OfflineFallback: "samples",
			PollIntervalSec: 30,
		},
		Navigation: NavigationConfig{
			SettleDelayMs: 1000,
		},
		Display: DisplayConfig{
			Locale: "en-US",
			Theme:  "default",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			File:   filepath.Join(ConfigDir(), "worknotify.log"),
		},
	}
}

func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("user_id", cfg.UserID)
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout_sec", cfg.API.TimeoutSec)
	v.SetDefault("api.token", "")
	v.SetDefault("realtime.url", cfg.Realtime.URL)
	v.SetDefault("realtime.reconnect_delay_ms", cfg.Realtime.ReconnectDelayMs)
	v.SetDefault("realtime.max_reconnect_delay_ms", cfg.Realtime.MaxReconnectDelayMs)
	v.SetDefault("realtime.heartbeat_ms", cfg.Realtime.HeartbeatMs)
	v.SetDefault("notifications.desktop", cfg.Notifications.Desktop)
	v.SetDefault("notifications.sound", cfg.Notifications.Sound)
	v.SetDefault("notifications.dismiss_after_ms", cfg.Notifications.DismissAfterMs)
	v.SetDefault("notifications.confirm_policy", cfg.Notifications.ConfirmPolicy)
	v.SetDefault("notifications.offline_fallback", cfg.Notifications.OfflineFallback)
	v.SetDefault("notifications.poll_interval_sec", cfg.Notifications.PollIntervalSec)
	v.SetDefault("navigation.settle_delay_ms", cfg.Navigation.SettleDelayMs)
	v.SetDefault("display.locale", cfg.Display.Locale)
	v.SetDefault("display.theme", cfg.Display.Theme)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// layered under WORKNOTIFY_* environment variables. A .env file in the
// working directory is loaded first when present. If the config file does
// not exist, defaults and environment overrides still apply.
func LoadConfig(path string) (*AppConfig, error) {
	return LoadConfigWithFlags(path, nil)
}

// LoadConfigWithFlags is LoadConfig with the flags named in FlagKeys bound
// on top. A flag overrides every other source only when it was set.
func LoadConfigWithFlags(path string, flags *pflag.FlagSet) (*AppConfig, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	defaults := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, defaults)
	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.normalize(defaults)

	return cfg, nil
}

// normalize replaces out-of-range values with their defaults.
func (c *AppConfig) normalize(d *AppConfig) {
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = d.API.TimeoutSec
	}
	if c.Realtime.ReconnectDelayMs <= 0 {
		c.Realtime.ReconnectDelayMs = d.Realtime.ReconnectDelayMs
	}
	if c.Realtime.MaxReconnectDelayMs < 0 {
		c.Realtime.MaxReconnectDelayMs = 0
	}
	if c.Realtime.HeartbeatMs < 0 {
		c.Realtime.HeartbeatMs = 0
	}
	if c.Notifications.DismissAfterMs <= 0 {
		c.Notifications.DismissAfterMs = d.Notifications.DismissAfterMs
	}
	if c.Notifications.PollIntervalSec < 0 {
		c.Notifications.PollIntervalSec = 0
	}
	if c.Navigation.SettleDelayMs < 0 {
		c.Navigation.SettleDelayMs = d.Navigation.SettleDelayMs
	}

	c.Notifications.ConfirmPolicy = strings.ToLower(strings.TrimSpace(c.Notifications.ConfirmPolicy))
	switch c.Notifications.ConfirmPolicy {
	case "keep", "rollback":
	default:
		c.Notifications.ConfirmPolicy = d.Notifications.ConfirmPolicy
	}

	c.Notifications.OfflineFallback = strings.ToLower(strings.TrimSpace(c.Notifications.OfflineFallback))
	switch c.Notifications.OfflineFallback {
	case "samples", "empty":
	default:
		c.Notifications.OfflineFallback = d.Notifications.OfflineFallback
	}

	if c.Display.Locale == "" {
		c.Display.Locale = d.Display.Locale
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. The API token is never written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	api := cfg.API
	api.Token = ""

	v.Set("user_id", cfg.UserID)
	v.Set("api", api)
	v.Set("realtime", cfg.Realtime)
	v.Set("notifications", cfg.Notifications)
	v.Set("navigation", cfg.Navigation)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
