// Package config provides YAML-based configuration loading for deskmirror.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level deskmirror configuration, loaded from config.yaml.
type Config struct {
	SD     SDConfig     `yaml:"sd"`
	DB     DBConfig     `yaml:"db"`
	Sync   SyncConfig   `yaml:"sync"`
	Notify NotifyConfig `yaml:"notify"`
	Status StatusConfig `yaml:"status"`
	Log    LogConfig    `yaml:"log"`
}

// SDConfig holds connection settings for the ServiceDesk REST API.
type SDConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIPrefix      string `yaml:"api_prefix"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-request timeout for SD calls.
func (c SDConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DBConfig selects and configures the datastore backend.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// SyncConfig holds per-worker intervals and retention settings.
type SyncConfig struct {
	PollIntervalSeconds       int `yaml:"poll_interval_seconds"`
	ExecutorIntervalSeconds   int `yaml:"executor_interval_seconds"`
	DispatcherIntervalSeconds int `yaml:"dispatcher_interval_seconds"`
	ReauthIntervalSeconds     int `yaml:"reauth_interval_seconds"`
	CleanupIntervalSeconds    int `yaml:"cleanup_interval_seconds"`

	// ReauthMarginSeconds is how far before token expiry the reauth
	// worker refreshes a session.
	ReauthMarginSeconds int  `yaml:"reauth_margin_seconds"`
	ReauthOnStartup     bool `yaml:"reauth_on_startup"`

	SessionTTLMinutes   int `yaml:"session_ttl_minutes"`
	DoneRetentionDays   int `yaml:"done_retention_days"`
	TickDeadlineSeconds int `yaml:"tick_deadline_seconds"`

	// Paged list walking against the SD list endpoint.
	PageSize int `yaml:"page_size"`
	MaxPages int `yaml:"max_pages"`

	// CompactSchedule is a 5-field cron expression; empty disables
	// store compaction.
	CompactSchedule string `yaml:"compact_schedule"`
}

// PollInterval returns the poller worker interval.
func (c SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ExecutorInterval returns the executor sync worker interval.
func (c SyncConfig) ExecutorInterval() time.Duration {
	return time.Duration(c.ExecutorIntervalSeconds) * time.Second
}

// DispatcherInterval returns the dispatcher sync worker interval.
func (c SyncConfig) DispatcherInterval() time.Duration {
	return time.Duration(c.DispatcherIntervalSeconds) * time.Second
}

// ReauthInterval returns the reauth worker interval.
func (c SyncConfig) ReauthInterval() time.Duration {
	return time.Duration(c.ReauthIntervalSeconds) * time.Second
}

// CleanupInterval returns the cleanup worker interval.
func (c SyncConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// ReauthMargin returns the token refresh safety margin.
func (c SyncConfig) ReauthMargin() time.Duration {
	return time.Duration(c.ReauthMarginSeconds) * time.Second
}

// SessionTTL returns the session idle eviction horizon.
func (c SyncConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// DoneRetention returns the done-ticket retention horizon.
func (c SyncConfig) DoneRetention() time.Duration {
	return time.Duration(c.DoneRetentionDays) * 24 * time.Hour
}

// TickDeadline returns the soft deadline for a single worker tick.
func (c SyncConfig) TickDeadline() time.Duration {
	return time.Duration(c.TickDeadlineSeconds) * time.Second
}

// NotifyConfig selects the notification sink backend.
type NotifyConfig struct {
	Backend string        `yaml:"backend"` // "log" (default), "slack", "discord"
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds the Slack sink credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds the Discord sink credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// StatusConfig configures the read-only status HTTP endpoint.
type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Pretty bool   `yaml:"pretty"` // console writer instead of JSON
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.SD.APIPrefix == "" {
		c.SD.APIPrefix = "/api/v1"
	}
	if c.SD.TimeoutSeconds == 0 {
		c.SD.TimeoutSeconds = 15
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "deskmirror.sqlite3"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.User == "" {
		c.DB.User = "root"
	}
	if c.DB.Database == "" {
		c.DB.Database = "deskmirror"
	}
	if c.Sync.PollIntervalSeconds == 0 {
		c.Sync.PollIntervalSeconds = 300
	}
	if c.Sync.ExecutorIntervalSeconds == 0 {
		c.Sync.ExecutorIntervalSeconds = 300
	}
	if c.Sync.DispatcherIntervalSeconds == 0 {
		c.Sync.DispatcherIntervalSeconds = 300
	}
	if c.Sync.ReauthIntervalSeconds == 0 {
		c.Sync.ReauthIntervalSeconds = 60
	}
	if c.Sync.CleanupIntervalSeconds == 0 {
		c.Sync.CleanupIntervalSeconds = 300
	}
	if c.Sync.ReauthMarginSeconds == 0 {
		c.Sync.ReauthMarginSeconds = 600
	}
	if c.Sync.SessionTTLMinutes == 0 {
		// Every successful sync refreshes last_seen_at, so this only
		// evicts sessions that have not synced for a week.
		c.Sync.SessionTTLMinutes = 7 * 24 * 60
	}
	if c.Sync.DoneRetentionDays == 0 {
		c.Sync.DoneRetentionDays = 30
	}
	if c.Sync.TickDeadlineSeconds == 0 {
		c.Sync.TickDeadlineSeconds = 120
	}
	if c.Sync.PageSize == 0 {
		c.Sync.PageSize = 25
	}
	if c.Sync.MaxPages == 0 {
		c.Sync.MaxPages = 5
	}
	if c.Notify.Backend == "" {
		c.Notify.Backend = "log"
	}
	if c.Status.Port == 0 {
		c.Status.Port = 8090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.SD.BaseURL == "" {
		errs = append(errs, "sd.base_url is required")
	}
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite, mysql)", c.DB.Driver))
	}
	switch c.Notify.Backend {
	case "log":
	case "slack":
		if c.Notify.Slack.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required for the slack backend")
		}
		if c.Notify.Slack.ChannelID == "" {
			errs = append(errs, "notify.slack.channel_id is required for the slack backend")
		}
	case "discord":
		if c.Notify.Discord.BotToken == "" {
			errs = append(errs, "notify.discord.bot_token is required for the discord backend")
		}
		if c.Notify.Discord.ChannelID == "" {
			errs = append(errs, "notify.discord.channel_id is required for the discord backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("notify.backend %q is not supported (log, slack, discord)", c.Notify.Backend))
	}
	if c.Sync.ReauthMarginSeconds < 0 {
		errs = append(errs, "sync.reauth_margin_seconds must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
