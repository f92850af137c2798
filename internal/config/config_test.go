package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
sd:
  base_url: https://sd.example.com
  api_prefix: /api/v2
  timeout_seconds: 20

db:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: mirror
  password: hunter2
  database: deskmirror_prod

sync:
  poll_interval_seconds: 120
  executor_interval_seconds: 180
  dispatcher_interval_seconds: 240
  reauth_interval_seconds: 30
  cleanup_interval_seconds: 600
  reauth_margin_seconds: 900
  reauth_on_startup: true
  session_ttl_minutes: 90
  done_retention_days: 14
  tick_deadline_seconds: 60
  page_size: 50
  max_pages: 10
  compact_schedule: "0 3 * * 0"

notify:
  backend: slack
  slack:
    bot_token: xoxb-test
    channel_id: C12345

status:
  enabled: true
  port: 9090

log:
  level: debug
  pretty: true
`

const minimalYAML = `
sd:
  base_url: https://sd.example.com
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SD.BaseURL != "https://sd.example.com" {
		t.Errorf("SD.BaseURL = %q", cfg.SD.BaseURL)
	}
	if cfg.SD.APIPrefix != "/api/v2" {
		t.Errorf("SD.APIPrefix = %q, want /api/v2", cfg.SD.APIPrefix)
	}
	if cfg.SD.Timeout() != 20*time.Second {
		t.Errorf("SD.Timeout() = %v, want 20s", cfg.SD.Timeout())
	}
	if cfg.DB.Driver != "mysql" {
		t.Errorf("DB.Driver = %q, want mysql", cfg.DB.Driver)
	}
	if cfg.DB.Port != 3307 {
		t.Errorf("DB.Port = %d, want 3307", cfg.DB.Port)
	}
	if cfg.DB.Password != "hunter2" {
		t.Errorf("DB.Password = %q, want hunter2", cfg.DB.Password)
	}
	if cfg.Sync.PollInterval() != 2*time.Minute {
		t.Errorf("PollInterval() = %v, want 2m", cfg.Sync.PollInterval())
	}
	if cfg.Sync.ReauthMargin() != 15*time.Minute {
		t.Errorf("ReauthMargin() = %v, want 15m", cfg.Sync.ReauthMargin())
	}
	if !cfg.Sync.ReauthOnStartup {
		t.Error("ReauthOnStartup = false, want true")
	}
	if cfg.Sync.SessionTTL() != 90*time.Minute {
		t.Errorf("SessionTTL() = %v, want 90m", cfg.Sync.SessionTTL())
	}
	if cfg.Sync.DoneRetention() != 14*24*time.Hour {
		t.Errorf("DoneRetention() = %v, want 336h", cfg.Sync.DoneRetention())
	}
	if cfg.Sync.CompactSchedule != "0 3 * * 0" {
		t.Errorf("CompactSchedule = %q", cfg.Sync.CompactSchedule)
	}
	if cfg.Notify.Backend != "slack" {
		t.Errorf("Notify.Backend = %q, want slack", cfg.Notify.Backend)
	}
	if !cfg.Status.Enabled || cfg.Status.Port != 9090 {
		t.Errorf("Status = %+v, want enabled on 9090", cfg.Status)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Pretty {
		t.Errorf("Log = %+v, want pretty debug", cfg.Log)
	}
}

func TestParse_MinimalDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SD.APIPrefix != "/api/v1" {
		t.Errorf("SD.APIPrefix = %q, want /api/v1", cfg.SD.APIPrefix)
	}
	if cfg.SD.Timeout() != 15*time.Second {
		t.Errorf("SD.Timeout() = %v, want 15s", cfg.SD.Timeout())
	}
	if cfg.DB.Driver != "sqlite" {
		t.Errorf("DB.Driver = %q, want sqlite", cfg.DB.Driver)
	}
	if cfg.DB.Path != "deskmirror.sqlite3" {
		t.Errorf("DB.Path = %q", cfg.DB.Path)
	}
	if cfg.Sync.PollInterval() != 5*time.Minute {
		t.Errorf("PollInterval() = %v, want 5m", cfg.Sync.PollInterval())
	}
	if cfg.Sync.ReauthInterval() != time.Minute {
		t.Errorf("ReauthInterval() = %v, want 1m", cfg.Sync.ReauthInterval())
	}
	if cfg.Sync.ReauthMargin() != 10*time.Minute {
		t.Errorf("ReauthMargin() = %v, want 10m", cfg.Sync.ReauthMargin())
	}
	if cfg.Sync.SessionTTL() != 7*24*time.Hour {
		t.Errorf("SessionTTL() = %v, want 7d", cfg.Sync.SessionTTL())
	}
	if cfg.Sync.DoneRetention() != 30*24*time.Hour {
		t.Errorf("DoneRetention() = %v, want 720h", cfg.Sync.DoneRetention())
	}
	if cfg.Sync.PageSize != 25 || cfg.Sync.MaxPages != 5 {
		t.Errorf("paging = %d/%d, want 25/5", cfg.Sync.PageSize, cfg.Sync.MaxPages)
	}
	if cfg.Notify.Backend != "log" {
		t.Errorf("Notify.Backend = %q, want log", cfg.Notify.Backend)
	}
	if cfg.Status.Port != 8090 {
		t.Errorf("Status.Port = %d, want 8090", cfg.Status.Port)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing base url",
			yaml:    "db:\n  driver: sqlite\n",
			wantErr: "sd.base_url is required",
		},
		{
			name:    "bad driver",
			yaml:    minimalYAML + "db:\n  driver: postgres\n",
			wantErr: "db.driver",
		},
		{
			name:    "bad notify backend",
			yaml:    minimalYAML + "notify:\n  backend: carrier-pigeon\n",
			wantErr: "notify.backend",
		},
		{
			name:    "slack without token",
			yaml:    minimalYAML + "notify:\n  backend: slack\n",
			wantErr: "notify.slack.bot_token is required",
		},
		{
			name:    "discord without channel",
			yaml:    minimalYAML + "notify:\n  backend: discord\n  discord:\n    bot_token: abc\n",
			wantErr: "notify.discord.channel_id is required",
		},
		{
			name:    "not yaml",
			yaml:    "{{{",
			wantErr: "config: parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SD.BaseURL != "https://sd.example.com" {
		t.Errorf("SD.BaseURL = %q", cfg.SD.BaseURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q", err)
	}
}
