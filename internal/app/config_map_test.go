package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tixwatch/internal/config"
	"tixwatch/internal/storage"
	logx "tixwatch/pkg/logx"
)

func baseConfig() *config.Config {
	return &config.Config{
		DiscordToken:  "token",
		ChannelID:     123,
		Targets:       []config.Target{{URL: "https://ticketplus.com.tw/activity/x"}},
		CheckInterval: 60,
	}
}

func TestMapCadence(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	c, err := mapCadence(cfg)
	if err != nil {
		t.Fatalf("mapCadence error: %v", err)
	}
	if c.Every != time.Minute {
		t.Fatalf("Every = %v, want 1m", c.Every)
	}

	cfg.Schedule = "*/5 * * * *"
	c, err = mapCadence(cfg)
	if err != nil {
		t.Fatalf("mapCadence error: %v", err)
	}
	if c.Source != "cron" || c.Every != 0 {
		t.Fatalf("schedule did not override check_interval: %+v", c)
	}

	cfg.Schedule = "whenever"
	if _, err := mapCadence(cfg); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}

func TestValidateRuntimeWrapsErrInvalid(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	if err := validateRuntime(context.Background(), cfg); err != nil {
		t.Fatalf("validateRuntime error: %v", err)
	}
	cfg.Schedule = "@never"
	if err := validateRuntime(context.Background(), cfg); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	cfg = baseConfig()
	cfg.Storage = &config.StorageConfig{Driver: "mongo"}
	if err := validateRuntime(context.Background(), cfg); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      *config.StorageConfig
		enabled bool
		driver  string
		wantErr bool
	}{
		{name: "absent"},
		{name: "none", in: &config.StorageConfig{Driver: "none"}},
		{name: "file", in: &config.StorageConfig{Driver: "file", Path: "./data/alerts"}, enabled: true, driver: "file"},
		{name: "sqlite", in: &config.StorageConfig{Driver: "SQLite", Path: "a.db"}, enabled: true, driver: "sqlite"},
		{name: "sqlite without path", in: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "postgres", in: &config.StorageConfig{Driver: "postgresql", DSN: "postgres://u@h/db"}, enabled: true, driver: "postgres"},
		{name: "postgres without dsn", in: &config.StorageConfig{Driver: "postgres"}, wantErr: true},
		{name: "unknown", in: &config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Storage = tt.in
			sc, enabled, err := mapStorageConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if enabled != tt.enabled || sc.Driver != tt.driver {
				t.Fatalf("got (%+v, %v), want driver %q enabled %v", sc, enabled, tt.driver, tt.enabled)
			}
		})
	}
}

func TestMapSections(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Notifier = &config.NotifierConfig{RatePerSec: 5, SendTimeout: "3s", HistorySize: 10}
	cfg.Fetch = &config.FetchConfig{Timeout: "20s", UserAgent: " UA ", BrowserPath: "/usr/bin/chromium"}
	cfg.Telegram = &config.TelegramConfig{ThreadID: 9}

	nc, err := mapNotifierConfig(cfg)
	if err != nil || nc.RatePerSec != 5 || nc.SendTimeout != 3*time.Second || nc.HistorySize != 10 {
		t.Fatalf("mapNotifierConfig = %+v, %v", nc, err)
	}
	fc, browser, err := mapFetchConfig(cfg)
	if err != nil || fc.Timeout != 20*time.Second || fc.UserAgent != "UA" || browser != "/usr/bin/chromium" {
		t.Fatalf("mapFetchConfig = %+v, %q, %v", fc, browser, err)
	}
	if to := chatTarget(cfg); to.ChannelID != 123 || to.ThreadID != 9 {
		t.Fatalf("chatTarget = %+v", to)
	}
}

func TestRecentAlertsFromFileStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Storage = &config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "audit")}

	sc, _, err := mapStorageConfig(cfg)
	if err != nil {
		t.Fatalf("mapStorageConfig error: %v", err)
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	for _, name := range []string{"first", "second"} {
		if err := st.AppendAlert(context.Background(), storage.AlertRecord{At: time.Now(), URL: "https://x", Name: name, Delivered: true}); err != nil {
			t.Fatalf("AppendAlert error: %v", err)
		}
	}
	_ = st.Close()

	got, err := RecentAlerts(context.Background(), cfg, 10, logx.Nop())
	if err != nil {
		t.Fatalf("RecentAlerts error: %v", err)
	}
	if len(got) != 2 || got[0].Name != "second" {
		t.Fatalf("RecentAlerts = %+v", got)
	}

	cfg.Storage = nil
	if _, err := RecentAlerts(context.Background(), cfg, 10, logx.Nop()); !errors.Is(err, storage.ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"discord_token":"t","channel_id":"42","targets":[{"url":"https://ticketplus.com.tw/api/x"}],"check_interval":30,"schedule":"@every 45s"}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	c, err := Cadence(cfg)
	if err != nil || c.Every != 45*time.Second {
		t.Fatalf("Cadence = %+v, %v", c, err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"discord_token":"t"}`), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if _, err := LoadConfig(bad); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}
