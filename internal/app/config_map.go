package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tixwatch/internal/config"
	"tixwatch/internal/fetch"
	"tixwatch/internal/monitor"
	"tixwatch/internal/notifier"
	"tixwatch/internal/observability/ops"
	"tixwatch/internal/storage"
	"tixwatch/internal/transport"
	logx "tixwatch/pkg/logx"
)

// validateRuntime checks the fields whose parsers live outside the config
// package. It runs at startup and before a hot reload is committed.
func validateRuntime(_ context.Context, cfg *config.Config) error {
	if _, err := mapCadence(cfg); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return nil
}

// mapCadence prefers schedule over check_interval.
func mapCadence(cfg *config.Config) (monitor.Cadence, error) {
	if s := strings.TrimSpace(cfg.Schedule); s != "" {
		c, err := monitor.ParseSchedule(s)
		if err != nil {
			return monitor.Cadence{}, fmt.Errorf("schedule: %w", err)
		}
		return c, nil
	}
	return monitor.IntervalCadence(cfg.Interval()), nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	case "postgres", "postgresql":
		if strings.TrimSpace(sc.DSN) == "" {
			return storage.Config{}, false, fmt.Errorf("storage.dsn is required when storage.driver=postgres")
		}
		return storage.Config{Driver: "postgres", DSN: strings.TrimSpace(sc.DSN)}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := notifier.Config{}
	if cfg.Notifier == nil {
		return nc, nil
	}
	timeout, err := config.ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout)
	if err != nil {
		return nc, err
	}
	nc.RatePerSec = cfg.Notifier.RatePerSec
	nc.SendTimeout = timeout
	nc.HistorySize = cfg.Notifier.HistorySize
	return nc, nil
}

func mapFetchConfig(cfg *config.Config) (fetch.Config, string, error) {
	fc := fetch.Config{}
	if cfg.Fetch == nil {
		return fc, "", nil
	}
	timeout, err := config.ParseDurationField("fetch.timeout", cfg.Fetch.Timeout)
	if err != nil {
		return fc, "", err
	}
	fc.Timeout = timeout
	fc.UserAgent = strings.TrimSpace(cfg.Fetch.UserAgent)
	fc.AcceptLanguage = strings.TrimSpace(cfg.Fetch.AcceptLanguage)
	fc.MaxBodyBytes = cfg.Fetch.MaxBodyBytes
	return fc, strings.TrimSpace(cfg.Fetch.BrowserPath), nil
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	if cfg.Ops == nil {
		return ops.Config{}, nil
	}
	rt, err := config.ParseDurationOrDefault("ops.read_timeout", cfg.Ops.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	// profile and trace stream for up to 30s by default
	wt, err := config.ParseDurationOrDefault("ops.write_timeout", cfg.Ops.WriteTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          strings.TrimSpace(cfg.Ops.Addr),
		Token:         strings.TrimSpace(cfg.Ops.Token),
		AllowInsecure: cfg.Ops.AllowInsecure,
		Pprof:         cfg.Ops.Pprof,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
	}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func chatTarget(cfg *config.Config) transport.ChatTarget {
	to := transport.ChatTarget{ChannelID: int64(cfg.ChannelID)}
	if cfg.Telegram != nil {
		to.ThreadID = cfg.Telegram.ThreadID
	}
	return to
}

// needsRenderer reports whether any target asks for a headless browser.
func needsRenderer(ts []monitor.Target) bool {
	for _, t := range ts {
		if t.Render {
			return true
		}
	}
	return false
}
