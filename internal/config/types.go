package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Config is the on-disk configuration.
//
// The top-level keys discord_token, channel_id, targets, check_interval and
// target_check_delay keep the names operators already use; everything else is
// optional and defaults to the values documented on each block.
type Config struct {
	DiscordToken     string    `json:"discord_token"`
	ChannelID        ChannelID `json:"channel_id"`
	Targets          []Target  `json:"targets"`
	CheckInterval    int       `json:"check_interval"`
	TargetCheckDelay *int      `json:"target_check_delay,omitempty"`

	// Schedule overrides CheckInterval when set (cron, "@every 1m", "90s" or "01:30").
	Schedule string `json:"schedule,omitempty"`
	// Mention is prepended to availability alerts, e.g. "<@348193800579186690>".
	Mention string `json:"mention,omitempty"`
	// Platform selects the chat transport: "discord" (default) or "telegram".
	Platform string `json:"platform,omitempty"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Fetch    *FetchConfig    `json:"fetch,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Logging  LoggingConfig   `json:"logging"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Ops      *OpsConfig      `json:"ops,omitempty"`
}

// Target is one monitored vendor URL.
type Target struct {
	URL             string `json:"url"`
	IdentifierType  string `json:"identifier_type,omitempty"`
	IdentifierValue string `json:"identifier_value,omitempty"`
	Name            string `json:"name,omitempty"`
	SaleURL         string `json:"sale_url,omitempty"`
	// Render fetches the page through a headless browser instead of plain HTTP.
	Render bool `json:"render,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ThreadID int    `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// FetchConfig tunes outbound vendor requests.
//
// Defaults: timeout "15s", a desktop Chrome User-Agent, zh-TW Accept-Language,
// max_body_bytes 8 MiB.
type FetchConfig struct {
	Timeout        string `json:"timeout,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	AcceptLanguage string `json:"accept_language,omitempty"`
	MaxBodyBytes   int64  `json:"max_body_bytes,omitempty"`
	// BrowserPath points at a Chrome/Chromium binary for targets with render=true.
	BrowserPath string `json:"browser_path,omitempty"`
}

// NotifierConfig controls alert delivery.
//
// All durations are Go duration strings.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional alert audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/alerts.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres only (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// OpsConfig controls the operator HTTP endpoints (/healthz, /status, pprof).
// Binding to a non-loopback addr requires token or allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
}

// ChannelID accepts either a JSON number or a numeric string.
type ChannelID int64

func (c *ChannelID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	raw := string(b)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("channel_id must be a valid number: %q", raw)
	}
	*c = ChannelID(n)
	return nil
}
