package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalid marks a configuration that cannot start the bot.
var ErrInvalid = errors.New("invalid config")

const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"

	DefaultTargetCheckDelay = 2
)

// Validate checks required fields and value ranges. Every failure wraps ErrInvalid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var problems []string
	missing := func(field string) { problems = append(problems, "missing "+field) }

	switch cfg.PlatformName() {
	case PlatformDiscord:
		if strings.TrimSpace(cfg.DiscordToken) == "" {
			missing("discord_token")
		}
	case PlatformTelegram:
		if cfg.Telegram == nil || strings.TrimSpace(cfg.Telegram.Token) == "" {
			missing("telegram.token")
		}
	default:
		problems = append(problems, fmt.Sprintf("platform: unknown %q", cfg.Platform))
	}
	if cfg.ChannelID == 0 {
		missing("channel_id")
	}
	if len(cfg.Targets) == 0 {
		missing("targets")
	}
	if cfg.CheckInterval == 0 {
		missing("check_interval")
	} else if cfg.CheckInterval < 0 {
		problems = append(problems, "check_interval must be > 0")
	}
	if cfg.TargetCheckDelay != nil && *cfg.TargetCheckDelay < 0 {
		problems = append(problems, "target_check_delay must be >= 0")
	}

	seen := make(map[string]int, len(cfg.Targets))
	for i, t := range cfg.Targets {
		u := strings.TrimSpace(t.URL)
		if u == "" {
			problems = append(problems, fmt.Sprintf("targets[%d].url is required", i))
			continue
		}
		if pu, err := url.Parse(u); err != nil || pu.Scheme == "" || pu.Host == "" {
			problems = append(problems, fmt.Sprintf("targets[%d].url: not an absolute url %q", i, u))
		}
		if j, dup := seen[u]; dup {
			problems = append(problems, fmt.Sprintf("targets[%d].url duplicates targets[%d]", i, j))
		}
		seen[u] = i
	}

	if cfg.Fetch != nil {
		if _, err := ParseDurationField("fetch.timeout", cfg.Fetch.Timeout); err != nil {
			problems = append(problems, err.Error())
		}
		if cfg.Fetch.MaxBodyBytes < 0 {
			problems = append(problems, "fetch.max_body_bytes must be >= 0")
		}
	}
	if cfg.Notifier != nil {
		if _, err := ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout); err != nil {
			problems = append(problems, err.Error())
		}
		if cfg.Notifier.RatePerSec < 0 {
			problems = append(problems, "notifier.rate_per_sec must be >= 0")
		}
	}
	if cfg.Telegram != nil {
		if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if cfg.Ops != nil {
		if _, err := ParseDurationField("ops.read_timeout", cfg.Ops.ReadTimeout); err != nil {
			problems = append(problems, err.Error())
		}
		if _, err := ParseDurationField("ops.write_timeout", cfg.Ops.WriteTimeout); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// PlatformName returns the normalized chat platform.
func (c *Config) PlatformName() string {
	p := strings.ToLower(strings.TrimSpace(c.Platform))
	if p == "" {
		return PlatformDiscord
	}
	return p
}

// Interval returns check_interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

// Delay returns target_check_delay as a duration (default 2s).
func (c *Config) Delay() time.Duration {
	if c.TargetCheckDelay == nil {
		return DefaultTargetCheckDelay * time.Second
	}
	return time.Duration(*c.TargetCheckDelay) * time.Second
}

// ParseDurationField parses a Go duration string. Empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for empty/zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
