package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file, no extra dependencies
//   - "sqlite": SQLite database file (build tag sqlite)
//   - "postgres": PostgreSQL via DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AlertRecord is one fired availability alert.
// Keep it compact and schema-stable.
type AlertRecord struct {
	At        time.Time `json:"at"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Seats     int       `json:"seats"`
	Platform  string    `json:"platform,omitempty"`
	ChannelID int64     `json:"channel_id"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
}
