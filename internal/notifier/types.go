package notifier

import (
	"time"

	"tixwatch/internal/transport"
)

// Config controls delivery.
type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
	HistorySize int
}

type Kind string

const (
	KindAlert        Kind = "alert"
	KindAnnouncement Kind = "announcement"
)

// Notification is one outbound message. URL, Name and Seats describe the
// target for alerts and are empty for announcements.
type Notification struct {
	Kind    Kind
	URL     string
	Name    string
	Seats   int
	Message transport.Message
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Kind  Kind      `json:"kind"`
	URL   string    `json:"url"`
	Text  string    `json:"text"`
	Error string    `json:"error,omitempty"`
}

// NotificationEvent is emitted on the event bus for delivery outcomes.
type NotificationEvent struct {
	Kind      Kind      `json:"kind"`
	URL       string    `json:"url,omitempty"`
	ChannelID int64     `json:"channel_id"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
