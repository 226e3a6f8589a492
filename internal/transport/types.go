package transport

import (
	"context"
	"errors"
)

var (
	// ErrAuth is returned by Adapter.Start when the platform rejects the bot token.
	ErrAuth = errors.New("chat login rejected")
	// ErrChannelNotFound is returned by Adapter.Send when the target channel
	// cannot be resolved (unknown id or missing permissions).
	ErrChannelNotFound = errors.New("chat channel not found")
	// ErrNotReady is returned when Send is called before Start completed.
	ErrNotReady = errors.New("chat adapter not ready")
)

// ChatTarget addresses a channel (Discord) or chat (Telegram).
// ThreadID is a Telegram forum topic; 0 if none.
type ChatTarget struct {
	ChannelID int64
	ThreadID  int
}

// Color is a 24-bit RGB value used for embed accents.
type Color int

const ColorGreen Color = 0x2ecc71

// Embed is a platform-neutral rich card.
type Embed struct {
	Title string
	URL   string
	Color Color
}

// Message is one outbound notification. Either field may be empty, not both.
type Message struct {
	Text  string
	Embed *Embed
}

func (m Message) Empty() bool { return m.Text == "" && m.Embed == nil }

// Adapter is the chat platform connection consumed by the notifier.
//
// Start performs login; a rejected token must surface as ErrAuth.
// Ready is closed once the connection can deliver messages.
type Adapter interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ready() <-chan struct{}
	Send(ctx context.Context, to ChatTarget, msg Message) error
}
