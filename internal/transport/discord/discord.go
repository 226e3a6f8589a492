// Package discord delivers notifications through a Discord bot session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"tixwatch/internal/transport"
	logx "tixwatch/pkg/logx"
)

const textLimit = 2000

// poster is the part of *discordgo.Session used by Send.
type poster interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Adapter struct {
	token string
	log   logx.Logger

	mu      sync.Mutex
	session *discordgo.Session
	post    poster
	ready   chan struct{}
	once    sync.Once
}

func New(token string, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("discord token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		token: strings.TrimSpace(token),
		log:   log.With(logx.String("comp", "discord")),
		ready: make(chan struct{}),
	}, nil
}

func (a *Adapter) Name() string { return "discord" }

// Ready is closed on the gateway READY event.
func (a *Adapter) Ready() <-chan struct{} { return a.ready }

// Start validates the token with GET /users/@me and opens the gateway.
// A rejected token is reported as transport.ErrAuth.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return nil
	}

	s, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	me, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", transport.ErrAuth, err)
		}
		return fmt.Errorf("discord login: %w", err)
	}

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.log.Info("gateway ready", logx.String("user", r.User.Username), logx.Int("guilds", len(r.Guilds)))
		a.once.Do(func() { close(a.ready) })
	})
	if err := s.Open(); err != nil {
		return fmt.Errorf("discord gateway: %w", err)
	}

	a.session = s
	a.post = s
	a.log.Info("logged in", logx.String("user", me.Username))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	s := a.session
	a.session, a.post = nil, nil
	a.mu.Unlock()
	if s == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.Close() }()
	select {
	case err := <-done:
		a.log.Info("stopped")
		return err
	case <-ctx.Done():
		a.log.Warn("discord close timed out", logx.Err(ctx.Err()))
		return nil
	}
}

// Send resolves the channel, then posts the embed followed by the text.
func (a *Adapter) Send(ctx context.Context, to transport.ChatTarget, msg transport.Message) error {
	a.mu.Lock()
	p := a.post
	a.mu.Unlock()
	if p == nil {
		return transport.ErrNotReady
	}
	return send(ctx, p, to, msg)
}

func send(ctx context.Context, p poster, to transport.ChatTarget, msg transport.Message) error {
	if msg.Empty() {
		return nil
	}
	id := strconv.FormatInt(to.ChannelID, 10)
	opt := discordgo.WithContext(ctx)

	if _, err := p.Channel(id, opt); err != nil {
		if isUnknownChannel(err) {
			return fmt.Errorf("%w: %s: %v", transport.ErrChannelNotFound, id, err)
		}
		return fmt.Errorf("resolve channel %s: %w", id, err)
	}

	if e := msg.Embed; e != nil {
		_, err := p.ChannelMessageSendEmbed(id, &discordgo.MessageEmbed{
			Title: e.Title,
			URL:   e.URL,
			Color: int(e.Color),
		}, opt)
		if err != nil {
			return fmt.Errorf("send embed: %w", err)
		}
	}
	for _, chunk := range splitText(msg.Text, textLimit) {
		if chunk == "" {
			continue
		}
		if _, err := p.ChannelMessageSend(id, chunk, opt); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}
	return nil
}

func statusOf(err error) int {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}
	return 0
}

func isUnknownChannel(err error) bool {
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return false
	}
	if re.Message != nil && re.Message.Code == discordgo.ErrCodeUnknownChannel {
		return true
	}
	return re.Response != nil && (re.Response.StatusCode == http.StatusNotFound || re.Response.StatusCode == http.StatusForbidden)
}

// splitText cuts s into pieces of at most limit runes on line boundaries where possible.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for len(rs) > limit {
		cut := limit
		for i := limit - 1; i > limit/3; i-- {
			if rs[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(rs[:cut]))
		rs = rs[cut:]
	}
	if len(rs) > 0 {
		out = append(out, string(rs))
	}
	return out
}
