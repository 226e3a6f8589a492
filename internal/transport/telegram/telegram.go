// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"tixwatch/internal/transport"
	logx "tixwatch/pkg/logx"
)

const textLimit = 4096

type Config struct {
	Token       string
	PollTimeout time.Duration
	// ThreadID is the default forum topic when a ChatTarget carries none.
	ThreadID int
}

// Adapter is send-only; it never polls for updates.
type Adapter struct {
	cfg Config
	log logx.Logger

	mu    sync.Mutex
	bot   *tele.Bot
	ready chan struct{}
	once  sync.Once

	// newBot is replaced in tests.
	newBot func(tele.Settings) (*tele.Bot, error)
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "telegram")),
		ready:  make(chan struct{}),
		newBot: tele.NewBot,
	}, nil
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) Ready() <-chan struct{} { return a.ready }

// Start logs in with getMe. A rejected token is reported as transport.ErrAuth.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := a.newBot(tele.Settings{
		Token:  a.cfg.Token,
		Poller: &tele.LongPoller{Timeout: a.cfg.PollTimeout},
	})
	if err != nil {
		if isUnauthorized(err) {
			return fmt.Errorf("%w: %v", transport.ErrAuth, err)
		}
		return fmt.Errorf("telegram login: %w", err)
	}
	a.bot = b
	if b.Me != nil {
		a.log.Info("logged in", logx.String("user", b.Me.Username))
	}
	a.once.Do(func() { close(a.ready) })
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	b := a.bot
	a.bot = nil
	a.mu.Unlock()
	if b == nil {
		a.log.Debug("telegram stop called but not running")
		return nil
	}
	// No poller was started, so there is nothing to drain.
	a.log.Info("stopped", logx.Bool("ctx_done", ctx.Err() != nil))
	return nil
}

// Send posts the embed as a bold link line followed by the text, split at the
// Telegram message limit. An unknown chat is reported as transport.ErrChannelNotFound.
func (a *Adapter) Send(ctx context.Context, to transport.ChatTarget, msg transport.Message) error {
	a.mu.Lock()
	b := a.bot
	a.mu.Unlock()
	if b == nil {
		return transport.ErrNotReady
	}
	if msg.Empty() {
		return nil
	}

	thread := to.ThreadID
	if thread == 0 {
		thread = a.cfg.ThreadID
	}
	chat := &tele.Chat{ID: to.ChannelID}
	for _, chunk := range splitText(Render(msg), textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := b.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
			ThreadID:              thread,
		})
		if err != nil {
			if isChatNotFound(err) {
				return fmt.Errorf("%w: %d: %v", transport.ErrChannelNotFound, to.ChannelID, err)
			}
			return err
		}
	}
	return nil
}

// Render formats msg as Telegram HTML.
func Render(msg transport.Message) string {
	var b strings.Builder
	if e := msg.Embed; e != nil && e.Title != "" {
		b.WriteString("<b>")
		if e.URL != "" {
			b.WriteString(`<a href="`)
			b.WriteString(html.EscapeString(e.URL))
			b.WriteString(`">`)
			b.WriteString(html.EscapeString(e.Title))
			b.WriteString("</a>")
		} else {
			b.WriteString(html.EscapeString(e.Title))
		}
		b.WriteString("</b>")
		if msg.Text != "" {
			b.WriteString("\n\n")
		}
	}
	b.WriteString(html.EscapeString(msg.Text))
	return b.String()
}

func isUnauthorized(err error) bool {
	if errors.Is(err, tele.ErrUnauthorized) {
		return true
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code == 401 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unauthorized")
}

func isChatNotFound(err error) bool {
	if errors.Is(err, tele.ErrChatNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "chat not found")
}

// splitText splits s into chunks of at most limit runes, preferring newline
// boundaries and never cutting inside an HTML tag or entity.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// avoid tiny chunks
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}

			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}

			// Escaped text has no bare '&', so an unterminated one starts an entity.
			for i := end - 1; i > start; i-- {
				if rs[i] == ';' {
					break
				}
				if rs[i] == '&' {
					end = i
					break
				}
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
