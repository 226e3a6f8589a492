package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tixwatch/internal/eventbus"
	"tixwatch/internal/storage"
	"tixwatch/internal/transport"
	logx "tixwatch/pkg/logx"
)

var ErrDisabled = errors.New("notifier disabled")

const (
	defaultRatePerSec  = 3
	defaultSendTimeout = 10 * time.Second
	defaultHistorySize = 300
)

// Service sends notifications through a chat adapter.
//
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	to      transport.ChatTarget

	log     logx.Logger
	adapter transport.Adapter
	bus     eventbus.Bus
	store   storage.Store

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter transport.Adapter, to transport.ChatTarget, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		adapter: adapter,
		to:      to,
		log:     log,
		bus:     bus,
		store:   store,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SetTarget changes the destination channel.
func (s *Service) SetTarget(to transport.ChatTarget) {
	s.mu.Lock()
	s.to = to
	s.mu.Unlock()
}

func (s *Service) Target() transport.ChatTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.to
}

// Send delivers n and returns the delivery error, if any.
// Alerts are recorded in storage whether or not delivery succeeded.
func (s *Service) Send(ctx context.Context, n Notification) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	to := s.to
	ad := s.adapter
	s.mu.Unlock()

	if ad == nil {
		return ErrDisabled
	}
	if n.Message.Empty() {
		return nil
	}

	start := time.Now()
	err := lim.Wait(ctx)
	if err == nil {
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err = ad.Send(callCtx, to, n.Message)
		cancel()
	}

	s.appendHistory(n, err, cfg.HistorySize)
	s.publish(n, to, err)
	if n.Kind == KindAlert {
		s.audit(ctx, n, to, ad.Name(), err)
	}

	log := s.log.With(
		logx.String("kind", string(n.Kind)),
		logx.Int64("channel_id", to.ChannelID),
		logx.Duration("took", time.Since(start)),
	)
	if n.URL != "" {
		log = log.With(logx.String("url", n.URL))
	}
	if err != nil {
		if errors.Is(err, transport.ErrChannelNotFound) {
			log.Error("channel not found; check channel_id and bot permissions", logx.Err(err))
		} else {
			log.Error("notification failed", logx.Err(err))
		}
		return err
	}
	log.Info("notification sent")
	return nil
}

func (s *Service) publish(n Notification, to transport.ChatTarget, err error) {
	ev := NotificationEvent{Kind: n.Kind, URL: n.URL, ChannelID: to.ChannelID, At: time.Now()}
	typ := eventbus.NotifySent
	if err != nil {
		typ = eventbus.NotifyFailed
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) audit(ctx context.Context, n Notification, to transport.ChatTarget, platform string, sendErr error) {
	if s.store == nil {
		return
	}
	r := storage.AlertRecord{
		At:        time.Now(),
		URL:       n.URL,
		Name:      n.Name,
		Seats:     n.Seats,
		Platform:  platform,
		ChannelID: to.ChannelID,
		Delivered: sendErr == nil,
	}
	if sendErr != nil {
		r.Error = sendErr.Error()
	}
	// Detached from ctx so an alert sent during shutdown is still recorded.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.store.AppendAlert(actx, r); err != nil {
		s.log.Warn("alert audit write failed", logx.String("url", n.URL), logx.Err(err))
	}
}

// Snapshot returns recent sends, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(n Notification, err error, limit int) {
	text := n.Message.Text
	if text == "" && n.Message.Embed != nil {
		text = n.Message.Embed.Title
	}
	it := HistoryItem{At: time.Now(), Kind: n.Kind, URL: n.URL, Text: text}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}
