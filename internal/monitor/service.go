// Package monitor drives polling rounds over the configured targets and fires
// an alert on each target's unavailable→available edge.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"tixwatch/internal/eventbus"
	"tixwatch/internal/extract"
	"tixwatch/internal/fetch"
	"tixwatch/internal/notifier"
	"tixwatch/internal/transport"
	logx "tixwatch/pkg/logx"
)

const DefaultDelay = 2 * time.Second

// Notifier delivers a composed message. Errors are logged by the caller and
// never change tracker state.
type Notifier interface {
	Send(ctx context.Context, n notifier.Notification) error
}

// Options wires a Service. Fetcher and Extractor are required.
type Options struct {
	Fetcher   fetch.Fetcher
	Renderer  fetch.Fetcher // used for targets with Render set; falls back to Fetcher
	Extractor *extract.Registry
	Notifier  Notifier // nil disables alerts (dry runs)
	Tracker   *Tracker // nil means a fresh tracker
	Bus       eventbus.Bus
	Log       logx.Logger

	// Ready gates the first round, typically the chat adapter's Ready channel.
	Ready <-chan struct{}

	Targets []Target
	Cadence Cadence
	Delay   time.Duration
	Mention string
}

// TargetReport is the outcome of checking one target in one round.
type TargetReport struct {
	URL       string
	Name      string
	Matched   bool
	Available bool
	Edge      bool
	Notified  bool
	Seats     []extract.SeatArea
	Err       error
	Took      time.Duration
}

type RoundReport struct {
	ID      string
	Started time.Time
	Took    time.Duration
	Targets []TargetReport
}

// Available counts the targets reported available.
func (r RoundReport) Available() int {
	n := 0
	for _, t := range r.Targets {
		if t.Available {
			n++
		}
	}
	return n
}

// Service is the polling loop. Rounds run on a single goroutine and never overlap.
type Service struct {
	fetcher  fetch.Fetcher
	renderer fetch.Fetcher
	extract  *extract.Registry
	notify   Notifier
	tracker  *Tracker
	bus      eventbus.Bus
	log      logx.Logger
	ready    <-chan struct{}

	mu      sync.Mutex
	targets []Target
	cadence Cadence
	delay   time.Duration
	mention string

	// changed wakes a waiting loop so a new cadence is applied to the current wait.
	changed chan struct{}

	lastMu    sync.Mutex
	lastRound RoundReport
}

func New(opts Options) (*Service, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("monitor: fetcher is required")
	}
	if opts.Extractor == nil {
		return nil, errors.New("monitor: extractor is required")
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	tr := opts.Tracker
	if tr == nil {
		tr = NewTracker()
	}
	cad := opts.Cadence
	if cad.Schedule == nil && cad.Every <= 0 {
		cad = IntervalCadence(60 * time.Second)
	}
	delay := opts.Delay
	if delay < 0 {
		delay = 0
	}
	return &Service{
		fetcher:  opts.Fetcher,
		renderer: opts.Renderer,
		extract:  opts.Extractor,
		notify:   opts.Notifier,
		tracker:  tr,
		bus:      bus,
		log:      log,
		ready:    opts.Ready,
		targets:  append([]Target(nil), opts.Targets...),
		cadence:  cad,
		delay:    delay,
		mention:  opts.Mention,
		changed:  make(chan struct{}, 1),
	}, nil
}

// SetInterval switches to a fixed interval cadence.
func (s *Service) SetInterval(d time.Duration) { s.SetCadence(IntervalCadence(d)) }

// SetCadence takes effect for the wait that follows the current round.
func (s *Service) SetCadence(c Cadence) {
	if c.Schedule == nil && c.Every <= 0 {
		return
	}
	s.mu.Lock()
	s.cadence = c
	s.mu.Unlock()
	s.wake()
}

// SetSchedule parses spec with ParseSchedule and applies it as the cadence.
func (s *Service) SetSchedule(spec string) error {
	c, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	s.SetCadence(c)
	return nil
}

// SetTargets replaces the target list from the next round on.
// Tracker entries of removed targets are kept.
func (s *Service) SetTargets(ts []Target) {
	s.mu.Lock()
	s.targets = append([]Target(nil), ts...)
	s.mu.Unlock()
}

func (s *Service) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *Service) SetMention(m string) {
	s.mu.Lock()
	s.mention = m
	s.mu.Unlock()
}

func (s *Service) wake() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Service) Cadence() Cadence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence
}

// Snapshot returns the tracker state keyed by URL.
func (s *Service) Snapshot() map[string]bool { return s.tracker.Snapshot() }

// LastRound returns the report of the most recent completed round.
func (s *Service) LastRound() RoundReport {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.lastRound
}

// Run waits for Ready, posts the startup announcement, then runs rounds until
// ctx is cancelled. It returns nil on cancellation.
func (s *Service) Run(ctx context.Context) error {
	if s.ready != nil {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ready:
		}
	}

	s.announce(ctx)
	s.log.Info("monitor started",
		logx.String("cadence", s.Cadence().String()),
		logx.Int("targets", len(s.currentTargets())),
	)

	for {
		start := time.Now()
		s.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if !s.waitNext(ctx, start) {
			return nil
		}
	}
}

// waitNext blocks until the cadence allows the next round. A cadence change
// while waiting recomputes the deadline from the same round start.
func (s *Service) waitNext(ctx context.Context, start time.Time) bool {
	for {
		next := s.Cadence().Next(start)
		wait := time.Until(next)
		if wait <= 0 {
			return true
		}
		s.log.Debug("waiting for next round", logx.Duration("wait", wait), logx.Time("next", next))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-s.changed:
			t.Stop()
		case <-t.C:
			return true
		}
	}
}

func (s *Service) announce(ctx context.Context) {
	if s.notify == nil {
		return
	}
	err := s.notify.Send(ctx, notifier.Notification{
		Kind:    notifier.KindAnnouncement,
		Message: transport.Message{Text: StartupAnnouncement},
	})
	if err != nil {
		s.log.Error("startup announcement failed", logx.Err(err))
	}
}

func (s *Service) currentTargets() []Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targets
}

// RunOnce performs one round over all targets in configured order, pausing
// for the configured delay after each target.
func (s *Service) RunOnce(ctx context.Context) RoundReport {
	s.mu.Lock()
	targets := s.targets
	delay := s.delay
	mention := s.mention
	s.mu.Unlock()

	rep := RoundReport{ID: uuid.NewString(), Started: time.Now()}
	log := s.log.With(logx.String("round", rep.ID))
	s.bus.Publish(eventbus.Event{Type: eventbus.RoundStarted, Data: rep.ID})
	log.Debug("round started", logx.Int("targets", len(targets)))

	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		tr := s.checkTarget(ctx, log, t, mention)
		rep.Targets = append(rep.Targets, tr)
		s.bus.Publish(eventbus.Event{Type: eventbus.TargetChecked, Data: tr})

		if !sleepCtx(ctx, delay) {
			break
		}
	}

	rep.Took = time.Since(rep.Started)
	s.lastMu.Lock()
	s.lastRound = rep
	s.lastMu.Unlock()
	s.bus.Publish(eventbus.Event{Type: eventbus.RoundFinished, Data: rep})
	log.Info("round finished",
		logx.Int("targets", len(rep.Targets)),
		logx.Int("available", rep.Available()),
		logx.Duration("took", rep.Took),
	)
	return rep
}

// checkTarget never lets an error or panic escape; any failure records the
// target as unavailable for this round.
func (s *Service) checkTarget(ctx context.Context, log logx.Logger, t Target, mention string) (rep TargetReport) {
	start := time.Now()
	rep = TargetReport{URL: t.URL, Name: t.DisplayName}
	log = log.With(logx.String("url", t.URL))

	defer func() {
		if r := recover(); r != nil {
			log.Error("target check panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			rep.Err = fmt.Errorf("panic: %v", r)
			rep.Available = false
			s.tracker.Observe(t.URL, false)
		}
		rep.Took = time.Since(start)
		if rep.Err != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TargetFailed, Data: rep})
		}
	}()

	log.Info("checking target",
		logx.String("identifier_type", t.IdentifierType),
		logx.String("identifier_value", t.IdentifierValue),
	)

	page, err := s.fetcherFor(t).Fetch(ctx, t.URL)
	if err != nil {
		rep.Err = err
		s.tracker.Observe(t.URL, false)
		return rep
	}

	res, ok := s.extract.Extract(extract.Input{
		URL:             t.URL,
		IdentifierType:  t.IdentifierType,
		IdentifierValue: t.IdentifierValue,
		Page:            page,
	})
	if !ok {
		log.Warn("no availability result", logx.String("content_type", page.ContentType))
		s.tracker.Observe(t.URL, false)
		return rep
	}
	rep.Matched = true

	available, seats := Evaluate(res)
	rep.Available, rep.Seats = available, seats
	rep.Edge = s.tracker.Observe(t.URL, available)
	log.Debug("target evaluated",
		logx.Bool("available", available),
		logx.Int("open_areas", len(seats)),
		logx.Bool("edge", rep.Edge),
	)
	if !rep.Edge {
		return rep
	}

	name := AlertName(t, res)
	s.bus.Publish(eventbus.Event{Type: eventbus.AvailableEdge, Data: rep})
	log.Info("seats released", logx.String("name", name), logx.Int("open_areas", len(seats)))

	if s.notify == nil {
		return rep
	}
	err = s.notify.Send(ctx, notifier.Notification{
		Kind:    notifier.KindAlert,
		URL:     t.URL,
		Name:    name,
		Seats:   len(seats),
		Message: ComposeAlert(t, res, seats, mention),
	})
	if err != nil {
		log.Error("alert delivery failed", logx.Err(err))
		return rep
	}
	rep.Notified = true
	return rep
}

func (s *Service) fetcherFor(t Target) fetch.Fetcher {
	if t.Render && s.renderer != nil {
		return s.renderer
	}
	return s.fetcher
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
