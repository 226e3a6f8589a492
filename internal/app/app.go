package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tixwatch/internal/config"
	"tixwatch/internal/eventbus"
	"tixwatch/internal/extract"
	"tixwatch/internal/fetch"
	"tixwatch/internal/monitor"
	"tixwatch/internal/notifier"
	"tixwatch/internal/observability/ops"
	"tixwatch/internal/runtime/supervisor"
	"tixwatch/internal/storage"
	"tixwatch/internal/transport"
	"tixwatch/internal/transport/discord"
	"tixwatch/internal/transport/telegram"
	logx "tixwatch/pkg/logx"
)

// restartRequired lists config sections that are only read at startup.
var restartRequired = map[string]bool{
	"discord_token": true,
	"platform":      true,
	"telegram":      true,
	"fetch":         true,
	"storage":       true,
}

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  transport.Adapter
	fetcher  *fetch.Client
	renderer *fetch.Renderer
	notif    *notifier.Service
	mon      *monitor.Service
	ops      *ops.Server
}

// New loads and validates the config and wires every component. Nothing
// touches the network until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateRuntime(context.Background(), cfg); err != nil {
		return nil, err
	}

	// Chat logging needs the adapter as its sink, so it is enabled only after
	// the sink is attached.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logSvc, root := logx.New(bootCfg)
	log := root.With(logx.String("comp", "app"))

	ad, err := newAdapter(cfg, root)
	if err != nil {
		return nil, err
	}
	to := chatTarget(cfg)
	logSvc.SetChatSink(ad, to)
	logSvc.Apply(logCfg)

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	notif := notifier.New(ncfg, ad, to, root.With(logx.String("comp", "notifier")), bus, store)

	fcfg, browserPath, err := mapFetchConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	fetcher := fetch.NewClient(fcfg, root.With(logx.String("comp", "fetch")))
	renderer := fetch.NewRenderer(fcfg, browserPath, root.With(logx.String("comp", "render")))

	cad, err := mapCadence(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	targets := monitor.TargetsFromConfig(cfg.Targets)
	mon, err := monitor.New(monitor.Options{
		Fetcher:   fetcher,
		Renderer:  renderer,
		Extractor: extract.Default(root.With(logx.String("comp", "extract"))),
		Notifier:  notif,
		Bus:       bus,
		Log:       root.With(logx.String("comp", "monitor")),
		Ready:     ad.Ready(),
		Targets:   targets,
		Cadence:   cad,
		Delay:     cfg.Delay(),
		Mention:   cfg.Mention,
	})
	if err != nil {
		return nil, err
	}
	if needsRenderer(targets) {
		log.Info("headless rendering enabled for some targets")
	}
	opsCfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		fetcher:  fetcher,
		renderer: renderer,
		notif:    notif,
		mon:      mon,
	}
	a.ops = ops.New(opsCfg, func() any { return a.Status() }, root.With(logx.String("comp", "ops")))
	return a, nil
}

func newAdapter(cfg *config.Config, log logx.Logger) (transport.Adapter, error) {
	switch cfg.PlatformName() {
	case config.PlatformTelegram:
		tc := telegram.Config{Token: cfg.Telegram.Token, ThreadID: cfg.Telegram.ThreadID}
		pt, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		tc.PollTimeout = pt
		return telegram.New(tc, log)
	default:
		return discord.New(cfg.DiscordToken, log)
	}
}

func (a *App) Monitor() *monitor.Service { return a.mon }

func (a *App) Notifier() *notifier.Service { return a.notif }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start logs in to the chat platform and launches the monitor loop and the
// config watcher. A rejected token is returned as transport.ErrAuth.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateRuntime)

	if err := a.adapter.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}
	a.log.Info("chat adapter started", logx.String("platform", a.adapter.Name()))

	// Run returns nil on cancellation; anything else restarts the loop.
	a.sup.GoRestart("monitor", time.Second, 30*time.Second, a.mon.Run)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Keep this debug-level; rounds publish several events each.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.ops.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.String("config", a.cfgPath),
		logx.String("cadence", a.mon.Cadence().String()),
	)
	return nil
}

// applyConfig pushes a validated reload into the running components. New
// cadence, delay, mention and targets apply from the next round boundary.
func (a *App) applyConfig(prev, next *config.Config) {
	changed := config.Changes(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, s := range changed {
		if restartRequired[s] {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	to := chatTarget(next)
	// update the sink first so Apply doesn't warn when chat logging is enabled
	a.logs.SetChatSink(a.adapter, to)
	a.logs.Apply(mapLoggingConfig(next))

	a.notif.SetTarget(to)
	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if cad, err := mapCadence(next); err != nil {
		a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
	} else {
		a.mon.SetCadence(cad)
	}
	a.mon.SetDelay(next.Delay())
	a.mon.SetMention(next.Mention)
	a.mon.SetTargets(monitor.TargetsFromConfig(next.Targets))

	if oc, err := mapOpsConfig(next); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(a.sup.Context(), oc)
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: changed})
	a.log.Info("config reloaded",
		logx.String("changed", strings.Join(changed, ",")),
		logx.Int("targets", len(next.Targets)),
		logx.String("cadence", a.mon.Cadence().String()),
	)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources(ctx)
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	// Cancel first so the monitor loop and in-flight fetches unwind immediately.
	a.sup.Cancel()

	// Supervised goroutines go first: the monitor may still be sending an alert.
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.closeResources(ctx)

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func (a *App) closeResources(ctx context.Context) {
	a.step(ctx, "renderer", 2*time.Second, func(context.Context) error {
		if a.renderer != nil {
			a.renderer.Close()
		}
		return nil
	})
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	stepCtx := ctx
	if limit > 0 {
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < limit {
				limit = max(rem, 0)
			}
		}
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
