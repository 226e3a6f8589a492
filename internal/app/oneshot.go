package app

import (
	"context"
	"fmt"

	"tixwatch/internal/config"
	"tixwatch/internal/extract"
	"tixwatch/internal/fetch"
	"tixwatch/internal/monitor"
	"tixwatch/internal/storage"
	logx "tixwatch/pkg/logx"
)

// LoadConfig loads and fully validates a config file without starting anything.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewManager(path).Load()
	if err != nil {
		return nil, err
	}
	if err := validateRuntime(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Cadence returns the effective polling cadence of cfg.
func Cadence(cfg *config.Config) (monitor.Cadence, error) { return mapCadence(cfg) }

// CheckOnce runs a single round over cfg's targets with no chat connection
// and no notifications.
func CheckOnce(ctx context.Context, cfg *config.Config, log logx.Logger) (monitor.RoundReport, error) {
	fcfg, browserPath, err := mapFetchConfig(cfg)
	if err != nil {
		return monitor.RoundReport{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	renderer := fetch.NewRenderer(fcfg, browserPath, log.With(logx.String("comp", "render")))
	defer renderer.Close()

	mon, err := monitor.New(monitor.Options{
		Fetcher:   fetch.NewClient(fcfg, log.With(logx.String("comp", "fetch"))),
		Renderer:  renderer,
		Extractor: extract.Default(log.With(logx.String("comp", "extract"))),
		Log:       log.With(logx.String("comp", "monitor")),
		Targets:   monitor.TargetsFromConfig(cfg.Targets),
		Delay:     cfg.Delay(),
	})
	if err != nil {
		return monitor.RoundReport{}, err
	}
	return mon.RunOnce(ctx), nil
}

// RecentAlerts reads the alert audit log configured in cfg, newest first.
func RecentAlerts(ctx context.Context, cfg *config.Config, limit int, log logx.Logger) ([]storage.AlertRecord, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.RecentAlerts(ctx, limit)
}
