package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"livewatcher/internal/config"
	"livewatcher/internal/fetcher"
	"livewatcher/internal/history"
	"livewatcher/internal/quota"
	"livewatcher/internal/registry"
	"livewatcher/internal/render"
	"livewatcher/internal/scheduler"
	"livewatcher/internal/service"
	"livewatcher/internal/sink"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newAPIClient() fetcher.BroadcastAPI {
	return fetcher.NewYouTube(fetcher.YouTubeOptions{
		APIKey:     a.Config.YouTube.APIKey,
		BaseURL:    a.Config.YouTube.BaseURL,
		Timeout:    a.Config.YouTube.RequestTimeout,
		UserAgent:  a.Config.YouTube.UserAgent,
		MaxResults: a.Config.YouTube.MaxResults,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*sink.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := sink.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := sink.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running tracking service.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.ValidateTracking(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var dbSink sink.RowWriter
	if store != nil {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		dbSink = store
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; csv-only mode")
	}

	var csvSink sink.RowWriter
	if a.Config.CSV.Path != "" {
		csvSink = sink.NewCSVSink(a.Config.CSV.Path, a.Logger)
	}

	reg := registry.New()
	hist := history.NewBuffer(a.Config.History.MaxPoints)
	gov := quota.NewGovernor(a.Config.Quota.DailyBudget, a.Logger)
	dispatcher := sink.NewDispatcher(csvSink, dbSink, a.Logger)
	console := render.NewConsole(os.Stdout, hist, a.Logger)

	tracker := service.New(a.Config, gov, a.newAPIClient(), reg, hist, dispatcher, console, a.Logger)

	discoveryLoop := scheduler.New(scheduler.Options{
		Name:         "discovery",
		Interval:     a.Config.Poller.DiscoveryInterval,
		StartupDelay: a.Config.Poller.StartupDelay,
	}, a.Logger)

	samplerLoop := scheduler.New(scheduler.Options{
		Name:     "sampler",
		Interval: a.Config.Poller.SampleInterval,
		// The sampler waits for the first discovery pass to seed the
		// registry; half an interval is enough in practice.
		StartupDelay: a.Config.Poller.StartupDelay + a.Config.Poller.SampleInterval/2,
	}, a.Logger)

	a.Logger.Info().
		Strs("channels", a.Config.Poller.Channels).
		Dur("discovery_interval", a.Config.Poller.DiscoveryInterval).
		Dur("sample_interval", a.Config.Poller.SampleInterval).
		Int("quota_budget", a.Config.Quota.DailyBudget).
		Msg("starting livestream tracker")

	go console.Run(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = discoveryLoop.Run(ctx, tracker.DiscoverTick)
	}()
	go func() {
		defer wg.Done()
		_ = samplerLoop.Run(ctx, tracker.SampleTick)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("tracker terminated with error")
		return err
	}

	a.Logger.Info().Msg("livestream tracker stopped")
	return nil
}

// ExportOptions hold parameters for exporting persisted samples.
type ExportOptions struct {
	VideoID   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
