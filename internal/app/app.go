package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cruise-drop-alerts/internal/alerting"
	"cruise-drop-alerts/internal/api"
	"cruise-drop-alerts/internal/config"
	"cruise-drop-alerts/internal/fetcher"
	"cruise-drop-alerts/internal/scheduler"
	"cruise-drop-alerts/internal/service"
	"cruise-drop-alerts/internal/storage"
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

func (a *App) newFeed() (fetcher.OfferingSource, error) {
	schema, err := fetcher.LookupSchema(a.Config.Feed.Schema, a.Config.Feed.Paths)
	if err != nil {
		return nil, err
	}

	return fetcher.NewFeed(fetcher.FeedOptions{
		BaseURL:      a.Config.Feed.BaseURL,
		Accept:       a.Config.Feed.Accept,
		UserAgent:    a.Config.Feed.UserAgent,
		Timeout:      a.Config.Feed.RequestTimeout,
		PageInterval: a.Config.Feed.PageInterval,
		MaxPages:     a.Config.Feed.MaxPages,
		Schema:       schema,
	}, a.Logger), nil
}

func (a *App) newSummarizer() alerting.Summarizer {
	template := alerting.TemplateSummarizer{}
	cfg := a.Config.Summarizer
	if !cfg.Enabled {
		return template
	}
	return alerting.NewLLMSummarizer(alerting.LLMOptions{
		APIURL:  cfg.APIURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}, template, a.Logger)
}

// newNotifier returns nil when no route is enabled.
func (a *App) newNotifier(ctx context.Context) (alerting.Notifier, func(), error) {
	cfg := a.Config.Alerting
	summarizer := a.newSummarizer()

	var (
		routes  alerting.Multi
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.EmailRoute() {
		routes = append(routes, alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, summarizer, a.Logger))
	}
	if cfg.Telegram.Enabled {
		routes = append(routes, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, 10*time.Second, summarizer, a.Logger))
	}
	if cfg.RedisStream.Enabled {
		client, err := storage.NewRedisClient(ctx, a.Config.Redis)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("redis stream notifier: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		routes = append(routes, alerting.NewRedisStreamNotifier(client, cfg.RedisStream.Stream, cfg.RedisStream.MaxLength, a.Logger))
	}

	switch len(routes) {
	case 0:
		return nil, closeAll, nil
	case 1:
		return routes[0], closeAll, nil
	default:
		return routes, closeAll, nil
	}
}

// openStore returns a nil backend when the selected backend is not configured.
func (a *App) openStore(ctx context.Context) (storage.Backend, func(), error) {
	switch a.Config.Store.Backend {
	case config.BackendMemory:
		a.Logger.Warn().Msg("memory store selected; snapshots are lost on exit")
		store := storage.NewMemoryStore()
		return store, store.Close, nil

	case config.BackendRedis:
		client, err := storage.NewRedisClient(ctx, a.Config.Redis)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewRedisStore(client, a.Config.Redis.KeyPrefix)
		return store, store.Close, nil

	default:
		if a.Config.Database.DSN == "" {
			return nil, nil, nil
		}

		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, err
		}

		store := storage.NewStore(pool)
		if a.Config.Database.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, nil, err
			}
		}
		return store, store.Close, nil
	}
}

// wiring bundles a service with the resources it holds.
type wiring struct {
	svc   *service.Service
	store storage.Backend
	close func()
}

func (a *App) wire(ctx context.Context, sched *scheduler.Scheduler) (*wiring, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		a.Logger.Warn().Str("backend", a.Config.Store.Backend).Msg("snapshot store not configured; runs will be skipped")
	}

	source, err := a.newFeed()
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, err
	}

	notifier, closeNotifier, err := a.newNotifier(ctx)
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, err
	}

	// keep the interfaces nil, not typed-nil, when there is no store
	var (
		snapshots storage.SnapshotStore
		drops     storage.DropLog
	)
	if store != nil {
		snapshots = store
		drops = store
	}

	cfg := a.Config
	svc := service.New(service.Options{
		AlertsEnabled:    cfg.Alerting.Enabled,
		Recipient:        cfg.Alerting.Recipient,
		RequireRecipient: cfg.Alerting.EmailRoute(),
		AdvisoryLockKey:  cfg.Scheduler.AdvisoryLockKey,
	}, sched, source, snapshots, drops, notifier, a.Logger)

	return &wiring{
		svc:   svc,
		store: store,
		close: func() {
			closeNotifier()
			if closeStore != nil {
				closeStore()
			}
		},
	}, nil
}

// Run executes the long-running polling service and, when enabled, the admin API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Cron:         a.Config.Scheduler.Cron,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	w, err := a.wire(ctx, sched)
	if err != nil {
		return err
	}
	defer w.close()

	apiDone := make(chan error, 1)
	if a.Config.Admin.Enabled {
		srv := api.NewServer(api.Options{
			Listen:         a.Config.Admin.Listen,
			RequestTimeout: a.Config.Admin.RequestTimeout,
			DefaultLimit:   a.Config.Export.ShowLimit,
		}, w.svc, dropLister(w.store), a.Logger)
		go func() {
			apiDone <- srv.Run(ctx)
		}()
	} else {
		apiDone <- nil
	}

	a.Logger.Info().Msg("starting polling service")
	err = w.svc.Run(ctx)
	cancel()
	if apiErr := <-apiDone; apiErr != nil {
		a.Logger.Error().Err(apiErr).Msg("admin api terminated with error")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("polling service stopped")
	return nil
}

// RunOnce performs a single run and returns its outcome.
func (a *App) RunOnce(ctx context.Context) (service.Outcome, error) {
	w, err := a.wire(ctx, nil)
	if err != nil {
		return service.Outcome{}, err
	}
	defer w.close()

	return w.svc.RunOnce(ctx), nil
}

// SendTest delivers a synthetic digest through the configured routes.
// Snapshots and the drop log are never opened.
func (a *App) SendTest(ctx context.Context) (service.Outcome, error) {
	notifier, closeNotifier, err := a.newNotifier(ctx)
	if err != nil {
		return service.Outcome{}, err
	}
	defer closeNotifier()

	svc := service.New(service.Options{
		AlertsEnabled:    true,
		Recipient:        a.Config.Alerting.Recipient,
		RequireRecipient: a.Config.Alerting.EmailRoute(),
	}, nil, nil, nil, nil, notifier, a.Logger)
	return svc.SendTestNotification(ctx, nil), nil
}

func dropLister(store storage.Backend) api.DropLister {
	if store == nil {
		return nil
	}
	return store
}

// ExportOptions hold parameters for exporting the drop history.
type ExportOptions struct {
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
