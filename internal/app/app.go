package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"CallScorer/internal/config"
	"CallScorer/internal/domain"
	"CallScorer/internal/infrastructure/llm"
	"CallScorer/internal/infrastructure/parser"
	"CallScorer/internal/infrastructure/scheduler"
	"CallScorer/internal/infrastructure/storage"
	"CallScorer/internal/infrastructure/telegram"
	"CallScorer/internal/logging"
	"CallScorer/internal/metrics"
	"CallScorer/internal/ports"
	"CallScorer/internal/qci"
	"CallScorer/internal/source"
	"CallScorer/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	scorer    *qci.Scorer
	scheduler *usecase.Scheduler
	registry  *prometheus.Registry
	closers   []func() error
}

// New builds the application: scorer, extractor, progress store, source,
// notifier and metrics, all chosen from cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewWithFormat(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	}

	profile, err := cfg.Scoring.Active()
	if err != nil {
		return nil, err
	}

	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		scorer:   qci.New(profile),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	registry := source.NewRegistry(
		parser.NewJSONLReader(),
		parser.NewHTMLReader(nil),
	)
	src := parser.NewStrategySource(registry, cfg.Source, baseLogger.With("component", "source"))

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	analyzerLogger := baseLogger.With("component", "analyzer")
	analyzer := usecase.NewAnalyzer(usecase.AnalyzerDeps{
		Extractor: llm.NewExtractor(cfg.Extraction),
		Score:     a.scorer.Score,
		Store:     store,
		Observer: usecase.MultiObserver{
			usecase.NewLogObserver(analyzerLogger),
			metrics.NewObserver(a.registry),
		},
		Logger:    analyzerLogger,
		Scheduler: cfg.Scheduler,
		Pricing:   cfg.Extraction.Pricing,
		Profile:   a.scorer.Profile(),
	})

	trigger, err := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.scheduler = usecase.NewScheduler(trigger, src, analyzer, notifier, baseLogger.With("component", "scheduler"))
	return a, nil
}

func (a *Application) openStore(ctx context.Context) (ports.ProgressStore, error) {
	sc := a.cfg.Storage
	switch strings.ToLower(sc.Driver) {
	case "postgres":
		db, err := sql.Open("postgres", sc.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		store, err := storage.NewPostgresStore(db, sc.Table)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return storage.NewRedisStore(client, sc.Redis.Prefix), nil

	default:
		return storage.NewFileStore(sc.Path, a.logger.With("component", "store")), nil
	}
}

// Scorer exposes the active QCI scorer.
func (a *Application) Scorer() *qci.Scorer {
	return a.scorer
}

// Run performs a single load/analyze/notify cycle.
func (a *Application) Run(ctx context.Context) (domain.RunReport, error) {
	return a.scheduler.RunOnce(ctx)
}

// Serve runs cron-triggered analysis and the metrics endpoint until ctx is
// cancelled. With runNow the first cycle starts immediately.
func (a *Application) Serve(ctx context.Context, runNow bool) error {
	var srv *http.Server
	if addr := a.cfg.Metrics.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.registry))
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("metrics endpoint listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("daemon started", "cron", a.cfg.Scheduler.CronExpression, "timezone", a.cfg.Scheduler.Location().String())

	if runNow {
		if _, err := a.scheduler.RunOnce(ctx); err != nil {
			a.logger.Error("initial run failed", "error", err)
		}
	}

	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	var errs []error
	if err := a.scheduler.Stop(shutdown); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if srv != nil {
		if err := srv.Shutdown(shutdown); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics endpoint: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases store connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
