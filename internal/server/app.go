// Package server builds the application's dependency graph and runs the HTTP
// server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/api"
	"github.com/JakeFAU/area-listing-scraper/internal/cancel"
	filesignal "github.com/JakeFAU/area-listing-scraper/internal/cancel/file"
	memorysignal "github.com/JakeFAU/area-listing-scraper/internal/cancel/memory"
	redissignal "github.com/JakeFAU/area-listing-scraper/internal/cancel/redis"
	"github.com/JakeFAU/area-listing-scraper/internal/clock/system"
	"github.com/JakeFAU/area-listing-scraper/internal/config"
	collyfetcher "github.com/JakeFAU/area-listing-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/area-listing-scraper/internal/id/uuid"
	"github.com/JakeFAU/area-listing-scraper/internal/metrics"
	"github.com/JakeFAU/area-listing-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/area-listing-scraper/internal/progress"
	progresssinks "github.com/JakeFAU/area-listing-scraper/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/area-listing-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/area-listing-scraper/internal/report"
	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
	"github.com/JakeFAU/area-listing-scraper/internal/storage"
	gcsstorage "github.com/JakeFAU/area-listing-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/area-listing-scraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/area-listing-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/area-listing-scraper/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/area-listing-scraper/internal/storage/sqlite"
	"github.com/JakeFAU/area-listing-scraper/internal/telemetry"
)

const serviceName = "area-listing-scraper"

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	coordinator *scraper.Coordinator
	cancel      *cancel.Checker
	areas       storage.AreaStore
	reports     storage.BlobStore
	progressHub *progress.Hub
	apiServer   *api.Server

	checks  map[string]api.ReadinessCheck
	closers []func(context.Context) error
}

// Option customizes Build.
type Option func(*options)

type options struct {
	publisher scraper.Publisher
	topic     string
	registry  prometheus.Registerer
}

// WithPublisher overrides the configured Pub/Sub publisher.
func WithPublisher(pub scraper.Publisher, topic string) Option {
	return func(o *options) {
		o.publisher = pub
		o.topic = topic
	}
}

// WithRegistry registers progress collectors on reg instead of the default
// registerer.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// Build creates the application's dependencies. The caller owns the logger.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	app := &App{cfg: cfg, logger: logger, checks: map[string]api.ReadinessCheck{}}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("cancel_backend", cfg.Cancel.Backend),
		zap.String("areas_backend", cfg.Areas.Backend),
		zap.String("report_backend", cfg.Report.Backend),
	)

	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	app.closers = append(app.closers, tp.Shutdown)

	store, err := app.setupCancelStore()
	if err != nil {
		return nil, err
	}
	app.cancel = cancel.NewChecker(store, cfg.CancelWindow(), cancel.WithLogger(logger.Named("cancel")))

	if app.areas, err = app.setupAreaStore(ctx); err != nil {
		return nil, err
	}
	if app.reports, err = app.setupBlobStore(ctx); err != nil {
		return nil, err
	}
	if o.publisher == nil {
		if o.publisher, o.topic, err = app.setupPublisher(ctx); err != nil {
			return nil, err
		}
	}
	if err = app.setupProgress(ctx, o.registry); err != nil {
		return nil, err
	}

	selectors, err := config.LoadSelectors(cfg.Scraper.SelectorsFile)
	if err != nil {
		return nil, fmt.Errorf("selectors init failed: %w", err)
	}
	loc, err := cfg.ReportLocation()
	if err != nil {
		return nil, err
	}

	getter := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Scraper.UserAgent,
		RespectRobots: cfg.Scraper.RespectRobots,
		Timeout:       cfg.RequestTimeout(),
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Scraper.RateLimitRPS,
		DefaultBurst: cfg.Scraper.RateLimitBurst,
	})
	fetcher := scraper.NewPacedFetcher(getter, app.cancel, limiter, scraper.FetchConfig{
		Attempts: cfg.Scraper.RetryCount,
		Wait:     cfg.RequestWait(),
		Throttle: cfg.Throttle(),
	}, logger.Named("fetch"))
	scr := scraper.New(fetcher, app.cancel, scraper.Config{
		Workers:                 cfg.Scraper.MaxWorkers,
		Selectors:               selectors,
		ExcludedCategorySegment: cfg.Classify.ExcludedCategorySegment,
	}, logger.Named("scraper"))

	app.coordinator = scraper.NewCoordinator(scraper.CoordinatorDeps{
		Scraper:   scr,
		Areas:     app.areas,
		Signals:   app.cancel,
		Reports:   report.NewExcelSink(app.reports, logger.Named("report")),
		Publisher: o.publisher,
		Topic:     o.topic,
		IDs:       uuid.New(),
		Clock:     system.NewIn(loc),
	}, logger.Named("coordinator"))

	app.apiServer = api.NewServer(api.Deps{
		Runner:   app.coordinator,
		Areas:    app.areas,
		Cancel:   app.cancel,
		Reports:  app.reports,
		Observer: app.progressHub,
		Checks:   app.checks,
	}, logger.Named("api"))

	return app, nil
}

func (a *App) setupCancelStore() (cancel.Store, error) {
	switch a.cfg.Cancel.Backend {
	case "redis":
		store := redissignal.New(a.cfg.Cancel.Redis.Addr, a.cfg.Cancel.Redis.Prefix, a.cfg.CancelRetention())
		a.checks["cancel"] = store.Ping
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		a.logger.Info("using redis cancel store", zap.String("addr", a.cfg.Cancel.Redis.Addr))
		return store, nil
	case "memory":
		a.logger.Info("using in-memory cancel store")
		return memorysignal.New(), nil
	default:
		store, err := filesignal.New(a.cfg.Cancel.Dir)
		if err != nil {
			return nil, fmt.Errorf("cancel store init failed: %w", err)
		}
		a.logger.Info("using file cancel store", zap.String("dir", a.cfg.Cancel.Dir))
		return store, nil
	}
}

func (a *App) setupAreaStore(ctx context.Context) (storage.AreaStore, error) {
	var areas storage.AreaStore
	switch a.cfg.Areas.Backend {
	case "postgres":
		pg, err := pgstore.NewAreaStore(ctx, pgstore.Config{
			DSN:      a.cfg.Areas.DSN,
			Table:    a.cfg.Areas.Table,
			MaxConns: a.cfg.Areas.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("area store init failed: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pg.Close(); return nil })
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("area store migrate failed: %w", err)
		}
		a.checks["areas"] = pg.Ping
		areas = pg
	case "memory":
		areas = memorystorage.NewAreaStore()
	default:
		lite, err := sqlitestore.Open(ctx, a.cfg.Areas.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("area store init failed: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { lite.Close(); return nil })
		a.checks["areas"] = lite.Ping
		areas = lite
	}
	a.logger.Info("area store ready", zap.String("backend", a.cfg.Areas.Backend))

	if a.cfg.Areas.CSVPath == "" {
		return areas, nil
	}
	existing, err := areas.ListAreas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	if len(existing) == 0 {
		n, err := SeedFromCSV(ctx, areas, a.cfg.Areas.CSVPath)
		if err != nil {
			return nil, err
		}
		a.logger.Info("seeded empty area store", zap.Int("areas", n), zap.String("csv", a.cfg.Areas.CSVPath))
	}
	return areas, nil
}

func (a *App) setupBlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Report.Backend {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Report.GCSBucket,
			Prefix: a.cfg.Report.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS report backend", zap.String("bucket", a.cfg.Report.GCSBucket))
		return blobs, nil
	case "memory":
		a.logger.Info("using in-memory report backend")
		return memorystorage.NewBlobStore(), nil
	default:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Report.OutputDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local report backend", zap.String("dir", a.cfg.Report.OutputDir))
		return blobs, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (scraper.Publisher, string, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, job notifications disabled")
		return nil, "", nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("pubsub client init failed: %w", err)
	}
	pub := gcppublisher.New(client)
	a.closers = append(a.closers, func(context.Context) error {
		pub.Close()
		return client.Close()
	})
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, a.cfg.PubSub.TopicName, nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	a.progressHub = progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress_hub"),
	}, progresssinks.NewLogSink(a.logger.Named("job_events")), promSink)
	a.closers = append(a.closers, a.progressHub.Close)
	return nil
}

// Run executes one job, teeing its events to emit and the progress hub.
func (a *App) Run(ctx context.Context, areaID string, emit progress.Emitter) progress.Event {
	var out progress.Emitter = a.progressHub
	if emit != nil {
		out = progress.Tee(emit, a.progressHub)
	}
	return a.coordinator.Run(ctx, areaID, out)
}

// RequestCancel records a cancellation signal for token.
func (a *App) RequestCancel(ctx context.Context, token string) error {
	if err := a.cancel.Request(ctx, token); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return nil
}

// ListAreas returns the configured areas.
func (a *App) ListAreas(ctx context.Context) ([]scraper.AreaRef, error) {
	areas, err := a.areas.ListAreas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	return areas, nil
}

// SeedAreas replaces the area table with the rows of the CSV at path.
func (a *App) SeedAreas(ctx context.Context, path string) (int, error) {
	return SeedFromCSV(ctx, a.areas, path)
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// SweepSignals removes cancellation signals older than the configured
// retention.
func (a *App) SweepSignals(ctx context.Context) (int, error) {
	n, err := a.cancel.Sweep(ctx, a.cfg.CancelRetention())
	if err != nil {
		return n, fmt.Errorf("sweep cancel signals: %w", err)
	}
	return n, nil
}

// Serve sweeps stale signals, then serves HTTP until ctx ends or a signal
// arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := a.SweepSignals(ctx); err != nil {
		a.logger.Warn("startup sweep failed", zap.Error(err))
	} else {
		a.logger.Info("startup sweep complete", zap.Int("removed", n))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case serveErr = <-errCh:
		a.logger.Error("http server error", zap.Error(serveErr))
	}

	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout())
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
