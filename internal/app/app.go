// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/contactfinder/internal/api"
	"github.com/JakeFAU/contactfinder/internal/config"
	"github.com/JakeFAU/contactfinder/internal/export"
	"github.com/JakeFAU/contactfinder/internal/extractor"
	collyfetcher "github.com/JakeFAU/contactfinder/internal/fetcher/colly"
	"github.com/JakeFAU/contactfinder/internal/fetcher/headless"
	"github.com/JakeFAU/contactfinder/internal/headless/detector"
	"github.com/JakeFAU/contactfinder/internal/leadership"
	"github.com/JakeFAU/contactfinder/internal/logging"
	"github.com/JakeFAU/contactfinder/internal/metrics"
	"github.com/JakeFAU/contactfinder/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/contactfinder/internal/publisher/pubsub"
	"github.com/JakeFAU/contactfinder/internal/retryclient"
	"github.com/JakeFAU/contactfinder/internal/storage/gcs"
	"github.com/JakeFAU/contactfinder/internal/storage/local"
	"github.com/JakeFAU/contactfinder/internal/storage/postgres"
)

type renderer interface {
	extractor.Renderer
	Close()
}

// App holds the shared, long-lived services: the extraction orchestrator,
// the leadership lookup service, the optional run store and exporter.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	renderer     renderer
	orchestrator *extractor.Orchestrator
	leadership   *leadership.Service
	runs         *postgres.RunStore
	exporter     *export.Exporter
	closers      []func()
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	aiHTTPClient *http.Client
}

// WithAIHTTPClient overrides the HTTP client used for AI API calls.
func WithAIHTTPClient(c *http.Client) Option {
	return func(o *options) { o.aiHTTPClient = c }
}

// New builds every service described by cfg. It fails fast when the
// browser or database cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger)
	metrics.Init()

	pages := collyfetcher.New(cfg.FetcherConfig(), ratelimit.New(cfg.RateLimitConfig()))

	var r renderer = headless.NewNoop()
	if cfg.Browser.Enabled {
		chrome, err := headless.NewChromedp(cfg.HeadlessConfig())
		if err != nil {
			return nil, fmt.Errorf("init headless browser: %w", err)
		}
		r = chrome
	} else {
		logger.Info("browser rendering disabled; rendered strategy will report not configured")
	}

	orchOpts := []extractor.Option{
		extractor.WithHinter(detector.NewHeuristic(0)),
		extractor.WithLogger(logger.Named("extractor")),
	}
	if cfg.Extraction.ResolveHosts {
		orchOpts = append(orchOpts, extractor.WithResolver(net.DefaultResolver))
	}
	orch := extractor.New(
		extractor.NewStaticFetcher(pages),
		extractor.NewRenderedFetcher(r),
		extractor.NewSitemapFetcher(pages),
		orchOpts...,
	)

	aiClient := retryclient.New(cfg.RetryConfig(), o.aiHTTPClient, logger.Named("ai"))
	research := leadership.NewService(cfg.LeadershipConfig(), aiClient, logger.Named("leadership"))

	a := &App{
		cfg:          cfg,
		logger:       logger,
		renderer:     r,
		orchestrator: orch,
		leadership:   research,
	}

	if cfg.Database.DSN != "" {
		store, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:   cfg.Database.DSN,
			Table: cfg.Database.Table,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init run store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			a.Close()
			return nil, fmt.Errorf("init run store: %w", err)
		}
		a.runs = store
		logger.Info("run history enabled", zap.String("table", cfg.Database.Table))
	}

	if cfg.Export.Enabled() {
		if err := a.initExport(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("init export: %w", err)
		}
	}

	logger.Info("application services initialized",
		zap.Bool("browser", cfg.Browser.Enabled),
		zap.Bool("run_history", a.runs != nil),
		zap.Bool("export", a.exporter.Enabled()),
	)
	return a, nil
}

func (a *App) initExport(ctx context.Context) error {
	cfg := a.cfg.Export
	var blobs export.BlobStore
	switch {
	case cfg.GCSBucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return err
		}
		blobs = store
	case cfg.Dir != "":
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return err
		}
		blobs = store
	}

	var pub export.Publisher
	if cfg.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSubProject)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		topic := client.Topic(cfg.PubSubTopic)
		a.closers = append(a.closers, func() {
			topic.Stop()
			_ = client.Close()
		})
		pub = pubsubpublisher.New(topic)
	}

	a.exporter = export.New(blobs, pub, cfg.Prefix, a.logger.Named("export"))
	a.logger.Info("run export enabled",
		zap.String("dir", cfg.Dir),
		zap.String("bucket", cfg.GCSBucket),
		zap.String("topic", cfg.PubSubTopic),
	)
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Extractor returns the extraction orchestrator.
func (a *App) Extractor() *extractor.Orchestrator {
	return a.orchestrator
}

// Leadership returns the AI leadership lookup service.
func (a *App) Leadership() *leadership.Service {
	return a.leadership
}

// HasRunStore reports whether run history is persisted.
func (a *App) HasRunStore() bool {
	return a.runs != nil
}

// HasExporter reports whether finished runs are exported.
func (a *App) HasExporter() bool {
	return a.exporter.Enabled()
}

// RecordRun saves res to run history and exports it, whichever are enabled.
// It returns the run id, or "" when neither is. The id is returned alongside
// an export error so callers can still reference the saved run.
func (a *App) RecordRun(ctx context.Context, res *extractor.Result) (string, error) {
	if res == nil || (a.runs == nil && !a.exporter.Enabled()) {
		return "", nil
	}

	var id uuid.UUID
	if a.runs != nil {
		saved, err := a.runs.SaveRun(ctx, postgres.RunFromResult(res))
		if err != nil {
			return "", fmt.Errorf("save run: %w", err)
		}
		id = saved
	} else {
		generated, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate run id: %w", err)
		}
		id = generated
	}

	if a.exporter.Enabled() {
		if _, err := a.exporter.Export(ctx, id.String(), res); err != nil {
			return id.String(), fmt.Errorf("export run: %w", err)
		}
	}
	return id.String(), nil
}

// APIServer builds the HTTP API over the App's services.
func (a *App) APIServer() *api.Server {
	var runs api.RunRecorder
	if a.runs != nil || a.exporter.Enabled() {
		runs = a
	}
	return api.NewServer(
		a.orchestrator,
		a.leadership,
		runs,
		a.cfg.ExtractorConfig(),
		api.Options{APIKey: a.cfg.Server.APIKey, RequestTimeout: a.cfg.Server.RequestTimeout},
		a.logger.Named("api"),
	)
}

// Close shuts down the browser, database pool and export clients.
func (a *App) Close() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.runs != nil {
		a.runs.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}
