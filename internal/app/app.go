// Package app provides the main application setup and dependency injection.
package app

import (
	"context"

	"media-resolver-go/pkg/appctx"
	"media-resolver-go/pkg/cache"
	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/extractors"
	"media-resolver-go/pkg/flaresolverr"
	"media-resolver-go/pkg/handlers/api"
	"media-resolver-go/pkg/httpclient"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/metrics"
	"media-resolver-go/pkg/providers"
	"media-resolver-go/pkg/proxy"
	"media-resolver-go/pkg/registry"
	"media-resolver-go/pkg/server"
)

// App is the main application container.
type App struct {
	Ctx          *appctx.Context
	Server       *server.Server
	HTTPClient   *httpclient.Client
	ExtractorReg *registry.ExtractorRegistry
}

// New creates and initializes the application from cfg.
func New(cfg *config.Config, log *logging.Logger) (*App, error) {
	log.Info("initializing media-resolver", "port", cfg.Port, "base_url", cfg.BaseURL, "log_level", cfg.LogLevel)

	ctx := appctx.New(cfg, log)

	m := metrics.New()
	ctx.WithMetrics(m)

	httpClient := httpclient.New(cfg, log)

	store := cache.Open(cfg.CacheDir)
	ctx.WithCache(store)

	extractorReg := NewExtractorRegistry(cfg, httpClient, log)
	extractorReg.SetObserver(m.ObserveExtraction)
	ctx.WithExtractors(extractorReg)

	ctx.WithProxy(proxy.NewService(httpClient, cfg.BaseURL, log,
		proxy.WithMaxBody(cfg.MaxBodyBytes),
		proxy.WithRecorder(m),
	))

	trusted := providers.NewTrustedClient(cfg.TrustedProviderURL, httpClient, log)
	mirror := providers.NewMirrorClient(cfg.MirrorProviderURL, httpClient, log)
	ctx.WithOrchestrator(providers.NewOrchestrator(trusted, mirror, extractorReg, log,
		providers.WithCache(store, cfg.ExtractCacheTTL),
		providers.WithDefaultProvider(cfg.DefaultProvider),
		providers.WithRecorder(m),
	))

	srv := server.New(cfg, log)
	api.NewHandlers(ctx).RegisterRoutes(srv.Router())

	return &App{
		Ctx:          ctx,
		Server:       srv,
		HTTPClient:   httpClient,
		ExtractorReg: extractorReg,
	}, nil
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.Ctx.Log.Info("starting media-resolver server", "port", a.Ctx.Config.Port)
	return a.Server.Run(ctx)
}

// NewExtractorRegistry registers all embed extractors in lookup order.
// Add new extractors here by:
// 1. Creating a new extractor in pkg/extractors/
// 2. Registering it below
func NewExtractorRegistry(cfg *config.Config, client interfaces.HTTPClient, log *logging.Logger) *registry.ExtractorRegistry {
	reg := registry.NewExtractorRegistry(log)

	var opts []extractors.Option
	if cfg.FlareSolverrURL != "" {
		solver := flaresolverr.NewClient(cfg.FlareSolverrURL, cfg.FlareSolverrTimeout, nil, log)
		opts = append(opts, extractors.WithSolver(solver))
		log.Info("FlareSolverr challenge fallback enabled", "url", cfg.FlareSolverrURL)
	}

	reg.Register(extractors.NewStreamtapeExtractor(client, log, opts...))
	reg.Register(extractors.NewFilemoonExtractor(client, log, opts...))
	reg.Register(extractors.NewStreamwishExtractor(client, log, opts...))
	reg.Register(extractors.NewMixdropExtractor(client, log, opts...))

	log.Info("registered extractors", "count", len(reg.All()), "names", reg.Names())
	return reg
}
