// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"time"

	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/metrics"
	"media-resolver-go/pkg/providers"
	"media-resolver-go/pkg/proxy"
	"media-resolver-go/pkg/registry"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config       *config.Config
	Log          *logging.Logger
	Proxy        *proxy.Service
	Extractors   *registry.ExtractorRegistry
	Orchestrator *providers.Orchestrator
	Cache        interfaces.Cache
	Metrics      *metrics.Metrics
	BaseURL      string
	StartedAt    time.Time
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config:    cfg,
		Log:       log,
		BaseURL:   cfg.BaseURL,
		StartedAt: time.Now(),
	}
}

// WithProxy sets the streaming proxy.
func (c *Context) WithProxy(p *proxy.Service) *Context {
	c.Proxy = p
	return c
}

// WithExtractors sets the extractor registry.
func (c *Context) WithExtractors(r *registry.ExtractorRegistry) *Context {
	c.Extractors = r
	return c
}

// WithOrchestrator sets the provider orchestrator.
func (c *Context) WithOrchestrator(o *providers.Orchestrator) *Context {
	c.Orchestrator = o
	return c
}

// WithCache sets the key-value cache.
func (c *Context) WithCache(cache interfaces.Cache) *Context {
	c.Cache = cache
	return c
}

// WithMetrics sets the metrics collectors.
func (c *Context) WithMetrics(m *metrics.Metrics) *Context {
	c.Metrics = m
	return c
}
