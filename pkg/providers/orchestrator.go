package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"media-resolver-go/pkg/cache"
	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"
)

// Recorder receives lookup outcomes. *metrics.Metrics implements it.
type Recorder interface {
	ObserveSourceLookup(provider string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSourceLookup(string, error) {}

// Orchestrator dispatches a source request to the selected provider.
type Orchestrator struct {
	trusted         interfaces.TrustedProvider
	mirror          interfaces.MirrorProvider
	extractor       interfaces.Extractor
	cache           interfaces.Cache
	ttl             time.Duration
	defaultProvider string
	recorder        Recorder
	log             *logging.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache memoizes successful lookups for ttl.
func WithCache(c interfaces.Cache, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.cache = c
		o.ttl = ttl
	}
}

// WithDefaultProvider sets the provider used when a request names none.
func WithDefaultProvider(p string) Option {
	return func(o *Orchestrator) {
		o.defaultProvider = p
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// NewOrchestrator wires the three provider paths.
func NewOrchestrator(
	trusted interfaces.TrustedProvider,
	mirror interfaces.MirrorProvider,
	extractor interfaces.Extractor,
	log *logging.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		trusted:         trusted,
		mirror:          mirror,
		extractor:       extractor,
		defaultProvider: config.ProviderTrusted,
		recorder:        nopRecorder{},
		log:             log.WithComponent("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CacheKey is the memoization key for one lookup.
func CacheKey(provider, episodeID, category string) string {
	return fmt.Sprintf("sources:%s:%s:%s", provider, episodeID, category)
}

// Sources resolves playable sources for req. When no provider is named the
// default is used, and a failing trusted default falls back to the ad-free
// mirror pipeline. An explicitly named provider never falls back.
func (o *Orchestrator) Sources(ctx context.Context, req types.SourceRequest) (*types.SourceResponse, error) {
	if req.EpisodeID == "" {
		return nil, types.ErrMissingEpisode
	}

	if req.Provider != "" {
		return o.lookup(ctx, req.Provider, req)
	}

	resp, err := o.lookup(ctx, o.defaultProvider, req)
	if err == nil || o.defaultProvider != config.ProviderTrusted || errors.Is(err, context.Canceled) {
		return resp, err
	}

	o.log.WithError(err).Info("trusted provider failed, trying ad-free mirrors", "episode", req.EpisodeID)
	return o.lookup(ctx, config.ProviderMirrorAdFree, req)
}

func (o *Orchestrator) lookup(ctx context.Context, provider string, req types.SourceRequest) (*types.SourceResponse, error) {
	category := req.Category()
	key := CacheKey(provider, req.EpisodeID, category)

	if o.cache != nil {
		if cached, ok := cache.GetJSON[types.SourceResponse](o.cache, key).Get(); ok {
			o.log.Debug("source cache hit", "key", key)
			return &cached, nil
		}
	}

	var (
		resp *types.SourceResponse
		err  error
	)
	switch provider {
	case config.ProviderTrusted:
		resp, err = o.fromTrusted(ctx, req.EpisodeID, category)
	case config.ProviderMirror:
		resp, err = o.fromMirror(ctx, req.EpisodeID, category)
	case config.ProviderMirrorAdFree:
		resp, err = o.fromMirrorAdFree(ctx, req.EpisodeID, category)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownProvider, provider)
	}
	o.recorder.ObserveSourceLookup(provider, err)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		if err := cache.SetJSON(o.cache, key, resp, o.ttl); err != nil {
			o.log.WithError(err).Warn("source cache write failed", "key", key)
		}
	}
	return resp, nil
}

func (o *Orchestrator) fromTrusted(ctx context.Context, episodeID, category string) (*types.SourceResponse, error) {
	direct, err := o.trusted.Sources(ctx, episodeID, category)
	if err != nil {
		return nil, classify(err)
	}
	return &types.SourceResponse{
		Provider:  config.ProviderTrusted,
		Type:      types.SourceTypeDirect,
		Sources:   direct.Sources,
		Subtitles: direct.Subtitles,
		Intro:     direct.Intro,
		Outro:     direct.Outro,
	}, nil
}

func (o *Orchestrator) fromMirror(ctx context.Context, episodeID, category string) (*types.SourceResponse, error) {
	servers, err := o.mirror.Servers(ctx, episodeID, category)
	if err != nil {
		return nil, classify(err)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("%w: mirror lists no servers", types.ErrNoSource)
	}
	return &types.SourceResponse{
		Provider: config.ProviderMirror,
		Type:     types.SourceTypeEmbed,
		Servers:  servers,
	}, nil
}

// fromMirrorAdFree tries each extractable embed server in catalog order and
// stops at the first success. It never falls back to the ad-bearing embeds.
func (o *Orchestrator) fromMirrorAdFree(ctx context.Context, episodeID, category string) (*types.SourceResponse, error) {
	servers, err := o.mirror.Servers(ctx, episodeID, category)
	if err != nil {
		return nil, classify(err)
	}

	candidates := lo.Filter(servers, func(s types.Server, _ int) bool {
		return s.Type == types.ServerTypeEmbed && o.extractor.CanExtract(s.URL)
	})
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no extractable embed among %d servers", types.ErrNoSource, len(servers))
	}

	for _, s := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := o.extractor.ExtractVideo(ctx, s.URL)
		if result != nil && result.Success {
			o.log.Info("ad-free source extracted", "episode", episodeID, "server", s.Name, "extractor", result.Server)
			return &types.SourceResponse{
				Provider:      config.ProviderMirrorAdFree,
				Type:          types.SourceTypeDirect,
				Sources:       result.Videos,
				ExtractedFrom: s.Name,
			}, nil
		}
		if result != nil {
			o.log.Debug("embed extraction failed", "server", s.Name, "kind", result.Kind, "error", result.Error)
		}
	}

	return nil, fmt.Errorf("%w: all %d embeds failed extraction", types.ErrNoSource, len(candidates))
}

// classify keeps known failures and treats anything else as an upstream error.
func classify(err error) error {
	if errors.Is(err, types.ErrNoSource) || errors.Is(err, types.ErrUpstream) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", types.ErrUpstream, err)
}
