// Package registry maps embed URLs to the extractor that understands them.
package registry

import (
	"context"
	"sync"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"
)

// ExtractionObserver is notified after every extraction attempt.
type ExtractionObserver func(result *types.ExtractionResult)

// ExtractorRegistry manages video extractors. Lookup is first match in
// registration order.
type ExtractorRegistry struct {
	mu         sync.RWMutex
	extractors []interfaces.VideoExtractor
	byName     map[string]interfaces.VideoExtractor
	observer   ExtractionObserver
	log        *logging.Logger
}

// NewExtractorRegistry creates a new extractor registry.
func NewExtractorRegistry(log *logging.Logger) *ExtractorRegistry {
	return &ExtractorRegistry{
		extractors: make([]interfaces.VideoExtractor, 0),
		byName:     make(map[string]interfaces.VideoExtractor),
		log:        log.WithComponent("registry"),
	}
}

// Register appends an extractor. Earlier registrations win on overlap.
func (r *ExtractorRegistry) Register(extractor interfaces.VideoExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors = append(r.extractors, extractor)
	r.byName[extractor.Name()] = extractor
}

// SetObserver installs a callback run after each extraction.
func (r *ExtractorRegistry) SetObserver(fn ExtractionObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// FindExtractor returns the first extractor whose patterns match, or nil.
func (r *ExtractorRegistry) FindExtractor(embedURL string) interfaces.VideoExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.extractors {
		if e.CanExtract(embedURL) {
			return e
		}
	}
	return nil
}

// CanExtract reports whether some extractor accepts embedURL. It never
// touches the network.
func (r *ExtractorRegistry) CanExtract(embedURL string) bool {
	return r.FindExtractor(embedURL) != nil
}

// ExtractVideo runs the matching extractor. With no match it fails with
// server "unknown" without any network call.
func (r *ExtractorRegistry) ExtractVideo(ctx context.Context, embedURL string) *types.ExtractionResult {
	e := r.FindExtractor(embedURL)

	var result *types.ExtractionResult
	if e == nil {
		r.log.Debug("no extractor for url", "url", embedURL)
		result = types.Failed("unknown", types.ErrNoMatchingExtractor)
	} else {
		result = e.Extract(ctx, embedURL)
		if result == nil {
			result = types.Failed(e.Name(), types.ErrPatternNotFound)
		}
		if result.Server == "" {
			result.Server = e.Name()
		}
	}

	r.mu.RLock()
	observer := r.observer
	r.mu.RUnlock()
	if observer != nil {
		observer(result)
	}
	return result
}

// GetByName returns an extractor by its name.
func (r *ExtractorRegistry) GetByName(name string) interfaces.VideoExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Names returns registered extractor names in lookup order.
func (r *ExtractorRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		names[i] = e.Name()
	}
	return names
}

// All returns all registered extractors.
func (r *ExtractorRegistry) All() []interfaces.VideoExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]interfaces.VideoExtractor, len(r.extractors))
	copy(result, r.extractors)
	return result
}

var _ interfaces.Extractor = (*ExtractorRegistry)(nil)
