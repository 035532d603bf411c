// Package interfaces defines the core abstractions for media resolution.
// Extractors, collaborators and the HTTP client are injected through these
// interfaces so every component can be tested against fakes.
package interfaces

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"media-resolver-go/pkg/types"

	"github.com/samber/mo"
)

// VideoExtractor recovers a direct media URL from one mirror family's
// embed pages.
//
// To add a new extractor:
// 1. Create a new file in pkg/extractors/
// 2. Implement this interface
// 3. Register it in the extractor registry (see internal/app)
type VideoExtractor interface {
	// Name returns the display name reported in ExtractionResult.Server.
	Name() string

	// Patterns returns the host/path patterns this extractor understands.
	Patterns() []*regexp.Regexp

	// CanExtract reports whether any pattern matches. It never fetches.
	CanExtract(url string) bool

	// Extract resolves an embed URL. Failures are reported in the result,
	// never as a Go error.
	Extract(ctx context.Context, embedURL string) *types.ExtractionResult
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Cache is a key-value store with per-entry expiry.
type Cache interface {
	Get(key string) mo.Option[[]byte]
	Set(key string, value []byte, ttl time.Duration) error
}

// TrustedProvider returns already-direct manifest URLs for an episode.
type TrustedProvider interface {
	Sources(ctx context.Context, episodeID, category string) (*types.DirectSources, error)
}

// MirrorProvider lists the embed/download servers a mirror offers for an episode.
type MirrorProvider interface {
	Servers(ctx context.Context, episodeID, category string) ([]types.Server, error)
}

// Extractor is the subset of the registry used by orchestration.
type Extractor interface {
	CanExtract(url string) bool
	ExtractVideo(ctx context.Context, embedURL string) *types.ExtractionResult
}
