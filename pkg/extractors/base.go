// Package extractors provides embed-page extractor implementations.
// Each extractor understands one mirror family and resolves its embed pages
// to a direct media URL.
//
// To add a new extractor:
// 1. Create a new file (e.g., myplatform.go)
// 2. Embed *BaseExtractor and implement Extract
// 3. Register it in the registry (see internal/app)
package extractors

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"media-resolver-go/pkg/flaresolverr"
	"media-resolver-go/pkg/httpclient"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"
	"media-resolver-go/pkg/urlutil"
)

// maxPageBytes caps how much of an embed page is read.
const maxPageBytes = 4 << 20

// PageSolver fetches a page that is protected by a browser challenge.
type PageSolver interface {
	FetchPage(ctx context.Context, url string, headers map[string]string) (string, error)
}

// Option configures a BaseExtractor.
type Option func(*BaseExtractor)

// WithSolver enables the challenge fallback for embed page fetches.
func WithSolver(s PageSolver) Option {
	return func(b *BaseExtractor) {
		b.solver = s
	}
}

// BaseExtractor provides common functionality for extractors.
type BaseExtractor struct {
	name     string
	patterns []*regexp.Regexp
	client   interfaces.HTTPClient
	solver   PageSolver
	log      *logging.Logger
}

// NewBaseExtractor creates a new base extractor.
func NewBaseExtractor(name string, patterns []*regexp.Regexp, client interfaces.HTTPClient, log *logging.Logger, opts ...Option) *BaseExtractor {
	b := &BaseExtractor{
		name:     name,
		patterns: patterns,
		client:   client,
		log:      log.WithComponent(name + "-extractor"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the extractor name.
func (b *BaseExtractor) Name() string {
	return b.name
}

// Patterns returns the URL patterns this extractor accepts.
func (b *BaseExtractor) Patterns() []*regexp.Regexp {
	return b.patterns
}

// CanExtract reports whether url matches one of the patterns.
func (b *BaseExtractor) CanExtract(url string) bool {
	for _, re := range b.patterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// BrowserHeaders returns the spoofed desktop headers sent to mirrors.
func BrowserHeaders(referer string) map[string]string {
	h := map[string]string{
		"User-Agent":      httpclient.DesktopUserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}
	if referer != "" {
		h["Referer"] = referer
	}
	return h
}

// DoRequest performs an HTTP request with the given headers.
func (b *BaseExtractor) DoRequest(ctx context.Context, method, urlStr string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", httpclient.DesktopUserAgent)
	}

	return b.client.Do(req)
}

// FetchPage GETs an embed page and returns its HTML. A Cloudflare challenge
// is retried through the solver when one is configured.
func (b *BaseExtractor) FetchPage(ctx context.Context, urlStr string, headers map[string]string) (string, error) {
	resp, err := b.DoRequest(ctx, http.MethodGet, urlStr, headers)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	body, err := httpclient.ReadBody(resp, maxPageBytes)
	if err != nil {
		return "", fmt.Errorf("%w: read page: %v", types.ErrFetchFailure, err)
	}

	if flaresolverr.IsChallenge(resp.StatusCode, resp.Header.Get("Server"), body) && b.solver != nil {
		b.log.Info("challenge page, retrying through solver", "url", urlStr)
		html, err := b.solver.FetchPage(ctx, urlStr, headers)
		if err != nil {
			return "", fmt.Errorf("%w: challenge: %v", types.ErrFetchFailure, err)
		}
		return html, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", types.ErrFetchFailure, resp.StatusCode)
	}
	return string(body), nil
}

// fail logs and builds a failed result.
func (b *BaseExtractor) fail(embedURL string, err error) *types.ExtractionResult {
	b.log.WithURL(embedURL).WithError(err).Warn("extraction failed", "kind", types.ErrorKind(err))
	return types.Failed(b.name, err)
}

// originReferer returns "scheme://host/" for urlStr.
func originReferer(urlStr string) string {
	if origin := urlutil.Origin(urlStr); origin != "" {
		return origin + "/"
	}
	return ""
}

// absolutize turns a scraped URL fragment into an absolute https URL.
func absolutize(fragment, pageURL string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	return urlutil.ResolveURL(fragment, pageURL)
}
