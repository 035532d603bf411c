// Package proxy implements the streaming proxy: it fetches an upstream
// playlist, segment, key, subtitle or image with spoofed headers, works out
// what the bytes really are and either rewrites (playlists) or passes them
// through with a corrected content type.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"media-resolver-go/pkg/httpclient"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/sniff"
	"media-resolver-go/pkg/types"
	"media-resolver-go/pkg/urlutil"
)

// Cache lifetimes for served responses.
const (
	ManifestCacheControl = "public, max-age=60"
	MediaCacheControl    = "public, max-age=3600"
)

const manifestContentType = "application/vnd.apple.mpegurl"

// Recorder receives proxy measurements. *metrics.Metrics implements it.
type Recorder interface {
	ObserveFetch(d time.Duration, err error)
	ObserveResponse(branch, format string)
	ObserveMismatch(kind string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(time.Duration, error) {}
func (nopRecorder) ObserveResponse(string, string)     {}
func (nopRecorder) ObserveMismatch(string)             {}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithMaxBody caps how many bytes of an upstream body are read.
func WithMaxBody(n int64) Option {
	return func(s *Service) {
		s.maxBody = n
	}
}

// Service is the streaming proxy.
type Service struct {
	client   interfaces.HTTPClient
	rewriter *Rewriter
	maxBody  int64
	recorder Recorder
	log      *logging.Logger
}

// NewService creates a proxy whose rewritten playlists point at baseURL.
func NewService(client interfaces.HTTPClient, baseURL string, log *logging.Logger, opts ...Option) *Service {
	s := &Service{
		client:   client,
		rewriter: NewRewriter(baseURL),
		maxBody:  64 << 20,
		recorder: nopRecorder{},
		log:      log.WithComponent("proxy"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rewriter returns the manifest rewriter used by the service.
func (s *Service) Rewriter() *Rewriter {
	return s.rewriter
}

// Handle fetches req.URL and prepares it for re-serving to a player.
func (s *Service) Handle(ctx context.Context, req types.ProxyRequest) (*types.ProxyResponse, error) {
	target, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidProtocol, req.URL)
	}
	targetURL := target.String()

	referer := req.Referer
	if referer == "" {
		referer = DefaultReferer(targetURL)
	}
	log := s.log.WithURL(targetURL)

	body, declared, finalURL, err := s.fetch(ctx, targetURL, referer)
	if err != nil {
		log.WithError(err).Warn("upstream fetch failed")
		return nil, err
	}

	sniffed := sniff.Detect(body)
	ext := urlutil.Extension(targetURL)
	s.compareSignals(log, sniffed, declared, ext)

	switch {
	case isManifest(sniffed, declared, ext):
		rewritten := s.rewriter.RewriteManifest(string(body), finalURL, referer)
		s.recorder.ObserveResponse(types.BranchManifest, string(sniff.FormatM3U8))
		return &types.ProxyResponse{
			StatusCode:  http.StatusOK,
			ContentType: manifestContentType,
			Headers:     map[string]string{"Cache-Control": ManifestCacheControl},
			Body:        []byte(rewritten),
			Branch:      types.BranchManifest,
		}, nil

	case claimsSubtitle(declared, ext) && sniffed == sniff.FormatMPEGTS:
		log.Warn("subtitle label on MPEG-TS bytes, serving as video", "declared", declared, "ext", ext)
		s.recorder.ObserveMismatch("disguised_subtitle")

	case sniffed == sniff.FormatVTT:
		return s.subtitle(sniff.FormatVTT.ContentType(), string(sniffed), body), nil

	case isPlainSubtitle(ext):
		return s.subtitle("text/plain; charset=utf-8", strings.TrimPrefix(ext, "."), body), nil
	}

	res := ResolveContentType(Signals{
		Sniffed:  sniffed,
		Declared: declared,
		URL:      targetURL,
		Head:     body,
	})
	if strings.HasPrefix(res.ContentType, "video/") && !sniff.LooksLikeVideo(body) {
		log.Warn("serving non-video bytes with a video content type",
			"content_type", res.ContentType, "reason", res.Reason, "sniffed", sniffed, "declared", declared)
		s.recorder.ObserveMismatch("video_label")
	}
	log.Debug("binary passthrough", "content_type", res.ContentType, "reason", res.Reason, "bytes", len(body))

	s.recorder.ObserveResponse(types.BranchBinary, string(res.Format))
	return &types.ProxyResponse{
		StatusCode:  http.StatusOK,
		ContentType: res.ContentType,
		Headers:     map[string]string{"Cache-Control": MediaCacheControl},
		Body:        body,
		Branch:      types.BranchBinary,
	}, nil
}

// fetch GETs the target with spoofed headers and returns the decoded body,
// the declared content type and the URL after redirects.
func (s *Service) fetch(ctx context.Context, targetURL, referer string) ([]byte, string, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", types.ErrFetchFailure, err)
	}
	httpReq.Header.Set("User-Agent", httpclient.DesktopUserAgent)
	httpReq.Header.Set("Accept", "*/*")
	httpReq.Header.Set("Accept-Encoding", httpclient.AcceptEncoding)
	if referer != "" {
		httpReq.Header.Set("Referer", referer)
		if origin := urlutil.Origin(referer); origin != "" {
			httpReq.Header.Set("Origin", origin)
		}
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	s.recorder.ObserveFetch(time.Since(start), err)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", types.ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", "", fmt.Errorf("%w: upstream status %d", types.ErrFetchFailure, resp.StatusCode)
	}

	body, err := httpclient.ReadBody(resp, s.maxBody)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", types.ErrFetchFailure, err)
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return body, resp.Header.Get("Content-Type"), finalURL, nil
}

func (s *Service) subtitle(contentType, format string, body []byte) *types.ProxyResponse {
	s.recorder.ObserveResponse(types.BranchSubtitle, format)
	return &types.ProxyResponse{
		StatusCode:  http.StatusOK,
		ContentType: contentType,
		Headers:     map[string]string{"Cache-Control": MediaCacheControl},
		Body:        body,
		Branch:      types.BranchSubtitle,
	}
}

// compareSignals logs when the declared type or the extension disagree
// with the bytes. It never affects the response.
func (s *Service) compareSignals(log *logging.Logger, sniffed sniff.Format, declared, ext string) {
	log.Debug("content signals", "sniffed", sniffed, "declared", declared, "ext", ext)
	if !sniffed.Detected() {
		return
	}
	if claimed := sniff.FromContentType(declared); claimed.Detected() && claimed != sniffed {
		log.Warn("declared content type disagrees with bytes", "declared", declared, "sniffed", sniffed)
		s.recorder.ObserveMismatch("declared")
	}
	if claimed := sniff.FromExtension(ext); claimed.Detected() && claimed != sniffed {
		log.Warn("extension disagrees with bytes", "ext", ext, "sniffed", sniffed)
		s.recorder.ObserveMismatch("extension")
	}
}

// isManifest decides the playlist branch. Declared type and extension only
// count when the bytes matched no known format: a TS segment served as
// "index.m3u8" or "application/vnd.apple.mpegurl" must not be rewritten as text.
func isManifest(sniffed sniff.Format, declared, ext string) bool {
	if sniffed == sniff.FormatM3U8 {
		return true
	}
	if sniffed.Detected() {
		return false
	}
	return strings.Contains(strings.ToLower(declared), "mpegurl") || ext == ".m3u8"
}

func claimsSubtitle(declared, ext string) bool {
	lower := strings.ToLower(declared)
	return strings.Contains(lower, "vtt") || strings.Contains(lower, "subtitle") ||
		ext == ".vtt" || ext == ".webvtt" || isPlainSubtitle(ext)
}

func isPlainSubtitle(ext string) bool {
	return ext == ".srt" || ext == ".ass" || ext == ".ssa"
}
