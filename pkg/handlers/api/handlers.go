// Package api provides HTTP handlers for the resolver API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"media-resolver-go/pkg/appctx"
	"media-resolver-go/pkg/cache"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/proxy"
	"media-resolver-go/pkg/types"
)

// Version is reported by /api/info.
const Version = "1.0.0"

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /api/info", h.handleAPIInfo)

	mux.HandleFunc("GET "+proxy.Endpoint, h.handleProxy)
	mux.HandleFunc("GET /extract", h.handleExtract)
	mux.HandleFunc("GET /sources/{episodeID}", h.handleSources)

	if h.ctx.Metrics != nil && h.ctx.Config.MetricsEnabled {
		mux.Handle("GET /metrics", h.ctx.Metrics.Handler())
	}
}

// handleIndex lists the available endpoints.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, `media-resolver %s

GET %s?url=<target>&referer=<referer>
GET /extract?url=<embed url>
GET /sources/{episodeID}?provider=trusted|mirror|mirror-adfree&category=sub|dub
GET /api/info
`, Version, proxy.Endpoint)
}

// handleAPIInfo returns server status as JSON.
func (h *Handlers) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	var extractorNames []string
	if h.ctx.Extractors != nil {
		extractorNames = h.ctx.Extractors.Names()
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "running",
		"version":         Version,
		"uptime_seconds":  int(time.Since(h.ctx.StartedAt).Seconds()),
		"extractors":      extractorNames,
		"defaultProvider": h.ctx.Config.DefaultProvider,
	})
}

// handleProxy serves a proxied playlist, segment, key or subtitle.
func (h *Handlers) handleProxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := types.ProxyRequest{URL: q.Get("url"), Referer: q.Get("referer")}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("url parameter required"))
		return
	}

	resp, err := h.ctx.Proxy.Handle(r.Context(), req)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("proxy request failed", "url", req.URL)
		h.writeError(w, StatusFor(err), err)
		return
	}

	h.writeProxyResponse(w, resp)
}

// handleExtract runs the extractor registry on one embed URL. Failures are
// structured results, so the status is always 200.
func (h *Handlers) handleExtract(w http.ResponseWriter, r *http.Request) {
	embedURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if embedURL == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("url parameter required"))
		return
	}

	key := "extract:" + embedURL
	force := r.URL.Query().Get("force") == "true"
	if h.ctx.Cache != nil && !force {
		if cached, ok := cache.GetJSON[types.ExtractionResult](h.ctx.Cache, key).Get(); ok {
			h.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	result := h.ctx.Extractors.ExtractVideo(r.Context(), embedURL)
	if result.Success && h.ctx.Cache != nil {
		if err := cache.SetJSON(h.ctx.Cache, key, result, h.ctx.Config.ExtractCacheTTL); err != nil {
			h.log.WithError(err).Warn("extract cache write failed")
		}
	}
	h.writeJSON(w, http.StatusOK, result)
}

// handleSources resolves playable sources for an episode.
func (h *Handlers) handleSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := types.SourceRequest{
		EpisodeID: r.PathValue("episodeID"),
		Provider:  strings.ToLower(strings.TrimSpace(q.Get("provider"))),
		Dub:       isDub(q.Get("category"), q.Get("dub")),
	}

	resp, err := h.ctx.Orchestrator.Sources(r.Context(), req)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Info("source lookup failed",
			"episode", req.EpisodeID, "provider", req.Provider)
		h.writeError(w, StatusFor(err), err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func isDub(category, dub string) bool {
	if strings.EqualFold(category, "dub") {
		return true
	}
	b, _ := strconv.ParseBool(dub)
	return b
}

// StatusFor maps a resolver error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidProtocol):
		return http.StatusForbidden
	case errors.Is(err, types.ErrUnknownProvider), errors.Is(err, types.ErrMissingEpisode):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNoSource), errors.Is(err, types.ErrNoMatchingExtractor):
		return http.StatusNotFound
	case errors.Is(err, types.ErrUpstream):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrFetchFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Helper methods

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]string{"error": err.Error()}
	if kind := types.ErrorKind(err); kind != "unknown" {
		body["kind"] = kind
	}
	h.writeJSON(w, status, body)
}

func (h *Handlers) writeProxyResponse(w http.ResponseWriter, resp *types.ProxyResponse) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
