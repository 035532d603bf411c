// Package providers resolves playable sources for an episode from a trusted
// direct-stream provider, an embed mirror catalog or the ad-free pipeline
// that runs mirror embeds through the extractors.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"media-resolver-go/pkg/httpclient"
	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"
)

const maxCatalogBytes = 2 << 20

// TrustedClient talks to a provider API that already returns direct
// manifest URLs.
type TrustedClient struct {
	baseURL string
	client  interfaces.HTTPClient
	log     *logging.Logger
}

var _ interfaces.TrustedProvider = (*TrustedClient)(nil)

// NewTrustedClient creates a client for the API rooted at baseURL.
func NewTrustedClient(baseURL string, client interfaces.HTTPClient, log *logging.Logger) *TrustedClient {
	return &TrustedClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     log.WithComponent("trusted-provider"),
	}
}

type trustedEnvelope struct {
	Success bool        `json:"success"`
	Data    trustedData `json:"data"`
}

type trustedData struct {
	Headers map[string]string `json:"headers"`
	Sources []struct {
		URL     string `json:"url"`
		IsM3U8  bool   `json:"isM3U8"`
		Quality string `json:"quality"`
		Type    string `json:"type"`
	} `json:"sources"`
	Tracks []struct {
		URL  string `json:"url"`
		File string `json:"file"`
		Lang string `json:"lang"`
		Kind string `json:"kind"`
	} `json:"tracks"`
	Intro *types.TimeRange `json:"intro"`
	Outro *types.TimeRange `json:"outro"`
}

// Sources fetches the direct sources for one episode.
func (c *TrustedClient) Sources(ctx context.Context, episodeID, category string) (*types.DirectSources, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: trusted provider not configured", types.ErrUpstream)
	}

	q := url.Values{}
	q.Set("animeEpisodeId", episodeID)
	q.Set("category", category)
	endpoint := c.baseURL + "/api/v2/hianime/episode/sources?" + q.Encode()

	var env trustedEnvelope
	if err := getJSON(ctx, c.client, endpoint, &env); err != nil {
		c.log.WithError(err).Warn("trusted lookup failed", "episode", episodeID)
		return nil, err
	}

	out := &types.DirectSources{Intro: nonZero(env.Data.Intro), Outro: nonZero(env.Data.Outro)}
	for _, s := range env.Data.Sources {
		if s.URL == "" {
			continue
		}
		quality := s.Quality
		if quality == "" {
			quality = types.QualityAuto
		}
		out.Sources = append(out.Sources, types.ExtractedVideo{
			URL:     s.URL,
			Quality: quality,
			IsM3U8:  s.IsM3U8 || s.Type == "hls" || strings.Contains(s.URL, ".m3u8"),
			Headers: env.Data.Headers,
		})
	}
	for _, t := range env.Data.Tracks {
		if t.Kind == "thumbnails" || t.Lang == "thumbnails" {
			continue
		}
		u := t.URL
		if u == "" {
			u = t.File
		}
		if u != "" {
			out.Subtitles = append(out.Subtitles, types.Subtitle{URL: u, Lang: t.Lang})
		}
	}

	if len(out.Sources) == 0 {
		return nil, fmt.Errorf("%w: trusted provider returned no sources", types.ErrNoSource)
	}
	return out, nil
}

func nonZero(r *types.TimeRange) *types.TimeRange {
	if r == nil || (r.Start == 0 && r.End == 0) {
		return nil
	}
	return r
}

// getJSON fetches endpoint and decodes the body into v. A 404 means the
// catalog has nothing for the episode; other failures are upstream errors.
func getJSON(ctx context.Context, client interfaces.HTTPClient, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", httpclient.AcceptEncoding)
	req.Header.Set("User-Agent", httpclient.DesktopUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: catalog returned 404", types.ErrNoSource)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: catalog returned status %d", types.ErrUpstream, resp.StatusCode)
	}

	body, err := httpclient.ReadBody(resp, maxCatalogBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrUpstream, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decode catalog response: %v", types.ErrUpstream, err)
	}
	return nil
}
