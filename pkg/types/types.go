// Package types defines core domain types used throughout the application.
package types

import (
	"strings"
)

// QualityAuto is reported when a mirror does not expose a quality ladder.
const QualityAuto = "auto"

// Source kinds reported in SourceResponse.Type.
const (
	SourceTypeDirect = "direct"
	SourceTypeEmbed  = "embed"
)

// Server types listed by a mirror catalog.
const (
	ServerTypeEmbed    = "embed"
	ServerTypeDownload = "download"
)

// ExtractedVideo is a playable media URL recovered from an embed page.
// Headers must be forwarded by any later fetch of URL.
type ExtractedVideo struct {
	URL     string            `json:"url"`
	Quality string            `json:"quality"`
	IsM3U8  bool              `json:"isM3U8"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ExtractionResult is the structured outcome of one extraction attempt.
// Server is always set, whether or not extraction succeeded.
type ExtractionResult struct {
	Success bool             `json:"success"`
	Videos  []ExtractedVideo `json:"videos,omitempty"`
	Error   string           `json:"error,omitempty"`
	Kind    string           `json:"kind,omitempty"`
	Server  string           `json:"server"`
}

// Succeeded builds a successful result. Videos without a URL are dropped and
// a result left with no videos is reported as a failure.
func Succeeded(server string, videos ...ExtractedVideo) *ExtractionResult {
	kept := make([]ExtractedVideo, 0, len(videos))
	for _, v := range videos {
		if strings.TrimSpace(v.URL) == "" {
			continue
		}
		if v.Quality == "" {
			v.Quality = QualityAuto
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		return Failed(server, ErrPatternNotFound)
	}
	return &ExtractionResult{
		Success: true,
		Videos:  kept,
		Server:  server,
	}
}

// Failed builds a failed result from a classified error.
func Failed(server string, err error) *ExtractionResult {
	if server == "" {
		server = "unknown"
	}
	return &ExtractionResult{
		Success: false,
		Error:   err.Error(),
		Kind:    ErrorKind(err),
		Server:  server,
	}
}

// First returns the first extracted video, if any.
func (r *ExtractionResult) First() (ExtractedVideo, bool) {
	if r == nil || !r.Success || len(r.Videos) == 0 {
		return ExtractedVideo{}, false
	}
	return r.Videos[0], true
}

// ProxyRequest is a single streaming proxy call.
type ProxyRequest struct {
	URL     string
	Referer string
}

// ProxyResponse is what the streaming proxy hands back for re-serving.
type ProxyResponse struct {
	StatusCode  int
	ContentType string
	Headers     map[string]string
	Body        []byte
	// Branch names the handling path: manifest, subtitle or binary.
	Branch string
}

// Proxy branches.
const (
	BranchManifest = "manifest"
	BranchSubtitle = "subtitle"
	BranchBinary   = "binary"
)

// Server is one entry of a mirror's server list for an episode.
type Server struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Subtitle is a caption track offered by a direct provider.
type Subtitle struct {
	URL  string `json:"url"`
	Lang string `json:"lang"`
}

// TimeRange marks intro/outro boundaries in seconds.
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// DirectSources is what a trusted provider returns for an episode.
type DirectSources struct {
	Sources   []ExtractedVideo `json:"sources"`
	Subtitles []Subtitle       `json:"subtitles,omitempty"`
	Intro     *TimeRange       `json:"intro,omitempty"`
	Outro     *TimeRange       `json:"outro,omitempty"`
}

// SourceRequest asks the orchestration layer for playable sources.
type SourceRequest struct {
	EpisodeID string
	Provider  string
	Dub       bool
}

// Category returns the sub/dub label used by upstream catalogs and cache keys.
func (r SourceRequest) Category() string {
	if r.Dub {
		return "dub"
	}
	return "sub"
}

// SourceResponse is the orchestration payload returned to callers.
type SourceResponse struct {
	Provider      string           `json:"provider"`
	Type          string           `json:"type"`
	Sources       []ExtractedVideo `json:"sources,omitempty"`
	Subtitles     []Subtitle       `json:"subtitles,omitempty"`
	Intro         *TimeRange       `json:"intro,omitempty"`
	Outro         *TimeRange       `json:"outro,omitempty"`
	Servers       []Server         `json:"servers,omitempty"`
	ExtractedFrom string           `json:"extractedFrom,omitempty"`
}
