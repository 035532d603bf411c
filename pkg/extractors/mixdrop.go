package extractors

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"
	"media-resolver-go/pkg/unpacker"
)

var mixdropPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^https?://(?:www\.)?(?:mixdrop|mixdrp|mixdroop|mxdrop|m1xdrop)\.[a-z]{2,}/`),
}

var (
	wurlRe     = regexp.MustCompile(`wurl\s*=\s*["']([^"']+)["']`)
	mdSourceRe = regexp.MustCompile(`(?:source|src)\s*[=:]\s*["']([^"']+\.(?:mp4|m3u8)[^"']*)["']`)
)

// MixdropExtractor resolves Mixdrop embeds, whose packed player script
// assigns the file URL to MDCore.wurl.
type MixdropExtractor struct {
	*BaseExtractor
}

// NewMixdropExtractor creates a new Mixdrop extractor.
func NewMixdropExtractor(client interfaces.HTTPClient, log *logging.Logger, opts ...Option) *MixdropExtractor {
	return &MixdropExtractor{
		BaseExtractor: NewBaseExtractor("mixdrop", mixdropPatterns, client, log, opts...),
	}
}

// Extract resolves a Mixdrop URL to a direct file URL.
func (e *MixdropExtractor) Extract(ctx context.Context, embedURL string) *types.ExtractionResult {
	e.log.Debug("extracting Mixdrop stream", "url", embedURL)

	// The player lives on the /e/ page; /f/ is the download landing page.
	pageURL := strings.Replace(embedURL, "/f/", "/e/", 1)
	referer := originReferer(pageURL)

	html, err := e.FetchPage(ctx, pageURL, BrowserHeaders(referer))
	if err != nil {
		return e.fail(embedURL, err)
	}

	source := html
	if packed := findPackedScript(html); packed != "" {
		decoded, err := unpacker.Unpack(packed)
		if err != nil {
			return e.fail(embedURL, fmt.Errorf("%w: %v", types.ErrDecodeFailure, err))
		}
		source = decoded
	}

	var fileURL string
	if m := wurlRe.FindStringSubmatch(source); m != nil {
		fileURL = m[1]
	} else if m := mdSourceRe.FindStringSubmatch(source); m != nil {
		fileURL = m[1]
	}
	if fileURL == "" {
		return e.fail(embedURL, fmt.Errorf("%w: no file url in player script", types.ErrPatternNotFound))
	}
	fileURL = withScheme(fileURL)

	return types.Succeeded(e.Name(), types.ExtractedVideo{
		URL:     fileURL,
		Quality: types.QualityAuto,
		IsM3U8:  strings.Contains(strings.ToLower(fileURL), ".m3u8"),
		Headers: map[string]string{"Referer": referer},
	})
}

var _ interfaces.VideoExtractor = (*MixdropExtractor)(nil)
