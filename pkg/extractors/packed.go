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

	"github.com/PuerkitoBio/goquery"
)

var (
	filemoonPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^https?://(?:www\.)?(?:filemoon|moonmov|kerapoxy|smdfs40r|bf0skv|z1ekv717|fmoonembed)\.[a-z]{2,}/`),
	}
	streamwishPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^https?://(?:www\.)?(?:streamwish|wishembed|swish|sfastwish|awish|dwish|embedwish|strwish|wishfast|flaswish|obeywish|hlswish)\.[a-z]{2,}/`),
	}

	// file:"<url>.m3u8..."
	manifestFileRe = regexp.MustCompile(`file\s*:\s*["']([^"']+\.m3u8[^"']*)["']`)
	// sources:[{file:"<url>"
	sourcesFileRe = regexp.MustCompile(`sources\s*:\s*\[\s*\{\s*file\s*:\s*["']([^"']+)["']`)
)

// PackedExtractor resolves mirrors that hide the manifest URL inside a
// P.A.C.K.E.R. script. Filemoon and Streamwish share it and differ only in
// name and URL patterns.
type PackedExtractor struct {
	*BaseExtractor
}

// NewPackedExtractor creates a packed-script extractor for one mirror family.
func NewPackedExtractor(name string, patterns []*regexp.Regexp, client interfaces.HTTPClient, log *logging.Logger, opts ...Option) *PackedExtractor {
	return &PackedExtractor{
		BaseExtractor: NewBaseExtractor(name, patterns, client, log, opts...),
	}
}

// NewFilemoonExtractor creates the Filemoon extractor.
func NewFilemoonExtractor(client interfaces.HTTPClient, log *logging.Logger, opts ...Option) *PackedExtractor {
	return NewPackedExtractor("filemoon", filemoonPatterns, client, log, opts...)
}

// NewStreamwishExtractor creates the Streamwish extractor.
func NewStreamwishExtractor(client interfaces.HTTPClient, log *logging.Logger, opts ...Option) *PackedExtractor {
	return NewPackedExtractor("streamwish", streamwishPatterns, client, log, opts...)
}

// Extract resolves an embed URL to its HLS manifest.
func (e *PackedExtractor) Extract(ctx context.Context, embedURL string) *types.ExtractionResult {
	e.log.Debug("extracting packed stream", "url", embedURL)

	html, err := e.FetchPage(ctx, embedURL, BrowserHeaders(originReferer(embedURL)))
	if err != nil {
		return e.fail(embedURL, err)
	}

	manifest, err := e.findManifest(ctx, embedURL, html, true)
	if err != nil {
		return e.fail(embedURL, err)
	}

	return types.Succeeded(e.Name(), types.ExtractedVideo{
		URL:     manifest,
		Quality: types.QualityAuto,
		IsM3U8:  true,
		Headers: map[string]string{"Referer": embedURL},
	})
}

// findManifest searches one page for the manifest. When the page has
// neither a packed script nor a manifest literal, its first iframe is
// fetched once and searched the same way.
func (e *PackedExtractor) findManifest(ctx context.Context, pageURL, html string, followIframe bool) (string, error) {
	packed := findPackedScript(html)
	if packed == "" {
		if m := manifestFileRe.FindStringSubmatch(html); m != nil {
			return absolutize(m[1], pageURL), nil
		}
		if followIframe {
			if src := iframeSrc(html, pageURL); src != "" {
				e.log.Debug("following player iframe", "iframe", src)
				frame, err := e.FetchPage(ctx, src, BrowserHeaders(pageURL))
				if err != nil {
					return "", err
				}
				return e.findManifest(ctx, src, frame, false)
			}
		}
		return "", fmt.Errorf("%w: no packed script or manifest literal", types.ErrPatternNotFound)
	}

	decoded, err := unpacker.Unpack(packed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrDecodeFailure, err)
	}

	if m := manifestFileRe.FindStringSubmatch(decoded); m != nil {
		return absolutize(m[1], pageURL), nil
	}
	if m := sourcesFileRe.FindStringSubmatch(decoded); m != nil {
		return absolutize(m[1], pageURL), nil
	}
	return "", fmt.Errorf("%w: no manifest in decoded script", types.ErrPatternNotFound)
}

// findPackedScript returns the first packer invocation, preferring inline
// <script> bodies and falling back to the raw page.
func findPackedScript(html string) string {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		var packed string
		doc.Find("script:not([src])").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			packed = unpacker.Find(s.Text())
			return packed == ""
		})
		if packed != "" {
			return packed
		}
	}
	return unpacker.Find(html)
}

// iframeSrc returns the absolute src of the first iframe on the page.
func iframeSrc(html, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("iframe[src]").First().Attr("src")
	return absolutize(src, pageURL)
}

var _ interfaces.VideoExtractor = (*PackedExtractor)(nil)
