package proxy

import (
	"net/url"
	"regexp"
	"strings"

	"media-resolver-go/pkg/urlutil"
)

// Endpoint is the path the proxy is mounted on.
const Endpoint = "/proxy"

// A bare ".ext" line left over when a mirror wraps a URI.
var splitTailRe = regexp.MustCompile(`^\.[A-Za-z0-9]{1,6}(?:[?#].*)?$`)

// Rewriter turns upstream playlist addresses into proxy URLs.
type Rewriter struct {
	baseURL string
}

// NewRewriter creates a rewriter for the proxy reachable at baseURL.
func NewRewriter(baseURL string) *Rewriter {
	return &Rewriter{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// ProxyURL builds the proxy address that re-enters this proxy for target
// with the given referer.
func (r *Rewriter) ProxyURL(target, referer string) string {
	q := url.Values{}
	q.Set("url", target)
	if referer != "" {
		q.Set("referer", referer)
	}
	return r.baseURL + Endpoint + "?" + q.Encode()
}

// isProxied reports whether u already points at this proxy.
func (r *Rewriter) isProxied(u string) bool {
	return strings.HasPrefix(u, r.baseURL+Endpoint+"?")
}

// RewriteManifest rewrites every segment, sub-playlist, key and init-map
// address in an HLS playlist. Relative addresses are resolved against
// manifestURL. Line endings are preserved.
func (r *Rewriter) RewriteManifest(manifest, manifestURL, referer string) string {
	lines := repairSplitLines(strings.Split(manifest, "\n"))

	for i, raw := range lines {
		line, cr := strings.CutSuffix(raw, "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "#EXT-X-KEY:"), strings.HasPrefix(trimmed, "#EXT-X-MAP:"):
			line = r.rewriteURIAttr(line, manifestURL, referer)
		case strings.HasPrefix(trimmed, "#"):
			continue
		default:
			line = r.proxied(trimmed, manifestURL, referer)
		}

		if cr {
			line += "\r"
		}
		lines[i] = line
	}

	return strings.Join(lines, "\n")
}

// rewriteURIAttr rewrites only the URI="..." attribute of a tag line.
func (r *Rewriter) rewriteURIAttr(line, manifestURL, referer string) string {
	start := strings.Index(line, `URI="`)
	if start == -1 {
		return line
	}
	start += len(`URI="`)

	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return line
	}

	uri := line[start : start+end]
	return line[:start] + r.proxied(uri, manifestURL, referer) + line[start+end:]
}

func (r *Rewriter) proxied(uri, manifestURL, referer string) string {
	if r.isProxied(uri) {
		return uri
	}
	return r.ProxyURL(urlutil.ResolveURL(uri, manifestURL), referer)
}

// repairSplitLines joins a URI line with a following line that holds
// only its ".ext" tail.
func repairSplitLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if i+1 < len(lines) && isURILine(line) {
			next, nextCR := strings.CutSuffix(lines[i+1], "\r")
			if splitTailRe.MatchString(strings.TrimSpace(next)) {
				head := strings.TrimRight(line, "\r \t")
				line = head + strings.TrimSpace(next)
				if nextCR {
					line += "\r"
				}
				i++
			}
		}
		out = append(out, line)
	}
	return out
}

func isURILine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && !strings.HasPrefix(trimmed, "#") && !splitTailRe.MatchString(trimmed)
}
