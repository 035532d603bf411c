// Package urlutil provides URL manipulation utilities that preserve original encoding.
package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// ResolveURL resolves a potentially relative URL against a base URL.
// Uses string manipulation to preserve original URL encoding: Go's
// url.ResolveReference re-encodes characters some CDNs sign verbatim.
func ResolveURL(urlStr string, baseURL string) string {
	if IsAbsolute(urlStr) {
		return urlStr
	}

	// Protocol-relative: inherit the base scheme
	if strings.HasPrefix(urlStr, "//") {
		scheme := "https"
		if parsed, err := url.Parse(baseURL); err == nil && parsed.Scheme != "" {
			scheme = parsed.Scheme
		}
		return scheme + ":" + urlStr
	}

	base := GetBaseDirectory(baseURL)

	if strings.HasPrefix(urlStr, "/") {
		// Absolute path - combine with scheme+host from base
		if origin := Origin(baseURL); origin != "" {
			return origin + urlStr
		}
		return base + urlStr
	}

	remaining := strings.TrimPrefix(urlStr, "./")
	if strings.HasPrefix(remaining, "../") {
		result := base
		for strings.HasPrefix(remaining, "../") {
			remaining = remaining[3:]
			// Drop the last directory, never the host
			trimmed := strings.TrimSuffix(result, "/")
			if lastSlash := strings.LastIndex(trimmed, "/"); lastSlash >= len(Origin(baseURL)) {
				result = trimmed[:lastSlash+1]
			}
		}
		return result + remaining
	}

	return base + remaining
}

// IsAbsolute reports whether urlStr carries an http(s) scheme.
func IsAbsolute(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// GetBaseDirectory returns the directory portion of a URL (without the filename).
// Preserves original encoding.
func GetBaseDirectory(urlStr string) string {
	if idx := strings.IndexAny(urlStr, "?#"); idx > 0 {
		urlStr = urlStr[:idx]
	}
	if lastSlash := strings.LastIndex(urlStr, "/"); lastSlash > 0 {
		return urlStr[:lastSlash+1]
	}
	return urlStr
}

// Origin returns scheme://host of a URL, or "" if it cannot be parsed.
func Origin(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// Hostname returns the lower-cased host of a URL without port or "www.".
func Hostname(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// Extension returns the lower-cased file extension of the URL path,
// including the dot, ignoring query and fragment.
func Extension(urlStr string) string {
	p := urlStr
	if parsed, err := url.Parse(urlStr); err == nil {
		p = parsed.Path
	} else if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	return strings.ToLower(path.Ext(p))
}

// LastSegment returns the final path segment of a URL, without extension.
func LastSegment(urlStr string) string {
	p := urlStr
	if parsed, err := url.Parse(urlStr); err == nil {
		p = parsed.Path
	}
	base := path.Base(p)
	if base == "/" || base == "." {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
