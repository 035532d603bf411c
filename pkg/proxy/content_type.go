package proxy

import (
	"mime"
	"regexp"
	"strings"

	"media-resolver-go/pkg/sniff"
	"media-resolver-go/pkg/urlutil"
)

const octetStream = "application/octet-stream"

// Resolution reasons, in cascade order.
const (
	ReasonSniffed   = "sniffed"
	ReasonKey       = "key"
	ReasonDisguised = "disguised_segment"
	ReasonSegment   = "segment_pattern"
	ReasonDeclared  = "declared"
	ReasonExtension = "extension"
	ReasonDefault   = "default"
)

// Signals are the inputs to content type resolution for a binary payload.
type Signals struct {
	Sniffed  sniff.Format
	Declared string
	URL      string
	// Head is the start of the body, used for the direct byte checks.
	Head []byte
}

// Resolution is the content type chosen for a binary payload.
type Resolution struct {
	Format      sniff.Format
	ContentType string
	Reason      string
}

var (
	keyURLRe = regexp.MustCompile(`(?i)(?:\.key(?:$|[?#])|/keys?/|/key(?:$|[?#])|[?&](?:key|kid)=|/encryption[-_]?key)`)
	// An opaque, token-like file name.
	opaqueNameRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{24,}$`)
)

// Extensions mirrors put on video segments to dodge filtering.
var disguiseExtensions = map[string]bool{
	".vtt": true, ".webvtt": true, ".js": true, ".css": true, ".woff": true,
	".woff2": true, ".ttf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".webp": true, ".ico": true, ".svg": true, ".txt": true,
	".html": true, ".json": true,
}

var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".ts":   "video/mp2t",
	".m4s":  "video/iso.segment",
	".m4v":  "video/x-m4v",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".mp3":  "audio/mpeg",
	".key":  octetStream,
}

// ResolveContentType picks the content type for a binary payload. Priority:
// sniffed format, key URL, disguised segment heuristic, segment URL
// pattern, then the declared type or extension.
func ResolveContentType(s Signals) Resolution {
	if s.Sniffed.Detected() {
		return Resolution{Format: s.Sniffed, ContentType: s.Sniffed.ContentType(), Reason: ReasonSniffed}
	}

	if keyURLRe.MatchString(s.URL) {
		return Resolution{Format: sniff.FormatUnknown, ContentType: octetStream, Reason: ReasonKey}
	}

	if IsDisguisedSegment(s.URL) {
		f := videoFormatFromBytes(s.Head, sniff.FormatMPEGTS)
		return Resolution{Format: f, ContentType: f.ContentType(), Reason: ReasonDisguised}
	}

	if IsSegmentURL(s.URL) {
		fallback := sniff.FromExtension(urlutil.Extension(s.URL))
		if !fallback.IsVideo() {
			fallback = sniff.FormatMPEGTS
		}
		f := videoFormatFromBytes(s.Head, fallback)
		return Resolution{Format: f, ContentType: f.ContentType(), Reason: ReasonSegment}
	}

	if declared := usableDeclared(s.Declared); declared != "" {
		return Resolution{Format: sniff.FromContentType(declared), ContentType: declared, Reason: ReasonDeclared}
	}

	if ct, ok := extensionTypes[urlutil.Extension(s.URL)]; ok {
		return Resolution{Format: sniff.FormatUnknown, ContentType: ct, Reason: ReasonExtension}
	}

	return Resolution{Format: sniff.FormatUnknown, ContentType: octetStream, Reason: ReasonDefault}
}

// IsDisguisedSegment reports whether the URL looks like a video segment
// hidden behind a non-video extension: a long opaque file name with an
// extension such as .vtt, .js or .png.
func IsDisguisedSegment(u string) bool {
	ext := urlutil.Extension(u)
	if !disguiseExtensions[ext] {
		return false
	}
	return opaqueNameRe.MatchString(urlutil.LastSegment(u))
}

// IsSegmentURL reports whether the URL follows a common segment naming scheme.
func IsSegmentURL(u string) bool {
	lower := strings.ToLower(u)
	ext := urlutil.Extension(u)
	return ext == ".ts" || ext == ".m4s" ||
		strings.Contains(lower, "segment-") || strings.Contains(lower, "/seg-")
}

// IsKeyURL reports whether the URL looks like an HLS key.
func IsKeyURL(u string) bool {
	return keyURLRe.MatchString(u)
}

func videoFormatFromBytes(head []byte, fallback sniff.Format) sniff.Format {
	switch {
	case len(head) > 0 && head[0] == sniff.TSSyncByte:
		return sniff.FormatMPEGTS
	case sniff.IsFMP4(head):
		return sniff.FormatFMP4
	default:
		return fallback
	}
}

// usableDeclared returns the declared type unless it is missing, invalid
// or a text/html error page label.
func usableDeclared(declared string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "text/html" {
		return ""
	}
	return declared
}
