// Package sniff classifies media payloads by their leading bytes.
//
// Upstream mirrors routinely mislabel what they serve (video segments as
// text/vtt, images, fonts or scripts), so the declared Content-Type and the
// URL extension are never trusted on their own.
package sniff

import (
	"bytes"
	"strings"
)

// Format is the real container/media type of a payload.
type Format string

const (
	FormatMPEGTS  Format = "mpeg_ts"
	FormatFMP4    Format = "fmp4"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatJPEG    Format = "jpeg"
	FormatWebP    Format = "webp"
	FormatM3U8    Format = "m3u8"
	FormatVTT     Format = "vtt"
	FormatUnknown Format = "unknown"
)

// TSSyncByte starts every MPEG transport stream packet.
const TSSyncByte = 0x47

// textWindow is how much of the buffer is decoded when looking for text formats.
const textWindow = 500

var fmp4Boxes = map[string]bool{
	"ftyp": true,
	"moov": true,
	"moof": true,
	"mdat": true,
	"styp": true,
	"sidx": true,
	"free": true,
	"skip": true,
}

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	gifMagic  = []byte("GIF8")
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	utf8BOM   = []byte{0xEF, 0xBB, 0xBF}
)

// Detect classifies buf. Rules are checked in order and the first match wins.
// A GIF header also starts with 0x47, so GIF payloads report as MPEG-TS.
func Detect(buf []byte) Format {
	if len(buf) == 0 {
		return FormatUnknown
	}
	if buf[0] == TSSyncByte {
		return FormatMPEGTS
	}
	if IsFMP4(buf) {
		return FormatFMP4
	}

	switch {
	case bytes.HasPrefix(buf, pngMagic):
		return FormatPNG
	case bytes.HasPrefix(buf, gifMagic):
		return FormatGIF
	case bytes.HasPrefix(buf, jpegMagic):
		return FormatJPEG
	case len(buf) >= 12 && string(buf[0:4]) == "RIFF" && string(buf[8:12]) == "WEBP":
		return FormatWebP
	}

	head := buf
	if len(head) > textWindow {
		head = head[:textWindow]
	}
	head = bytes.TrimPrefix(head, utf8BOM)
	text := string(head)
	if strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), "#EXTM3U") {
		return FormatM3U8
	}
	if strings.Contains(text, "WEBVTT") {
		return FormatVTT
	}

	return FormatUnknown
}

// IsFMP4 reports whether bytes 4..8 name an ISO-BMFF box type.
func IsFMP4(buf []byte) bool {
	return len(buf) >= 8 && fmp4Boxes[string(buf[4:8])]
}

// LooksLikeVideo reports whether buf starts like a TS or fMP4 segment.
func LooksLikeVideo(buf []byte) bool {
	return (len(buf) > 0 && buf[0] == TSSyncByte) || IsFMP4(buf)
}

// Detected reports whether f is a concrete format.
func (f Format) Detected() bool {
	return f != "" && f != FormatUnknown
}

// IsVideo reports whether f is a video container.
func (f Format) IsVideo() bool {
	return f == FormatMPEGTS || f == FormatFMP4
}

// ContentType returns the MIME type served for f, or "" for unknown.
func (f Format) ContentType() string {
	switch f {
	case FormatMPEGTS:
		return "video/mp2t"
	case FormatFMP4:
		return "video/mp4"
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	case FormatM3U8:
		return "application/vnd.apple.mpegurl"
	case FormatVTT:
		return "text/vtt"
	default:
		return ""
	}
}

// FromContentType maps a declared Content-Type to the format it claims.
// It is used only for diagnostics, never for the served type.
func FromContentType(ct string) Format {
	ct = strings.ToLower(ct)
	switch {
	case ct == "":
		return FormatUnknown
	case strings.Contains(ct, "mpegurl"):
		return FormatM3U8
	case strings.Contains(ct, "vtt"):
		return FormatVTT
	case strings.Contains(ct, "mp2t"):
		return FormatMPEGTS
	case strings.Contains(ct, "video/mp4"), strings.Contains(ct, "iso.segment"):
		return FormatFMP4
	case strings.Contains(ct, "image/png"):
		return FormatPNG
	case strings.Contains(ct, "image/gif"):
		return FormatGIF
	case strings.Contains(ct, "image/jpeg"):
		return FormatJPEG
	case strings.Contains(ct, "image/webp"):
		return FormatWebP
	default:
		return FormatUnknown
	}
}

// FromExtension maps a file extension (with dot) to the format it claims.
func FromExtension(ext string) Format {
	switch strings.ToLower(ext) {
	case ".ts":
		return FormatMPEGTS
	case ".m4s", ".mp4", ".m4v", ".cmfv":
		return FormatFMP4
	case ".png":
		return FormatPNG
	case ".gif":
		return FormatGIF
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".webp":
		return FormatWebP
	case ".m3u8":
		return FormatM3U8
	case ".vtt":
		return FormatVTT
	default:
		return FormatUnknown
	}
}
