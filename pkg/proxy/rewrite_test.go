package proxy

import (
	"net/url"
	"strings"
	"testing"
)

const testBase = "http://localhost:7860"

// decodeProxyURL returns the url and referer parameters of a proxy address.
func decodeProxyURL(t *testing.T, line string) (string, string) {
	t.Helper()
	if !strings.HasPrefix(line, testBase+Endpoint+"?") {
		t.Fatalf("%q is not a proxy url", line)
	}
	u, err := url.Parse(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return u.Query().Get("url"), u.Query().Get("referer")
}

func TestProxyURL(t *testing.T) {
	r := NewRewriter(testBase + "/")

	got := r.ProxyURL("https://cdn.example.com/a b.ts?x=1&y=2", "https://filemoon.sx/")
	target, referer := decodeProxyURL(t, got)
	if target != "https://cdn.example.com/a b.ts?x=1&y=2" {
		t.Errorf("url = %q", target)
	}
	if referer != "https://filemoon.sx/" {
		t.Errorf("referer = %q", referer)
	}

	if got := r.ProxyURL("https://cdn.example.com/x.ts", ""); strings.Contains(got, "referer=") {
		t.Errorf("empty referer should be omitted: %q", got)
	}
}

func TestRewriteManifest_KeyAndSegment(t *testing.T) {
	r := NewRewriter(testBase)
	in := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-KEY:METHOD=AES-128,URI=\"key1\",IV=0x1234\n" +
		"#EXTINF:10.0,\n" +
		"seg1.ts\n" +
		"#EXT-X-ENDLIST\n"

	out := r.RewriteManifest(in, "https://cdn.example.com/hls/index.m3u8", "https://filemoon.sx/e/abc")
	inLines := strings.Split(in, "\n")
	outLines := strings.Split(out, "\n")
	if len(inLines) != len(outLines) {
		t.Fatalf("line count %d, want %d", len(outLines), len(inLines))
	}

	for _, i := range []int{0, 1, 3, 5, 6} {
		if outLines[i] != inLines[i] {
			t.Errorf("line %d = %q, want unchanged %q", i, outLines[i], inLines[i])
		}
	}

	keyLine := outLines[2]
	if !strings.HasPrefix(keyLine, `#EXT-X-KEY:METHOD=AES-128,URI="`) || !strings.HasSuffix(keyLine, `",IV=0x1234`) {
		t.Fatalf("key line attributes changed: %q", keyLine)
	}
	keyProxy := strings.TrimSuffix(strings.TrimPrefix(keyLine, `#EXT-X-KEY:METHOD=AES-128,URI="`), `",IV=0x1234`)
	keyTarget, keyRef := decodeProxyURL(t, keyProxy)
	if keyTarget != "https://cdn.example.com/hls/key1" {
		t.Errorf("key target = %q", keyTarget)
	}
	if keyRef != "https://filemoon.sx/e/abc" {
		t.Errorf("key referer = %q", keyRef)
	}

	segTarget, _ := decodeProxyURL(t, outLines[4])
	if segTarget != "https://cdn.example.com/hls/seg1.ts" {
		t.Errorf("segment target = %q", segTarget)
	}
	if keyProxy == outLines[4] {
		t.Error("key and segment proxy urls must differ")
	}
}

func TestRewriteManifest_Relative(t *testing.T) {
	r := NewRewriter(testBase)
	tests := []struct {
		name string
		line string
		want string
	}{
		{"sibling", "123.ts", "https://host/path/123.ts"},
		{"root relative", "/other/1.ts", "https://host/other/1.ts"},
		{"parent", "../up.ts", "https://host/up.ts"},
		{"protocol relative", "//cdn2.host/a.ts", "https://cdn2.host/a.ts"},
		{"absolute", "http://elsewhere/b.ts", "http://elsewhere/b.ts"},
		{"sub playlist", "720p/index.m3u8", "https://host/path/720p/index.m3u8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.RewriteManifest("#EXTM3U\n"+tt.line, "https://host/path/index.m3u8", "")
			lines := strings.Split(out, "\n")
			got, _ := decodeProxyURL(t, lines[1])
			if got != tt.want {
				t.Errorf("resolved %q = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestRewriteManifest_Map(t *testing.T) {
	r := NewRewriter(testBase)
	out := r.RewriteManifest(`#EXT-X-MAP:URI="init.mp4",BYTERANGE="720@0"`, "https://host/v/index.m3u8", "")
	if !strings.HasPrefix(out, `#EXT-X-MAP:URI="`+testBase+Endpoint+"?") {
		t.Errorf("map uri not rewritten: %q", out)
	}
	if !strings.HasSuffix(out, `",BYTERANGE="720@0"`) {
		t.Errorf("map attributes changed: %q", out)
	}
}

func TestRewriteManifest_OtherTagsUntouched(t *testing.T) {
	r := NewRewriter(testBase)
	in := "#EXTM3U\n#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"a\",URI=\"audio.m3u8\"\n#EXT-X-KEY:METHOD=NONE\n# comment\n"
	if out := r.RewriteManifest(in, "https://host/index.m3u8", ""); out != in {
		t.Errorf("got %q, want unchanged", out)
	}
}

func TestRewriteManifest_SplitLineRepair(t *testing.T) {
	r := NewRewriter(testBase)
	in := "#EXTM3U\n#EXTINF:4,\nhttps://cdn.host/v/Zx9qLmN0pQ\n.ts?t=1\n#EXTINF:4,\nnext.ts\n"

	out := r.RewriteManifest(in, "https://cdn.host/v/index.m3u8", "")
	lines := strings.Split(out, "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines: %q", len(lines), out)
	}
	got, _ := decodeProxyURL(t, lines[2])
	if got != "https://cdn.host/v/Zx9qLmN0pQ.ts?t=1" {
		t.Errorf("repaired target = %q", got)
	}
	if lines[3] != "#EXTINF:4," {
		t.Errorf("line after repair = %q", lines[3])
	}
}

func TestRewriteManifest_CRLF(t *testing.T) {
	r := NewRewriter(testBase)
	out := r.RewriteManifest("#EXTM3U\r\n#EXTINF:4,\r\nseg.ts\r\n", "https://host/a/index.m3u8", "")
	lines := strings.Split(out, "\n")
	if lines[0] != "#EXTM3U\r" || lines[1] != "#EXTINF:4,\r" {
		t.Errorf("tags changed: %q", out)
	}
	if !strings.HasSuffix(lines[2], "\r") {
		t.Errorf("segment line lost CR: %q", lines[2])
	}
	got, _ := decodeProxyURL(t, strings.TrimSuffix(lines[2], "\r"))
	if got != "https://host/a/seg.ts" {
		t.Errorf("target = %q", got)
	}
	if lines[3] != "" {
		t.Errorf("trailing newline lost: %q", out)
	}
}

func TestRewriteManifest_AlreadyProxied(t *testing.T) {
	r := NewRewriter(testBase)
	once := r.RewriteManifest("#EXTM3U\nseg.ts", "https://host/index.m3u8", "")
	twice := r.RewriteManifest(once, "https://host/index.m3u8", "")
	if once != twice {
		t.Errorf("rewrite is not stable:\n%q\n%q", once, twice)
	}
}
