package proxy

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-resolver-go/pkg/httpclient"
	"media-resolver-go/pkg/logging"
	"media-resolver-go/pkg/types"

	"github.com/klauspost/compress/gzip"
)

type fakeRecorder struct {
	mu         sync.Mutex
	fetches    int
	responses  []string
	mismatches []string
}

func (f *fakeRecorder) ObserveFetch(time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
}

func (f *fakeRecorder) ObserveResponse(branch, format string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, branch+"/"+format)
}

func (f *fakeRecorder) ObserveMismatch(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mismatches = append(f.mismatches, kind)
}

func (f *fakeRecorder) hasMismatch(kind string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.mismatches {
		if m == kind {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, handler http.Handler) (*Service, *httptest.Server, *fakeRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	rec := &fakeRecorder{}
	svc := NewService(srv.Client(), testBase, logging.Discard(), WithRecorder(rec))
	return svc, srv, rec
}

func serveBytes(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Write(body)
	}
}

func TestHandle_ManifestRelativeSegment(t *testing.T) {
	var gotReferer, gotOrigin, gotUA atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/path/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		gotReferer.Store(r.Header.Get("Referer"))
		gotOrigin.Store(r.Header.Get("Origin"))
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("#EXTM3U\n#EXT-X-VERSION:3\n#EXTINF:4.0,\n123.ts\n"))
	})
	svc, srv, rec := newTestService(t, mux)

	resp, err := svc.Handle(context.Background(), types.ProxyRequest{
		URL:     srv.URL + "/path/index.m3u8",
		Referer: "https://filemoon.sx/e/abc",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Branch != types.BranchManifest {
		t.Errorf("branch = %q", resp.Branch)
	}
	if resp.ContentType != "application/vnd.apple.mpegurl" {
		t.Errorf("content type = %q", resp.ContentType)
	}
	if resp.Headers["Cache-Control"] != ManifestCacheControl {
		t.Errorf("cache control = %q", resp.Headers["Cache-Control"])
	}

	lines := strings.Split(string(resp.Body), "\n")
	target, referer := decodeProxyURL(t, lines[3])
	if target != srv.URL+"/path/123.ts" {
		t.Errorf("segment target = %q", target)
	}
	if referer != "https://filemoon.sx/e/abc" {
		t.Errorf("segment referer = %q", referer)
	}

	if gotReferer.Load() != "https://filemoon.sx/e/abc" || gotOrigin.Load() != "https://filemoon.sx" {
		t.Errorf("upstream saw referer=%v origin=%v", gotReferer.Load(), gotOrigin.Load())
	}
	if gotUA.Load() != httpclient.DesktopUserAgent {
		t.Errorf("upstream user agent = %v", gotUA.Load())
	}
	if rec.fetches != 1 || len(rec.responses) != 1 || rec.responses[0] != "manifest/m3u8" {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestHandle_ManifestAfterRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start.m3u8", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cdn/v2/index.m3u8", http.StatusFound)
	})
	mux.Handle("/cdn/v2/index.m3u8", serveBytes("application/vnd.apple.mpegurl", []byte("#EXTM3U\nseg.ts\n")))
	svc, srv, _ := newTestService(t, mux)

	resp, err := svc.Handle(context.Background(), types.ProxyRequest{URL: srv.URL + "/start.m3u8"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	target, _ := decodeProxyURL(t, strings.Split(string(resp.Body), "\n")[1])
	if target != srv.URL+"/cdn/v2/seg.ts" {
		t.Errorf("target = %q, want it resolved against the final url", target)
	}
}

func TestHandle_DeclaredVTTWithTSBytes(t *testing.T) {
	payload := append([]byte{0x47, 0x40, 0x11, 0x10}, bytes.Repeat([]byte{0xFF}, 184)...)
	svc, srv, rec := newTestService(t, serveBytes("text/vtt", payload))

	resp, err := svc.Handle(context.Background(), types.ProxyRequest{URL: srv.URL + "/subs/en.vtt"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Branch != types.BranchBinary {
		t.Errorf("branch = %q, want binary", resp.Branch)
	}
	if resp.ContentType != "video/mp2t" {
		t.Errorf("content type = %q, want video/mp2t", resp.ContentType)
	}
	if !bytes.Equal(resp.Body, payload) {
		t.Error("binary body must be passed through unchanged")
	}
	if resp.Headers["Cache-Control"] != MediaCacheControl {
		t.Errorf("cache control = %q", resp.Headers["Cache-Control"])
	}
	if !rec.hasMismatch("disguised_subtitle") || !rec.hasMismatch("declared") {
		t.Errorf("mismatches = %v", rec.mismatches)
	}
}

func TestHandle_PlaylistLabelOnTSBytes(t *testing.T) {
	payload := append([]byte{0x47, 0x40, 0x11, 0x10}, bytes.Repeat([]byte{0xFF}, 184)...)
	svc, srv, _ := newTestService(t, serveBytes("application/vnd.apple.mpegurl", payload))

	resp, err := svc.Handle(context.Background(), types.ProxyRequest{URL: srv.URL + "/hls/index.m3u8"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Branch != types.BranchBinary || resp.ContentType != "video/mp2t" {
		t.Errorf("branch = %q, content type = %q", resp.Branch, resp.ContentType)
	}
	if !bytes.Equal(resp.Body, payload) {
		t.Error("segment bytes must not be rewritten as a playlist")
	}
}

func TestHandle_Subtitles(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		declared    string
		body        string
		contentType string
	}{
		{"vtt", "/en.vtt", "text/plain", "WEBVTT\n\n00:00.000 --> 00:01.000\nhi\n", "text/vtt"},
		{"vtt without extension", "/track", "", "WEBVTT\n", "text/vtt"},
		{"srt", "/en.srt", "application/x-subrip", "1\n00:00:00,000 --> 00:00:01,000\nhi\n", "text/plain; charset=utf-8"},
		{"ass", "/en.ass", "", "[Script Info]\n", "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, srv, _ := newTestService(t, serveBytes(tt.declared, []byte(tt.body)))
			resp, err := svc.Handle(context.Background(), types.ProxyRequest{URL: srv.URL + tt.path})
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if resp.Branch != types.BranchSubtitle {
				t.Errorf("branch = %q", resp.Branch)
			}
			if resp.ContentType != tt.contentType {
				t.Errorf("content type = %q, want %q", resp.ContentType, tt.contentType)
			}
			if string(resp.Body) != tt.body {
				t.Errorf("body changed: %q", resp.Body)
			}
		})
	}
}

func TestHandle_GzipManifest(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("#EXTM3U\n#EXTINF:4,\nchunk.ts\n"))
	zw.Close()

	svc, srv, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "application/x-mpegurl")
		w.Write(buf.Bytes())
	}))

	resp, err := svc.Handle(context.Background(), types.ProxyRequest{URL: srv.URL + "/live/playlist"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Branch != types.BranchManifest {
		t.Fatalf("branch = %q", resp.Branch)
	}
	target, _ := decodeProxyURL(t, strings.Split(string(resp.Body), "\n")[2])
	if target != srv.URL+"/live/chunk.ts" {
		t.Errorf("target = %q", target)
	}
}

func TestHandle_VideoLabelOnNonVideoBytes(t *testing.T) {
	svc, srv, rec := newTestService(t, serveBytes("video/mp4", []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}))

	resp, err := svc.Handle(context.Background(), types.ProxyRequest{URL: srv.URL + "/clip"})
	if err != nil {
		t.Fatalf("mismatch must not fail the request: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.ContentType != "video/mp4" {
		t.Errorf("resp = %d %q", resp.StatusCode, resp.ContentType)
	}
	if !rec.hasMismatch("video_label") {
		t.Errorf("mismatches = %v", rec.mismatches)
	}
}

func TestHandle_InvalidProtocol(t *testing.T) {
	var calls atomic.Int32
	svc, _, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	for _, target := range []string{"ftp://host/file.ts", "file:///etc/passwd", "javascript:alert(1)", "//host/x.ts", ""} {
		_, err := svc.Handle(context.Background(), types.ProxyRequest{URL: target})
		if !errors.Is(err, types.ErrInvalidProtocol) {
			t.Errorf("Handle(%q) err = %v, want ErrInvalidProtocol", target, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("made %d upstream calls", calls.Load())
	}
}

func TestHandle_UpstreamError(t *testing.T) {
	svc, srv, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := svc.Handle(context.Background(), types.ProxyRequest{URL: srv.URL + "/seg.ts"})
	if !errors.Is(err, types.ErrFetchFailure) {
		t.Errorf("err = %v, want ErrFetchFailure", err)
	}
}

func TestHandle_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(serveBytes("video/mp2t", bytes.Repeat([]byte{0x47}, 2048)))
	defer srv.Close()
	svc := NewService(srv.Client(), testBase, logging.Discard(), WithMaxBody(1024))

	_, err := svc.Handle(context.Background(), types.ProxyRequest{URL: srv.URL + "/big.ts"})
	if !errors.Is(err, types.ErrFetchFailure) {
		t.Errorf("err = %v, want ErrFetchFailure", err)
	}
}

func TestDefaultReferer(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"https://tapecontent.net/abc/video.mp4", "https://streamtape.com/"},
		{"https://s1.mxcontent.net/v/x.mp4", "https://mixdrop.ag/"},
		{"https://be2.filemoon.sx/hls/master.m3u8", "https://filemoon.sx/"},
		{"https://cdn.other.net:8443/a/b.ts", "https://cdn.other.net:8443/"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := DefaultReferer(tt.target); got != tt.want {
			t.Errorf("DefaultReferer(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}
