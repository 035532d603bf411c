package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/logging"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

func TestGetClientForURL(t *testing.T) {
	log := logging.Discard()

	tests := []struct {
		name          string
		cfg           *config.Config
		targetURL     string
		expectDefault bool
		expectUTLS    bool
	}{
		{
			name: "uses global proxy when no transport routes match",
			cfg: &config.Config{
				GlobalProxies: []string{"socks5://proxy.example.com:1080"},
			},
			targetURL: "https://cdn.example.com/video.m3u8",
		},
		{
			name: "uses transport route when URL matches",
			cfg: &config.Config{
				GlobalProxies: []string{"socks5://global-proxy.example.com:1080"},
				TransportRoutes: []config.TransportRoute{
					{URLPattern: "cdn.specific.com", Proxy: "socks5://specific-proxy.example.com:1080"},
				},
			},
			targetURL: "https://cdn.specific.com/video.m3u8",
		},
		{
			name:          "uses default client when no proxy configured",
			cfg:           &config.Config{},
			targetURL:     "https://cdn.example.com/video.m3u8",
			expectDefault: true,
		},
		{
			name: "direct route bypasses global proxy",
			cfg: &config.Config{
				GlobalProxies: []string{"socks5://global-proxy.example.com:1080"},
				TransportRoutes: []config.TransportRoute{
					{URLPattern: "streamtape", Direct: true},
				},
			},
			targetURL:     "https://streamtape.com/e/abc",
			expectDefault: true,
		},
		{
			name:       "fingerprinted client for cloudflare-fronted mirrors",
			cfg:        &config.Config{},
			targetURL:  "https://filemoon.sx/e/abc",
			expectUTLS: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.cfg, log)
			got := client.getClientForURL(tt.targetURL)

			if tt.expectDefault != (got == client.defaultClient) {
				t.Errorf("default client selected = %v, want %v", got == client.defaultClient, tt.expectDefault)
			}
			if tt.expectUTLS != (got == client.utlsClient) {
				t.Errorf("utls client selected = %v, want %v", got == client.utlsClient, tt.expectUTLS)
			}
		})
	}
}

func TestNew_FetchTimeout(t *testing.T) {
	c := New(&config.Config{FetchTimeout: 3 * time.Second}, logging.Discard())
	if c.Timeout() != 3*time.Second || c.defaultClient.Timeout != 3*time.Second {
		t.Errorf("timeout = %v / %v, want 3s", c.Timeout(), c.defaultClient.Timeout)
	}

	c = New(&config.Config{}, logging.Discard())
	if c.Timeout() != 8*time.Second {
		t.Errorf("default timeout = %v, want 8s", c.Timeout())
	}
}

func TestClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("Referer")))
	}))
	defer srv.Close()

	c := New(&config.Config{HostRPS: 100, HostBurst: 2}, logging.Discard())
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		req.Header.Set("Referer", "https://streamtape.com/")
		resp, err := c.Do(req)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != "https://streamtape.com/" {
			t.Errorf("body = %q", body)
		}
	}
}

func TestHostLimiter(t *testing.T) {
	if newHostLimiter(0, 4) != nil {
		t.Error("rps 0 should disable pacing")
	}
	var nilLimiter *hostLimiter
	if err := nilLimiter.wait(context.Background(), "x"); err != nil {
		t.Errorf("nil limiter wait = %v", err)
	}

	l := newHostLimiter(0.001, 1)
	if err := l.wait(context.Background(), "a.example"); err != nil {
		t.Fatalf("first wait = %v", err)
	}
	// Another host has its own bucket.
	if err := l.wait(context.Background(), "b.example"); err != nil {
		t.Fatalf("other host wait = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.wait(ctx, "a.example"); err == nil {
		t.Error("exhausted bucket should fail once the context deadline cannot be met")
	}
}

func compress(t *testing.T, enc string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch enc {
	case "br":
		w = brotli.NewWriter(&buf)
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			t.Fatal(err)
		}
		w = fw
	default:
		return data
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadBody_Encodings(t *testing.T) {
	payload := []byte("#EXTM3U\n#EXT-X-VERSION:3\nseg1.ts\n")

	for _, enc := range []string{"", "identity", "br", "gzip", "deflate"} {
		t.Run("encoding="+enc, func(t *testing.T) {
			resp := &http.Response{
				Header: http.Header{},
				Body:   io.NopCloser(bytes.NewReader(compress(t, enc, payload))),
			}
			if enc != "" {
				resp.Header.Set("Content-Encoding", enc)
			}

			got, err := ReadBody(resp, 0)
			if err != nil {
				t.Fatalf("ReadBody: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("body = %q, want %q", got, payload)
			}
		})
	}
}

func TestReadBody_Limit(t *testing.T) {
	resp := &http.Response{Header: http.Header{}, Body: io.NopCloser(strings.NewReader("0123456789"))}
	if _, err := ReadBody(resp, 4); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("err = %v, want ErrBodyTooLarge", err)
	}

	resp = &http.Response{Header: http.Header{}, Body: io.NopCloser(strings.NewReader("0123"))}
	got, err := ReadBody(resp, 4)
	if err != nil || string(got) != "0123" {
		t.Errorf("ReadBody at limit = %q, %v", got, err)
	}
}

func TestDecodeBody_BadGzip(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"gzip"}},
		Body:   io.NopCloser(strings.NewReader("not gzip")),
	}
	if _, err := DecodeBody(resp); err == nil {
		t.Error("expected error for corrupt gzip header")
	}
}
