package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// AcceptEncoding is advertised on proxied fetches; DecodeBody undoes it.
const AcceptEncoding = "gzip, deflate, br"

// ErrBodyTooLarge is returned by ReadBody when the limit is exceeded.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// DecodeBody wraps resp.Body with a decoder for its Content-Encoding.
// Unknown encodings are passed through untouched.
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch enc {
	case "", "identity":
		return resp.Body, nil
	case "br":
		return readCloser{brotli.NewReader(resp.Body), resp.Body}, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return readCloser{zr, resp.Body}, nil
	case "deflate":
		return readCloser{flate.NewReader(resp.Body), resp.Body}, nil
	default:
		return resp.Body, nil
	}
}

// ReadBody decodes and reads the whole response body, up to limit bytes
// (limit <= 0 means unlimited). The caller still closes resp.Body.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	body, err := DecodeBody(resp)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return io.ReadAll(body)
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

type readCloser struct {
	io.Reader
	underlying io.Closer
}

func (r readCloser) Close() error {
	if c, ok := r.Reader.(io.Closer); ok {
		c.Close()
	}
	return r.underlying.Close()
}
