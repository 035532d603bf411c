package extractors

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

// hostRouter is an in-memory http.RoundTripper that dispatches by host, so
// extractors pinned to canonical mirror domains can be tested offline.
type hostRouter struct {
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	fail   func(*http.Request) bool
	calls  atomic.Int32
}

func newHostRouter() *hostRouter {
	return &hostRouter{routes: make(map[string]http.HandlerFunc)}
}

func (h *hostRouter) handle(host string, fn http.HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[host] = fn
}

func (h *hostRouter) RoundTrip(req *http.Request) (*http.Response, error) {
	h.calls.Add(1)
	if h.fail != nil && h.fail(req) {
		return nil, errors.New("connection reset by peer")
	}

	h.mu.Lock()
	fn, ok := h.routes[req.URL.Host]
	h.mu.Unlock()
	if !ok {
		return nil, errors.New("no route to host " + req.URL.Host)
	}

	rec := httptest.NewRecorder()
	fn(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// client returns an http.Client using the router; redirects follow the
// default policy.
func (h *hostRouter) client() *http.Client {
	return &http.Client{Transport: h}
}

func servePage(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}
}
