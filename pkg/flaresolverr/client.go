// Package flaresolverr talks to a FlareSolverr instance so embed pages behind
// a Cloudflare challenge can still be fetched.
package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"media-resolver-go/pkg/interfaces"
	"media-resolver-go/pkg/logging"
)

// ErrNotConfigured is returned when no FlareSolverr URL was configured.
var ErrNotConfigured = errors.New("flaresolverr not configured")

// Cookie represents a cookie from FlareSolverr response.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
}

// Solution is the page FlareSolverr obtained after passing the challenge.
type Solution struct {
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Response  string   `json:"response"`
	Cookies   []Cookie `json:"cookies"`
	UserAgent string   `json:"userAgent"`
}

type response struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Solution Solution `json:"solution"`
}

type request struct {
	Cmd        string            `json:"cmd"`
	URL        string            `json:"url"`
	MaxTimeout int               `json:"maxTimeout"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Client is a FlareSolverr API client.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient interfaces.HTTPClient
	log        *logging.Logger
}

// NewClient creates a new FlareSolverr client. httpClient may be nil.
func NewClient(baseURL string, timeout time.Duration, httpClient interfaces.HTTPClient, log *logging.Logger) *Client {
	if httpClient == nil {
		// Solving takes far longer than a normal fetch.
		httpClient = &http.Client{Timeout: timeout + 10*time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		timeout:    timeout,
		httpClient: httpClient,
		log:        log.WithComponent("flaresolverr"),
	}
}

// IsConfigured returns true if a FlareSolverr endpoint is set.
func (c *Client) IsConfigured() bool {
	return c != nil && c.baseURL != ""
}

// Solve fetches targetURL through FlareSolverr.
func (c *Client) Solve(ctx context.Context, targetURL string, headers map[string]string) (*Solution, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(request{
		Cmd:        "request.get",
		URL:        targetURL,
		MaxTimeout: int(c.timeout.Milliseconds()),
		Headers:    headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flaresolverr returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var fsResp response
	if err := json.Unmarshal(respBody, &fsResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if fsResp.Status != "ok" {
		return nil, fmt.Errorf("flaresolverr error: %s", fsResp.Message)
	}

	c.log.Debug("challenge solved",
		"url", targetURL,
		"status", fsResp.Solution.Status,
		"cookies", len(fsResp.Solution.Cookies),
		"response_length", len(fsResp.Solution.Response))

	return &fsResp.Solution, nil
}

// FetchPage returns the HTML of targetURL after solving its challenge.
func (c *Client) FetchPage(ctx context.Context, targetURL string, headers map[string]string) (string, error) {
	sol, err := c.Solve(ctx, targetURL, headers)
	if err != nil {
		return "", err
	}
	if sol.Status >= 400 {
		return "", fmt.Errorf("solved page returned status %d", sol.Status)
	}
	return sol.Response, nil
}

// HTTPCookies converts solution cookies for reuse on direct requests.
func (s *Solution) HTTPCookies() []*http.Cookie {
	result := make([]*http.Cookie, len(s.Cookies))
	for i, cookie := range s.Cookies {
		result[i] = &http.Cookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HttpOnly: cookie.HTTPOnly,
		}
		if cookie.Expires > 0 {
			result[i].Expires = time.Unix(cookie.Expires, 0)
		}
	}
	return result
}

// IsChallenge reports whether a response looks like a Cloudflare
// challenge page rather than the real embed page.
func IsChallenge(status int, server string, body []byte) bool {
	if status != http.StatusForbidden && status != http.StatusServiceUnavailable {
		return false
	}
	if strings.Contains(strings.ToLower(server), "cloudflare") {
		return true
	}
	lower := bytes.ToLower(body)
	return bytes.Contains(lower, []byte("cf-chl")) ||
		bytes.Contains(lower, []byte("just a moment")) ||
		bytes.Contains(lower, []byte("challenge-platform"))
}
