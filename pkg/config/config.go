// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider selectors accepted by the orchestration layer.
const (
	ProviderTrusted      = "trusted"
	ProviderMirror       = "mirror"
	ProviderMirrorAdFree = "mirror-adfree"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Outbound fetch settings
	FetchTimeout    time.Duration
	MaxBodyBytes    int64
	GlobalProxies   []string
	TransportRoutes []TransportRoute
	HostRPS         float64
	HostBurst       int

	// Cache settings
	CacheDir        string
	ExtractCacheTTL time.Duration

	// Provider settings
	TrustedProviderURL string
	MirrorProviderURL  string
	DefaultProvider    string

	// Logging
	LogLevel string
	LogJSON  bool

	// Metrics
	MetricsEnabled bool

	// FlareSolverr settings (for Cloudflare challenges on embed pages)
	FlareSolverrURL     string
	FlareSolverrTimeout time.Duration
}

// TransportRoute defines URL-specific proxy routing.
type TransportRoute struct {
	URLPattern string
	Proxy      string
	DisableSSL bool
	Direct     bool // If true, bypass global proxy and connect directly
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := getEnvInt("PORT", 7860)
	cfg := &Config{
		Port:                port,
		BaseURL:             strings.TrimSuffix(getEnvString("BASE_URL", fmt.Sprintf("http://localhost:%d", port)), "/"),
		ReadTimeout:         getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        getEnvDuration("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:         getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		FetchTimeout:        getEnvDuration("FETCH_TIMEOUT", 8*time.Second),
		MaxBodyBytes:        int64(getEnvInt("MAX_BODY_BYTES", 64<<20)),
		GlobalProxies:       getEnvStringSlice("GLOBAL_PROXIES", nil),
		HostRPS:             getEnvFloat("HOST_RPS", 0),
		HostBurst:           getEnvInt("HOST_BURST", 4),
		CacheDir:            getEnvString("CACHE_DIR", ""),
		ExtractCacheTTL:     getEnvDuration("EXTRACT_CACHE_TTL", 5*time.Minute),
		TrustedProviderURL:  strings.TrimSuffix(getEnvString("TRUSTED_PROVIDER_URL", ""), "/"),
		MirrorProviderURL:   strings.TrimSuffix(getEnvString("MIRROR_PROVIDER_URL", ""), "/"),
		DefaultProvider:     normalizeProvider(getEnvString("DEFAULT_PROVIDER", ProviderTrusted)),
		LogLevel:            getEnvString("LOG_LEVEL", "info"),
		LogJSON:             getEnvBool("LOG_JSON", false),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		FlareSolverrURL:     strings.TrimSuffix(getEnvString("FLARESOLVERR_URL", ""), "/"),
		FlareSolverrTimeout: getEnvDuration("FLARESOLVERR_TIMEOUT", 60*time.Second),
	}

	cfg.TransportRoutes = parseTransportRoutes(os.Getenv("TRANSPORT_ROUTES"))

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	return cfg
}

// WithPort overrides the listen port and, when BASE_URL was not set
// explicitly, the derived public base URL.
func (c *Config) WithPort(port int) *Config {
	if port <= 0 || port == c.Port {
		return c
	}
	if c.BaseURL == fmt.Sprintf("http://localhost:%d", c.Port) {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", port)
	}
	c.Port = port
	return c
}

// normalizeProvider maps unknown selectors to the trusted provider.
func normalizeProvider(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case ProviderMirror:
		return ProviderMirror
	case ProviderMirrorAdFree, "adfree", "mirror_adfree":
		return ProviderMirrorAdFree
	default:
		return ProviderTrusted
	}
}

// parseTransportRoutes parses the TRANSPORT_ROUTES env var.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var routes []TransportRoute
	for _, part := range strings.Split(s, "}, {") {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		var route TransportRoute
		for _, field := range strings.Split(part, ", ") {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)

			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.EqualFold(value, "true")
			case "DIRECT":
				route.Direct = strings.EqualFold(value, "true")
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}

	return routes
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Plain integers are seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
