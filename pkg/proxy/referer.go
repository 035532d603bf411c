package proxy

import (
	"strings"

	"media-resolver-go/pkg/urlutil"
)

// Known CDN hosts and the embed origin they expect as Referer.
var hostReferers = []struct {
	fragment string
	referer  string
}{
	{"streamtape", "https://streamtape.com/"},
	{"tapecontent", "https://streamtape.com/"},
	{"filemoon", "https://filemoon.sx/"},
	{"mixdrop", "https://mixdrop.ag/"},
	{"mxcontent", "https://mixdrop.ag/"},
	{"streamwish", "https://streamwish.to/"},
}

// DefaultReferer picks a Referer for a proxy call that did not carry one.
// Known hosts get their embed origin, anything else its own origin.
func DefaultReferer(target string) string {
	host := urlutil.Hostname(target)
	for _, hr := range hostReferers {
		if strings.Contains(host, hr.fragment) {
			return hr.referer
		}
	}
	if origin := urlutil.Origin(target); origin != "" {
		return origin + "/"
	}
	return ""
}
