// Package requestguard holds the cheap, heuristic checks run before any
// download work: origin allow-listing, bot user-agent filtering and client
// IP resolution behind proxies.
package requestguard

import (
	"net/http"
	"strings"
)

const UnknownIP = "unknown"

var blockedAgentFragments = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"curl",
	"wget",
	"python",
	"axios",
	"node-fetch",
	"go-http-client",
	"java/",
	"libwww",
	"httpclient",
	"headless",
	"postman",
}

// ValidUserAgent rejects missing user agents and known tool/bot signatures.
func ValidUserAgent(userAgent string) bool {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return false
	}
	for _, fragment := range blockedAgentFragments {
		if strings.Contains(ua, fragment) {
			return false
		}
	}
	return true
}

// OriginPolicy is an explicit allow-list of browser origins.
type OriginPolicy struct {
	allowed map[string]bool
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]bool, len(origins))}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			p.allowed[o] = true
		}
	}
	return p
}

func (p *OriginPolicy) Allowed(origin string) bool {
	return p.allowed[strings.TrimRight(origin, "/")]
}

// Valid passes direct API calls (no Origin, no Referer) and requires any
// Origin header to be on the allow-list.
func (p *OriginPolicy) Valid(origin, referer string) bool {
	origin = strings.TrimSpace(origin)
	referer = strings.TrimSpace(referer)
	if origin == "" && referer == "" {
		return true
	}
	if origin != "" && !p.Allowed(origin) {
		return false
	}
	return true
}

// ClientIP resolves the real client address from proxy headers.
func ClientIP(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(h.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return UnknownIP
}
