package gateway

import (
	"strings"

	"github.com/antigravity/feed-gateway/internal/models"
)

// MatchIP reports whether ip is allowed by entries. Matching is exact string
// equality; a wildcard entry allows every address. An empty list allows nothing.
func MatchIP(entries []string, ip string) bool {
	for _, e := range entries {
		if e == models.WildcardEntry || e == ip {
			return true
		}
	}
	return false
}

// MatchDomain reports whether domain equals an entry or is a strict subdomain
// of one. Comparison is case-insensitive; sub.evil-example.com does not match
// example.com.
func MatchDomain(entries []string, domain string) bool {
	d := strings.ToLower(domain)
	for _, e := range entries {
		if e == models.WildcardEntry {
			return true
		}
		e = strings.ToLower(e)
		if e == "" {
			continue
		}
		if d == e || strings.HasSuffix(d, "."+e) {
			return true
		}
	}
	return false
}
