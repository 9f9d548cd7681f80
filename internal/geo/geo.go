// Package geo resolves caller IPs to ISO country codes for alert enrichment.
package geo

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Locator maps an IP string to a country code; "" means unknown.
type Locator interface {
	Country(ip string) string
	Close() error
}

// Open loads a MaxMind country database. An empty path yields a Locator that
// knows nothing.
func Open(path string) (Locator, error) {
	if path == "" {
		return Noop{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip2 database %s: %w", path, err)
	}
	return &reader{db: db}, nil
}

type reader struct {
	mu sync.RWMutex
	db *geoip2.Reader
}

func (r *reader) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return ""
	}
	c, err := r.db.Country(parsed)
	if err != nil {
		return ""
	}
	return c.Country.IsoCode
}

func (r *reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Noop is the Locator used when no database is configured.
type Noop struct{}

func (Noop) Country(string) string { return "" }

func (Noop) Close() error { return nil }
