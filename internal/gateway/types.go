package gateway

import (
	"sort"
	"strings"

	"github.com/antigravity/feed-gateway/internal/config"
)

// RequestType maps a caller-facing typeId onto the upstream feed.
type RequestType struct {
	Code       string `json:"code"`
	UpstreamID string `json:"upstreamId"`
	Category   string `json:"category"`
	Duration   string `json:"duration"`
}

// DefaultTypes is the built-in catalog used when config supplies none.
func DefaultTypes() []RequestType {
	return []RequestType{
		{Code: "wg30s", UpstreamID: "WinGo_30S", Category: "WinGo", Duration: "30 Sec"},
		{Code: "wg1", UpstreamID: "WinGo_1M", Category: "WinGo", Duration: "1 Min"},
		{Code: "wg3", UpstreamID: "WinGo_3M", Category: "WinGo", Duration: "3 Min"},
		{Code: "wg5", UpstreamID: "WinGo_5M", Category: "WinGo", Duration: "5 Min"},
		{Code: "wg10", UpstreamID: "WinGo_10M", Category: "WinGo", Duration: "10 Min"},
		{Code: "k3_1", UpstreamID: "K3_1M", Category: "K3", Duration: "1 Min"},
		{Code: "k3_3", UpstreamID: "K3_3M", Category: "K3", Duration: "3 Min"},
		{Code: "k3_5", UpstreamID: "K3_5M", Category: "K3", Duration: "5 Min"},
		{Code: "k3_10", UpstreamID: "K3_10M", Category: "K3", Duration: "10 Min"},
		{Code: "5d1", UpstreamID: "5D_1M", Category: "5D", Duration: "1 Min"},
		{Code: "5d3", UpstreamID: "5D_3M", Category: "5D", Duration: "3 Min"},
		{Code: "5d5", UpstreamID: "5D_5M", Category: "5D", Duration: "5 Min"},
		{Code: "5d10", UpstreamID: "5D_10M", Category: "5D", Duration: "10 Min"},
		{Code: "trx1", UpstreamID: "TrxWinGo_1M", Category: "TRX", Duration: "1 Min"},
		{Code: "trx3", UpstreamID: "TrxWinGo_3M", Category: "TRX", Duration: "3 Min"},
		{Code: "trx5", UpstreamID: "TrxWinGo_5M", Category: "TRX", Duration: "5 Min"},
		{Code: "trx10", UpstreamID: "TrxWinGo_10M", Category: "TRX", Duration: "10 Min"},
	}
}

// Catalog is the immutable typeId lookup table.
type Catalog struct {
	byCode map[string]RequestType
	codes  []string
}

// NewCatalog indexes types by lower-cased code. Later duplicates win.
func NewCatalog(types []RequestType) *Catalog {
	c := &Catalog{byCode: make(map[string]RequestType, len(types))}
	for _, t := range types {
		c.byCode[strings.ToLower(t.Code)] = t
	}
	for _, t := range c.byCode {
		c.codes = append(c.codes, t.Code)
	}
	sort.Strings(c.codes)
	return c
}

// CatalogFromConfig builds the catalog from gateway.types, falling back to
// DefaultTypes when the list is empty.
func CatalogFromConfig(entries []config.RequestTypeConfig) *Catalog {
	if len(entries) == 0 {
		return NewCatalog(DefaultTypes())
	}
	types := make([]RequestType, 0, len(entries))
	for _, e := range entries {
		types = append(types, RequestType{
			Code:       e.Code,
			UpstreamID: e.UpstreamID,
			Category:   e.Category,
			Duration:   e.Duration,
		})
	}
	return NewCatalog(types)
}

// Lookup is case-insensitive.
func (c *Catalog) Lookup(code string) (RequestType, bool) {
	t, ok := c.byCode[strings.ToLower(code)]
	return t, ok
}

// Codes returns the supported typeIds, sorted.
func (c *Catalog) Codes() []string {
	out := make([]string, len(c.codes))
	copy(out, c.codes)
	return out
}
