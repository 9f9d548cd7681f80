// Package netinfo discovers the gateway's own public IP so operators can
// whitelist it at the upstream provider.
package netinfo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"
)

var ErrNoAnswer = errors.New("resolver returned no A record")

// Resolver asks a DNS server that echoes the querying address
// (myip.opendns.com style) and caches the answer for a TTL.
type Resolver struct {
	client   *dns.Client
	server   string
	hostname string
	ttl      time.Duration

	// concurrent cache misses share one exchange
	group singleflight.Group

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
	now       func() time.Time
}

func NewResolver(cfg config.OutboundIPConfig) *Resolver {
	return &Resolver{
		client:   &dns.Client{Timeout: 5 * time.Second},
		server:   cfg.Resolver,
		hostname: cfg.Hostname,
		ttl:      cfg.CacheTTL,
		now:      time.Now,
	}
}

// PublicIP returns the cached address or performs a fresh lookup. The lock is
// never held across the DNS exchange; a caller whose ctx ends first stops
// waiting while the shared lookup finishes for the others.
func (r *Resolver) PublicIP(ctx context.Context) (string, error) {
	if ip, ok := r.fromCache(); ok {
		return ip, nil
	}

	ch := r.group.DoChan("public-ip", func() (interface{}, error) {
		if ip, ok := r.fromCache(); ok {
			return ip, nil
		}
		// 查询结果由所有等待者共享，不随单个请求取消
		ip, err := r.lookup(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.cached = ip
		r.expiresAt = r.now().Add(r.ttl)
		r.mu.Unlock()
		return ip, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Resolver) fromCache() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != "" && r.now().Before(r.expiresAt) {
		return r.cached, true
	}
	return "", false
}

func (r *Resolver) lookup(ctx context.Context) (string, error) {
	query := &dns.Msg{}
	query.SetQuestion(dns.Fqdn(r.hostname), dns.TypeA)

	resp, _, err := r.client.ExchangeContext(ctx, query, r.server)
	if err != nil {
		return "", fmt.Errorf("dns query %s@%s: %w", r.hostname, r.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("dns query %s@%s: %s", r.hostname, r.server, dns.RcodeToString[resp.Rcode])
	}
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", ErrNoAnswer
}
