package netinfo

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNS runs a local udp server answering hostname with answerIP after delay.
// An empty answerIP produces an empty answer section.
func startDNS(t *testing.T, answerIP string, hits *int32, delay time.Duration) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		atomic.AddInt32(hits, 1)
		time.Sleep(delay)
		m := &dns.Msg{}
		m.SetReply(r)
		if answerIP != "" {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 0},
				A:   net.ParseIP(answerIP),
			})
		}
		w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestPublicIP_ResolvesAndCaches(t *testing.T) {
	var hits int32
	addr := startDNS(t, "203.0.113.7", &hits, 0)

	r := NewResolver(config.OutboundIPConfig{Resolver: addr, Hostname: "myip.opendns.com", CacheTTL: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	ip, err := r.PublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", ip)
	assert.NotNil(t, net.ParseIP(ip))

	_, err = r.PublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// cache expiry triggers a new lookup
	now = now.Add(2 * time.Minute)
	_, err = r.PublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestPublicIP_NoAnswer(t *testing.T) {
	var hits int32
	addr := startDNS(t, "", &hits, 0)

	r := NewResolver(config.OutboundIPConfig{Resolver: addr, Hostname: "myip.opendns.com", CacheTTL: time.Minute})
	_, err := r.PublicIP(context.Background())
	assert.ErrorIs(t, err, ErrNoAnswer)
}

func TestPublicIP_ConcurrentMissesShareOneLookup(t *testing.T) {
	var hits int32
	addr := startDNS(t, "203.0.113.9", &hits, 200*time.Millisecond)
	r := NewResolver(config.OutboundIPConfig{Resolver: addr, Hostname: "myip.opendns.com", CacheTTL: time.Minute})

	const n = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	ips := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ip, err := r.PublicIP(context.Background())
			assert.NoError(t, err)
			ips <- ip
		}()
	}
	close(start)
	wg.Wait()
	close(ips)

	for ip := range ips {
		assert.Equal(t, "203.0.113.9", ip)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestPublicIP_CallerStopsWaitingOnContextEnd(t *testing.T) {
	var hits int32
	addr := startDNS(t, "203.0.113.9", &hits, 300*time.Millisecond)
	r := NewResolver(config.OutboundIPConfig{Resolver: addr, Hostname: "myip.opendns.com", CacheTTL: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	began := time.Now()
	_, err := r.PublicIP(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(began), 250*time.Millisecond)

	// 后台查询完成后写入缓存
	assert.Eventually(t, func() bool {
		_, ok := r.fromCache()
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}
