// Package gateway is the credentialed access pipeline in front of the upstream
// feed provider: validate, authenticate, authorize, proxy. Every rejection
// leaves through Gateway.fail, which applies the per-kind audit and alert
// policy declared in errors.go.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/antigravity/feed-gateway/internal/metrics"
	"github.com/antigravity/feed-gateway/internal/models"
	"github.com/antigravity/feed-gateway/internal/notify"
	"github.com/antigravity/feed-gateway/internal/settings"
	"github.com/antigravity/feed-gateway/internal/upstream"
	"go.uber.org/zap"
)

// KeyStore is the read/write side of the API key table the gateway needs.
type KeyStore interface {
	FindByCredential(ctx context.Context, secret string) (*models.APIKey, error)
	IncrementCounters(ctx context.Context, keyID uint, n int64) error
}

type WhitelistStore interface {
	ListIPs(ctx context.Context, keyID uint) ([]string, error)
	ListDomains(ctx context.Context, keyID uint) ([]string, error)
}

type AuditWriter interface {
	Append(ctx context.Context, entry *models.AuditLog) error
}

// Notifier accepts alerts without blocking.
type Notifier interface {
	Enqueue(e notify.Event) bool
}

type Upstream interface {
	Fetch(ctx context.Context, upstreamID string) (*upstream.Response, error)
}

// Request is one inbound call, already lifted off the transport.
type Request struct {
	TypeID     string
	Credential string
	ClientIP   string
	// Domain is the caller's host from Origin/Referer, "" when none was sent
	Domain    string
	RequestID string
}

// Result is a successful pass-through.
type Result struct {
	Type       RequestType
	KeyID      uint
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// Deps wires the gateway to its collaborators.
type Deps struct {
	Catalog   *Catalog
	Keys      KeyStore
	Whitelist WhitelistStore
	Audit     AuditWriter
	Notifier  Notifier
	Upstream  Upstream
	Settings  *settings.Provider
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	// DomainSentinel replaces an absent caller domain on success audit rows
	DomainSentinel string
	Now            func() time.Time
}

type Gateway struct {
	catalog   *Catalog
	keys      KeyStore
	whitelist WhitelistStore
	audit     AuditWriter
	notifier  Notifier
	upstream  Upstream
	settings  *settings.Provider
	metrics   *metrics.Metrics
	logger    *zap.Logger
	sentinel  string
	now       func() time.Time
}

func New(d Deps) *Gateway {
	g := &Gateway{
		catalog:   d.Catalog,
		keys:      d.Keys,
		whitelist: d.Whitelist,
		audit:     d.Audit,
		notifier:  d.Notifier,
		upstream:  d.Upstream,
		settings:  d.Settings,
		metrics:   d.Metrics,
		logger:    d.Logger,
		sentinel:  d.DomainSentinel,
		now:       d.Now,
	}
	if g.catalog == nil {
		g.catalog = NewCatalog(DefaultTypes())
	}
	if g.settings == nil {
		g.settings = settings.NewStatic(settings.Snapshot{})
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Catalog exposes the request type table for the introspection route.
func (g *Gateway) Catalog() *Catalog { return g.catalog }

// attempt carries what the pipeline has learned so far, for the audit row and the alert.
type attempt struct {
	req     Request
	rt      RequestType
	key     *models.APIKey
	latency *time.Duration
}

// Handle runs one request through the pipeline. The returned error is always
// a *Error.
func (g *Gateway) Handle(ctx context.Context, req Request) (*Result, error) {
	a := &attempt{req: req}

	// 1. 参数校验
	if req.TypeID == "" {
		return nil, g.fail(ctx, a, newError(KindMissingParameter, "").
			with("supported_types", g.catalog.Codes()))
	}
	rt, ok := g.catalog.Lookup(req.TypeID)
	if !ok {
		return nil, g.fail(ctx, a, newError(KindUnknownType, "unknown typeId: "+req.TypeID).
			with("type_id", req.TypeID).
			with("supported_types", g.catalog.Codes()))
	}
	a.rt = rt
	if req.Credential == "" {
		return nil, g.fail(ctx, a, newError(KindMissingCredential, ""))
	}

	// 2. 认证
	if err := g.authenticate(ctx, a); err != nil {
		return nil, g.fail(ctx, a, err)
	}

	// 3. 白名单
	if err := g.authorize(ctx, a); err != nil {
		return nil, g.fail(ctx, a, err)
	}

	// 4. 转发
	return g.proxy(ctx, a)
}

func (g *Gateway) authenticate(ctx context.Context, a *attempt) *Error {
	key, err := g.keys.FindByCredential(ctx, a.req.Credential)
	if err != nil {
		return Internal(err)
	}
	if key == nil {
		return newError(KindInvalidCredential, "Invalid API key")
	}
	a.key = key

	if !key.IsActive() {
		return newError(KindKeyInactive, fmt.Sprintf("key %d is %s", key.ID, key.Status))
	}
	if key.IsExpired(g.now()) {
		return newError(KindKeyExpired, fmt.Sprintf("key %d expired", key.ID)).
			with("expired_at", key.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// authorize enforces the IP list, then the domain list. Both fail closed on an
// empty list; a request without any caller domain skips the domain match.
func (g *Gateway) authorize(ctx context.Context, a *attempt) *Error {
	ips, err := g.whitelist.ListIPs(ctx, a.key.ID)
	if err != nil {
		return Internal(err)
	}
	if len(ips) == 0 {
		return newError(KindNoIPWhitelist, "No IP whitelist configured")
	}
	if !MatchIP(ips, a.req.ClientIP) {
		return newError(KindIPNotAuthorized, "IP not in whitelist: "+a.req.ClientIP)
	}

	domains, err := g.whitelist.ListDomains(ctx, a.key.ID)
	if err != nil {
		return Internal(err)
	}
	if len(domains) == 0 {
		return newError(KindNoDomainWhitelist, "No domain whitelist configured")
	}
	if a.req.Domain != "" && !MatchDomain(domains, a.req.Domain) {
		return newError(KindDomainNotAuthorized, "Domain not in whitelist: "+a.req.Domain).
			with("your_domain", a.req.Domain)
	}
	return nil
}

func (g *Gateway) proxy(ctx context.Context, a *attempt) (*Result, error) {
	resp, err := g.upstream.Fetch(ctx, a.rt.UpstreamID)
	if resp == nil {
		resp = &upstream.Response{}
	}
	a.latency = &resp.Latency
	g.metrics.ObserveUpstream(resp.Latency)

	if err != nil {
		uerr := &Error{Kind: KindUpstreamError, Reason: err.Error(), Err: err}
		return nil, g.fail(ctx, a, uerr.
			with("upstream_status", resp.StatusCode).
			with("upstream_error", err.Error()))
	}
	if !resp.OK() {
		return nil, g.fail(ctx, a, newError(KindUpstreamError, fmt.Sprintf("upstream returned status %d", resp.StatusCode)).
			with("upstream_status", resp.StatusCode).
			with("upstream_body", string(resp.Body)))
	}

	// 计数与审计在客户端断开后仍需落库
	bg := context.WithoutCancel(ctx)
	if err := g.keys.IncrementCounters(bg, a.key.ID, 1); err != nil {
		g.metrics.ObserveFailure("counter")
		g.logger.Error("Failed to increment key counters",
			zap.Uint("key_id", a.key.ID),
			zap.String("request_id", a.req.RequestID),
			zap.Error(err))
	}

	domain := a.req.Domain
	if domain == "" {
		domain = g.sentinel
	}
	entry := g.auditEntry(a, models.OutcomeSuccess, "")
	entry.Domain = domain
	g.writeAudit(bg, entry)
	g.metrics.ObserveRequest(models.OutcomeSuccess, "ok")

	return &Result{
		Type:       a.rt,
		KeyID:      a.key.ID,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Latency:    resp.Latency,
	}, nil
}

// fail is the one exit for rejected requests: audit, alert and count per the
// kind's policy, then hand the error back for rendering.
func (g *Gateway) fail(ctx context.Context, a *attempt, gerr *Error) *Error {
	snap := g.settings.Current()
	gerr.Contact = snap.ContactHandle

	if outcome := gerr.Outcome(); outcome != "" {
		// 审计写入不随客户端断开而取消
		g.writeAudit(context.WithoutCancel(ctx), g.auditEntry(a, outcome, gerr.Reason))
	}

	if gerr.Notifiable() && a.key != nil && g.notifier != nil {
		g.notifier.Enqueue(notify.Event{
			Reason:       gerr.Reason,
			KeyName:      a.key.Name,
			OwnerName:    a.key.OwnerName(),
			OwnerContact: a.key.OwnerContact(),
			IP:           a.req.ClientIP,
			Domain:       a.req.Domain,
			Time:         g.now(),
		})
	}

	outcome := gerr.Outcome()
	if outcome == "" {
		outcome = "rejected"
	}
	g.metrics.ObserveRequest(outcome, gerr.Code())

	fields := []zap.Field{
		zap.String("kind", gerr.Kind.String()),
		zap.String("request_id", a.req.RequestID),
		zap.String("type_id", a.req.TypeID),
		zap.String("client_ip", a.req.ClientIP),
		zap.String("domain", a.req.Domain),
	}
	if a.key != nil {
		fields = append(fields, zap.Uint("key_id", a.key.ID))
	}
	switch gerr.Kind {
	case KindInternal:
		g.logger.Error("Gateway request failed", append(fields, zap.Error(gerr.Err))...)
	case KindUpstreamError:
		g.logger.Warn("Upstream request failed", append(fields, zap.String("reason", gerr.Reason))...)
	default:
		g.logger.Info("Gateway request rejected", append(fields, zap.String("reason", gerr.Reason))...)
	}
	return gerr
}

func (g *Gateway) auditEntry(a *attempt, outcome, message string) *models.AuditLog {
	entry := &models.AuditLog{
		RequestID:    a.req.RequestID,
		Endpoint:     a.rt.UpstreamID,
		Category:     a.rt.Category,
		Duration:     a.rt.Duration,
		Status:       outcome,
		ErrorMessage: message,
		IP:           a.req.ClientIP,
		Domain:       a.req.Domain,
	}
	if a.key != nil {
		id := a.key.ID
		entry.APIKeyID = &id
	}
	if a.latency != nil {
		ms := a.latency.Milliseconds()
		entry.ResponseTimeMs = &ms
	}
	return entry
}

func (g *Gateway) writeAudit(ctx context.Context, entry *models.AuditLog) {
	if err := g.audit.Append(ctx, entry); err != nil {
		g.metrics.ObserveFailure("audit")
		g.logger.Error("Failed to write audit log",
			zap.String("request_id", entry.RequestID),
			zap.String("status", entry.Status),
			zap.Error(err))
	}
}
