package gateway

import (
	"fmt"
	"net/http"

	"github.com/antigravity/feed-gateway/internal/models"
)

// Kind classifies why a request stopped.
type Kind int

const (
	KindMissingParameter Kind = iota + 1
	KindUnknownType
	KindMissingCredential
	KindInvalidCredential
	KindKeyInactive
	KindKeyExpired
	KindNoIPWhitelist
	KindIPNotAuthorized
	KindNoDomainWhitelist
	KindDomainNotAuthorized
	KindUpstreamError
	KindInternal
)

// policy declares, once per kind, how a rejection is answered, audited and alerted.
type policy struct {
	name    string
	status  int
	code    string
	message string
	// outcome is the audit status; empty means the rejection is not audited
	outcome string
	notify  bool
}

var policies = map[Kind]policy{
	KindMissingParameter:    {"MissingParameter", http.StatusBadRequest, "missing_parameter", "typeId parameter is required", "", false},
	KindUnknownType:         {"UnknownType", http.StatusBadRequest, "unknown_type", "Invalid typeId", "", false},
	KindMissingCredential:   {"MissingCredential", http.StatusUnauthorized, "missing_api_key", "API key is required", "", false},
	KindInvalidCredential:   {"InvalidCredential", http.StatusForbidden, "invalid_api_key", "Invalid API key", models.OutcomeError, false},
	KindKeyInactive:         {"KeyInactive", http.StatusForbidden, "key_inactive", "API key is inactive", "", false},
	KindKeyExpired:          {"KeyExpired", http.StatusForbidden, "key_expired", "API key has expired", "", false},
	KindNoIPWhitelist:       {"NoIpWhitelist", http.StatusForbidden, "ip_not_authorized", "No IP whitelist configured for this API key", models.OutcomeBlocked, true},
	KindIPNotAuthorized:     {"IpNotAuthorized", http.StatusForbidden, "ip_not_authorized", "Your IP address is not authorized for this API key", models.OutcomeBlocked, true},
	KindNoDomainWhitelist:   {"NoDomainWhitelist", http.StatusForbidden, "domain_not_authorized", "No domain whitelist configured for this API key", models.OutcomeBlocked, true},
	KindDomainNotAuthorized: {"DomainNotAuthorized", http.StatusForbidden, "domain_not_authorized", "Your domain is not authorized for this API key", models.OutcomeBlocked, true},
	KindUpstreamError:       {"UpstreamError", http.StatusBadGateway, "upstream_error", "Upstream provider returned an error", models.OutcomeError, false},
	KindInternal:            {"InternalError", http.StatusInternalServerError, "internal_error", "Internal server error", "", false},
}

func (k Kind) policy() policy {
	if p, ok := policies[k]; ok {
		return p
	}
	return policies[KindInternal]
}

func (k Kind) String() string { return k.policy().name }

// Error is the single rejection type the pipeline returns.
type Error struct {
	Kind Kind
	// Reason is the operator-facing detail written to the audit row and the alert
	Reason string
	// Contact is the escalation handle shown to the caller, if configured
	Contact string
	// Context holds extra envelope fields
	Context map[string]interface{}
	Err     error
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Reason: err.Error(), Err: err}
}

func (e *Error) with(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Status is the HTTP status for the caller.
func (e *Error) Status() int { return e.Kind.policy().status }

// Code is the short public error code.
func (e *Error) Code() string { return e.Kind.policy().code }

// Message is the human text for the caller.
func (e *Error) Message() string { return e.Kind.policy().message }

// Outcome is the audit status, or "" when the kind is not audited.
func (e *Error) Outcome() string { return e.Kind.policy().outcome }

// Notifiable reports whether the kind pages the operator.
func (e *Error) Notifiable() bool { return e.Kind.policy().notify }
