package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/antigravity/feed-gateway/internal/gateway"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// credentialParams are the accepted names of the credential query parameter;
// api_key is kept for older clients.
var credentialParams = []string{"apiKey", "api_key"}

func credentialFrom(c *gin.Context) string {
	for _, name := range credentialParams {
		if v := c.Query(name); v != "" {
			return v
		}
	}
	return ""
}

// handleFeed runs the gateway and relays the upstream body untouched.
func (s *Server) handleFeed(c *gin.Context) {
	req := gateway.Request{
		TypeID:     c.Query("typeId"),
		Credential: credentialFrom(c),
		ClientIP:   c.ClientIP(),
		Domain:     callerDomain(c.Request),
		RequestID:  requestID(c),
	}

	res, err := s.gateway.Handle(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", res.Body)
}

func (s *Server) listTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"types":     s.gateway.Catalog().Codes(),
		"timestamp": timestamp(),
	})
}

func (s *Server) myIP(c *gin.Context) {
	if s.resolver == nil {
		s.envelope(c, http.StatusServiceUnavailable, "lookup_unavailable", "Outbound IP lookup is not configured", nil)
		return
	}
	ip, err := s.resolver.PublicIP(c.Request.Context())
	if err != nil {
		s.logger.Warn("Outbound IP lookup failed", zap.Error(err))
		s.envelope(c, http.StatusBadGateway, "lookup_failed", "Could not determine outbound IP", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"ip":        ip,
		"timestamp": timestamp(),
	})
}

// callerDomain extracts the caller's host from Origin, falling back to
// Referer. Browsers send "null" for opaque origins; that counts as absent.
func callerDomain(r *http.Request) string {
	for _, header := range []string{"Origin", "Referer"} {
		v := strings.TrimSpace(r.Header.Get(header))
		if v == "" || v == "null" {
			continue
		}
		u, err := url.Parse(v)
		if err != nil {
			continue
		}
		if host := strings.ToLower(u.Hostname()); host != "" {
			return host
		}
	}
	return ""
}

// renderError is the only place a gateway error becomes an HTTP response.
// Anything that is not a *gateway.Error is reported as InternalError.
func (s *Server) renderError(c *gin.Context, err error) {
	var gerr *gateway.Error
	if !errors.As(err, &gerr) {
		s.logger.Error("Unexpected error",
			zap.String("request_id", requestID(c)),
			zap.Error(err))
		gerr = gateway.Internal(err)
	}
	if gerr.Contact == "" {
		gerr.Contact = s.settings.Current().ContactHandle
	}
	s.envelope(c, gerr.Status(), gerr.Code(), gerr.Message(), gerr)
}

// envelope writes the shared error shape. Context fields never override the
// base fields.
func (s *Server) envelope(c *gin.Context, status int, code, message string, gerr *gateway.Error) {
	body := gin.H{}
	contact := s.settings.Current().ContactHandle
	if gerr != nil {
		for k, v := range gerr.Context {
			body[k] = v
		}
		contact = gerr.Contact
	}
	body["success"] = false
	body["error"] = code
	body["message"] = message
	body["your_ip"] = c.ClientIP()
	if contact != "" {
		body["contact"] = contact
	}
	c.AbortWithStatusJSON(status, body)
}
