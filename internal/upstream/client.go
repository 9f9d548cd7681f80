package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/dustin/go-humanize"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Response is one upstream exchange. Latency covers the request and the body read.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// TransportError is a failed exchange with no response. Its message is a fixed
// label; the request URL and token endpoint replies stay behind Unwrap since
// both may carry provider credentials.
type TransportError struct {
	Label string
	Err   error
}

func (e *TransportError) Error() string { return "upstream request failed: " + e.Label }

func (e *TransportError) Unwrap() error { return e.Err }

func transportError(err error) *TransportError {
	label := "connection failed"
	var (
		netErr   net.Error
		tokenErr *oauth2.RetrieveError
	)
	switch {
	case errors.Is(err, context.Canceled):
		label = "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		label = "timeout"
	case errors.As(err, &tokenErr):
		label = "token request failed"
	case errors.As(err, &netErr) && netErr.Timeout():
		label = "timeout"
	}
	return &TransportError{Label: label, Err: err}
}

// Client fetches feeds from the upstream provider. It never retries and never caches.
type Client struct {
	http        *http.Client
	urlTemplate string
	userAgent   string
	maxBody     int64
}

// New builds a client from config. maxBody <= 0 disables the size cap.
func New(cfg config.UpstreamConfig, maxBody int64) (*Client, error) {
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:        httpClient,
		urlTemplate: cfg.URLTemplate,
		userAgent:   cfg.UserAgent,
		maxBody:     maxBody,
	}, nil
}

func newHTTPClient(cfg config.UpstreamConfig) (*http.Client, error) {
	base := &http.Client{Timeout: cfg.Timeout}
	// token endpoint calls go through the same bounded client
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	var client *http.Client
	switch cfg.Auth.Mode {
	case "", "none":
		return base, nil
	case "bearer":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Auth.Token,
			TokenType:   "Bearer",
		}))
	case "client_credentials":
		cc := &clientcredentials.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
			Scopes:       cfg.Auth.Scopes,
		}
		client = cc.Client(ctx)
	default:
		return nil, fmt.Errorf("unsupported upstream auth mode: %s", cfg.Auth.Mode)
	}
	client.Timeout = cfg.Timeout
	return client, nil
}

// URLFor substitutes the upstream identifier into the configured template.
func (c *Client) URLFor(upstreamID string) string {
	return strings.ReplaceAll(c.urlTemplate, "{id}", url.PathEscape(upstreamID))
}

// Fetch issues a single GET for upstreamID. Transport failures (timeouts
// included) return a *TransportError together with the measured latency; non-2xx
// statuses are returned as a Response without error.
func (c *Client) Fetch(ctx context.Context, upstreamID string) (*Response, error) {
	target := c.URLFor(upstreamID)
	result := &Response{URL: target}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return result, fmt.Errorf("failed to create upstream request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		result.Latency = time.Since(start)
		return result, transportError(err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if c.maxBody > 0 {
		reader = io.LimitReader(resp.Body, c.maxBody+1)
	}
	body, err := io.ReadAll(reader)
	result.Latency = time.Since(start)
	result.StatusCode = resp.StatusCode
	if err != nil {
		return result, fmt.Errorf("failed to read upstream body: %w", err)
	}
	if c.maxBody > 0 && int64(len(body)) > c.maxBody {
		return result, fmt.Errorf("upstream body exceeds %s", humanize.Bytes(uint64(c.maxBody)))
	}
	result.Body = body

	return result, nil
}
