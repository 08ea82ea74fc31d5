// Package clients provides the HTTP session every site run uses to talk to
// upstream JSON endpoints.
package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/thor/pkg/compression"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/metrics"
	"github.com/ajitpratap0/thor/pkg/pool"
)

// Request describes one upstream call.
type Request struct {
	Method  string
	URL     string
	Params  url.Values
	Headers map[string]string
	// Body is encoded as JSON when non-nil.
	Body interface{}
}

// FullURL returns URL with Params encoded into its query string.
func (r Request) FullURL() string {
	if len(r.Params) == 0 {
		return r.URL
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}
	q := u.Query()
	for k, vs := range r.Params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Doer performs a request and returns the decoded response body.
type Doer interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// SessionConfig configures a Session
type SessionConfig struct {
	// Site labels request metrics
	Site string

	// Timeout bounds the whole exchange, including reading the body
	Timeout     time.Duration
	DialTimeout time.Duration
	EnableHTTP2 bool

	// RateLimit caps requests per second (0 = unlimited)
	RateLimit float64
	RateBurst int

	// Headers are sent with every request unless the request overrides them
	Headers map[string]string

	// Proxy routes all traffic through an http or socks5 proxy
	Proxy *ProxyConfig
}

// DefaultSessionConfig returns the defaults used when no config is given.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Timeout:     30 * time.Second,
		DialTimeout: 10 * time.Second,
		EnableHTTP2: true,
	}
}

// Session is a single-owner HTTP client with default headers, an optional
// proxy and an optional request ceiling.
type Session struct {
	config     *SessionConfig
	logger     *zap.Logger
	httpClient *http.Client
	transport  *http.Transport
	limiter    *rate.Limiter

	totalRequests  int64
	failedRequests int64
}

// NewSession creates a session from config
func NewSession(config *SessionConfig, logger *zap.Logger) (*Session, error) {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		config: config,
		logger: logger.Named("session"),
	}

	dialer := &net.Dialer{
		Timeout:   config.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	s.transport = &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Bodies are decoded by Content-Encoding in Do, since sites are sent
		// an explicit Accept-Encoding header.
		DisableCompression: true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.Proxy != nil {
		if err := config.Proxy.apply(s.transport, dialer); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid proxy")
		}
		s.logger.Debug("proxy configured", zap.String("proxy", config.Proxy.String()))
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(s.transport); err != nil {
			s.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	s.httpClient = &http.Client{
		Transport: s.transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return s, nil
}

// Do sends req and returns the decoded body. Transport failures are
// ErrorTypeTimeout or ErrorTypeRequest; an HTTP status of 400 or above is
// ErrorTypeRequest.
func (s *Session) Do(ctx context.Context, req Request) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			atomic.AddInt64(&s.failedRequests, 1)
			return nil, errors.WrapTransport(err, "rate limiter wait")
		}
	}

	httpReq, err := s.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	atomic.AddInt64(&s.totalRequests, 1)
	timer := metrics.NewTimer(s.config.Site)
	body, err := s.roundTrip(httpReq)
	metrics.ObserveRequest(s.config.Site, err, timer.Stop())

	if err != nil {
		atomic.AddInt64(&s.failedRequests, 1)
		s.logger.Debug("request failed",
			zap.String("method", httpReq.Method),
			zap.String("url", httpReq.URL.Redacted()),
			zap.Error(err))
		return nil, err
	}
	return body, nil
}

func (s *Session) roundTrip(httpReq *http.Request) ([]byte, error) {
	target := httpReq.URL.Redacted()

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.WrapTransport(err, httpReq.Method+" "+target)
	}
	defer resp.Body.Close()

	reader, err := compression.NewReader(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRequest, "decode response body").
			WithDetail("url", target)
	}
	defer reader.Close()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, errors.WrapTransport(err, "read response body")
	}
	body := pool.Copy(buf)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.Newf(errors.ErrorTypeRequest, "%s %s: %d %s",
			httpReq.Method, target, resp.StatusCode, http.StatusText(resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}

	return body, nil
}

// newRequest builds the http.Request with session defaults under the
// request's own headers.
func (s *Session) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "encode request body")
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.FullURL(), body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRequest, "build request")
	}

	for key, value := range s.config.Headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept-Encoding") == "" {
		httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", "thor/1.0")
	}

	return httpReq, nil
}

// Stats returns request counters for the session's lifetime.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		TotalRequests:  atomic.LoadInt64(&s.totalRequests),
		FailedRequests: atomic.LoadInt64(&s.failedRequests),
	}
}

// Close releases idle connections
func (s *Session) Close() error {
	s.logger.Debug("closing session", zap.Int64("requests", atomic.LoadInt64(&s.totalRequests)))
	s.transport.CloseIdleConnections()
	return nil
}

// SessionStats represents session request counters
type SessionStats struct {
	TotalRequests  int64 `json:"total_requests"`
	FailedRequests int64 `json:"failed_requests"`
}
