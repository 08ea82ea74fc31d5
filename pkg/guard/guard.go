// Package guard decides whether a session may scrape a site. It fails
// closed: any doubt about the proxy identity or the probe response blocks
// the run.
package guard

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/clients"
	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/metrics"
	"github.com/ajitpratap0/thor/pkg/models"
	"github.com/ajitpratap0/thor/pkg/observability"
)

// DefaultIPCheckURL returns the caller's public address as plain text.
const DefaultIPCheckURL = "https://icanhazip.com"

// Error descriptions recorded when a run is blocked.
const (
	DescLoadFailed    = "Error loading search page"
	DescLoadTimeout   = "Timeout error while loading search page"
	DescProxyMismatch = "Proxy identity check failed"
)

// Probe is a cheap request a site only answers for unblocked sessions.
// Keys are dotted paths the JSON response must contain.
type Probe struct {
	Request clients.Request
	Keys    []string
}

// Verdict is the outcome of Check.
type Verdict struct {
	Blocked bool
	Error   *models.ErrorRecord
}

// Config configures a Guard
type Config struct {
	// Site labels metrics and spans
	Site       string
	IPCheckURL string
	// Timeout bounds the identity check
	Timeout time.Duration
}

// Guard runs the proxy identity check and the block probe.
type Guard struct {
	doer   clients.Doer
	config Config
	now    func() time.Time
	logger *zap.Logger
}

// New creates a guard that sends its requests through doer.
func New(doer clients.Doer, config Config, logger *zap.Logger) *Guard {
	if config.IPCheckURL == "" {
		config.IPCheckURL = DefaultIPCheckURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		doer:   doer,
		config: config,
		now:    time.Now,
		logger: logger.Named("guard"),
	}
}

// WithClock replaces the clock used to stamp error records.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// CheckProxy reports whether the session's public IP is expectedIP. A
// failed lookup reports an empty IP and therefore a mismatch.
func (g *Guard) CheckProxy(ctx context.Context, expectedIP string) bool {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	reported := ""
	body, err := g.doer.Do(ctx, clients.Request{URL: g.config.IPCheckURL})
	if err != nil {
		g.logger.Warn("identity check failed", zap.Error(err))
	} else {
		reported = strings.TrimSpace(string(body))
	}

	ok := reported != "" && reported == strings.TrimSpace(expectedIP)
	if !ok {
		g.logger.Warn("proxy identity mismatch",
			zap.String("expected", expectedIP),
			zap.String("reported", reported))
	}
	return ok
}

// CheckBlocked sends the probe. A transport failure, an undecodable body
// or a missing key all count as blocked.
func (g *Guard) CheckBlocked(ctx context.Context, probe Probe) (bool, *models.ErrorRecord) {
	body, err := g.doer.Do(ctx, probe.Request)
	if err == nil {
		err = requireKeys(body, probe.Keys)
	}
	if err == nil {
		return false, nil
	}

	desc := DescLoadFailed
	if errors.IsTimeout(err) {
		desc = DescLoadTimeout
	}
	g.logger.Warn("site probe failed", zap.String("description", desc), zap.Error(err))
	return true, g.blocked(desc)
}

// Check runs the proxy check when user has a proxy, then the probe. A
// proxy mismatch blocks without sending the probe.
func (g *Guard) Check(ctx context.Context, user *models.User, probe Probe) (v Verdict) {
	ctx, span := observability.StartSpan(ctx, observability.SpanGuard, g.config.Site)
	defer func() {
		var err error
		if v.Blocked {
			metrics.BlockedTotal.WithLabelValues(g.config.Site).Inc()
			err = errors.New(errors.ErrorTypeBlocked, v.Error.ErrorDescription)
		}
		observability.End(span, err)
	}()

	if user.HasProxy() && !g.CheckProxy(ctx, user.ProxyInfo.ProxyIp) {
		return Verdict{Blocked: true, Error: g.blocked(DescProxyMismatch)}
	}

	blocked, rec := g.CheckBlocked(ctx, probe)
	return Verdict{Blocked: blocked, Error: rec}
}

func (g *Guard) blocked(desc string) *models.ErrorRecord {
	rec := models.NewErrorRecord(errors.New(errors.ErrorTypeBlocked, desc), desc, g.now())
	return &rec
}

func requireKeys(body []byte, keys []string) error {
	var doc interface{}
	if err := json.DecodeNumber(body, &doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeJSONDecode, "probe response is not JSON")
	}
	for _, key := range keys {
		if _, ok := models.Path(doc, key); !ok {
			return errors.Newf(errors.ErrorTypeKey, "probe response missing %s", key)
		}
	}
	return nil
}
