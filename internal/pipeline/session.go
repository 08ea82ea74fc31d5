package pipeline

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/thor/pkg/clients"
	"github.com/ajitpratap0/thor/pkg/config"
	"github.com/ajitpratap0/thor/pkg/models"
	"github.com/ajitpratap0/thor/pkg/sites"
)

// NewSession builds the HTTP session a run of adapter uses: the site's
// headers, the configured transport and the user's proxy.
func NewSession(cfg *config.Config, adapter sites.Adapter, user *models.User, logger *zap.Logger) (*clients.Session, error) {
	return clients.NewSession(sessionConfig(cfg, adapter, user), logger)
}

func sessionConfig(cfg *config.Config, adapter sites.Adapter, user *models.User) *clients.SessionConfig {
	headers := adapter.Headers()
	if cfg.HTTP.UserAgent != "" {
		headers["User-Agent"] = cfg.HTTP.UserAgent
	}

	sc := &clients.SessionConfig{
		Site:        adapter.Website(),
		Timeout:     cfg.HTTP.Timeout,
		DialTimeout: cfg.HTTP.DialTimeout,
		EnableHTTP2: cfg.HTTP.HTTP2,
		Headers:     headers,
	}
	if cfg.HTTP.IsRateLimited() {
		sc.RateLimit = cfg.HTTP.RateLimit
		sc.RateBurst = cfg.HTTP.RateBurst
	}
	if user.HasProxy() {
		sc.Proxy = ProxyFor(user)
	}
	return sc
}

// ProxyFor returns the proxy assigned to user, or nil.
func ProxyFor(user *models.User) *clients.ProxyConfig {
	if !user.HasProxy() {
		return nil
	}
	p := user.ProxyInfo
	return &clients.ProxyConfig{
		Scheme:   p.ProxyScheme,
		Host:     p.ProxyIp,
		Port:     p.ProxyPort,
		Username: p.ProxyUsername,
		Password: p.ProxyPassword,
	}
}
