package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// OriginPolicy decides which browser origins may call the API and open
// WebSockets. It is shared by the CORS middleware and the upgrader.
type OriginPolicy struct {
	exact         map[string]struct{}
	trustedSuffix string
}

// NewOriginPolicy builds a policy from exact origins and one wildcard host
// suffix such as ".vercel.app". Empty entries are ignored.
func NewOriginPolicy(origins []string, trustedSuffix string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]struct{}), trustedSuffix: strings.ToLower(strings.TrimSpace(trustedSuffix))}
	for _, o := range origins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o != "" {
			p.exact[o] = struct{}{}
		}
	}
	return p
}

// Allowed reports whether origin may connect. Requests without an Origin
// header come from non-browser clients and are allowed.
func (p *OriginPolicy) Allowed(origin string) bool {
	origin = strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
	if origin == "" {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	if p.trustedSuffix == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	return strings.HasSuffix(u.Hostname(), p.trustedSuffix)
}

// CORS returns the gin-contrib/cors middleware driven by the policy.
func (p *OriginPolicy) CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  p.Allowed,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
