package auth

import (
	"net"
	"net/http"
	"strings"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/utils"
)

// AuthenticateRequestMiddleware resolves the caller's service role from
// its API key, enforces the IP whitelist and rate limits, and tags the
// request with X-Role-Name for downstream handlers. CORS is handled by
// the router, not here.
func AuthenticateRequestMiddleware(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(cfg.IPWhitelist) > 0 {
				ip := clientIP(r)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					utils.JSONError(w, http.StatusForbidden, "forbidden")
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
					return
				}
			}

			role, key, hasAPIKey := authenticate(r, cfg)

			// probes stay unauthenticated
			if (r.URL.Path == "/healthz" || r.URL.Path == "/readyz") && r.Method == http.MethodGet {
				r.Header.Set("X-Role-Name", "unauth")
				next.ServeHTTP(w, r)
				return
			}

			if role == RoleUnauth || !hasAPIKey {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				return
			}
			r.Header.Set("X-Role-Name", roleName(role))

			if !limiters.Allow(key) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "path", r.URL.Path)
				return
			}

			logger.Debug("request_allowed", "method", r.Method, "path", r.URL.Path, "role", r.Header.Get("X-Role-Name"))
			next.ServeHTTP(w, r)
		})
	}
}

func roleName(role Role) string {
	switch role {
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

// authenticate resolves the caller's api key. Bearer token is preferred,
// X-API-Key is the fallback.
func authenticate(r *http.Request, cfg SecConfig) (Role, string, bool) {
	auth := r.Header.Get("Authorization")
	var key string
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		key = strings.TrimSpace(auth[7:])
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		return RoleUnauth, clientIP(r), false
	}
	if cfg.AdminKeys != nil {
		if _, ok := cfg.AdminKeys[key]; ok {
			return RoleAdmin, key, true
		}
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend, key, true
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key, true
	}
	return RoleUnauth, key, true
}
