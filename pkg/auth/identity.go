package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"pawtalk/pkg/config"
	"pawtalk/pkg/logger"
	"pawtalk/pkg/utils"
)

// Role is the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

// SecConfig drives authentication and rate limiting. Shared here so
// limiter.go and gateway.go reference one type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
}

// Principal is the signature-verified end user behind a request. Role is
// the marketplace-side role (user, rescue, admin) asserted by the
// frontend and covered by the signature.
type Principal struct {
	UserID string
	Role   string
}

type ctxPrincipalKey struct{}

// signedPayload is what the frontend signs: "<user_id>" alone, or
// "<user_id>:<role>" when a role is asserted.
func signedPayload(userID, role string) string {
	if role == "" {
		return userID
	}
	return userID + ":" + role
}

// RequireSignedUser verifies the HMAC identity headers and injects the
// verified principal into the request context. Backend and admin API
// keys may act on behalf of a user without a signature.
func RequireSignedUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerRole := r.Header.Get("X-Role-Name")
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		role := strings.TrimSpace(r.Header.Get("X-User-Role"))
		sig := strings.TrimSpace(r.Header.Get("X-User-Signature"))

		if callerRole == "backend" || callerRole == "admin" {
			if sig == "" {
				if userID != "" {
					r = r.WithContext(WithPrincipal(r.Context(), Principal{UserID: userID, Role: role}))
				}
				next.ServeHTTP(w, r)
				return
			}
			// signature present, verify it below
		}

		if sig == "" || userID == "" {
			logger.Warn("missing_identity_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing identity headers")
			return
		}

		keys := config.GetSigningKeys()
		if len(keys) == 0 {
			logger.Error("no_signing_keys_configured")
			utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
			return
		}

		ok := false
		payload := signedPayload(userID, role)
		for k := range keys {
			mac := hmac.New(sha256.New, []byte(k))
			mac.Write([]byte(payload))
			expected := hex.EncodeToString(mac.Sum(nil))
			if hmac.Equal([]byte(expected), []byte(sig)) {
				ok = true
				break
			}
		}
		if !ok {
			logger.Warn("invalid_signature", "user", userID)
			utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		if role == "" {
			role = "user"
		}
		r = r.WithContext(WithPrincipal(r.Context(), Principal{UserID: userID, Role: role}))
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal stores a verified principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey{}, p)
}

// FromContext returns the verified principal for the request, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	if v := ctx.Value(ctxPrincipalKey{}); v != nil {
		if p, ok := v.(Principal); ok && p.UserID != "" {
			return p, true
		}
	}
	return Principal{}, false
}

// Sign computes the identity signature for a user with the given key.
// Exposed for local tooling and tests.
func Sign(key, userID, role string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(signedPayload(userID, role)))
	return hex.EncodeToString(mac.Sum(nil))
}
