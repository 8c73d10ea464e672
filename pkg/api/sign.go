package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"pawtalk/pkg/auth"
	"pawtalk/pkg/logger"
	"pawtalk/pkg/utils"
)

// signHandler handles POST /v1/_sign: mints an identity signature for a
// user id using the caller's API key as the secret. Backend callers
// only; this is how the marketplace backend vouches for its users.
func signHandler(w http.ResponseWriter, r *http.Request) {
	role := r.Header.Get("X-Role-Name")
	if role != "backend" {
		logger.Warn("sign_forbidden", "role", role, "remote", r.RemoteAddr)
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	authz := r.Header.Get("Authorization")
	var key string
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		key = strings.TrimSpace(authz[7:])
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		utils.JSONError(w, http.StatusUnauthorized, "missing api key")
		return
	}

	var payload struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	sig := auth.Sign(key, payload.UserID, payload.Role)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{
		"user_id":   payload.UserID,
		"role":      payload.Role,
		"signature": sig,
	})
}
