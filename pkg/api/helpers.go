package api

import (
	"errors"
	"net/http"
	"strconv"

	"pawtalk/pkg/auth"
	"pawtalk/pkg/store"
	"pawtalk/pkg/utils"
)

// principal resolves the verified end user, writing a 401 if absent.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	pr, ok := auth.FromContext(r.Context())
	if !ok {
		utils.JSONError(w, http.StatusUnauthorized, "identity required")
		return auth.Principal{}, false
	}
	return pr, true
}

// writeStoreError maps store sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConversationClosed):
		utils.JSONError(w, http.StatusConflict, "conversation is closed")
	case errors.Is(err, store.ErrNotParticipant), errors.Is(err, store.ErrNotSender):
		utils.JSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, store.ErrInvalidParticipants),
		errors.Is(err, store.ErrDuplicateParticipant),
		errors.Is(err, store.ErrContentTooLong),
		errors.Is(err, store.ErrTooManyAttachments),
		errors.Is(err, store.ErrInvalidFormat):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt64(r *http.Request, name string, def int64) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
