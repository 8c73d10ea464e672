// Package api exposes the REST surface: conversation and message CRUD,
// history pagination, search and the websocket upgrade endpoint.
package api

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"

	"pawtalk/pkg/auth"
	"pawtalk/pkg/broadcast"
	"pawtalk/pkg/search"
	"pawtalk/pkg/store"
	"pawtalk/pkg/telemetry"
)

// API bundles the dependencies the handlers need.
type API struct {
	Store *store.Store
	Index *search.Index
	Hub   *broadcast.Hub

	// PageSize and MaxPageSize bound history and search pagination.
	PageSize    int
	MaxPageSize int
}

func (a *API) pageSize(requested int) int {
	def := a.PageSize
	if def <= 0 {
		def = 50
	}
	max := a.MaxPageSize
	if max <= 0 {
		max = 200
	}
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

// NewRouter builds the full HTTP surface with CORS, API-key
// authentication and signed-identity verification layered in front of
// the v1 routes.
func NewRouter(a *API, sec auth.SecConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", healthz).Methods(http.MethodGet)
	r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(mux.MiddlewareFunc(auth.RequireSignedUser))

	v1.HandleFunc("/conversations", a.createConversation).Methods(http.MethodPost)
	v1.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}", a.getConversation).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}/archive", a.archiveConversation).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/close", a.closeConversation).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/participants", a.addParticipant).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/participants/{userID}", a.removeParticipant).Methods(http.MethodDelete)

	v1.HandleFunc("/conversations/{id}/messages", a.listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}/messages", a.postMessage).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/read", a.markRead).Methods(http.MethodPost)
	v1.HandleFunc("/messages/{id}", a.editMessage).Methods(http.MethodPut)
	v1.HandleFunc("/messages/{id}", a.deleteMessage).Methods(http.MethodDelete)
	v1.HandleFunc("/messages/{id}/versions", a.listVersions).Methods(http.MethodGet)

	v1.HandleFunc("/search", a.searchMessages).Methods(http.MethodGet)
	v1.HandleFunc("/_sign", signHandler).Methods(http.MethodPost)

	v1.HandleFunc("/ws", a.Hub.ServeWS).Methods(http.MethodGet)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   sec.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-User-ID", "X-User-Role", "X-User-Signature"},
		ExposedHeaders:   []string{"X-Role-Name"},
		AllowCredentials: true,
		MaxAge:           600,
	})

	return corsHandler(auth.AuthenticateRequestMiddleware(sec)(r))
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
