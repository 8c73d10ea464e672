package broadcast

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pawtalk/pkg/auth"
	"pawtalk/pkg/logger"
	"pawtalk/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin is enforced by the CORS layer in front of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated request to a websocket session and
// starts its pumps. Identity must already be on the request context.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	pr, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}
	c := newConn(h, ws, pr.UserID, models.ParticipantRole(pr.Role))
	h.register <- c

	go c.writePump()
	go c.readPump()
}
