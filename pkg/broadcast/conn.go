package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/models"
	"pawtalk/pkg/protocol"
)

const (
	// writeWait is the deadline for writing a frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before dropping the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 512 * 1024

	// sendBuffer bounds the per-connection outbound queue. A full buffer
	// marks the subscriber as slow and its frames are dropped.
	sendBuffer = 256
)

// Conn is one websocket session bound to an authenticated participant.
type Conn struct {
	hub *Hub
	ws  *websocket.Conn

	sendMu sync.Mutex
	closed bool
	send   chan []byte

	UserID string
	Role   models.ParticipantRole
}

func newConn(h *Hub, ws *websocket.Conn, userID string, role models.ParticipantRole) *Conn {
	return &Conn{
		hub:    h,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		UserID: userID,
		Role:   role,
	}
}

// trySend queues a frame for the write pump. Reports false when the
// connection is gone or its buffer is full. Appliers keep references to
// connections that may unregister concurrently, so the closed flag is
// checked under the same lock that closeSend takes.
func (c *Conn) trySend(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound queue exactly once.
func (c *Conn) closeSend() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

// sendError delivers a rejection to this connection only.
func (c *Conn) sendError(kind protocol.ErrKind, msg, cid string) {
	frame, err := protocol.Encode(protocol.KindError, protocol.ErrorEvent{
		Kind:    kind,
		Message: msg,
		CID:     cid,
	})
	if err != nil {
		return
	}
	c.trySend(frame)
}

// readPump reads client frames, decodes them and hands them to the hub.
// It owns all reads on the socket; it exits on any read error.
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Warn("ws_read_error", zap.String("user", c.UserID), zap.Error(err))
			}
			return
		}
		kind, body, err := protocol.DecodeClient(data)
		if err != nil {
			c.sendError(protocol.ErrValidationFailed, err.Error(), "")
			continue
		}
		c.hub.dispatch(c, kind, body)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings. It owns all writes on the socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
