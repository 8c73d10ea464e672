package client

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"pawtalk/pkg/auth"
)

// WSDialer dials the server's websocket endpoint with signed identity
// headers.
type WSDialer struct {
	URL        string
	APIKey     string
	UserID     string
	Role       string
	SigningKey string
}

type wsTransport struct {
	ws *websocket.Conn
}

func (t *wsTransport) Read() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	return data, err
}

func (t *wsTransport) Write(data []byte) error {
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error { return t.ws.Close() }

// Dial opens a websocket session.
func (d *WSDialer) Dial(ctx context.Context) (Transport, error) {
	h := http.Header{}
	if d.APIKey != "" {
		h.Set("X-API-Key", d.APIKey)
	}
	h.Set("X-User-ID", d.UserID)
	if d.Role != "" {
		h.Set("X-User-Role", d.Role)
	}
	if d.SigningKey != "" {
		h.Set("X-User-Signature", auth.Sign(d.SigningKey, d.UserID, d.Role))
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, h)
	if err != nil {
		return nil, err
	}
	return &wsTransport{ws: ws}, nil
}
