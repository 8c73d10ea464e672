// Package broadcast holds the live-delivery side of the chat core: a
// registry of websocket connections keyed by participant identity, and
// per-conversation appliers that serialize mutations so fan-out order
// matches durable apply order.
package broadcast

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/protocol"
	"pawtalk/pkg/store"
	"pawtalk/pkg/telemetry"
)

// Hub maintains the set of live connections and fans events out to the
// participants of a conversation. One Hub is the single logical
// broadcaster; sharding across instances is a deployment concern.
type Hub struct {
	store *store.Store

	register   chan *Conn
	unregister chan *Conn

	mu     sync.RWMutex
	byUser map[string]map[*Conn]bool

	appliers    sync.Mutex
	applyCh     map[string]chan inbound
	applyStop   chan struct{}
	applierIdle time.Duration
}

// applierBuffer bounds the per-conversation mutation queue. A full
// queue rejects the event back to the sender instead of blocking.
const applierBuffer = 64

// defaultApplierIdle is how long a conversation's applier may sit with
// an empty queue before its goroutine is reaped.
const defaultApplierIdle = 5 * time.Minute

// inbound is one client mutation routed to its conversation's applier.
type inbound struct {
	conn *Conn
	kind protocol.EventKind
	body any
}

// NewHub creates a hub over the conversation store.
func NewHub(st *store.Store) *Hub {
	return &Hub{
		store:       st,
		register:    make(chan *Conn),
		unregister:  make(chan *Conn),
		byUser:      make(map[string]map[*Conn]bool),
		applyCh:     make(map[string]chan inbound),
		applyStop:   make(chan struct{}),
		applierIdle: defaultApplierIdle,
	}
}

// Run is the hub's registration loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addConn(c)
		case c := <-h.unregister:
			h.removeConn(c)
		case <-h.applyStop:
			return
		}
	}
}

// Stop shuts down the hub loop and all per-conversation appliers.
func (h *Hub) Stop() {
	close(h.applyStop)
}

func (h *Hub) addConn(c *Conn) {
	h.mu.Lock()
	set := h.byUser[c.UserID]
	if set == nil {
		set = make(map[*Conn]bool)
		h.byUser[c.UserID] = set
	}
	set[c] = true
	h.mu.Unlock()
	telemetry.LiveConnections.Inc()
	logger.Log.Info("participant_connected", zap.String("user", c.UserID))
}

func (h *Hub) removeConn(c *Conn) {
	h.mu.Lock()
	if set, ok := h.byUser[c.UserID]; ok {
		if set[c] {
			delete(set, c)
			c.closeSend()
			telemetry.LiveConnections.Dec()
		}
		if len(set) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	h.mu.Unlock()
	logger.Log.Info("participant_disconnected", zap.String("user", c.UserID))
}

// ConnectedUsers returns the number of distinct connected participants.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser)
}

// dispatch routes a decoded client event. Mutations go through the
// conversation's applier so fan-out order matches apply order; typing
// indicators are transient and broadcast directly, best-effort.
func (h *Hub) dispatch(c *Conn, kind protocol.EventKind, body any) {
	switch kind {
	case protocol.KindTypingStart, protocol.KindTypingStop:
		t, ok := body.(*protocol.Typing)
		if !ok {
			return
		}
		h.handleTyping(c, kind, t)
	default:
		convID := conversationOf(h.store, body)
		if convID == "" {
			c.sendError(protocol.ErrNotFound, "unknown target", cidOf(body))
			return
		}
		if !h.enqueue(convID, inbound{conn: c, kind: kind, body: body}) {
			c.sendError(protocol.ErrOverloaded, "conversation is busy, retry", cidOf(body))
		}
	}
}

// conversationOf resolves the target conversation for a mutation. For
// message-scoped events the conversation comes from the stored message.
func conversationOf(st *store.Store, body any) string {
	switch p := body.(type) {
	case *protocol.Send:
		return p.ConversationID
	case *protocol.MarkRead:
		return p.ConversationID
	case *protocol.Edit:
		if m, err := st.GetMessage(p.MessageID); err == nil {
			return m.ConversationID
		}
	case *protocol.Delete:
		if m, err := st.GetMessage(p.MessageID); err == nil {
			return m.ConversationID
		}
	case *protocol.Reaction:
		if m, err := st.GetMessage(p.MessageID); err == nil {
			return m.ConversationID
		}
	}
	return ""
}

func cidOf(body any) string {
	if s, ok := body.(*protocol.Send); ok {
		return s.CID
	}
	return ""
}

// enqueue routes a mutation to the conversation's serialized applier,
// lazily starting its worker goroutine. The queue write happens under
// the appliers lock so a reaped applier can never swallow an event.
func (h *Hub) enqueue(convID string, in inbound) bool {
	h.appliers.Lock()
	defer h.appliers.Unlock()
	ch, ok := h.applyCh[convID]
	if !ok {
		ch = make(chan inbound, applierBuffer)
		h.applyCh[convID] = ch
		go h.runApplier(convID, ch)
	}
	select {
	case ch <- in:
		return true
	default:
		return false
	}
}

// runApplier drains one conversation's mutation queue. The goroutine
// retires itself once the queue has been empty for the idle window;
// reaping is checked under the appliers lock so it never races enqueue.
func (h *Hub) runApplier(convID string, ch chan inbound) {
	idle := time.NewTimer(h.applierIdle)
	defer idle.Stop()
	seen := newCIDLog(applierBuffer * 2)
	for {
		select {
		case in := <-ch:
			h.apply(convID, in, seen)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(h.applierIdle)
		case <-idle.C:
			h.appliers.Lock()
			if len(ch) == 0 {
				delete(h.applyCh, convID)
				h.appliers.Unlock()
				return
			}
			h.appliers.Unlock()
			idle.Reset(h.applierIdle)
		case <-h.applyStop:
			return
		}
	}
}

// broadcast encodes one canonical event and delivers it to every
// connected participant of the conversation, originator included. A slow
// subscriber's frame is dropped rather than blocking the applier.
func (h *Hub) broadcast(convID string, kind protocol.EventKind, payload any) {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		logger.Error("broadcast_encode_failed", "kind", kind, "error", err)
		return
	}
	parts, err := h.store.Participants(convID)
	if err != nil {
		logger.Error("broadcast_participants_failed", "conv", convID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range parts {
		if p.Removed {
			continue
		}
		for c := range h.byUser[p.UserID] {
			if c.trySend(frame) {
				telemetry.EventsFannedOut.Inc()
			} else {
				telemetry.EventsDropped.Inc()
			}
		}
	}
}

// NotifyConversation fans out a server-initiated event, used by the
// REST surface so websocket subscribers see HTTP mutations too.
func (h *Hub) NotifyConversation(convID string, kind protocol.EventKind, payload any) {
	h.broadcast(convID, kind, payload)
}

// handleTyping authorizes and broadcasts a transient typing indicator.
func (h *Hub) handleTyping(c *Conn, kind protocol.EventKind, t *protocol.Typing) {
	if !h.store.IsParticipant(t.ConversationID, c.UserID) {
		c.sendError(protocol.ErrForbidden, "not a participant of the conversation", "")
		return
	}
	h.broadcast(t.ConversationID, protocol.KindTypingChanged, protocol.TypingChanged{
		ConversationID: t.ConversationID,
		UserID:         c.UserID,
		Typing:         kind == protocol.KindTypingStart,
	})
}
