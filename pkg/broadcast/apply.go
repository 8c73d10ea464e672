package broadcast

import (
	"errors"
	"time"

	"pawtalk/pkg/models"
	"pawtalk/pkg/protocol"
	"pawtalk/pkg/store"
)

// cidLog remembers the message id behind recently applied correlation
// ids. A send replayed after a reconnect the server already served is
// answered with the existing message instead of persisted again. The
// log is owned by a single applier goroutine, no locking needed.
type cidLog struct {
	ids  map[string]string
	ring []string
	next int
}

func newCIDLog(n int) *cidLog {
	return &cidLog{ids: make(map[string]string, n), ring: make([]string, n)}
}

func (l *cidLog) get(cid string) (string, bool) {
	id, ok := l.ids[cid]
	return id, ok
}

func (l *cidLog) put(cid, msgID string) {
	if cid == "" {
		return
	}
	if old := l.ring[l.next]; old != "" {
		delete(l.ids, old)
	}
	l.ring[l.next] = cid
	l.next = (l.next + 1) % len(l.ring)
	l.ids[cid] = msgID
}

// apply runs one mutation inside the conversation's applier goroutine:
// durable store write first, fan-out second. Failures are reported only
// to the originating connection.
func (h *Hub) apply(convID string, in inbound, seen *cidLog) {
	switch p := in.body.(type) {
	case *protocol.Send:
		h.applySend(convID, in.conn, p, seen)
	case *protocol.Edit:
		h.applyEdit(convID, in.conn, p)
	case *protocol.Delete:
		h.applyDelete(convID, in.conn, p)
	case *protocol.Reaction:
		h.applyReaction(convID, in.conn, in.kind, p)
	case *protocol.MarkRead:
		h.applyMarkRead(convID, in.conn, p)
	}
}

func (h *Hub) applySend(convID string, c *Conn, p *protocol.Send, seen *cidLog) {
	if p.CID != "" {
		if msgID, ok := seen.get(p.CID); ok {
			h.echoExisting(c, p.CID, msgID)
			return
		}
	}
	format := models.ContentFormat(p.Format)
	if format == "" {
		format = models.FormatPlain
	}
	msg, err := h.store.AppendMessage(convID, c.UserID, p.Content, format, protocol.AttachmentsFromWire(p.Attachments))
	if err != nil {
		c.sendError(classify(err), err.Error(), p.CID)
		return
	}
	seen.put(p.CID, msg.ID)
	h.broadcast(convID, protocol.KindMessageCreated, protocol.MessageCreated{
		CID:     p.CID,
		Message: protocol.MessageToWire(msg),
	})
}

// echoExisting re-sends the canonical message for a duplicate
// correlation id. Only the replaying connection gets the frame: the
// other participants already saw the original fan-out.
func (h *Hub) echoExisting(c *Conn, cid, msgID string) {
	msg, err := h.store.GetMessage(msgID)
	if err != nil {
		c.sendError(classify(err), err.Error(), cid)
		return
	}
	frame, err := protocol.Encode(protocol.KindMessageCreated, protocol.MessageCreated{
		CID:     cid,
		Message: protocol.MessageToWire(msg),
	})
	if err != nil {
		return
	}
	c.trySend(frame)
}

func (h *Hub) applyEdit(convID string, c *Conn, p *protocol.Edit) {
	msg, err := h.store.EditMessage(p.MessageID, c.UserID, p.Content)
	if err != nil {
		c.sendError(classify(err), err.Error(), "")
		return
	}
	h.broadcast(convID, protocol.KindMessageUpdated, protocol.MessageUpdated{
		Message: protocol.MessageToWire(msg),
	})
}

func (h *Hub) applyDelete(convID string, c *Conn, p *protocol.Delete) {
	if _, err := h.store.SoftDeleteMessage(p.MessageID, c.UserID); err != nil {
		c.sendError(classify(err), err.Error(), "")
		return
	}
	h.broadcast(convID, protocol.KindMessageDeleted, protocol.MessageDeleted{
		ConversationID: convID,
		MessageID:      p.MessageID,
	})
}

func (h *Hub) applyReaction(convID string, c *Conn, kind protocol.EventKind, p *protocol.Reaction) {
	var (
		msg models.Message
		err error
	)
	added := kind == protocol.KindAddReaction
	if added {
		msg, err = h.store.AddReaction(p.MessageID, c.UserID, p.Emoji)
	} else {
		msg, err = h.store.RemoveReaction(p.MessageID, c.UserID, p.Emoji)
	}
	if err != nil {
		c.sendError(classify(err), err.Error(), "")
		return
	}
	h.broadcast(convID, protocol.KindReactionChanged, protocol.ReactionChanged{
		ConversationID: convID,
		MessageID:      p.MessageID,
		UserID:         c.UserID,
		Emoji:          p.Emoji,
		Added:          added,
		Reactions:      protocol.ReactionsToWire(msg.Reactions),
	})
}

func (h *Hub) applyMarkRead(convID string, c *Conn, p *protocol.MarkRead) {
	if err := h.store.MarkRead(convID, c.UserID, p.UpToMessageID); err != nil {
		c.sendError(classify(err), err.Error(), "")
		return
	}
	h.broadcast(convID, protocol.KindReadReceiptChanged, protocol.ReadReceiptChanged{
		ConversationID: convID,
		UserID:         c.UserID,
		UpToMessageID:  p.UpToMessageID,
		ReadAt:         time.Now().UnixMilli(),
	})
}

// classify maps store sentinels onto wire error kinds. Errors outside
// the sentinel set are the server's fault and reported as such.
func classify(err error) protocol.ErrKind {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, store.ErrConversationClosed):
		return protocol.ErrConversationClosed
	case errors.Is(err, store.ErrNotSender), errors.Is(err, store.ErrNotParticipant):
		return protocol.ErrForbidden
	case errors.Is(err, store.ErrContentTooLong),
		errors.Is(err, store.ErrTooManyAttachments),
		errors.Is(err, store.ErrInvalidFormat),
		errors.Is(err, store.ErrInvalidParticipants),
		errors.Is(err, store.ErrDuplicateParticipant):
		return protocol.ErrValidationFailed
	default:
		return protocol.ErrInternal
	}
}
