package client

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"pawtalk/pkg/protocol"
)

// QueueStatus tracks a queued message through its lifecycle.
type QueueStatus string

const (
	StatusPending   QueueStatus = "pending"
	StatusSending   QueueStatus = "sending"
	StatusConfirmed QueueStatus = "confirmed"
	StatusFailed    QueueStatus = "failed"
)

// QueuedMessage is one queued mutation awaiting replay. Kind is the
// client event it replays as (send, edit, add/remove reaction). CID is
// the client correlation id; for sends the server echoes it back in
// MessageCreated, for the idempotent mutations it is a local handle.
type QueuedMessage struct {
	CID            string
	Kind           protocol.EventKind
	ConversationID string
	Content        string
	Format         string
	Attachments    []protocol.WireAttachment
	MessageID      string
	Emoji          string
	Status         QueueStatus
	Error          string
	QueuedAt       time.Time
}

// Outbox is a FIFO queue of unconfirmed mutations. Replay preserves
// enqueue order; confirmation and failure are keyed by CID.
type Outbox struct {
	mu    sync.Mutex
	items []*QueuedMessage
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Enqueue appends a composed message and returns its correlation id.
func (o *Outbox) Enqueue(convID, content, format string, atts []protocol.WireAttachment) string {
	return o.push(&QueuedMessage{
		Kind:           protocol.KindSend,
		ConversationID: convID,
		Content:        content,
		Format:         format,
		Attachments:    atts,
	})
}

// EnqueueEdit appends an edit mutation.
func (o *Outbox) EnqueueEdit(messageID, content string) string {
	return o.push(&QueuedMessage{
		Kind:      protocol.KindEdit,
		MessageID: messageID,
		Content:   content,
	})
}

// EnqueueReaction appends a reaction add or remove.
func (o *Outbox) EnqueueReaction(kind protocol.EventKind, messageID, emoji string) string {
	return o.push(&QueuedMessage{
		Kind:      kind,
		MessageID: messageID,
		Emoji:     emoji,
	})
}

func (o *Outbox) push(qm *QueuedMessage) string {
	qm.CID = uuid.NewString()
	qm.Status = StatusPending
	qm.QueuedAt = time.Now()
	o.mu.Lock()
	o.items = append(o.items, qm)
	o.mu.Unlock()
	return qm.CID
}

// Pending returns pending messages in enqueue order and marks them
// sending. Entries already in flight, confirmed or failed are skipped,
// so a second replay on the same session never rewrites a frame.
func (o *Outbox) Pending() []QueuedMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []QueuedMessage
	for _, qm := range o.items {
		if qm.Status == StatusPending {
			qm.Status = StatusSending
			out = append(out, *qm)
		}
	}
	return out
}

// ResetSending returns every in-flight entry to pending. Called when a
// new session is adopted: frames written to the dead session may never
// have reached the server and must be replayed.
func (o *Outbox) ResetSending() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, qm := range o.items {
		if qm.Status == StatusSending {
			qm.Status = StatusPending
		}
	}
}

// Confirm marks the message with the given correlation id confirmed and
// reports whether it was still outstanding. A second confirm for the
// same CID returns false, which is how replay duplicates are absorbed.
func (o *Outbox) Confirm(cid string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, qm := range o.items {
		if qm.CID != cid {
			continue
		}
		if qm.Status == StatusConfirmed {
			return false
		}
		qm.Status = StatusConfirmed
		return true
	}
	return false
}

// Fail marks the message with the given correlation id failed.
func (o *Outbox) Fail(cid, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, qm := range o.items {
		if qm.CID == cid {
			qm.Status = StatusFailed
			qm.Error = reason
			return
		}
	}
}

// Requeue returns a sending message to pending, used when a write fails
// before the server saw it.
func (o *Outbox) Requeue(cid string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, qm := range o.items {
		if qm.CID == cid && qm.Status == StatusSending {
			qm.Status = StatusPending
			return
		}
	}
}

// Compact drops confirmed and failed entries.
func (o *Outbox) Compact() {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.items[:0]
	for _, qm := range o.items {
		if qm.Status == StatusPending || qm.Status == StatusSending {
			kept = append(kept, qm)
		}
	}
	o.items = kept
}

// Len returns the number of entries, settled ones included.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Get returns a snapshot of the entry with the given correlation id.
func (o *Outbox) Get(cid string) (QueuedMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, qm := range o.items {
		if qm.CID == cid {
			return *qm, true
		}
	}
	return QueuedMessage{}, false
}
