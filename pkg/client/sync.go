package client

import (
	"context"
	"time"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/protocol"
)

// recentMessages bounds the per-conversation id window used to drop
// messages that arrive both live and through a backfill.
const recentMessages = 256

// convTrack is the client's resume state for one conversation: the
// newest wire timestamp it has surfaced and a window of recently seen
// message ids.
type convTrack struct {
	lastTS int64
	seen   map[string]bool
	ring   []string
	next   int
}

func newConvTrack() *convTrack {
	return &convTrack{seen: make(map[string]bool, recentMessages), ring: make([]string, recentMessages)}
}

func (tr *convTrack) remember(id string) {
	if old := tr.ring[tr.next]; old != "" {
		delete(tr.seen, old)
	}
	tr.ring[tr.next] = id
	tr.next = (tr.next + 1) % len(tr.ring)
	tr.seen[id] = true
}

// TrackConversation registers a conversation for missed-message
// backfill. Conversations are also tracked implicitly as soon as one of
// their messages arrives; use this to cover conversations that were
// quiet before the first disconnect.
func (c *Client) TrackConversation(convID string) {
	c.syncMu.Lock()
	if _, ok := c.convs[convID]; !ok {
		c.convs[convID] = newConvTrack()
	}
	c.syncMu.Unlock()
}

// noteMessage records a surfaced message and reports whether it is new.
// Both the live read loop and the backfill feed through here, which is
// what makes reconnect rendering exactly-once.
func (c *Client) noteMessage(m protocol.WireMessage) bool {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	tr := c.convs[m.ConversationID]
	if tr == nil {
		tr = newConvTrack()
		c.convs[m.ConversationID] = tr
	}
	if tr.seen[m.ID] {
		return false
	}
	tr.remember(m.ID)
	if m.SentAt > tr.lastTS {
		tr.lastTS = m.SentAt
	}
	return true
}

// backfill fetches messages created while the connection was down and
// surfaces the ones the live stream never delivered.
func (c *Client) backfill(ctx context.Context) {
	if c.history == nil {
		return
	}
	c.syncMu.Lock()
	cursors := make(map[string]int64, len(c.convs))
	for id, tr := range c.convs {
		cursors[id] = tr.lastTS
	}
	c.syncMu.Unlock()

	for convID, since := range cursors {
		msgs, err := c.history.Since(ctx, convID, since)
		if err != nil {
			logger.Debug("backfill_failed", "conv", convID, "error", err)
			continue
		}
		for _, m := range msgs {
			if !c.noteMessage(m) {
				continue
			}
			c.cache.InvalidateConversation(m.ConversationID)
			c.bus.Publish(Event{Kind: "message.created", Timestamp: time.Now(), Payload: &protocol.MessageCreated{Message: m}})
		}
	}
}
