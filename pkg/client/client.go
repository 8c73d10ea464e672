package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/protocol"
	"pawtalk/pkg/search"
)

// Transport is one live server session. Read blocks until a frame
// arrives; both return an error once the session is broken.
type Transport interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Close() error
}

// Dialer establishes server sessions. The websocket dialer in dial.go
// is the production implementation; tests substitute their own.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// Searcher runs a server-side message search.
type Searcher interface {
	Search(ctx context.Context, query, conversationID string, page, limit int) (search.Response, error)
}

// HistoryFetcher loads the messages of a conversation created after a
// known wire timestamp, typically backed by the history endpoint. The
// client uses it to backfill messages that were fanned out while the
// connection was down.
type HistoryFetcher interface {
	Since(ctx context.Context, conversationID string, afterMillis int64) ([]protocol.WireMessage, error)
}

// Client is the embeddable chat client. It owns the connection state
// machine, replays the outbox after reconnects, deduplicates echoed
// sends by correlation id, and serves search results through an LRU.
type Client struct {
	dialer   Dialer
	searcher Searcher
	history  HistoryFetcher
	bus      *Bus
	machine  *Machine
	outbox   *Outbox
	cache    *SearchCache
	backoff  Backoff

	mu sync.Mutex
	tr Transport

	replayMu sync.Mutex

	syncMu sync.Mutex
	convs  map[string]*convTrack

	searchGen uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	Backoff    Backoff
	CachePages int
	Searcher   Searcher
	History    HistoryFetcher
}

// New creates a client. Events surface on the returned client's Bus.
func New(d Dialer, opts Options) *Client {
	b := opts.Backoff
	if b.Base == 0 && b.MaxAttempts == 0 {
		b = DefaultBackoff()
	}
	bus := NewBus()
	return &Client{
		dialer:   d,
		searcher: opts.Searcher,
		history:  opts.History,
		bus:      bus,
		machine:  NewMachine(bus),
		outbox:   NewOutbox(),
		cache:    NewSearchCache(opts.CachePages),
		backoff:  b,
		convs:    make(map[string]*convTrack),
		stop:     make(chan struct{}),
	}
}

// Bus returns the client's event bus.
func (c *Client) Bus() *Bus { return c.bus }

// State returns the current connection state.
func (c *Client) State() State { return c.machine.Current() }

// Outbox exposes the queue for inspection.
func (c *Client) Outbox() *Outbox { return c.outbox }

// Connect dials the server and starts the read loop. On failure the
// reconnect loop takes over with backoff.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.machine.Transition(Connecting); err != nil {
		return err
	}
	tr, err := c.dialer.Dial(ctx)
	if err != nil {
		logger.Log.Warn("connect_failed", zap.Error(err))
		if terr := c.machine.Transition(Reconnecting); terr != nil {
			return err
		}
		go c.reconnectLoop(ctx)
		return nil
	}
	c.adopt(ctx, tr)
	return nil
}

// Close tears the client down. The state machine ends in Disconnected
// unless the reconnect budget already ran out.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mu.Lock()
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()
	if tr != nil {
		tr.Close()
	}
	if c.machine.Current() == Connected {
		_ = c.machine.Transition(Disconnected)
	}
	return nil
}

// adopt installs a live transport, replays the outbox, backfills missed
// messages and starts the read loop. In-flight sends from the dead
// session are reset first: the server deduplicates replays by
// correlation id, so resending is safe.
func (c *Client) adopt(ctx context.Context, tr Transport) {
	c.mu.Lock()
	c.tr = tr
	c.mu.Unlock()
	if err := c.machine.Transition(Connected); err != nil {
		tr.Close()
		return
	}
	c.outbox.ResetSending()
	c.replay()
	go c.backfill(ctx)
	go c.readLoop(ctx, tr)
}

// reconnectLoop retries with exponential backoff until a session is
// established or the attempt budget runs out.
func (c *Client) reconnectLoop(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		delay, ok := c.backoff.Delay(attempt)
		if !ok {
			logger.Warn("reconnect_budget_exhausted", "attempts", attempt)
			_ = c.machine.Transition(ConnectionLost)
			c.bus.Publish(Event{Kind: "conn.lost", Timestamp: time.Now()})
			return
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		}
		if err := c.machine.Transition(Connecting); err != nil {
			return
		}
		tr, err := c.dialer.Dial(ctx)
		if err != nil {
			logger.Debug("reconnect_attempt_failed", "attempt", attempt, "error", err)
			if terr := c.machine.Transition(Reconnecting); terr != nil {
				return
			}
			continue
		}
		c.adopt(ctx, tr)
		return
	}
}

// SendMessage queues a message and, when connected, sends it
// immediately. It always returns the correlation id so the caller can
// track the optimistic copy.
func (c *Client) SendMessage(convID, content, format string, atts []protocol.WireAttachment) string {
	return c.enqueued(c.outbox.Enqueue(convID, content, format, atts))
}

// EditMessage queues a content edit, replayed like sends when offline.
func (c *Client) EditMessage(messageID, content string) string {
	return c.enqueued(c.outbox.EnqueueEdit(messageID, content))
}

// AddReaction queues a reaction add. Reactions are idempotent server
// side, so at-least-once replay is safe.
func (c *Client) AddReaction(messageID, emoji string) string {
	return c.enqueued(c.outbox.EnqueueReaction(protocol.KindAddReaction, messageID, emoji))
}

// RemoveReaction queues a reaction removal.
func (c *Client) RemoveReaction(messageID, emoji string) string {
	return c.enqueued(c.outbox.EnqueueReaction(protocol.KindRemoveReaction, messageID, emoji))
}

func (c *Client) enqueued(cid string) string {
	c.bus.Publish(Event{Kind: "message.queued", Timestamp: time.Now(), Payload: cid})
	if c.machine.Current() == Connected {
		c.replay()
	}
	return cid
}

// replay writes every pending outbox entry in enqueue order. Sends
// stay outstanding until the server echoes their correlation id; the
// idempotent mutations settle as soon as the write goes through. The
// mutex keeps concurrent callers from interleaving frames.
func (c *Client) replay() {
	c.replayMu.Lock()
	defer c.replayMu.Unlock()
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return
	}
	for _, qm := range c.outbox.Pending() {
		var payload any
		switch qm.Kind {
		case protocol.KindSend:
			payload = protocol.Send{
				CID:            qm.CID,
				ConversationID: qm.ConversationID,
				Content:        qm.Content,
				Format:         qm.Format,
				Attachments:    qm.Attachments,
			}
		case protocol.KindEdit:
			payload = protocol.Edit{MessageID: qm.MessageID, Content: qm.Content}
		case protocol.KindAddReaction, protocol.KindRemoveReaction:
			payload = protocol.Reaction{MessageID: qm.MessageID, Emoji: qm.Emoji}
		default:
			c.outbox.Fail(qm.CID, "unknown queued kind")
			continue
		}
		frame, err := protocol.Encode(qm.Kind, payload)
		if err != nil {
			c.outbox.Fail(qm.CID, err.Error())
			continue
		}
		if err := tr.Write(frame); err != nil {
			c.outbox.Requeue(qm.CID)
			return
		}
		if qm.Kind != protocol.KindSend {
			c.outbox.Confirm(qm.CID)
		}
	}
}

// Send encodes and writes a transient client event (read cursors,
// typing). Unlike the queued mutations these are not replayed offline.
func (c *Client) Send(kind protocol.EventKind, payload any) error {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return ErrNotConnected
	}
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	return tr.Write(frame)
}

// readLoop consumes server frames until the session breaks, then hands
// off to the reconnect loop.
func (c *Client) readLoop(ctx context.Context, tr Transport) {
	for {
		data, err := tr.Read()
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			logger.Debug("session_broken", "error", err)
			if terr := c.machine.Transition(Reconnecting); terr != nil {
				return
			}
			go c.reconnectLoop(ctx)
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame decodes one server event, reconciles the outbox and
// publishes the result on the bus.
func (c *Client) handleFrame(data []byte) {
	kind, body, err := protocol.DecodeServer(data)
	if err != nil {
		logger.Debug("bad_server_frame", "error", err)
		return
	}
	switch p := body.(type) {
	case *protocol.MessageCreated:
		if p.CID != "" {
			if _, mine := c.outbox.Get(p.CID); mine && !c.outbox.Confirm(p.CID) {
				// Replay duplicate of an already confirmed send.
				return
			}
		}
		if !c.noteMessage(p.Message) {
			// Already surfaced through a backfill.
			return
		}
		c.cache.InvalidateConversation(p.Message.ConversationID)
		c.bus.Publish(Event{Kind: "message.created", Timestamp: time.Now(), Payload: p})
	case *protocol.MessageUpdated:
		c.cache.InvalidateConversation(p.Message.ConversationID)
		c.bus.Publish(Event{Kind: "message.updated", Timestamp: time.Now(), Payload: p})
	case *protocol.MessageDeleted:
		c.cache.InvalidateConversation(p.ConversationID)
		c.bus.Publish(Event{Kind: "message.deleted", Timestamp: time.Now(), Payload: p})
	case *protocol.ReactionChanged:
		c.bus.Publish(Event{Kind: "message.reaction_changed", Timestamp: time.Now(), Payload: p})
	case *protocol.ReadReceiptChanged:
		c.bus.Publish(Event{Kind: "message.read_receipt_changed", Timestamp: time.Now(), Payload: p})
	case *protocol.TypingChanged:
		c.bus.Publish(Event{Kind: "conversation.typing_changed", Timestamp: time.Now(), Payload: p})
	case *protocol.ConversationUpdated:
		c.bus.Publish(Event{Kind: "conversation.updated", Timestamp: time.Now(), Payload: p})
	case *protocol.ErrorEvent:
		if p.CID != "" {
			c.outbox.Fail(p.CID, p.Message)
			c.bus.Publish(Event{Kind: "message.send_failed", Timestamp: time.Now(), Payload: p})
			return
		}
		c.bus.Publish(Event{Kind: "conn.server_error", Timestamp: time.Now(), Payload: p})
	default:
		_ = kind
	}
}

// Search serves a result page, from cache when possible. A response
// that arrives after a newer search was issued is discarded and not
// cached.
func (c *Client) Search(ctx context.Context, query, convID string, page, limit int) (search.Response, error) {
	key := CacheKey{Query: query, ConversationID: convID, Page: page, Limit: limit}
	if resp, ok := c.cache.Get(key); ok {
		return resp, nil
	}
	if c.searcher == nil {
		return search.Response{}, ErrNoSearcher
	}
	gen := atomic.AddUint64(&c.searchGen, 1)
	resp, err := c.searcher.Search(ctx, query, convID, page, limit)
	if err != nil {
		return search.Response{}, err
	}
	if atomic.LoadUint64(&c.searchGen) != gen {
		// A newer search superseded this one; drop the stale page.
		return resp, ErrSearchSuperseded
	}
	c.cache.Set(key, resp)
	return resp, nil
}
