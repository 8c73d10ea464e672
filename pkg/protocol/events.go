// Package protocol defines the bidirectional event contract between chat
// clients and the broadcast server. The event set is closed: every kind
// maps to exactly one payload type and dispatch is an exhaustive switch,
// so an unknown or malformed envelope is rejected at the edge instead of
// leaking an untyped map into the core.
package protocol

import (
	"encoding/json"
	"fmt"
)

// EventKind tags an envelope with its payload type.
type EventKind string

// Client -> server kinds.
const (
	KindSend           EventKind = "send"
	KindEdit           EventKind = "edit"
	KindDelete         EventKind = "delete"
	KindAddReaction    EventKind = "add_reaction"
	KindRemoveReaction EventKind = "remove_reaction"
	KindMarkRead       EventKind = "mark_read"
	KindTypingStart    EventKind = "typing_start"
	KindTypingStop     EventKind = "typing_stop"
)

// Server -> client kinds.
const (
	KindMessageCreated      EventKind = "message_created"
	KindMessageUpdated      EventKind = "message_updated"
	KindMessageDeleted      EventKind = "message_deleted"
	KindReactionChanged     EventKind = "reaction_changed"
	KindReadReceiptChanged  EventKind = "read_receipt_changed"
	KindTypingChanged       EventKind = "typing_changed"
	KindConversationUpdated EventKind = "conversation_updated"
	KindError               EventKind = "error"
)

// Envelope is the self-describing wire frame.
type Envelope struct {
	Type    EventKind       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- client -> server payloads ---

// Send carries a new message. CID is the client-generated temporary
// correlation id echoed back in MessageCreated so the optimistic local
// copy can be reconciled and deduplicated.
type Send struct {
	CID            string           `json:"cid"`
	ConversationID string           `json:"conversation_id"`
	Content        string           `json:"content"`
	Format         string           `json:"format,omitempty"`
	Attachments    []WireAttachment `json:"attachments,omitempty"`
}

// Edit replaces a message's content.
type Edit struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// Delete tombstones a message.
type Delete struct {
	MessageID string `json:"message_id"`
}

// Reaction adds or removes a (user, emoji) reaction; the kind on the
// envelope distinguishes add from remove.
type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// MarkRead advances the sender's read cursor, optionally stamping
// receipts up to and including UpToMessageID.
type MarkRead struct {
	ConversationID string `json:"conversation_id"`
	UpToMessageID  string `json:"up_to_message_id,omitempty"`
}

// Typing signals a typing indicator for a conversation. Transient: never
// stored, expiry is enforced client-side.
type Typing struct {
	ConversationID string `json:"conversation_id"`
}

// --- server -> client payloads ---

// MessageCreated echoes a durably applied send to every connected
// participant, originator included, so optimistic state converges on the
// server's canonical view.
type MessageCreated struct {
	CID     string      `json:"cid,omitempty"`
	Message WireMessage `json:"message"`
}

// MessageUpdated carries the canonical post-edit message.
type MessageUpdated struct {
	Message WireMessage `json:"message"`
}

// MessageDeleted announces a tombstone.
type MessageDeleted struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// ReactionChanged carries the full reaction set after an add or remove.
type ReactionChanged struct {
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	UserID         string         `json:"user_id"`
	Emoji          string         `json:"emoji"`
	Added          bool           `json:"added"`
	Reactions      []WireReaction `json:"reactions"`
}

// ReadReceiptChanged announces a moved read cursor.
type ReadReceiptChanged struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	UpToMessageID  string `json:"up_to_message_id,omitempty"`
	ReadAt         int64  `json:"read_at"`
}

// TypingChanged announces a typing indicator state.
type TypingChanged struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Typing         bool   `json:"typing"`
}

// ConversationUpdated carries conversation metadata changes (status,
// participants).
type ConversationUpdated struct {
	Conversation WireConversation `json:"conversation"`
}

// ErrKind classifies a rejected client event.
type ErrKind string

const (
	ErrNotFound           ErrKind = "not_found"
	ErrForbidden          ErrKind = "forbidden"
	ErrValidationFailed   ErrKind = "validation_failed"
	ErrConversationClosed ErrKind = "conversation_closed"
	ErrInternal           ErrKind = "internal"
	ErrOverloaded         ErrKind = "overloaded"
)

// ErrorEvent rejects a client event. CID is set when the rejected event
// was a send, so the client can fail the matching queued message.
type ErrorEvent struct {
	Kind    ErrKind `json:"kind"`
	Message string  `json:"message"`
	CID     string  `json:"cid,omitempty"`
}

// Encode wraps a payload in an envelope frame.
func Encode(kind EventKind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return json.Marshal(Envelope{Type: kind, Payload: raw})
}

// DecodeClient parses a client -> server frame into its concrete payload.
// Unknown kinds and malformed payloads return an error.
func DecodeClient(data []byte) (EventKind, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("invalid envelope: %w", err)
	}
	var payload any
	switch env.Type {
	case KindSend:
		payload = &Send{}
	case KindEdit:
		payload = &Edit{}
	case KindDelete:
		payload = &Delete{}
	case KindAddReaction, KindRemoveReaction:
		payload = &Reaction{}
	case KindMarkRead:
		payload = &MarkRead{}
	case KindTypingStart, KindTypingStop:
		payload = &Typing{}
	default:
		return env.Type, nil, fmt.Errorf("unknown client event kind %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return env.Type, nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return env.Type, payload, nil
}

// DecodeServer parses a server -> client frame into its concrete payload.
func DecodeServer(data []byte) (EventKind, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("invalid envelope: %w", err)
	}
	var payload any
	switch env.Type {
	case KindMessageCreated:
		payload = &MessageCreated{}
	case KindMessageUpdated:
		payload = &MessageUpdated{}
	case KindMessageDeleted:
		payload = &MessageDeleted{}
	case KindReactionChanged:
		payload = &ReactionChanged{}
	case KindReadReceiptChanged:
		payload = &ReadReceiptChanged{}
	case KindTypingChanged:
		payload = &TypingChanged{}
	case KindConversationUpdated:
		payload = &ConversationUpdated{}
	case KindError:
		payload = &ErrorEvent{}
	default:
		return env.Type, nil, fmt.Errorf("unknown server event kind %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return env.Type, nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return env.Type, payload, nil
}
