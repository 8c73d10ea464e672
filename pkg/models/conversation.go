package models

// ConversationStatus is the lifecycle state of a conversation.
// Transitions are one-way: active -> archived -> closed. A closed
// conversation accepts no further messages.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationClosed   ConversationStatus = "closed"
)

// Conversation is a durable thread of messages between a bounded set of
// participants. It may link back to the adoption application and/or pet
// listing that started the contact.
type Conversation struct {
	ID string `json:"id"`
	// ApplicationID optionally links the originating adoption application.
	ApplicationID string `json:"application_id,omitempty"`
	// PetID optionally links a specific listed pet.
	PetID string `json:"pet_id,omitempty"`
	// RescueID identifies the owning rescue organization.
	RescueID string             `json:"rescue_id,omitempty"`
	Status   ConversationStatus `json:"status"`
	// Created timestamp (ns); immutable.
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns): last time metadata or thread activity changed.
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// Closed reports whether the conversation accepts no further writes.
func (c *Conversation) Closed() bool { return c.Status == ConversationClosed }

// ParticipantRole expresses the role a person holds within a conversation.
type ParticipantRole string

const (
	RoleUser   ParticipantRole = "user"
	RoleRescue ParticipantRole = "rescue"
	RoleAdmin  ParticipantRole = "admin"
)

// Participant is a person's membership record in a conversation. A
// (conversation, user) pair is unique. Participants are never hard-deleted
// while the conversation exists; Removed marks soft removal so message
// history and read-cursor integrity survive.
type Participant struct {
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	Role           ParticipantRole `json:"role"`
	// LastReadAt is the per-user read cursor (ns). It only moves forward.
	LastReadAt int64 `json:"last_read_at,omitempty"`
	Removed    bool  `json:"removed,omitempty"`
	JoinedTS   int64 `json:"joined_ts,omitempty"`
}
