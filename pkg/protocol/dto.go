package protocol

import (
	"time"

	"pawtalk/pkg/models"
)

// Wire DTOs decouple the event contract from the internal domain types.
// Timestamps travel as Unix milliseconds on the wire; internally the
// store keeps nanoseconds. The mapping functions below are explicit and
// total: every field is named, nothing is copied reflectively.

// WireAttachment mirrors models.Attachment on the wire.
type WireAttachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// WireReaction mirrors models.Reaction on the wire.
type WireReaction struct {
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	CreatedAt int64  `json:"created_at"`
}

// WireReceipt mirrors models.ReadReceipt on the wire.
type WireReceipt struct {
	UserID string `json:"user_id"`
	ReadAt int64  `json:"read_at"`
}

// WireMessage is the canonical message shape sent to clients.
type WireMessage struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Sender         string           `json:"sender"`
	Content        string           `json:"content"`
	Format         string           `json:"format"`
	Attachments    []WireAttachment `json:"attachments,omitempty"`
	Reactions      []WireReaction   `json:"reactions,omitempty"`
	ReadStatus     []WireReceipt    `json:"read_status,omitempty"`
	SentAt         int64            `json:"sent_at"`
	EditedAt       int64            `json:"edited_at,omitempty"`
	Deleted        bool             `json:"deleted,omitempty"`
}

// WireConversation is the conversation shape sent to clients.
type WireConversation struct {
	ID            string `json:"id"`
	ApplicationID string `json:"application_id,omitempty"`
	PetID         string `json:"pet_id,omitempty"`
	RescueID      string `json:"rescue_id,omitempty"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

func nsToMillis(ns int64) int64 {
	if ns == 0 {
		return 0
	}
	return ns / int64(time.Millisecond)
}

func millisToNS(ms int64) int64 {
	if ms == 0 {
		return 0
	}
	return ms * int64(time.Millisecond)
}

// MessageToWire maps the internal message onto its wire DTO.
func MessageToWire(m models.Message) WireMessage {
	w := WireMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         m.SenderID,
		Content:        m.Content,
		Format:         string(m.Format),
		SentAt:         nsToMillis(m.CreatedTS),
		EditedAt:       nsToMillis(m.EditedTS),
		Deleted:        m.Deleted,
	}
	for _, a := range m.Attachments {
		w.Attachments = append(w.Attachments, WireAttachment{
			ID:       a.ID,
			Filename: a.Filename,
			MimeType: a.MimeType,
			Size:     a.Size,
			URL:      a.URL,
		})
	}
	for _, r := range m.Reactions {
		w.Reactions = append(w.Reactions, WireReaction{
			UserID:    r.UserID,
			Emoji:     r.Emoji,
			CreatedAt: nsToMillis(r.CreatedTS),
		})
	}
	for _, rs := range m.ReadStatus {
		w.ReadStatus = append(w.ReadStatus, WireReceipt{
			UserID: rs.UserID,
			ReadAt: nsToMillis(rs.ReadTS),
		})
	}
	return w
}

// MessageFromWire maps a wire DTO back onto the internal message type.
func MessageFromWire(w WireMessage) models.Message {
	m := models.Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		SenderID:       w.Sender,
		Content:        w.Content,
		Format:         models.ContentFormat(w.Format),
		CreatedTS:      millisToNS(w.SentAt),
		EditedTS:       millisToNS(w.EditedAt),
		Deleted:        w.Deleted,
	}
	for _, a := range w.Attachments {
		m.Attachments = append(m.Attachments, models.Attachment{
			ID:       a.ID,
			Filename: a.Filename,
			MimeType: a.MimeType,
			Size:     a.Size,
			URL:      a.URL,
		})
	}
	for _, r := range w.Reactions {
		m.Reactions = append(m.Reactions, models.Reaction{
			UserID:    r.UserID,
			Emoji:     r.Emoji,
			CreatedTS: millisToNS(r.CreatedAt),
		})
	}
	for _, rs := range w.ReadStatus {
		m.ReadStatus = append(m.ReadStatus, models.ReadReceipt{
			UserID: rs.UserID,
			ReadTS: millisToNS(rs.ReadAt),
		})
	}
	return m
}

// AttachmentsFromWire maps wire attachments onto the internal type.
func AttachmentsFromWire(ws []WireAttachment) []models.Attachment {
	if len(ws) == 0 {
		return nil
	}
	out := make([]models.Attachment, 0, len(ws))
	for _, a := range ws {
		out = append(out, models.Attachment{
			ID:       a.ID,
			Filename: a.Filename,
			MimeType: a.MimeType,
			Size:     a.Size,
			URL:      a.URL,
		})
	}
	return out
}

// ReactionsToWire maps the internal reaction set onto the wire shape.
func ReactionsToWire(rs []models.Reaction) []WireReaction {
	out := make([]WireReaction, 0, len(rs))
	for _, r := range rs {
		out = append(out, WireReaction{
			UserID:    r.UserID,
			Emoji:     r.Emoji,
			CreatedAt: nsToMillis(r.CreatedTS),
		})
	}
	return out
}

// ConversationToWire maps the internal conversation onto its wire DTO.
func ConversationToWire(c models.Conversation) WireConversation {
	return WireConversation{
		ID:            c.ID,
		ApplicationID: c.ApplicationID,
		PetID:         c.PetID,
		RescueID:      c.RescueID,
		Status:        string(c.Status),
		CreatedAt:     nsToMillis(c.CreatedTS),
		UpdatedAt:     nsToMillis(c.UpdatedTS),
	}
}
