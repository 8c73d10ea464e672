package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/models"
	"pawtalk/pkg/telemetry"
)

// Origin carries the optional links recorded when a conversation is
// created from an adoption application or a pet listing.
type Origin struct {
	ApplicationID string
	PetID         string
	RescueID      string
}

// NewParticipant is the input shape for conversation creation.
type NewParticipant struct {
	UserID string
	Role   models.ParticipantRole
}

// CreateConversation creates a conversation with its initial participants.
// Fails with ErrInvalidParticipants for fewer than two distinct people and
// ErrDuplicateParticipant when the same person is listed twice.
func (s *Store) CreateConversation(parts []NewParticipant, origin Origin) (models.Conversation, error) {
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if p.UserID == "" {
			return models.Conversation{}, ErrInvalidParticipants
		}
		if _, dup := seen[p.UserID]; dup {
			return models.Conversation{}, fmt.Errorf("%w: %s", ErrDuplicateParticipant, p.UserID)
		}
		seen[p.UserID] = struct{}{}
	}
	if len(seen) < 2 {
		return models.Conversation{}, ErrInvalidParticipants
	}

	now := time.Now().UTC().UnixNano()
	conv := models.Conversation{
		ID:            "conv_" + uuid.NewString(),
		ApplicationID: origin.ApplicationID,
		PetID:         origin.PetID,
		RescueID:      origin.RescueID,
		Status:        models.ConversationActive,
		CreatedTS:     now,
		UpdatedTS:     now,
	}

	b, err := json.Marshal(conv)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.set(convMetaKey(conv.ID), b); err != nil {
		logger.Log.Error("save_conversation_failed", zap.String("conv", conv.ID), zap.Error(err))
		return models.Conversation{}, err
	}
	for _, p := range parts {
		pt := models.Participant{
			ConversationID: conv.ID,
			UserID:         p.UserID,
			Role:           p.Role,
			JoinedTS:       now,
		}
		if err := s.writeParticipant(pt); err != nil {
			return models.Conversation{}, err
		}
	}
	telemetry.ConversationsCreated.Inc()
	logger.Log.Info("conversation_created", zap.String("conv", conv.ID), zap.Int("participants", len(parts)))
	return conv, nil
}

// GetConversation returns the conversation metadata.
func (s *Store) GetConversation(convID string) (models.Conversation, error) {
	v, err := s.get(convMetaKey(convID))
	if err != nil {
		return models.Conversation{}, err
	}
	var conv models.Conversation
	if err := json.Unmarshal(v, &conv); err != nil {
		return models.Conversation{}, fmt.Errorf("invalid stored conversation: %w", err)
	}
	return conv, nil
}

// ConversationSummary pairs a conversation with the caller's unread count
// and the timestamp of the latest message, for inbox-style listings.
type ConversationSummary struct {
	Conversation models.Conversation `json:"conversation"`
	UnreadCount  int                 `json:"unread_count"`
	LastMessage  *models.Message     `json:"last_message,omitempty"`
}

// ListConversations returns all conversations the user participates in,
// most recently updated first.
func (s *Store) ListConversations(userID string) ([]ConversationSummary, error) {
	prefix := userConvPrefix(userID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []ConversationSummary
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		convID := string(iter.Key()[len(prefix):])
		conv, err := s.GetConversation(convID)
		if err != nil {
			continue
		}
		part, err := s.GetParticipant(convID, userID)
		if err != nil || part.Removed {
			continue
		}
		sum := ConversationSummary{Conversation: conv}
		if last, unread, err := s.lastAndUnread(convID, part.LastReadAt); err == nil {
			sum.LastMessage = last
			sum.UnreadCount = unread
		}
		out = append(out, sum)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	// most recent activity first
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Conversation.UpdatedTS > out[j-1].Conversation.UpdatedTS; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// lastAndUnread scans a conversation's messages for the newest entry and
// the count of messages created after the user's read cursor.
func (s *Store) lastAndUnread(convID string, lastReadAt int64) (*models.Message, int, error) {
	prefix := msgPrefix(convID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	var last *models.Message
	unread := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.Deleted {
			continue
		}
		mm := m
		last = &mm
		if m.CreatedTS > lastReadAt {
			unread++
		}
	}
	return last, unread, iter.Error()
}

// AddParticipant adds a person to the conversation. Idempotent when the
// person is already an active participant; re-adding a soft-removed
// participant reactivates the membership.
func (s *Store) AddParticipant(convID, userID string, role models.ParticipantRole) error {
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.GetConversation(convID)
	if err != nil {
		return err
	}
	if conv.Closed() {
		return ErrConversationClosed
	}
	if p, err := s.GetParticipant(convID, userID); err == nil {
		if !p.Removed {
			return nil
		}
		p.Removed = false
		p.Role = role
		return s.writeParticipant(p)
	}
	return s.writeParticipant(models.Participant{
		ConversationID: convID,
		UserID:         userID,
		Role:           role,
		JoinedTS:       time.Now().UTC().UnixNano(),
	})
}

// RemoveParticipant soft-removes a person, preserving history integrity.
// The participant row survives so read cursors and receipts stay valid.
func (s *Store) RemoveParticipant(convID, userID string) error {
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.GetParticipant(convID, userID)
	if err != nil {
		return err
	}
	p.Removed = true
	return s.writeParticipant(p)
}

// GetParticipant returns the membership record for (convID, userID).
func (s *Store) GetParticipant(convID, userID string) (models.Participant, error) {
	v, err := s.get(partKey(convID, userID))
	if err != nil {
		return models.Participant{}, err
	}
	var p models.Participant
	if err := json.Unmarshal(v, &p); err != nil {
		return models.Participant{}, fmt.Errorf("invalid stored participant: %w", err)
	}
	return p, nil
}

// Participants lists all membership records of a conversation, including
// soft-removed ones.
func (s *Store) Participants(convID string) ([]models.Participant, error) {
	prefix := []byte("conv:" + convID + ":part:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []models.Participant
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var p models.Participant
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, iter.Error()
}

// IsParticipant reports whether userID is an active (not soft-removed)
// participant of the conversation.
func (s *Store) IsParticipant(convID, userID string) bool {
	p, err := s.GetParticipant(convID, userID)
	return err == nil && !p.Removed
}

// ArchiveConversation moves an active conversation to archived. The
// transition is one-way.
func (s *Store) ArchiveConversation(convID string) error {
	return s.transition(convID, models.ConversationArchived)
}

// CloseConversation closes the conversation; closed is terminal for
// further messages. Allowed from active or archived.
func (s *Store) CloseConversation(convID string) error {
	return s.transition(convID, models.ConversationClosed)
}

func (s *Store) transition(convID string, to models.ConversationStatus) error {
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.GetConversation(convID)
	if err != nil {
		return err
	}
	switch {
	case conv.Status == to:
		return nil
	case conv.Status == models.ConversationClosed:
		// closed is terminal
		return ErrConversationClosed
	}
	conv.Status = to
	conv.UpdatedTS = time.Now().UTC().UnixNano()
	return s.writeConversation(conv)
}

func (s *Store) writeConversation(conv models.Conversation) error {
	b, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return s.set(convMetaKey(conv.ID), b)
}

func (s *Store) writeParticipant(p models.Participant) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	if err := s.set(partKey(p.ConversationID, p.UserID), b); err != nil {
		return err
	}
	return s.set(userConvKey(p.UserID, p.ConversationID), []byte(p.ConversationID))
}

// touchConversation bumps UpdatedTS after message activity. Caller holds
// the conversation lock.
func (s *Store) touchConversation(convID string, ts int64) {
	conv, err := s.GetConversation(convID)
	if err != nil {
		return
	}
	conv.UpdatedTS = ts
	_ = s.writeConversation(conv)
}
