package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/models"
	"pawtalk/pkg/telemetry"
	"pawtalk/pkg/validation"
)

// AppendMessage appends a message to a conversation. The sender must be an
// active participant and the conversation must not be closed. On success
// the search index refresh is enqueued fire-and-forget.
func (s *Store) AppendMessage(convID, senderID, content string, format models.ContentFormat, atts []models.Attachment) (models.Message, error) {
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.GetConversation(convID)
	if err != nil {
		return models.Message{}, err
	}
	if conv.Closed() {
		return models.Message{}, ErrConversationClosed
	}
	if !s.IsParticipant(convID, senderID) {
		return models.Message{}, ErrNotParticipant
	}
	if err := validation.ValidateContent(content); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrContentTooLong, err)
	}
	if err := validation.ValidateFormat(format); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := validation.ValidateAttachments(atts); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrTooManyAttachments, err)
	}
	if format == "" {
		format = models.FormatPlain
	}

	now := time.Now().UTC().UnixNano()
	m := models.Message{
		ID:             "msg_" + uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Format:         format,
		Attachments:    atts,
		CreatedTS:      now,
	}
	if err := s.writeNewMessage(m); err != nil {
		return models.Message{}, err
	}
	s.touchConversation(convID, now)
	telemetry.MessagesCreated.Inc()
	logger.Log.Info("message_saved", zap.String("conv", convID), zap.String("msg_id", m.ID))
	if s.indexer != nil {
		if b, err := json.Marshal(m); err == nil {
			s.indexer.EnqueueIndex(convID, m.ID, b)
		}
	}
	return m, nil
}

// writeNewMessage writes the primary row, the id lookup key and the first
// version entry. Caller holds the conversation lock.
func (s *Store) writeNewMessage(m models.Message) error {
	seq := s.nextSeq()
	key := MsgKey(m.ConversationID, m.CreatedTS, seq)
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.set([]byte(key), data); err != nil {
		logger.Log.Error("save_message_failed", zap.String("conv", m.ConversationID), zap.String("key", key), zap.Error(err))
		return err
	}
	if err := s.set(msgIDKey(m.ID), []byte(key)); err != nil {
		return err
	}
	return s.set([]byte(VersionKey(m.ID, m.CreatedTS, seq)), data)
}

// rewriteMessage overwrites the primary row in place (CreatedTS keeps the
// key stable) and appends a version entry. Caller holds the conversation
// lock.
func (s *Store) rewriteMessage(m models.Message) error {
	keyB, err := s.get(msgIDKey(m.ID))
	if err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.set(keyB, data); err != nil {
		return err
	}
	return s.set([]byte(VersionKey(m.ID, time.Now().UTC().UnixNano(), s.nextSeq())), data)
}

// GetMessage returns the current version of a message by id.
func (s *Store) GetMessage(msgID string) (models.Message, error) {
	keyB, err := s.get(msgIDKey(msgID))
	if err != nil {
		return models.Message{}, err
	}
	v, err := s.get(keyB)
	if err != nil {
		return models.Message{}, err
	}
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return models.Message{}, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// ListMessageVersions returns all stored versions of a message in
// chronological order.
func (s *Store) ListMessageVersions(msgID string) ([]models.Message, error) {
	prefix := []byte("version:msg:" + msgID + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// EditMessage replaces message content. Only the original sender may edit;
// the tombstone and closed-conversation rules still apply. Sets the edited
// marker and re-enqueues the search projection.
func (s *Store) EditMessage(msgID, senderID, newContent string) (models.Message, error) {
	m, err := s.GetMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}

	mu := s.lockFor(m.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	// re-read under the lock
	m, err = s.GetMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	if m.Deleted {
		return models.Message{}, ErrNotFound
	}
	conv, err := s.GetConversation(m.ConversationID)
	if err != nil {
		return models.Message{}, err
	}
	if conv.Closed() {
		return models.Message{}, ErrConversationClosed
	}
	if m.SenderID != senderID {
		return models.Message{}, ErrNotSender
	}
	if err := validation.ValidateContent(newContent); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrContentTooLong, err)
	}

	now := time.Now().UTC().UnixNano()
	m.Content = newContent
	m.EditedTS = now
	if err := s.rewriteMessage(m); err != nil {
		return models.Message{}, err
	}
	s.touchConversation(m.ConversationID, now)
	logger.Log.Info("message_edited", zap.String("conv", m.ConversationID), zap.String("msg_id", m.ID))
	if s.indexer != nil {
		if b, err := json.Marshal(m); err == nil {
			s.indexer.EnqueueIndex(m.ConversationID, m.ID, b)
		}
	}
	return m, nil
}

// SoftDeleteMessage tombstones a message. Ordering and counts stay stable
// for other participants; the search projection is removed.
func (s *Store) SoftDeleteMessage(msgID, senderID string) (models.Message, error) {
	m, err := s.GetMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}

	mu := s.lockFor(m.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	m, err = s.GetMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	if m.Deleted {
		return m, nil
	}
	conv, err := s.GetConversation(m.ConversationID)
	if err != nil {
		return models.Message{}, err
	}
	if conv.Closed() {
		return models.Message{}, ErrConversationClosed
	}
	if m.SenderID != senderID {
		return models.Message{}, ErrNotSender
	}

	m.Deleted = true
	m.Content = ""
	m.Attachments = nil
	if err := s.rewriteMessage(m); err != nil {
		return models.Message{}, err
	}
	logger.Log.Info("message_soft_deleted", zap.String("conv", m.ConversationID), zap.String("msg_id", m.ID))
	if s.indexer != nil {
		s.indexer.EnqueueRemove(m.ID)
	}
	return m, nil
}

// AddReaction adds a (user, emoji) reaction with remove-then-add
// semantics: at most one entry per pair regardless of repetition.
func (s *Store) AddReaction(msgID, userID, emoji string) (models.Message, error) {
	return s.mutateReactions(msgID, userID, func(m *models.Message, ts int64) {
		m.AddReaction(userID, emoji, ts)
	})
}

// RemoveReaction removes the (user, emoji) reaction; a no-op when absent.
func (s *Store) RemoveReaction(msgID, userID, emoji string) (models.Message, error) {
	return s.mutateReactions(msgID, userID, func(m *models.Message, _ int64) {
		m.RemoveReaction(userID, emoji)
	})
}

func (s *Store) mutateReactions(msgID, userID string, apply func(*models.Message, int64)) (models.Message, error) {
	m, err := s.GetMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}

	mu := s.lockFor(m.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	m, err = s.GetMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	if m.Deleted {
		return models.Message{}, ErrNotFound
	}
	conv, err := s.GetConversation(m.ConversationID)
	if err != nil {
		return models.Message{}, err
	}
	if conv.Closed() {
		return models.Message{}, ErrConversationClosed
	}
	if !s.IsParticipant(m.ConversationID, userID) {
		return models.Message{}, ErrNotParticipant
	}

	apply(&m, time.Now().UTC().UnixNano())
	if err := s.rewriteMessage(m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// MarkRead advances the participant's read cursor. The cursor is
// monotonic: it never decreases even when upToMessageID points at an older
// message. When upToMessageID is non-empty, read receipts are stamped on
// every message up to and including it, in conversation order.
func (s *Store) MarkRead(convID, userID, upToMessageID string) error {
	mu := s.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.GetParticipant(convID, userID)
	if err != nil {
		return err
	}
	if p.Removed {
		return ErrNotParticipant
	}

	now := time.Now().UTC().UnixNano()
	if now > p.LastReadAt {
		p.LastReadAt = now
		if err := s.writeParticipant(p); err != nil {
			return err
		}
	}
	if upToMessageID == "" {
		return nil
	}

	upTo, err := s.GetMessage(upToMessageID)
	if err != nil {
		return err
	}
	if upTo.ConversationID != convID {
		return ErrNotFound
	}

	prefix := msgPrefix(convID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.CreatedTS > upTo.CreatedTS {
			break
		}
		if m.ReadBy(userID) {
			continue
		}
		m.MarkRead(userID, now)
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		if err := s.db.Set(append([]byte(nil), iter.Key()...), data, pebble.Sync); err != nil {
			return err
		}
	}
	return iter.Error()
}

// MessagePage is one backward-pagination page in descending creation-time
// order.
type MessagePage struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// ListMessages returns up to limit messages created strictly before the
// `before` timestamp (0 means newest), newest first.
func (s *Store) ListMessages(convID string, before int64, limit int) (MessagePage, error) {
	if _, err := s.GetConversation(convID); err != nil {
		return MessagePage{}, err
	}
	if limit <= 0 {
		limit = 50
	}

	prefix := msgPrefix(convID)
	var upper []byte
	if before > 0 {
		upper = []byte(fmt.Sprintf("conv:%s:msg:%020d", convID, before))
	} else {
		// one past the prefix range
		upper = append(append([]byte(nil), prefix...), 0xff)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return MessagePage{}, err
	}
	defer iter.Close()

	page := MessagePage{}
	for ok := iter.SeekLT(upper); ok; ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if len(page.Messages) == limit {
			page.HasMore = true
			break
		}
		page.Messages = append(page.Messages, m)
	}
	return page, iter.Error()
}

// IsNotFound reports whether err is the store's not-found sentinel.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
