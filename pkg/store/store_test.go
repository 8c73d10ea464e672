package store

import (
	"errors"
	"testing"
	"time"

	"pawtalk/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestConversation(t *testing.T, s *Store) models.Conversation {
	t.Helper()
	conv, err := s.CreateConversation([]NewParticipant{
		{UserID: "adopter", Role: models.RoleUser},
		{UserID: "rescue", Role: models.RoleRescue},
	}, Origin{ApplicationID: "app-1", PetID: "pet-1", RescueID: "rescue-org"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return conv
}

func TestCreateConversation(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	got, err := s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.ApplicationID != "app-1" || got.Status != models.ConversationActive {
		t.Fatalf("unexpected conversation: %+v", got)
	}
	if !s.IsParticipant(conv.ID, "adopter") || !s.IsParticipant(conv.ID, "rescue") {
		t.Fatal("participants not registered")
	}
	if s.IsParticipant(conv.ID, "stranger") {
		t.Fatal("stranger should not be a participant")
	}
}

func TestCreateConversationRejectsBadParticipants(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateConversation([]NewParticipant{{UserID: "solo", Role: models.RoleUser}}, Origin{}); !errors.Is(err, ErrInvalidParticipants) {
		t.Fatalf("single participant: got %v, want ErrInvalidParticipants", err)
	}
	if _, err := s.CreateConversation([]NewParticipant{
		{UserID: "dup", Role: models.RoleUser},
		{UserID: "dup", Role: models.RoleRescue},
	}, Origin{}); !errors.Is(err, ErrDuplicateParticipant) {
		t.Fatalf("duplicate participant: got %v, want ErrDuplicateParticipant", err)
	}
}

func TestAppendAndListMessages(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	var ids []string
	for _, text := range []string{"hello", "is Luna still available", "yes she is"} {
		m, err := s.AppendMessage(conv.ID, "adopter", text, models.FormatPlain, nil)
		if err != nil {
			t.Fatalf("AppendMessage(%q): %v", text, err)
		}
		ids = append(ids, m.ID)
	}

	page, err := s.ListMessages(conv.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(page.Messages) != 3 || page.HasMore {
		t.Fatalf("got %d messages, has_more=%v", len(page.Messages), page.HasMore)
	}
	// newest first
	if page.Messages[0].ID != ids[2] || page.Messages[2].ID != ids[0] {
		t.Fatalf("wrong order: %v", []string{page.Messages[0].ID, page.Messages[1].ID, page.Messages[2].ID})
	}
}

func TestListMessagesPagination(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	for i := 0; i < 5; i++ {
		if _, err := s.AppendMessage(conv.ID, "adopter", "msg", models.FormatPlain, nil); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	first, err := s.ListMessages(conv.ID, 0, 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(first.Messages) != 2 || !first.HasMore {
		t.Fatalf("first page: %d messages, has_more=%v", len(first.Messages), first.HasMore)
	}

	before := first.Messages[len(first.Messages)-1].CreatedTS
	second, err := s.ListMessages(conv.ID, before, 10)
	if err != nil {
		t.Fatalf("ListMessages page 2: %v", err)
	}
	if len(second.Messages) != 3 || second.HasMore {
		t.Fatalf("second page: %d messages, has_more=%v", len(second.Messages), second.HasMore)
	}
	// strictly before: no overlap with the first page
	for _, m := range second.Messages {
		if m.ID == first.Messages[0].ID || m.ID == first.Messages[1].ID {
			t.Fatalf("page overlap on %s", m.ID)
		}
	}
}

func TestAppendMessageValidation(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	long := make([]rune, 10001)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := s.AppendMessage(conv.ID, "adopter", string(long), models.FormatPlain, nil); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("long content: got %v, want ErrContentTooLong", err)
	}
	if _, err := s.AppendMessage(conv.ID, "stranger", "hi", models.FormatPlain, nil); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger send: got %v, want ErrNotParticipant", err)
	}
}

func TestEditMessage(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	m, err := s.AppendMessage(conv.ID, "adopter", "orignal", models.FormatPlain, nil)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if _, err := s.EditMessage(m.ID, "rescue", "hijacked"); !errors.Is(err, ErrNotSender) {
		t.Fatalf("non-sender edit: got %v, want ErrNotSender", err)
	}

	edited, err := s.EditMessage(m.ID, "adopter", "original")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if edited.Content != "original" || edited.EditedTS == 0 {
		t.Fatalf("unexpected edit result: %+v", edited)
	}
	if edited.CreatedTS != m.CreatedTS {
		t.Fatal("edit must not move the message in history")
	}

	versions, err := s.ListMessageVersions(m.ID)
	if err != nil {
		t.Fatalf("ListMessageVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(versions))
	}
	if versions[0].Content != "orignal" {
		t.Fatalf("first version content = %q", versions[0].Content)
	}
}

func TestSoftDelete(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	m, err := s.AppendMessage(conv.ID, "adopter", "oops", models.FormatPlain, nil)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if _, err := s.SoftDeleteMessage(m.ID, "rescue"); !errors.Is(err, ErrNotSender) {
		t.Fatalf("non-sender delete: got %v, want ErrNotSender", err)
	}

	del, err := s.SoftDeleteMessage(m.ID, "adopter")
	if err != nil {
		t.Fatalf("SoftDeleteMessage: %v", err)
	}
	if !del.Deleted || del.Content != "" {
		t.Fatalf("tombstone should be cleared: %+v", del)
	}

	// idempotent
	if _, err := s.SoftDeleteMessage(m.ID, "adopter"); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	// tombstone keeps its place in history
	page, err := s.ListMessages(conv.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(page.Messages) != 1 || !page.Messages[0].Deleted {
		t.Fatalf("tombstone missing from history: %+v", page.Messages)
	}

	// editing a deleted message reports not found
	if _, err := s.EditMessage(m.ID, "adopter", "resurrect"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("edit deleted: got %v, want ErrNotFound", err)
	}
}

func TestReactions(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	m, err := s.AppendMessage(conv.ID, "adopter", "look at her", models.FormatPlain, nil)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if _, err := s.AddReaction(m.ID, "stranger", "👍"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger reaction: got %v, want ErrNotParticipant", err)
	}

	if _, err := s.AddReaction(m.ID, "rescue", "👍"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}
	// a second emoji from the same user stacks, one entry per (user, emoji)
	got, err := s.AddReaction(m.ID, "rescue", "❤️")
	if err != nil {
		t.Fatalf("AddReaction again: %v", err)
	}
	if len(got.Reactions) != 2 {
		t.Fatalf("want 👍 and ❤️ to coexist, got %+v", got.Reactions)
	}

	// repeating the same pair is a no-op
	got, err = s.AddReaction(m.ID, "rescue", "❤️")
	if err != nil {
		t.Fatalf("repeat AddReaction: %v", err)
	}
	if len(got.Reactions) != 2 {
		t.Fatalf("duplicate pair must not stack: %+v", got.Reactions)
	}

	got, err = s.RemoveReaction(m.ID, "rescue", "❤️")
	if err != nil {
		t.Fatalf("RemoveReaction: %v", err)
	}
	if len(got.Reactions) != 1 || got.Reactions[0].Emoji != "👍" {
		t.Fatalf("👍 should survive removing ❤️, got %+v", got.Reactions)
	}
}

func TestMarkReadMonotonic(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	m1, _ := s.AppendMessage(conv.ID, "adopter", "one", models.FormatPlain, nil)
	m2, _ := s.AppendMessage(conv.ID, "adopter", "two", models.FormatPlain, nil)

	if err := s.MarkRead(conv.ID, "rescue", m2.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	p, err := s.GetParticipant(conv.ID, "rescue")
	if err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}
	cursor := p.LastReadAt
	if cursor == 0 {
		t.Fatal("cursor not advanced")
	}

	// a re-read of an older message must not move the cursor backwards
	time.Sleep(2 * time.Millisecond)
	if err := s.MarkRead(conv.ID, "rescue", m1.ID); err != nil {
		t.Fatalf("MarkRead older: %v", err)
	}
	p, _ = s.GetParticipant(conv.ID, "rescue")
	if p.LastReadAt < cursor {
		t.Fatalf("cursor moved backwards: %d -> %d", cursor, p.LastReadAt)
	}

	// receipts stamped on both messages
	g1, _ := s.GetMessage(m1.ID)
	g2, _ := s.GetMessage(m2.ID)
	if len(g1.ReadStatus) != 1 || len(g2.ReadStatus) != 1 {
		t.Fatalf("receipts: m1=%d m2=%d", len(g1.ReadStatus), len(g2.ReadStatus))
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	if err := s.ArchiveConversation(conv.ID); err != nil {
		t.Fatalf("ArchiveConversation: %v", err)
	}
	// archived conversations still accept messages
	if _, err := s.AppendMessage(conv.ID, "adopter", "still here", models.FormatPlain, nil); err != nil {
		t.Fatalf("append to archived: %v", err)
	}

	if err := s.CloseConversation(conv.ID); err != nil {
		t.Fatalf("CloseConversation: %v", err)
	}
	if _, err := s.AppendMessage(conv.ID, "adopter", "too late", models.FormatPlain, nil); !errors.Is(err, ErrConversationClosed) {
		t.Fatalf("append to closed: got %v, want ErrConversationClosed", err)
	}
	// closed is terminal
	if err := s.ArchiveConversation(conv.ID); !errors.Is(err, ErrConversationClosed) {
		t.Fatalf("reopen closed: got %v, want ErrConversationClosed", err)
	}
}

func TestParticipantManagement(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	if err := s.AddParticipant(conv.ID, "vet", models.RoleUser); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	// idempotent
	if err := s.AddParticipant(conv.ID, "vet", models.RoleUser); err != nil {
		t.Fatalf("AddParticipant twice: %v", err)
	}

	if err := s.RemoveParticipant(conv.ID, "vet"); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}
	if s.IsParticipant(conv.ID, "vet") {
		t.Fatal("removed participant still active")
	}

	// re-adding reactivates
	if err := s.AddParticipant(conv.ID, "vet", models.RoleUser); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if !s.IsParticipant(conv.ID, "vet") {
		t.Fatal("re-added participant not active")
	}
}

func TestListConversations(t *testing.T) {
	s := newTestStore(t)
	c1 := newTestConversation(t, s)
	time.Sleep(2 * time.Millisecond)
	c2, err := s.CreateConversation([]NewParticipant{
		{UserID: "adopter", Role: models.RoleUser},
		{UserID: "rescue2", Role: models.RoleRescue},
	}, Origin{PetID: "pet-2"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	// activity in c1 moves it back to the top
	time.Sleep(2 * time.Millisecond)
	if _, err := s.AppendMessage(c1.ID, "rescue", "any update", models.FormatPlain, nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	sums, err := s.ListConversations("adopter")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d conversations, want 2", len(sums))
	}
	if sums[0].Conversation.ID != c1.ID || sums[1].Conversation.ID != c2.ID {
		t.Fatalf("wrong order: %s then %s", sums[0].Conversation.ID, sums[1].Conversation.ID)
	}
	if sums[0].UnreadCount != 1 {
		t.Fatalf("unread for adopter in c1 = %d, want 1", sums[0].UnreadCount)
	}
	if sums[0].LastMessage == nil || sums[0].LastMessage.Content != "any update" {
		t.Fatalf("last message: %+v", sums[0].LastMessage)
	}
}

func TestPurgeTombstones(t *testing.T) {
	s := newTestStore(t)
	conv := newTestConversation(t, s)

	m, _ := s.AppendMessage(conv.ID, "adopter", "temp", models.FormatPlain, nil)
	keep, _ := s.AppendMessage(conv.ID, "adopter", "keep", models.FormatPlain, nil)
	if _, err := s.SoftDeleteMessage(m.ID, "adopter"); err != nil {
		t.Fatalf("SoftDeleteMessage: %v", err)
	}

	// dry run counts without deleting
	n, err := s.PurgeTombstones(time.Now().Add(time.Hour).UnixNano(), 100, true)
	if err != nil {
		t.Fatalf("PurgeTombstones dry: %v", err)
	}
	if n != 1 {
		t.Fatalf("dry run counted %d, want 1", n)
	}
	if _, err := s.GetMessage(m.ID); err != nil {
		t.Fatalf("dry run must not delete: %v", err)
	}

	n, err = s.PurgeTombstones(time.Now().Add(time.Hour).UnixNano(), 100, false)
	if err != nil {
		t.Fatalf("PurgeTombstones: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if _, err := s.GetMessage(m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("purged message still readable: %v", err)
	}
	if _, err := s.GetMessage(keep.ID); err != nil {
		t.Fatalf("live message lost: %v", err)
	}
}
