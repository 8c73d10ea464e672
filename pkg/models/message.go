package models

// ContentFormat describes how message content should be rendered.
type ContentFormat string

const (
	FormatPlain ContentFormat = "plain"
	FormatRich  ContentFormat = "rich"
)

// Attachment is a reference to a file held by the external file-storage
// collaborator. Only metadata is stored here; the bytes live elsewhere.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// Reaction is a (user, emoji) tag on a message. The pair is unique: adding
// the same reaction twice replaces the existing entry rather than
// duplicating it.
type Reaction struct {
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	CreatedTS int64  `json:"created_ts"`
}

// ReadReceipt marks a message as seen by a user. One entry per user;
// marking read again replaces the timestamp (last-write-wins).
type ReadReceipt struct {
	UserID string `json:"user_id"`
	ReadTS int64  `json:"read_ts"`
}

// Message belongs to exactly one conversation. CreatedTS is assigned once
// and is the canonical ordering key within the conversation. Deletion is a
// soft tombstone so ordering and counts stay stable for other participants.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Content        string        `json:"content"`
	Format         ContentFormat `json:"format,omitempty"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Reactions      []Reaction    `json:"reactions,omitempty"`
	ReadStatus     []ReadReceipt `json:"read_status,omitempty"`
	CreatedTS      int64         `json:"created_ts"`
	// EditedTS is non-zero once the sender has edited the content.
	EditedTS int64 `json:"edited_ts,omitempty"`
	Deleted  bool  `json:"deleted,omitempty"`
}

// AddReaction applies remove-then-add semantics: any existing reaction from
// userID with the same emoji is replaced, never duplicated.
func (m *Message) AddReaction(userID, emoji string, ts int64) {
	m.RemoveReaction(userID, emoji)
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji, CreatedTS: ts})
}

// RemoveReaction drops the (userID, emoji) reaction if present.
func (m *Message) RemoveReaction(userID, emoji string) {
	out := m.Reactions[:0]
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			continue
		}
		out = append(out, r)
	}
	m.Reactions = out
}

// HasReaction reports whether userID has reacted with emoji.
func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// MarkRead stamps a read receipt for userID, replacing any prior entry.
func (m *Message) MarkRead(userID string, ts int64) {
	out := m.ReadStatus[:0]
	for _, r := range m.ReadStatus {
		if r.UserID == userID {
			continue
		}
		out = append(out, r)
	}
	m.ReadStatus = append(out, ReadReceipt{UserID: userID, ReadTS: ts})
}

// ReadBy reports whether userID has a read receipt on the message.
func (m *Message) ReadBy(userID string) bool {
	for _, r := range m.ReadStatus {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
