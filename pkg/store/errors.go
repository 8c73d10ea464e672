package store

import "errors"

// Sentinel errors for the conversation store. Callers match with
// errors.Is; the API and broadcast layers map them onto wire error kinds.
var (
	ErrNotFound             = errors.New("not found")
	ErrConversationClosed   = errors.New("conversation closed")
	ErrNotSender            = errors.New("only the original sender may modify a message")
	ErrNotParticipant       = errors.New("not a participant of the conversation")
	ErrInvalidParticipants  = errors.New("a conversation requires at least two distinct participants")
	ErrDuplicateParticipant = errors.New("duplicate participant")
	ErrContentTooLong       = errors.New("content length out of bounds")
	ErrTooManyAttachments   = errors.New("attachment policy violated")
	ErrInvalidFormat        = errors.New("invalid content format")
)
