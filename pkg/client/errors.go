package client

import "errors"

var (
	// ErrNotConnected is returned when an event is sent with no live
	// session. Message sends never return this: they queue instead.
	ErrNotConnected = errors.New("client: not connected")

	// ErrNoSearcher is returned by Search when no searcher was wired.
	ErrNoSearcher = errors.New("client: no searcher configured")

	// ErrSearchSuperseded is returned when a search response arrived
	// after a newer search was issued; the stale page is not cached.
	ErrSearchSuperseded = errors.New("client: search superseded")
)
