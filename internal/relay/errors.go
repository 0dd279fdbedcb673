package relay

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation requires a session
	// and the connection has none. Surfaced to the acting connection only.
	ErrNotAuthenticated = errors.New("connection is not authenticated")

	// ErrAlreadyAuthenticated is returned when a connection that already
	// holds a session attempts to register another one.
	ErrAlreadyAuthenticated = errors.New("connection already holds a session")

	// ErrMalformedEvent is returned when an event payload is missing required
	// fields. The event is dropped; only the sender is told.
	ErrMalformedEvent = errors.New("malformed event payload")

	// ErrUnknownEvent is returned for event names the relay does not handle.
	ErrUnknownEvent = errors.New("unknown event")
)
