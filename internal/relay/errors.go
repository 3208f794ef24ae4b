package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEvent marks an inbound frame that cannot be relayed. The
	// event is dropped and the connection stays open.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrStorage marks a failed snapshot write.
	ErrStorage = errors.New("storage error")

	ErrUnknownEvent    = fmt.Errorf("%w: unknown event", ErrMalformedEvent)
	ErrNotJoined       = fmt.Errorf("%w: connection has not joined a session", ErrMalformedEvent)
	ErrSessionMismatch = fmt.Errorf("%w: event targets a different session", ErrMalformedEvent)
)

// errorCode maps an error to the short code sent back to the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrNotJoined):
		return "not_joined"
	case errors.Is(err, ErrSessionMismatch):
		return "session_mismatch"
	case errors.Is(err, ErrMalformedEvent):
		return "malformed_event"
	default:
		return "internal"
	}
}
