package relay

import "errors"

// ErrSinkClosed is returned by a sink once the client has gone away.
// The relay treats it as a normal early exit, never as a failure.
var ErrSinkClosed = errors.New("output sink closed")

// Sink is the client-facing push channel. Implementations encode each
// call as one wire frame. All methods must be safe to call from the
// single relay goroutine driving the request.
type Sink interface {
	// SendContent pushes one content delta.
	SendContent(text string) error
	// SendError pushes a terminal error frame.
	SendError(message string) error
	// SendDone pushes the terminal sentinel.
	SendDone() error
}
