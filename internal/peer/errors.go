package peer

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("peer manager closed")
	ErrNotController    = errors.New("not streaming: not the controller")
	ErrUnknownPeer      = errors.New("no connection for peer")
	ErrUnexpectedSignal = errors.New("unexpected signal type")
	ErrCaptureFailed    = errors.New("capture failed")
)

// Error records the operation and remote peer of a failed negotiation step.
type Error struct {
	Op   string
	Peer string
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}
