package amqp

import (
	"fmt"

	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/pkg/errors"
)

// ErrWouldBlock is returned by Sender.Send when the link has no credit
// left or the session's remote incoming window is exhausted. It is not
// fatal to the connection, session, or link: Send succeeds again once a
// later OnBytesReceived call has delivered a flow granting more credit or
// window. No call in this package ever blocks internally; ErrWouldBlock is
// how backpressure is surfaced instead. There is no outbound queue: Flow,
// attach, and the other outbound calls write straight to the Transport
// and never return ErrWouldBlock.
var ErrWouldBlock = errors.New("amqp: would block")

// ConnError is returned when a Conn has encountered a fatal error and
// has closed, or is closing. It carries the encoding.Error the remote
// sent (via its own Close performative), if any.
type ConnError struct {
	RemoteErr *encoding.Error
	inner     error
}

func (e *ConnError) Error() string {
	if e.RemoteErr != nil {
		return fmt.Sprintf("amqp: connection closed: %s", e.RemoteErr)
	}
	if e.inner != nil {
		return fmt.Sprintf("amqp: connection closed: %s", e.inner)
	}
	return "amqp: connection closed"
}

func (e *ConnError) Unwrap() error { return e.inner }

// SessionError is returned when a Session has encountered a fatal error
// and has ended, or is ending.
type SessionError struct {
	RemoteErr *encoding.Error
	inner     error
}

func (e *SessionError) Error() string {
	if e.RemoteErr != nil {
		return fmt.Sprintf("amqp: session ended: %s", e.RemoteErr)
	}
	if e.inner != nil {
		return fmt.Sprintf("amqp: session ended: %s", e.inner)
	}
	return "amqp: session ended"
}

func (e *SessionError) Unwrap() error { return e.inner }

// LinkError is returned when a link has been detached, either by the
// caller (RemoteErr and inner both nil) or by the remote peer.
type LinkError struct {
	RemoteErr *encoding.Error
	inner     error
}

func (e *LinkError) Error() string {
	if e.RemoteErr != nil {
		return fmt.Sprintf("amqp: link detached: %s", e.RemoteErr)
	}
	if e.inner != nil {
		return fmt.Sprintf("amqp: link detached: %s", e.inner)
	}
	return "amqp: link closed"
}

func (e *LinkError) Unwrap() error { return e.inner }
