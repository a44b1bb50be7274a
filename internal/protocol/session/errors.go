package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/urigallery/internal/protocol/frame"
)

var (
	ErrNotConnected          = errors.New("session: not connected")
	ErrAlreadyConnected      = errors.New("session: already connected")
	ErrConnectInProgress     = errors.New("session: connect in progress")
	ErrConnection            = errors.New("session: connection failed")
	ErrProtocol              = errors.New("session: protocol error")
	ErrUnexpectedFrame       = errors.New("session: unexpected frame")
	ErrUnexpectedEndOfStream = errors.New("session: unexpected end of stream")
	ErrStreamConsumed        = errors.New("session: stream already consumed")
	ErrBodyOverrun           = errors.New("session: body exceeds declared length")
	ErrMethodRequired        = errors.New("session: method name required")
	ErrMethodTooLong         = errors.New("session: method name too long")
	ErrRemote                = errors.New("session: remote error")
)

// ConnectionError reports a failed Connect, wrapping the handshake or bootstrap cause.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connect %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// UnexpectedFrameError is a protocol violation where a specific frame kind was required.
type UnexpectedFrameError struct {
	RequestID uint32
	Want      frame.Kind
	Got       frame.Kind
}

func (e *UnexpectedFrameError) Error() string {
	return fmt.Sprintf("session: [req %d] expected %s, got %s", e.RequestID, e.Want, e.Got)
}

func (e *UnexpectedFrameError) Is(target error) bool {
	return target == ErrUnexpectedFrame || target == ErrProtocol
}

// RemoteError is an application failure reported by the peer: a non-zero status byte
// followed by an error body.
type RemoteError struct {
	Method  string
	Code    uint8
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("session: %s failed code=%d: %s", e.Method, e.Code, e.Message)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }
