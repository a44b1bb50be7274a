// Package transport defines the message transport consumed by the session multiplexer.
//
// Ownership boundary:
// - transport/handler/handshaker contracts
// - in-memory pipe used by tests and local peers
//
// Concrete handshakes live in transport/rtc (WebRTC data channel) and transport/wsock
// (WebSocket relay).
package transport

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("transport: closed")

// Transport carries whole binary messages, reliably and in order.
type Transport interface {
	Send(p []byte) error
	Close() error
}

// Handler receives inbound messages. Implementations of Transport never call
// HandleMessage concurrently with itself, and call HandleClose at most once.
type Handler interface {
	HandleMessage(p []byte)
	HandleClose(err error)
}

// Handshaker establishes a live transport that delivers to h.
type Handshaker interface {
	Handshake(ctx context.Context, h Handler) (Transport, error)
}

// HandshakeFunc adapts a function into a Handshaker.
type HandshakeFunc func(ctx context.Context, h Handler) (Transport, error)

func (f HandshakeFunc) Handshake(ctx context.Context, h Handler) (Transport, error) {
	return f(ctx, h)
}

// HandlerFuncs adapts a pair of functions into a Handler. Nil fields are ignored.
type HandlerFuncs struct {
	OnMessage func(p []byte)
	OnClose   func(err error)
}

func (h HandlerFuncs) HandleMessage(p []byte) {
	if h.OnMessage != nil {
		h.OnMessage(p)
	}
}

func (h HandlerFuncs) HandleClose(err error) {
	if h.OnClose != nil {
		h.OnClose(err)
	}
}
