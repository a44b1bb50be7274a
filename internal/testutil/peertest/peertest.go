// Package peertest provides a scripted gallery peer for session tests. It speaks the
// frame protocol over an in-memory transport pipe, reassembles requests and answers
// them with registered handlers.
package peertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	logs "github.com/danmuck/urigallery/internal/logging"
	"github.com/danmuck/urigallery/internal/protocol/codec"
	"github.com/danmuck/urigallery/internal/protocol/frame"
	"github.com/danmuck/urigallery/internal/protocol/session"
	"github.com/danmuck/urigallery/internal/transport"
)

// Request is one reassembled client request.
type Request struct {
	ID        uint32
	Method    string
	Payload   []byte
	HasLength bool
	Length    uint64
	Frames    [][]byte
}

func (r Request) Decode(v any) error {
	return codec.Default.Unmarshal(r.Payload, v)
}

// HandlerFunc answers one request through w. Handlers run on the peer's delivery
// goroutine; spawn a goroutine to reply later.
type HandlerFunc func(req Request, w *Writer)

type assembly struct {
	header frame.Header
	body   []byte
	frames [][]byte
}

// Peer is the remote end of a session.
type Peer struct {
	handshakes atomic.Int64
	heartbeats atomic.Int64

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	conn     transport.Transport
	partial  map[uint32]*assembly
	failNext []error
	requests chan Request
	closed   chan struct{}
}

// New returns a peer that answers getVersion with version.
func New(version int) *Peer {
	p := &Peer{
		handlers: make(map[string]HandlerFunc),
		partial:  make(map[uint32]*assembly),
		requests: make(chan Request, 256),
		closed:   make(chan struct{}, 16),
	}
	p.Handle(session.MethodGetVersion, func(_ Request, w *Writer) {
		_ = w.OK(session.VersionInfo{Version: version})
	})
	return p
}

// Handle registers h for method. A nil h leaves the method unanswered so the test can
// reply manually from Requests.
func (p *Peer) Handle(method string, h HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h == nil {
		delete(p.handlers, method)
		return
	}
	p.handlers[method] = h
}

// FailHandshakes makes the next len(errs) handshakes fail with the given errors.
func (p *Peer) FailHandshakes(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = append(p.failNext, errs...)
}

// Handshaker connects a client handler to this peer over a fresh in-memory pipe.
func (p *Peer) Handshaker() transport.Handshaker {
	return transport.HandshakeFunc(func(ctx context.Context, h transport.Handler) (transport.Transport, error) {
		p.handshakes.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.mu.Lock()
		if len(p.failNext) > 0 {
			err := p.failNext[0]
			p.failNext = p.failNext[1:]
			p.mu.Unlock()
			return nil, err
		}
		client, remote := transport.Pipe()
		p.conn = remote
		p.partial = make(map[uint32]*assembly)
		p.mu.Unlock()

		remote.Attach(p.handlerFor(remote))
		client.Attach(h)
		return client, nil
	})
}

// Serve attaches the peer to an already established transport, such as the server
// side of a WebSocket relay. The returned handler must receive that transport's
// inbound messages.
func (p *Peer) Serve(conn transport.Transport) transport.Handler {
	p.mu.Lock()
	p.conn = conn
	p.partial = make(map[uint32]*assembly)
	p.mu.Unlock()
	return p.handlerFor(conn)
}

func (p *Peer) handlerFor(conn transport.Transport) transport.Handler {
	return transport.HandlerFuncs{
		OnMessage: func(b []byte) { p.receive(conn, b) },
		OnClose: func(err error) {
			logs.Debugf("peertest: transport closed err=%v", err)
			select {
			case p.closed <- struct{}{}:
			default:
			}
		},
	}
}

func (p *Peer) Handshakes() int { return int(p.handshakes.Load()) }

func (p *Peer) Heartbeats() int { return int(p.heartbeats.Load()) }

// Requests yields every completed request in arrival order.
func (p *Peer) Requests() <-chan Request { return p.requests }

// Closed receives once per transport close observed by the peer.
func (p *Peer) Closed() <-chan struct{} { return p.closed }

// Writer returns a response writer for id on the current transport.
func (p *Peer) Writer(id uint32) *Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &Writer{conn: p.conn, id: id}
}

// SendRaw writes an arbitrary message to the client.
func (p *Peer) SendRaw(b []byte) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return transport.ErrClosed
	}
	return conn.Send(b)
}

// Close drops the current transport from the peer side.
func (p *Peer) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (p *Peer) receive(conn transport.Transport, b []byte) {
	f, err := frame.Decode(b)
	if err != nil {
		logs.Warnf("peertest: undecodable request message: %v", err)
		return
	}
	switch f := f.(type) {
	case frame.Heartbeat:
		p.heartbeats.Add(1)
	case frame.Header:
		p.mu.Lock()
		p.partial[f.RequestID] = &assembly{header: f, frames: [][]byte{b}}
		p.mu.Unlock()
	case frame.Chunk:
		p.mu.Lock()
		if a := p.partial[f.RequestID]; a != nil {
			a.body = append(a.body, f.Data...)
			a.frames = append(a.frames, b)
		}
		p.mu.Unlock()
	case frame.End:
		p.mu.Lock()
		a := p.partial[f.RequestID]
		delete(p.partial, f.RequestID)
		p.mu.Unlock()
		if a == nil {
			return
		}
		a.frames = append(a.frames, b)
		p.complete(conn, f.RequestID, a)
	}
}

func (p *Peer) complete(conn transport.Transport, id uint32, a *assembly) {
	method, payload, err := session.DecodeRequestBody(a.body)
	if err != nil {
		logs.Warnf("peertest: [req %d] bad request body: %v", id, err)
		return
	}
	req := Request{
		ID:        id,
		Method:    method,
		Payload:   payload,
		HasLength: a.header.HasLength,
		Length:    a.header.Length,
		Frames:    a.frames,
	}
	select {
	case p.requests <- req:
	default:
		logs.Warnf("peertest: request log full, dropping [req %d]", id)
	}

	p.mu.Lock()
	h := p.handlers[method]
	p.mu.Unlock()
	if h != nil {
		h(req, &Writer{conn: conn, id: id})
	}
}

// Writer emits response frames for one request id.
type Writer struct {
	conn transport.Transport
	id   uint32
}

func (w *Writer) ID() uint32 { return w.id }

func (w *Writer) send(f frame.Frame) error {
	if w.conn == nil {
		return transport.ErrClosed
	}
	return w.conn.Send(f.Encode())
}

func (w *Writer) Header(hasLength bool, length uint64) error {
	return w.send(frame.Header{RequestID: w.id, HasLength: hasLength, Length: length})
}

func (w *Writer) Chunk(b []byte) error {
	return w.send(frame.Chunk{RequestID: w.id, Data: b})
}

func (w *Writer) End() error {
	return w.send(frame.End{RequestID: w.id})
}

// Reply sends body as Header(len), one Chunk and End.
func (w *Writer) Reply(body []byte) error {
	if err := w.Header(true, uint64(len(body))); err != nil {
		return err
	}
	if err := w.Chunk(body); err != nil {
		return err
	}
	return w.End()
}

// Stream sends chunks under a Header without a declared length.
func (w *Writer) Stream(chunks ...[]byte) error {
	if err := w.Header(false, 0); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := w.Chunk(c); err != nil {
			return err
		}
	}
	return w.End()
}

// Object replies with the encoded value and no status prefix.
func (w *Writer) Object(v any) error {
	b, err := codec.Default.Marshal(v)
	if err != nil {
		return err
	}
	return w.Reply(b)
}

// OK replies with status 0 followed by the encoded value.
func (w *Writer) OK(v any) error {
	b, err := codec.Default.Marshal(v)
	if err != nil {
		return err
	}
	return w.Reply(append([]byte{0}, b...))
}

// Fail replies with a non-zero status and an error body.
func (w *Writer) Fail(code uint8, msg string) error {
	if code == 0 {
		return errors.New("peertest: failure code must be non-zero")
	}
	b, err := codec.Default.Marshal(session.ErrorBody{Error: msg})
	if err != nil {
		return err
	}
	return w.Reply(append([]byte{code}, b...))
}

// Bytes replies with status 0 followed by raw data split into chunks of at most size bytes.
func (w *Writer) Bytes(data []byte, size int) error {
	if size <= 0 {
		return fmt.Errorf("peertest: chunk size %d", size)
	}
	if err := w.Header(true, uint64(len(data)+1)); err != nil {
		return err
	}
	if err := w.Chunk([]byte{0}); err != nil {
		return err
	}
	for len(data) > 0 {
		n := min(size, len(data))
		if err := w.Chunk(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return w.End()
}
