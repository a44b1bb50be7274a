package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	logs "github.com/danmuck/urigallery/internal/logging"
	"github.com/danmuck/urigallery/internal/observability"
	"github.com/danmuck/urigallery/internal/protocol/codec"
	"github.com/danmuck/urigallery/internal/protocol/frame"
	"github.com/danmuck/urigallery/internal/transport"
)

// State is the session lifecycle position.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option customizes a Session.
type Option func(*Session)

// WithCodec replaces the MessagePack payload codec.
func WithCodec(c codec.Codec) Option {
	return func(s *Session) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithIDSource replaces the crypto/rand request id source.
func WithIDSource(next func() uint32) Option {
	return func(s *Session) {
		if next != nil {
			s.nextID = next
		}
	}
}

// Session multiplexes requests over one transport established by a Handshaker.
type Session struct {
	cfg        Config
	handshaker transport.Handshaker
	codec      codec.Codec
	nextID     func() uint32
	rng        *mrand.Rand

	mu      sync.Mutex
	state   State
	link    *link
	version int
}

func New(cfg Config, hs transport.Handshaker, opts ...Option) *Session {
	s := &Session{
		cfg:        cfg.WithDefaults(),
		handshaker: hs,
		codec:      codec.Default,
		nextID:     randomID,
		rng:        mrand.New(mrand.NewSource(time.Now().UnixNano())),
		state:      StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version is the peer version reported by the last successful bootstrap.
func (s *Session) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Pending reports the number of registered requests on the current transport.
func (s *Session) Pending() int {
	if l := s.current(); l != nil {
		return l.router.len()
	}
	return 0
}

// PendingRequests lists registered requests ordered by id.
func (s *Session) PendingRequests() []PendingRequest {
	if l := s.current(); l != nil {
		return l.router.list()
	}
	return nil
}

// Connect performs the handshake and the getVersion bootstrap. It is valid from
// the disconnected and closed states.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return ErrAlreadyConnected
	case StateConnecting:
		s.mu.Unlock()
		return ErrConnectInProgress
	}
	s.state = StateConnecting
	s.mu.Unlock()

	l, err := s.handshake(ctx)
	if err != nil {
		s.setState(StateClosed)
		logs.Errf("session.Connect handshake failed: %v", err)
		return &ConnectionError{Op: "handshake", Err: err}
	}

	version, err := s.bootstrap(ctx, l)
	if err != nil {
		_ = l.transport.Close()
		s.teardown(l, nil)
		s.setState(StateClosed)
		logs.Errf("session.Connect bootstrap failed: %v", err)
		return &ConnectionError{Op: "bootstrap", Err: err}
	}

	s.mu.Lock()
	if l.isClosed() {
		s.state = StateClosed
		s.mu.Unlock()
		return &ConnectionError{Op: "bootstrap", Err: transport.ErrClosed}
	}
	s.link = l
	s.version = version
	s.state = StateConnected
	s.mu.Unlock()

	go s.heartbeat(l)
	logs.Infof("session.Connect connected version=%d heartbeat=%s", version, s.cfg.HeartbeatInterval)
	return nil
}

// Request sends method and payload as one framed request and waits for the
// response Header. ctx bounds only the wait for the Header; reads on the
// returned Response take their own ctx.
func (s *Session) Request(ctx context.Context, method string, payload any) (*Response, error) {
	s.mu.Lock()
	l := s.link
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || l == nil {
		return nil, ErrNotConnected
	}
	return s.request(ctx, l, method, payload)
}

// Disconnect closes the transport. Cleanup runs once whether the close is local or remote.
func (s *Session) Disconnect() error {
	l := s.current()
	if l == nil {
		return nil
	}
	err := l.transport.Close()
	s.teardown(l, nil)
	if err != nil && !errors.Is(err, transport.ErrClosed) {
		return err
	}
	return nil
}

func (s *Session) current() *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) handshake(ctx context.Context) (*link, error) {
	for attempt := 1; ; attempt++ {
		l := newLink(s)
		hctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		t, err := s.handshaker.Handshake(hctx, l)
		cancel()
		if err == nil {
			l.transport = t
			return l, nil
		}
		logs.Warnf("session.Connect handshake attempt=%d/%d err=%v", attempt, s.cfg.MaxConnectAttempts, err)
		if attempt >= s.cfg.MaxConnectAttempts || ctx.Err() != nil {
			return nil, err
		}
		delay := NextBackoffDelay(s.cfg.Backoff, attempt, s.rng)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// bootstrap issues getVersion. Unlike ordinary requests it is released when the
// transport closes underneath it.
func (s *Session) bootstrap(ctx context.Context, l *link) (int, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-l.stop:
			cancel(transport.ErrClosed)
		case <-ctx.Done():
		}
	}()

	version, err := s.getVersion(ctx, l)
	if err != nil && ctx.Err() != nil {
		return 0, context.Cause(ctx)
	}
	return version, err
}

func (s *Session) getVersion(ctx context.Context, l *link) (int, error) {
	resp, err := s.request(ctx, l, MethodGetVersion, nil)
	if err != nil {
		return 0, err
	}
	code, err := resp.Code(ctx)
	if err != nil {
		return 0, err
	}
	if code > 0 {
		return 0, resp.ReadError(ctx, code)
	}
	var info VersionInfo
	if err := resp.Object(ctx, &info); err != nil {
		return 0, err
	}
	return info.Version, nil
}

func (s *Session) request(ctx context.Context, l *link, method string, payload any) (*Response, error) {
	body, err := EncodeRequestBody(s.codec, method, payload)
	if err != nil {
		return nil, err
	}
	p := l.router.register(s.nextID, method)
	id := p.id
	frames := [...]frame.Frame{
		frame.Header{RequestID: id, HasLength: true, Length: uint64(len(body))},
		frame.Chunk{RequestID: id, Data: body},
		frame.End{RequestID: id},
	}
	for _, f := range frames {
		if err := l.transport.Send(f.Encode()); err != nil {
			l.router.remove(id)
			observability.RecordRequest(method, "send_error", time.Since(p.sentAt))
			return nil, fmt.Errorf("session: [req %d] send %s: %w", id, f.Kind(), err)
		}
		observability.RecordFrameSent(f.Kind().String())
	}
	logs.Debugf("session.Request [req %d] method=%s body=%d", id, method, len(body))

	first, err := p.queue.pop(ctx)
	if err != nil {
		l.router.remove(id)
		observability.RecordRequest(method, "error", time.Since(p.sentAt))
		return nil, err
	}
	h, ok := first.(frame.Header)
	if !ok {
		l.router.remove(id)
		observability.RecordRequest(method, "protocol_error", time.Since(p.sentAt))
		return nil, &UnexpectedFrameError{RequestID: id, Want: frame.KindHeader, Got: first.Kind()}
	}
	observability.RecordRequest(method, "ok", time.Since(p.sentAt))
	return newResponse(id, method, h, p.queue, s.codec, func() { l.router.remove(id) }), nil
}

func (s *Session) heartbeat(l *link) {
	if s.cfg.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	msg := frame.Heartbeat{}.Encode()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if err := l.transport.Send(msg); err != nil {
				logs.Warnf("session.heartbeat send failed: %v", err)
				continue
			}
			observability.RecordFrameSent(frame.KindHeartbeat.String())
		}
	}
}

// handleMessage is the single inbound path for one transport.
func (s *Session) handleMessage(l *link, p []byte) {
	f, err := frame.Decode(p)
	if err != nil {
		if id, ok := frame.PeekRequestID(p); ok && l.router.fail(id, fmt.Errorf("%w: %w", ErrProtocol, err)) {
			logs.Warnf("session: [req %d] inbound decode failed: %v", id, err)
			observability.RecordFrameDropped("decode_attributed")
			return
		}
		logs.Warnf("session: dropping undecodable message len=%d: %v", len(p), err)
		observability.RecordFrameDropped("decode")
		return
	}
	observability.RecordFrameReceived(f.Kind().String())
	routed, ok := f.(frame.Routed)
	if !ok {
		logs.Tracef("session: %s received", f.Kind())
		return
	}
	logs.Tracef("session: [req %d] routing %s len=%d", routed.ID(), routed.Kind(), len(p))
	if !l.router.route(routed) {
		logs.Debugf("session: [req %d] discarding %s for unknown request", routed.ID(), routed.Kind())
		observability.RecordFrameDropped("unmatched")
	}
}

func (s *Session) teardown(l *link, err error) {
	if !l.shutdown() {
		return
	}
	dropped := l.router.drop()
	s.mu.Lock()
	if s.link == l {
		s.link = nil
		s.state = StateClosed
	}
	s.mu.Unlock()
	if err != nil {
		logs.Warnf("session: transport closed err=%v dropped=%d", err, dropped)
		return
	}
	logs.Infof("session: transport closed dropped=%d", dropped)
}

// link binds one transport to its router. A new link is made per handshake so a late
// close from a previous transport cannot tear down the current one.
type link struct {
	s         *Session
	router    *router
	transport transport.Transport
	stop      chan struct{}
	once      sync.Once
}

func newLink(s *Session) *link {
	return &link{s: s, router: newRouter(), stop: make(chan struct{})}
}

func (l *link) HandleMessage(p []byte) { l.s.handleMessage(l, p) }

func (l *link) HandleClose(err error) { l.s.teardown(l, err) }

// shutdown reports whether this call performed the stop.
func (l *link) shutdown() bool {
	first := false
	l.once.Do(func() {
		close(l.stop)
		first = true
	})
	return first
}

func (l *link) isClosed() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func randomID() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}
