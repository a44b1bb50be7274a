// Package wsock carries session frames over a WebSocket relay, one binary message
// per frame.
package wsock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/urigallery/internal/auth"
	logs "github.com/danmuck/urigallery/internal/logging"
	"github.com/danmuck/urigallery/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMaxMessageSize   = 16 << 20
	closeWriteTimeout       = time.Second
)

// Dialer is a transport.Handshaker for a relay URL (ws:// or wss://).
type Dialer struct {
	URL              string
	Token            string
	TLS              TLSConfig
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
}

var _ transport.Handshaker = Dialer{}

func (d Dialer) Handshake(ctx context.Context, h transport.Handler) (transport.Transport, error) {
	tlsCfg, err := d.TLS.Build()
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  tlsCfg,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = DefaultHandshakeTimeout
	}
	header := http.Header{}
	auth.SetBearer(header, d.Token)

	ws, resp, err := dialer.DialContext(ctx, d.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsock: dial %s: status %d: %w", d.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wsock: dial %s: %w", d.URL, err)
	}

	limit := d.MaxMessageSize
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	ws.SetReadLimit(limit)
	c := NewConn(ws)
	c.Run(h)
	logs.Infof("wsock: connected relay=%s", d.URL)
	return c, nil
}

// Conn adapts a websocket connection to transport.Transport. It works for both
// dialed and accepted connections.
type Conn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	started   bool
}

var _ transport.Transport = (*Conn)(nil)

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, closed: make(chan struct{})}
}

// Run starts the read loop that feeds h. It must be called once.
func (c *Conn) Run(h transport.Handler) {
	if c.started {
		panic("wsock: conn already running")
	}
	c.started = true
	go c.readLoop(h)
}

func (c *Conn) Send(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return fmt.Errorf("wsock: write: %w", err)
	}
	return nil
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop(h transport.Handler) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			h.HandleClose(c.closeCause(err))
			_ = c.Close()
			return
		}
		if mt != websocket.BinaryMessage {
			logs.Debugf("wsock: ignoring message type=%d len=%d", mt, len(data))
			continue
		}
		h.HandleMessage(data)
	}
}

func (c *Conn) closeCause(err error) error {
	select {
	case <-c.closed:
		return nil
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Errorf("wsock: remote closed code=%d: %w", ce.Code, err)
	}
	return fmt.Errorf("wsock: read: %w", err)
}
