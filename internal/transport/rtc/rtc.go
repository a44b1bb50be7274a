// Package rtc establishes a WebRTC data channel to the gallery peer. The dialer is
// the initiator: it gathers all ICE candidates, hands the complete offer to a
// Signaler and applies the returned answer.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	logs "github.com/danmuck/urigallery/internal/logging"
	"github.com/danmuck/urigallery/internal/transport"
	"github.com/pion/webrtc/v4"
)

const (
	DefaultSTUNServer = "stun:stun.l.google.com:19302"
	DefaultLabel      = "gallery"
)

var ErrChannelClosed = errors.New("rtc: data channel closed before open")

// Signaler exchanges a complete SDP offer for the peer's answer.
type Signaler interface {
	Exchange(ctx context.Context, offer string) (string, error)
}

// SignalFunc adapts a function to Signaler.
type SignalFunc func(ctx context.Context, offer string) (string, error)

func (f SignalFunc) Exchange(ctx context.Context, offer string) (string, error) {
	return f(ctx, offer)
}

// Dialer is a transport.Handshaker over one ordered data channel. A nil ICEServers
// uses DefaultSTUNServer; an empty slice gathers host candidates only. API overrides
// the default pion API, e.g. to tune its SettingEngine.
type Dialer struct {
	Signaler   Signaler
	ICEServers []string
	Label      string
	API        *webrtc.API
}

var _ transport.Handshaker = Dialer{}

func (d Dialer) configuration() webrtc.Configuration {
	urls := make([]string, 0, len(d.ICEServers))
	for _, u := range d.ICEServers {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if d.ICEServers == nil {
		urls = []string{DefaultSTUNServer}
	}
	cfg := webrtc.Configuration{}
	if len(urls) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: urls}}
	}
	return cfg
}

func (d Dialer) newPeerConnection() (*webrtc.PeerConnection, error) {
	if d.API != nil {
		return d.API.NewPeerConnection(d.configuration())
	}
	return webrtc.NewPeerConnection(d.configuration())
}

func (d Dialer) Handshake(ctx context.Context, h transport.Handler) (transport.Transport, error) {
	if d.Signaler == nil {
		return nil, errors.New("rtc: signaler required")
	}
	pc, err := d.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("rtc: peer connection: %w", err)
	}
	label := d.Label
	if label == "" {
		label = DefaultLabel
	}
	ordered := true
	dc, err := pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("rtc: data channel: %w", err)
	}

	c := newConn(pc, dc)
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	c.bind(h)

	answer, err := d.negotiate(ctx, pc)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("rtc: apply answer: %w", err)
	}

	if err := c.awaitOpen(ctx, opened); err != nil {
		return nil, err
	}
	logs.Infof("rtc: data channel open label=%s", label)
	return c, nil
}

// awaitOpen closes the peer connection unless the channel opens.
func (c *Conn) awaitOpen(ctx context.Context, opened <-chan struct{}) error {
	select {
	case <-opened:
		return nil
	case <-c.done:
		_ = c.Close()
		return ErrChannelClosed
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	}
}

// negotiate creates the offer, waits for ICE gathering to finish and exchanges it.
func (d Dialer) negotiate(ctx context.Context, pc *webrtc.PeerConnection) (string, error) {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("rtc: create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("rtc: set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	local := pc.LocalDescription()
	if local == nil {
		return "", errors.New("rtc: no local description after gathering")
	}
	answer, err := d.Signaler.Exchange(ctx, local.SDP)
	if err != nil {
		return "", fmt.Errorf("rtc: signal offer: %w", err)
	}
	return answer, nil
}

// Conn is a transport.Transport over one data channel.
type Conn struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	once sync.Once
	done chan struct{}
}

var _ transport.Transport = (*Conn)(nil)

func newConn(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *Conn {
	return &Conn{pc: pc, dc: dc, done: make(chan struct{})}
}

func (c *Conn) bind(h transport.Handler) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			logs.Debugf("rtc: ignoring text message len=%d", len(msg.Data))
			return
		}
		h.HandleMessage(msg.Data)
	})
	c.dc.OnClose(func() { c.finish(h, nil) })
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logs.Debugf("rtc: peer connection state=%s", s)
		switch s {
		case webrtc.PeerConnectionStateFailed:
			c.finish(h, fmt.Errorf("rtc: peer connection %s", s))
		case webrtc.PeerConnectionStateClosed:
			c.finish(h, nil)
		}
	})
}

func (c *Conn) finish(h transport.Handler, err error) {
	c.once.Do(func() {
		close(c.done)
		h.HandleClose(err)
	})
}

func (c *Conn) Send(p []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	if err := c.dc.Send(p); err != nil {
		return fmt.Errorf("rtc: send: %w", err)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.pc.Close()
}
