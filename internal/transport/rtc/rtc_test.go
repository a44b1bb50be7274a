package rtc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/urigallery/internal/protocol/session"
	"github.com/danmuck/urigallery/internal/testutil/peertest"
	"github.com/danmuck/urigallery/internal/testutil/testlog"
	"github.com/pion/webrtc/v4"
)

func loopbackAPI() *webrtc.API {
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// answerer plays the remote side: it accepts the offered channel and serves p on it.
func answerer(t *testing.T, p *peertest.Peer) Signaler {
	api := loopbackAPI()
	return SignalFunc(func(ctx context.Context, offer string) (string, error) {
		pc, err := api.NewPeerConnection(webrtc.Configuration{})
		if err != nil {
			return "", err
		}
		t.Cleanup(func() { _ = pc.Close() })
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			c := newConn(pc, dc)
			c.bind(p.Serve(c))
		})
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
			return "", err
		}
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			return "", err
		}
		gathered := webrtc.GatheringCompletePromise(pc)
		if err := pc.SetLocalDescription(answer); err != nil {
			return "", err
		}
		select {
		case <-gathered:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return pc.LocalDescription().SDP, nil
	})
}

func TestSessionOverDataChannel(t *testing.T) {
	testlog.Start(t)
	if testing.Short() {
		t.Skip("webrtc loopback negotiation skipped in short mode")
	}
	p := peertest.New(2)
	p.Handle("echo", func(req peertest.Request, w *peertest.Writer) {
		var msg string
		_ = req.Decode(&msg)
		_ = w.OK(msg)
	})
	dialer := Dialer{Signaler: answerer(t, p), ICEServers: []string{}, API: loopbackAPI()}
	s := session.New(session.Config{HeartbeatInterval: -1, ConnectTimeout: 10 * time.Second}, dialer)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if s.Version() != 2 {
		t.Fatalf("version=%d", s.Version())
	}
	resp, err := s.Request(ctx, "echo", "through sctp")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if code, err := resp.Code(ctx); err != nil || code != 0 {
		t.Fatalf("code=%d err=%v", code, err)
	}
	var got string
	if err := resp.Object(ctx, &got); err != nil || got != "through sctp" {
		t.Fatalf("object=%q err=%v", got, err)
	}
	if err := s.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
}

func TestAwaitOpenClosesPeerConnection(t *testing.T) {
	testlog.Start(t)
	api := loopbackAPI()
	for _, tc := range []struct {
		name    string
		prepare func(c *Conn) context.Context
		want    error
	}{
		{"channel closed", func(c *Conn) context.Context {
			close(c.done)
			return context.Background()
		}, ErrChannelClosed},
		{"context canceled", func(*Conn) context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx
		}, context.Canceled},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pc, err := api.NewPeerConnection(webrtc.Configuration{})
			if err != nil {
				t.Fatalf("peer connection: %v", err)
			}
			t.Cleanup(func() { _ = pc.Close() })
			dc, err := pc.CreateDataChannel(DefaultLabel, nil)
			if err != nil {
				t.Fatalf("data channel: %v", err)
			}
			c := newConn(pc, dc)
			if err := c.awaitOpen(tc.prepare(c), make(chan struct{})); !errors.Is(err, tc.want) {
				t.Fatalf("awaitOpen err=%v, want %v", err, tc.want)
			}
			if s := pc.ConnectionState(); s != webrtc.PeerConnectionStateClosed {
				t.Fatalf("peer connection state=%s, want closed", s)
			}
		})
	}
}

func TestHandshakeSignalFailure(t *testing.T) {
	testlog.Start(t)
	cause := errors.New("signaling unavailable")
	dialer := Dialer{
		Signaler:   SignalFunc(func(context.Context, string) (string, error) { return "", cause }),
		ICEServers: []string{},
		API:        loopbackAPI(),
	}
	s := session.New(session.Config{HeartbeatInterval: -1}, dialer)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.Connect(ctx)
	if !errors.Is(err, session.ErrConnection) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped signal error, got %v", err)
	}
}

func TestHandshakeRequiresSignaler(t *testing.T) {
	testlog.Start(t)
	if _, err := (Dialer{}).Handshake(context.Background(), nil); err == nil {
		t.Fatalf("expected missing signaler error")
	}
}

func TestConfigurationDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Dialer{}.configuration()
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != DefaultSTUNServer {
		t.Fatalf("unexpected default ice servers %+v", cfg.ICEServers)
	}
	if cfg := (Dialer{ICEServers: []string{}}).configuration(); len(cfg.ICEServers) != 0 {
		t.Fatalf("expected no ice servers, got %+v", cfg.ICEServers)
	}
	cfg = Dialer{ICEServers: []string{" stun:a:3478 ", ""}}.configuration()
	if len(cfg.ICEServers) != 1 || len(cfg.ICEServers[0].URLs) != 1 || cfg.ICEServers[0].URLs[0] != "stun:a:3478" {
		t.Fatalf("unexpected ice servers %+v", cfg.ICEServers)
	}
}
