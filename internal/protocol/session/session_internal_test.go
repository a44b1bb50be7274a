package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/urigallery/internal/protocol/codec"
	"github.com/danmuck/urigallery/internal/protocol/frame"
	"github.com/danmuck/urigallery/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
	if got := NextBackoffDelay(BackoffConfig{}, 4, nil); got != 0 {
		t.Fatalf("zero config got=%v", got)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{}.WithDefaults()
	if cfg.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Fatalf("heartbeat=%v", cfg.HeartbeatInterval)
	}
	if cfg.MaxConnectAttempts != 1 {
		t.Fatalf("attempts=%d", cfg.MaxConnectAttempts)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Fatalf("connect timeout=%v", cfg.ConnectTimeout)
	}
	if got := (Config{HeartbeatInterval: -1}).WithDefaults().HeartbeatInterval; got != -1 {
		t.Fatalf("disabled heartbeat overwritten got=%v", got)
	}
}

func TestEncodeRequestBodyLayout(t *testing.T) {
	testlog.Start(t)
	body, err := EncodeRequestBody(codec.Default, "listImages", nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := append([]byte{0x0A}, "listImages"...)
	if !bytes.Equal(body, want) {
		t.Fatalf("body=%x want=%x", body, want)
	}

	body, err = EncodeRequestBody(codec.Default, "downloadImage", map[string]any{"path": "a.jpg"})
	if err != nil {
		t.Fatalf("encode with payload: %v", err)
	}
	method, payload, err := DecodeRequestBody(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if method != "downloadImage" {
		t.Fatalf("method=%q", method)
	}
	var got map[string]string
	if err := codec.Default.Unmarshal(payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got["path"] != "a.jpg" {
		t.Fatalf("payload=%v", got)
	}
}

func TestEncodeRequestBodyRejectsBadMethods(t *testing.T) {
	testlog.Start(t)
	if _, err := EncodeRequestBody(codec.Default, "", nil); !errors.Is(err, ErrMethodRequired) {
		t.Fatalf("expected ErrMethodRequired, got %v", err)
	}
	long := string(bytes.Repeat([]byte("m"), MaxMethodLen+1))
	if _, err := EncodeRequestBody(codec.Default, long, nil); !errors.Is(err, ErrMethodTooLong) {
		t.Fatalf("expected ErrMethodTooLong, got %v", err)
	}
	if _, err := EncodeRequestBody(codec.Default, long[:MaxMethodLen], nil); err != nil {
		t.Fatalf("255-byte method rejected: %v", err)
	}
	if _, _, err := DecodeRequestBody([]byte{5, 'a'}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestFrameQueueDeliversBeforeFailure(t *testing.T) {
	testlog.Start(t)
	q := newFrameQueue()
	q.push(frame.Chunk{RequestID: 1, Data: []byte("a")})
	boom := errors.New("boom")
	q.fail(boom)
	q.push(frame.End{RequestID: 1})

	ctx := context.Background()
	f, err := q.pop(ctx)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if f.Kind() != frame.KindChunk {
		t.Fatalf("kind=%s", f.Kind())
	}
	if _, err := q.pop(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestFrameQueuePopHonorsContext(t *testing.T) {
	testlog.Start(t)
	q := newFrameQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	done := make(chan frame.Frame, 1)
	go func() {
		f, _ := q.pop(context.Background())
		done <- f
	}()
	q.push(frame.End{RequestID: 9})
	select {
	case f := <-done:
		if f.Kind() != frame.KindEnd {
			t.Fatalf("kind=%s", f.Kind())
		}
	case <-time.After(time.Second):
		t.Fatalf("pop did not wake")
	}
}

func TestRouterLifecycle(t *testing.T) {
	testlog.Start(t)
	r := newRouter()
	ids := []uint32{4, 4, 5}
	next := func() uint32 {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	a := r.register(next, "a")
	b := r.register(next, "b")
	if a.id != 4 || b.id != 5 {
		t.Fatalf("ids a=%d b=%d", a.id, b.id)
	}
	if r.len() != 2 {
		t.Fatalf("len=%d", r.len())
	}

	if r.route(frame.Header{RequestID: 99}) {
		t.Fatalf("unknown id routed")
	}
	if !r.route(frame.Header{RequestID: 4, HasLength: true, Length: 1}) {
		t.Fatalf("header not routed")
	}
	list := r.list()
	if len(list) != 2 || list[0].State != "streaming" || list[1].State != "awaiting_header" {
		t.Fatalf("unexpected list=%+v", list)
	}
	if !r.route(frame.End{RequestID: 4}) {
		t.Fatalf("end not routed")
	}
	if r.len() != 1 {
		t.Fatalf("end did not deregister, len=%d", r.len())
	}
	if a.queue.len() != 2 {
		t.Fatalf("queued=%d", a.queue.len())
	}

	if !r.fail(5, ErrProtocol) {
		t.Fatalf("fail missed id 5")
	}
	if r.fail(5, ErrProtocol) {
		t.Fatalf("second fail should miss")
	}
	r.register(fixedID(7), "c")
	if n := r.drop(); n != 1 || r.len() != 0 {
		t.Fatalf("drop n=%d len=%d", n, r.len())
	}
}

func fixedID(id uint32) func() uint32 {
	return func() uint32 { return id }
}
