package gallery

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/danmuck/urigallery/internal/protocol/schema"
	"github.com/danmuck/urigallery/internal/protocol/session"
	"github.com/danmuck/urigallery/internal/testutil/peertest"
	"github.com/danmuck/urigallery/internal/testutil/testlog"
)

var photo = bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 512)

var listed = []Image{
	{Path: "2024/a.png", Name: "a.png", Size: 10, CreatedAt: 1700000000000},
	{Path: "2024/b.png", Name: "b.png", Size: 20, CreatedAt: 1700100000000},
	{Path: "2023/c.jpg", Name: "c.jpg", Size: 30, CreatedAt: 1690000000000},
}

func galleryPeer() *peertest.Peer {
	p := peertest.New(5)
	p.Handle(session.MethodListImages, func(_ peertest.Request, w *peertest.Writer) {
		_ = w.Object(listed)
	})
	p.Handle(session.MethodDownloadImage, func(req peertest.Request, w *peertest.Writer) {
		var in struct {
			Path   string `msgpack:"path"`
			Resize *int   `msgpack:"resize"`
		}
		if err := req.Decode(&in); err != nil {
			_ = w.Fail(1, err.Error())
			return
		}
		if in.Path != "2024/a.png" {
			_ = w.Fail(4, "not found: "+in.Path)
			return
		}
		if in.Resize != nil {
			_ = w.Bytes(photo[:*in.Resize], 100)
			return
		}
		_ = w.Bytes(photo, 100)
	})
	return p
}

func connect(t *testing.T, p *peertest.Peer) *session.Session {
	t.Helper()
	s := session.New(session.Config{HeartbeatInterval: -1}, p.Handshaker())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect() })
	return s
}

func TestVersionAndListImages(t *testing.T) {
	testlog.Start(t)
	c := New(connect(t, galleryPeer()))
	ctx := context.Background()

	v, err := c.Version(ctx)
	if err != nil || v != 5 {
		t.Fatalf("version=%d err=%v", v, err)
	}
	images, err := c.ListImages(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(images, listed) {
		t.Fatalf("images = %+v, want %+v", images, listed)
	}
}

func TestListImagesCreatedAtShapes(t *testing.T) {
	testlog.Start(t)
	const want = Millis(1700000000000)
	cases := []struct {
		name      string
		createdAt any
	}{
		{"int", int64(1700000000000)},
		{"uint", uint64(1700000000000)},
		{"float", float64(1.7e12)},
		{"fractional float", 1700000000000.9},
		{"timestamp", time.UnixMilli(1700000000000)},
		{"numeric string", "1700000000000"},
		{"exponent string", " 1.7e12 "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := peertest.New(1)
			p.Handle(session.MethodListImages, func(_ peertest.Request, w *peertest.Writer) {
				_ = w.Object([]map[string]any{
					{"path": "a.png", "name": "a.png", "size": 1, "createdAt": tc.createdAt},
				})
			})
			images, err := New(connect(t, p)).ListImages(context.Background())
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(images) != 1 || images[0].CreatedAt != want {
				t.Fatalf("images = %+v, want createdAt %d", images, want)
			}
			if !images[0].Created().Equal(time.UnixMilli(int64(want))) {
				t.Fatalf("created = %v", images[0].Created())
			}
		})
	}
}

func TestListImagesRejectsNonNumericCreatedAt(t *testing.T) {
	testlog.Start(t)
	p := peertest.New(1)
	p.Handle(session.MethodListImages, func(_ peertest.Request, w *peertest.Writer) {
		_ = w.Object([]map[string]any{
			{"path": "a.png", "name": "a.png", "size": 1, "createdAt": "yesterday"},
		})
	})
	_, err := New(connect(t, p)).ListImages(context.Background())
	if !errors.Is(err, schema.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListImagesRejectsInvalidEntries(t *testing.T) {
	testlog.Start(t)
	p := peertest.New(1)
	p.Handle(session.MethodListImages, func(_ peertest.Request, w *peertest.Writer) {
		_ = w.Object([]Image{{Path: "x.png", Name: ""}})
	})
	_, err := New(connect(t, p)).ListImages(context.Background())
	var ve schema.ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, schema.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDownloadImage(t *testing.T) {
	testlog.Start(t)
	c := New(connect(t, galleryPeer()))
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := c.DownloadImage(ctx, "2024/a.png", 0, &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != int64(len(photo)) || !bytes.Equal(buf.Bytes(), photo) {
		t.Fatalf("download n=%d equal=%v", n, bytes.Equal(buf.Bytes(), photo))
	}

	buf.Reset()
	if n, err := c.DownloadImage(ctx, "2024/a.png", 450, &buf); err != nil || n != 450 {
		t.Fatalf("resized download n=%d err=%v", n, err)
	}
}

func TestDownloadImageRemoteError(t *testing.T) {
	testlog.Start(t)
	c := New(connect(t, galleryPeer()))
	_, err := c.DownloadImage(context.Background(), "missing.png", 0, &bytes.Buffer{})
	var remote *session.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Code != 4 || remote.Message != "not found: missing.png" || remote.Method != session.MethodDownloadImage {
		t.Fatalf("unexpected remote error %+v", remote)
	}
	if _, err := c.DownloadImage(context.Background(), " ", 0, &bytes.Buffer{}); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
}

func TestDownloadLimitHonorsContext(t *testing.T) {
	testlog.Start(t)
	c := New(connect(t, galleryPeer()), WithDownloadLimit(0.001, 1))
	ctx := context.Background()
	if _, err := c.DownloadImage(ctx, "2024/a.png", 10, &bytes.Buffer{}); err != nil {
		t.Fatalf("first download within burst: %v", err)
	}
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := c.DownloadImage(short, "2024/a.png", 10, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected limiter to refuse second download")
	}
}

func TestGroupByDay(t *testing.T) {
	testlog.Start(t)
	loc := time.UTC
	at := func(day, hour int) Millis {
		return Millis(time.Date(2024, time.March, day, hour, 0, 0, 0, loc).UnixMilli())
	}
	images := []Image{
		{Path: "a", Name: "a", CreatedAt: at(1, 9)},
		{Path: "b", Name: "b", CreatedAt: at(2, 8)},
		{Path: "c", Name: "c", CreatedAt: at(1, 22)},
		{Path: "d", Name: "d", CreatedAt: at(2, 23)},
	}
	days := GroupByDay(images, loc)
	if len(days) != 2 {
		t.Fatalf("days=%d", len(days))
	}
	if days[0].Date.Day() != 2 || days[1].Date.Day() != 1 {
		t.Fatalf("days out of order: %v %v", days[0].Date, days[1].Date)
	}
	if days[0].Images[0].Path != "d" || days[0].Images[1].Path != "b" {
		t.Fatalf("day 2 order %+v", days[0].Images)
	}
	if days[1].Images[0].Path != "c" || days[1].Images[1].Path != "a" {
		t.Fatalf("day 1 order %+v", days[1].Images)
	}
	if days[1].Title() != "Friday, March 1, 2024" {
		t.Fatalf("title=%q", days[1].Title())
	}
	if images[0].Path != "a" {
		t.Fatalf("input slice reordered")
	}
}

func TestPreviewResize(t *testing.T) {
	testlog.Start(t)
	now := time.Date(2024, time.March, 2, 12, 0, 0, 0, time.UTC)
	recent := Image{CreatedAt: Millis(now.Add(-time.Hour).UnixMilli())}
	old := Image{CreatedAt: Millis(now.Add(-48 * time.Hour).UnixMilli())}
	if got := recent.PreviewResize(now); got != 750 {
		t.Fatalf("recent resize=%d", got)
	}
	if got := old.PreviewResize(now); got != 450 {
		t.Fatalf("old resize=%d", got)
	}
}
