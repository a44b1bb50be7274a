// Package gallery is the typed API of a gallery peer on top of a session.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	logs "github.com/danmuck/urigallery/internal/logging"
	"github.com/danmuck/urigallery/internal/observability"
	"github.com/danmuck/urigallery/internal/protocol/session"
	"golang.org/x/time/rate"
)

// Preview edges used by the gallery grid; recent images render larger.
const (
	RecentPreviewSize = 500
	OlderPreviewSize  = 300
)

var ErrPathRequired = errors.New("gallery: image path required")

type Image struct {
	Path      string `msgpack:"path" validate:"required"`
	Name      string `msgpack:"name" validate:"required"`
	Size      int64  `msgpack:"size" validate:"gte=0"`
	CreatedAt Millis `msgpack:"createdAt"`
}

func (i Image) Created() time.Time { return i.CreatedAt.Time() }

// Recent reports whether the image was created within a day of now.
func (i Image) Recent(now time.Time) bool {
	return i.Created().After(now.Add(-24 * time.Hour))
}

// PreviewResize is the resize edge to request for a grid preview: 1.5x the
// displayed size.
func (i Image) PreviewResize(now time.Time) int {
	size := OlderPreviewSize
	if i.Recent(now) {
		size = RecentPreviewSize
	}
	return int(math.Floor(float64(size) * 1.5))
}

type downloadRequest struct {
	Path   string `msgpack:"path"`
	Resize *int   `msgpack:"resize"`
}

// Requester is the part of *session.Session the client needs.
type Requester interface {
	Request(ctx context.Context, method string, payload any) (*session.Response, error)
}

type Option func(*Client)

// WithDownloadLimit throttles DownloadImage. rps <= 0 disables the limit.
func WithDownloadLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

type Client struct {
	s       Requester
	limiter *rate.Limiter
}

func New(s Requester, opts ...Option) *Client {
	c := &Client{s: s, limiter: rate.NewLimiter(rate.Inf, 0)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version calls getVersion.
func (c *Client) Version(ctx context.Context) (int, error) {
	resp, err := c.s.Request(ctx, session.MethodGetVersion, nil)
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
	var info session.VersionInfo
	if err := resp.Object(ctx, &info); err != nil {
		return 0, err
	}
	return info.Version, nil
}

// ListImages calls listImages. The body carries no status byte.
func (c *Client) ListImages(ctx context.Context) ([]Image, error) {
	resp, err := c.s.Request(ctx, session.MethodListImages, nil)
	if err != nil {
		return nil, err
	}
	var images []Image
	if err := resp.Object(ctx, &images); err != nil {
		return nil, err
	}
	logs.Debugf("gallery: listImages count=%d", len(images))
	return images, nil
}

// DownloadImage streams the image at path to w. resize <= 0 requests the original.
func (c *Client) DownloadImage(ctx context.Context, path string, resize int, w io.Writer) (int64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, ErrPathRequired
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("gallery: download %s: %w", path, err)
	}
	req := downloadRequest{Path: path}
	if resize > 0 {
		req.Resize = &resize
	}
	resp, err := c.s.Request(ctx, session.MethodDownloadImage, req)
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
	n, err := resp.WriteTo(ctx, w)
	observability.RecordDownload(n, err == nil)
	if err != nil {
		return n, fmt.Errorf("gallery: download %s: %w", path, err)
	}
	logs.Debugf("gallery: downloaded path=%s resize=%d bytes=%d", path, resize, n)
	return n, nil
}

// Day is one calendar day of images.
type Day struct {
	Date   time.Time
	Images []Image
}

func (d Day) Title() string { return d.Date.Format("Monday, January 2, 2006") }

// GroupByDay buckets images by calendar day of CreatedAt in loc. Days and the
// images within them are newest first.
func GroupByDay(images []Image, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}
	sorted := make([]Image, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt > sorted[j].CreatedAt
	})

	var days []Day
	for _, img := range sorted {
		t := img.Created().In(loc)
		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if n := len(days); n > 0 && days[n-1].Date.Equal(date) {
			days[n-1].Images = append(days[n-1].Images, img)
			continue
		}
		days = append(days, Day{Date: date, Images: []Image{img}})
	}
	return days
}
