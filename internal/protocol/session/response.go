package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/danmuck/urigallery/internal/protocol/codec"
	"github.com/danmuck/urigallery/internal/protocol/frame"
	"github.com/danmuck/urigallery/internal/protocol/schema"
)

const maxPrealloc = 1 << 20

// Response reads one response body. It has a single consumer and is not safe for
// concurrent use.
type Response struct {
	id        uint32
	method    string
	hasLength bool
	length    uint64
	queue     *frameQueue
	codec     codec.Codec
	release   func()

	buffered  []byte
	consumed  uint64
	ended     bool
	err       error
	iterating bool
}

func newResponse(id uint32, method string, h frame.Header, q *frameQueue, c codec.Codec, release func()) *Response {
	return &Response{
		id:        id,
		method:    method,
		hasLength: h.HasLength,
		length:    h.Length,
		queue:     q,
		codec:     c,
		release:   release,
	}
}

func (r *Response) RequestID() uint32 { return r.id }

func (r *Response) Method() string { return r.method }

// DeclaredLength is the body length announced by the Header, if any.
func (r *Response) DeclaredLength() (uint64, bool) { return r.length, r.hasLength }

// Consumed is the number of body bytes handed to the caller so far.
func (r *Response) Consumed() uint64 { return r.consumed }

// Read returns exactly n more body bytes.
func (r *Response) Read(ctx context.Context, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("session: [req %d] negative read size %d", r.id, n)
	}
	return r.read(ctx, uint64(n), true)
}

// ReadAll returns the rest of the declared length, or everything up to End when the
// Header carried no length.
func (r *Response) ReadAll(ctx context.Context) ([]byte, error) {
	if !r.hasLength {
		return r.read(ctx, 0, false)
	}
	if r.consumed >= r.length {
		return []byte{}, nil
	}
	return r.read(ctx, r.length-r.consumed, true)
}

// Code reads the one-byte status prefix. Zero is success.
func (r *Response) Code(ctx context.Context) (uint8, error) {
	b, err := r.Read(ctx, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Object decodes the rest of the body into v and validates it.
func (r *Response) Object(ctx context.Context, v any) error {
	b, err := r.ReadAll(ctx)
	if err != nil {
		return err
	}
	if err := r.codec.Unmarshal(b, v); err != nil {
		return schema.ValidationError{Type: fmt.Sprintf("%T", v), Reason: err.Error()}
	}
	return schema.Validate(v)
}

// ReadError decodes the ErrorBody that follows a non-zero status code.
func (r *Response) ReadError(ctx context.Context, code uint8) error {
	var body ErrorBody
	if err := r.Object(ctx, &body); err != nil {
		return fmt.Errorf("session: [req %d] %s code=%d: read error body: %w", r.id, r.method, code, err)
	}
	return &RemoteError{Method: r.method, Code: code, Message: body.Error}
}

// Chunks yields the remaining body one Chunk payload at a time. Bytes left over
// from an earlier Read come first. The sequence can be ranged over once.
func (r *Response) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if r.iterating {
			yield(nil, ErrStreamConsumed)
			return
		}
		r.iterating = true
		if len(r.buffered) > 0 {
			data := r.buffered
			r.buffered = nil
			if err := r.admit(data); err != nil {
				yield(nil, err)
				return
			}
			if !yield(data, nil) {
				return
			}
		}
		for {
			data, err := r.next(ctx)
			if errors.Is(err, io.EOF) {
				if r.hasLength && r.consumed < r.length {
					yield(nil, r.shortErr(r.length, r.consumed))
				}
				return
			}
			if err == nil {
				err = r.admit(data)
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(data, nil) {
				return
			}
		}
	}
}

// admit counts data as consumed, failing the response once it runs past the
// declared length.
func (r *Response) admit(data []byte) error {
	if r.hasLength && r.consumed+uint64(len(data)) > r.length {
		r.err = fmt.Errorf("%w: %w: [req %d] %s declared %d bytes, got at least %d",
			ErrProtocol, ErrBodyOverrun, r.id, r.method, r.length, r.consumed+uint64(len(data)))
		r.release()
		return r.err
	}
	r.consumed += uint64(len(data))
	return nil
}

// WriteTo streams the rest of the body to w. A body longer than the declared
// length fails with ErrBodyOverrun.
func (r *Response) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	var total int64
	for data, err := range r.Chunks(ctx) {
		if err != nil {
			return total, err
		}
		n, err := w.Write(data)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *Response) read(ctx context.Context, target uint64, bounded bool) ([]byte, error) {
	out := make([]byte, 0, min(target, maxPrealloc))
	for !bounded || uint64(len(out)) < target {
		if len(r.buffered) == 0 {
			data, err := r.next(ctx)
			if errors.Is(err, io.EOF) {
				if bounded {
					return nil, r.shortErr(target, uint64(len(out)))
				}
				return out, nil
			}
			if err != nil {
				return nil, err
			}
			r.buffered = data
			continue
		}
		take := len(r.buffered)
		if bounded {
			if rem := target - uint64(len(out)); uint64(take) > rem {
				take = int(rem)
			}
		}
		out = append(out, r.buffered[:take]...)
		r.buffered = r.buffered[take:]
		r.consumed += uint64(take)
	}
	return out, nil
}

// next returns the next Chunk payload, or io.EOF once End has been seen.
func (r *Response) next(ctx context.Context) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.ended {
		return nil, io.EOF
	}
	f, err := r.queue.pop(ctx)
	if err != nil {
		r.err = err
		r.release()
		return nil, err
	}
	switch f := f.(type) {
	case frame.Chunk:
		return f.Data, nil
	case frame.End:
		r.ended = true
		return nil, io.EOF
	default:
		r.err = &UnexpectedFrameError{RequestID: r.id, Want: frame.KindChunk, Got: f.Kind()}
		r.release()
		return nil, r.err
	}
}

func (r *Response) shortErr(want, got uint64) error {
	return fmt.Errorf("%w: [req %d] %s wanted %d bytes, stream ended after %d", ErrUnexpectedEndOfStream, r.id, r.method, want, got)
}
