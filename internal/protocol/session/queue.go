package session

import (
	"context"
	"sync"

	"github.com/danmuck/urigallery/internal/protocol/frame"
)

// frameQueue joins the router (single producer) to one Response (single consumer).
// It is unbounded so the router never blocks on a slow reader.
type frameQueue struct {
	mu     sync.Mutex
	items  []frame.Frame
	err    error
	notify chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{notify: make(chan struct{}, 1)}
}

func (q *frameQueue) push(f frame.Frame) {
	q.mu.Lock()
	if q.err != nil {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, f)
	q.mu.Unlock()
	q.wake()
}

// fail records a terminal error. Frames queued earlier are still returned first.
func (q *frameQueue) fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
	q.wake()
}

func (q *frameQueue) pop(ctx context.Context) (frame.Frame, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return f, nil
		}
		err := q.err
		q.mu.Unlock()
		if err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *frameQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
