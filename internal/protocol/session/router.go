package session

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/urigallery/internal/observability"
	"github.com/danmuck/urigallery/internal/protocol/frame"
)

type requestState uint8

const (
	awaitingHeader requestState = iota
	streaming
	closed
)

func (s requestState) String() string {
	switch s {
	case awaitingHeader:
		return "awaiting_header"
	case streaming:
		return "streaming"
	case closed:
		return "closed"
	default:
		return "unknown"
	}
}

// PendingRequest is a snapshot of one registered request.
type PendingRequest struct {
	RequestID uint32
	Method    string
	State     string
	Queued    int
	SentAt    time.Time
}

type pendingRequest struct {
	id     uint32
	method string
	state  requestState
	sentAt time.Time
	queue  *frameQueue
}

// router is the pending request registry shared by the inbound handler and callers.
type router struct {
	mu      sync.Mutex
	pending map[uint32]*pendingRequest
}

func newRouter() *router {
	return &router{pending: make(map[uint32]*pendingRequest)}
}

// register draws ids from next until one is not pending.
func (r *router) register(next func() uint32, method string) *pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := next()
	for r.pending[id] != nil {
		id = next()
	}
	p := &pendingRequest{
		id:     id,
		method: method,
		state:  awaitingHeader,
		sentAt: time.Now(),
		queue:  newFrameQueue(),
	}
	r.pending[id] = p
	observability.AddPendingRequests(1)
	return p
}

// route pushes f to its pending request. An End deregisters the id. It reports
// whether the id was registered.
func (r *router) route(f frame.Routed) bool {
	r.mu.Lock()
	p, ok := r.pending[f.ID()]
	if !ok {
		r.mu.Unlock()
		return false
	}
	switch f.Kind() {
	case frame.KindHeader:
		if p.state == awaitingHeader {
			p.state = streaming
		}
	case frame.KindEnd:
		p.state = closed
		delete(r.pending, p.id)
		observability.AddPendingRequests(-1)
	}
	r.mu.Unlock()
	p.queue.push(f)
	return true
}

// fail deregisters id and ends its queue with err.
func (r *router) fail(id uint32, err error) bool {
	p, ok := r.take(id)
	if ok {
		p.queue.fail(err)
	}
	return ok
}

func (r *router) remove(id uint32) {
	r.take(id)
}

func (r *router) take(id uint32) (*pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	p.state = closed
	delete(r.pending, id)
	observability.AddPendingRequests(-1)
	return p, true
}

// drop forgets every pending request without failing them.
func (r *router) drop() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	for id, p := range r.pending {
		p.state = closed
		delete(r.pending, id)
	}
	observability.AddPendingRequests(-n)
	return n
}

func (r *router) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *router) list() []PendingRequest {
	r.mu.Lock()
	out := make([]PendingRequest, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, PendingRequest{
			RequestID: p.id,
			Method:    p.method,
			State:     p.state.String(),
			Queued:    p.queue.len(),
			SentAt:    p.sentAt,
		})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestID < out[j].RequestID
	})
	return out
}
