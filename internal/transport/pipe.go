package transport

import (
	"sync"
)

// Pipe returns two connected in-memory endpoints. Messages sent on one end are delivered,
// in order, to the handler attached to the other end. Delivery starts on Attach; messages
// sent earlier are queued.
func Pipe() (*PipeEnd, *PipeEnd) {
	a := newPipeEnd()
	b := newPipeEnd()
	a.peer, b.peer = b, a
	return a, b
}

// PipeEnd is one side of an in-memory Pipe.
type PipeEnd struct {
	peer *PipeEnd

	mu       sync.Mutex
	cond     *sync.Cond
	queue    [][]byte
	handler  Handler
	closed   bool
	closeErr error
	done     chan struct{}
}

func newPipeEnd() *PipeEnd {
	e := &PipeEnd{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Attach sets the handler and starts delivery. It may be called once.
func (e *PipeEnd) Attach(h Handler) {
	e.mu.Lock()
	if e.handler != nil {
		e.mu.Unlock()
		panic("transport: pipe handler already attached")
	}
	e.handler = h
	e.mu.Unlock()
	go e.deliver()
}

// Send copies p into the peer's inbound queue.
func (e *PipeEnd) Send(p []byte) error {
	msg := make([]byte, len(p))
	copy(msg, p)
	return e.peer.enqueue(msg)
}

func (e *PipeEnd) enqueue(msg []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.queue = append(e.queue, msg)
	e.cond.Signal()
	return nil
}

// Close shuts both ends. Queued messages are still delivered before HandleClose.
func (e *PipeEnd) Close() error {
	e.shutdown(nil)
	e.peer.shutdown(nil)
	return nil
}

// CloseWithError shuts both ends and reports err to each handler.
func (e *PipeEnd) CloseWithError(err error) {
	e.shutdown(err)
	e.peer.shutdown(err)
}

// Done is closed once this end's handler has seen HandleClose.
func (e *PipeEnd) Done() <-chan struct{} {
	return e.done
}

func (e *PipeEnd) shutdown(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.closeErr = err
	e.cond.Broadcast()
}

func (e *PipeEnd) deliver() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			h, err := e.handler, e.closeErr
			e.mu.Unlock()
			h.HandleClose(err)
			return
		}
		msg := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		h := e.handler
		e.mu.Unlock()
		h.HandleMessage(msg)
	}
}
