package relay

import "sync"

// Peer is the hub's handle on one connection's outbound side.
type Peer interface {
	// Send queues a frame without blocking. It returns false when the
	// frame was dropped because the queue is full or the peer is closed.
	Send(frame []byte) bool
	// Close stops delivery. Safe to call more than once.
	Close()
}

// QueuePeer is a Peer backed by a bounded channel. The transport's writer
// goroutine drains Frames until it is closed.
type QueuePeer struct {
	mu     sync.Mutex
	frames chan []byte
	closed bool
}

func NewQueuePeer(size int) *QueuePeer {
	if size <= 0 {
		size = 1
	}
	return &QueuePeer{frames: make(chan []byte, size)}
}

func (p *QueuePeer) Send(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	select {
	case p.frames <- frame:
		return true
	default:
		return false
	}
}

func (p *QueuePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.frames)
}

// Frames is closed after Close; queued frames remain readable.
func (p *QueuePeer) Frames() <-chan []byte {
	return p.frames
}
