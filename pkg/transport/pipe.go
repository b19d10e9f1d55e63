package transport

import (
	"context"
	"sync"
)

// pipeBufferSize is the per-direction message buffer of a Pipe.
const pipeBufferSize = 32

// Pipe provides bidirectional in-memory message transport between two
// endpoints. Closing either endpoint closes both directions, which lets
// tests simulate an unexpected transport-initiated closure.
//
// Use Pipe for deterministic tests without real network I/O.
type Pipe struct {
	client *pipeConn
	server *pipeConn
}

// NewPipe creates a connected pair of in-memory endpoints.
func NewPipe() *Pipe {
	aToB := make(chan []byte, pipeBufferSize)
	bToA := make(chan []byte, pipeBufferSize)
	done := make(chan struct{})
	var once sync.Once

	shutdown := func() { once.Do(func() { close(done) }) }

	return &Pipe{
		client: &pipeConn{in: bToA, out: aToB, done: done, shutdown: shutdown},
		server: &pipeConn{in: aToB, out: bToA, done: done, shutdown: shutdown},
	}
}

// ClientConn returns the client-side endpoint.
func (p *Pipe) ClientConn() Conn { return p.client }

// ServerConn returns the server-side endpoint.
func (p *Pipe) ServerConn() Conn { return p.server }

// Break closes the pipe as if the transport failed, without either side
// calling Close.
func (p *Pipe) Break() { p.client.shutdown() }

type pipeConn struct {
	in       chan []byte
	out      chan []byte
	done     chan struct{}
	shutdown func()
}

func (c *pipeConn) Send(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- buf:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBackpressure
	}
}

func (c *pipeConn) Receive() ([]byte, error) {
	// Drain buffered messages before reporting closure so delivery
	// order is preserved across a close.
	select {
	case data := <-c.in:
		return data, nil
	default:
	}

	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *pipeConn) Close() error {
	c.shutdown()
	return nil
}

// PipeDialer hands out successive Pipe client endpoints, one per Dial call.
// Tests inspect the corresponding server endpoints to observe traffic and
// to inject closures. A nil pipe at the head of the queue makes that Dial
// attempt fail, which lets tests script reconnection outcomes.
type PipeDialer struct {
	mu    sync.Mutex
	queue []*Pipe
	dials int
}

// NewPipeDialer creates a dialer that will serve the given pipes in order.
func NewPipeDialer(pipes ...*Pipe) *PipeDialer {
	return &PipeDialer{queue: pipes}
}

// Enqueue appends pipes to the dial queue. A nil entry scripts a failed
// dial attempt.
func (d *PipeDialer) Enqueue(pipes ...*Pipe) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, pipes...)
}

// Dials returns the number of Dial calls made so far.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Dial implements Dialer.
func (d *PipeDialer) Dial(_ context.Context, _, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if len(d.queue) == 0 {
		return nil, ErrDialFailed
	}

	p := d.queue[0]
	d.queue = d.queue[1:]
	if p == nil {
		return nil, ErrDialFailed
	}
	return p.ClientConn(), nil
}
