// Package transfertest provides in-memory channels and dialers for exercising
// the transfer protocol without a network.
package transfertest

import (
	"errors"
	"sync"
	"time"
)

var ErrPipeClosed = errors.New("pipe closed")

// PipeOptions shapes the simulated link.
type PipeOptions struct {
	// Delay is applied before each message leaves the sender's buffer.
	Delay time.Duration

	// QueueLen bounds the number of in-flight messages per direction.
	QueueLen int
}

type pipe struct {
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// End is one side of an in-memory ordered channel. It implements
// transfer.Channel.
type End struct {
	p     *pipe
	peer  *End
	out   chan []byte
	recv  chan []byte
	delay time.Duration

	mu        sync.Mutex
	buffered  uint64
	threshold uint64
	onLow     func()
	maxAtSend uint64
	sentBytes int64
	sentCount int
}

// NewPipe returns two connected ends.
func NewPipe(opts PipeOptions) (*End, *End) {
	if opts.QueueLen <= 0 {
		opts.QueueLen = 4096
	}
	p := &pipe{done: make(chan struct{})}
	a := &End{p: p, out: make(chan []byte, opts.QueueLen), recv: make(chan []byte, 64), delay: opts.Delay}
	b := &End{p: p, out: make(chan []byte, opts.QueueLen), recv: make(chan []byte, 64), delay: opts.Delay}
	a.peer, b.peer = b, a

	go a.pump()
	go b.pump()
	return a, b
}

// pump moves messages from e's send buffer to the peer's receive queue.
func (e *End) pump() {
	defer close(e.peer.recv)

	for {
		select {
		case m := <-e.out:
			if e.delay > 0 {
				select {
				case <-time.After(e.delay):
				case <-e.p.done:
					return
				}
			}
			select {
			case e.peer.recv <- m:
			case <-e.p.done:
				return
			}
			e.drained(uint64(len(m)))
		case <-e.p.done:
			return
		}
	}
}

func (e *End) drained(n uint64) {
	e.mu.Lock()
	before := e.buffered
	e.buffered -= n
	fire := before > e.threshold && e.buffered <= e.threshold
	cb := e.onLow
	e.mu.Unlock()

	if fire && cb != nil {
		cb()
	}
}

func (e *End) Send(data []byte) error {
	select {
	case <-e.p.done:
		return ErrPipeClosed
	default:
	}

	m := make([]byte, len(data))
	copy(m, data)

	e.mu.Lock()
	if e.buffered > e.maxAtSend {
		e.maxAtSend = e.buffered
	}
	e.buffered += uint64(len(m))
	e.sentBytes += int64(len(m))
	e.sentCount++
	e.mu.Unlock()

	select {
	case e.out <- m:
		return nil
	case <-e.p.done:
		return ErrPipeClosed
	}
}

func (e *End) Recv() <-chan []byte {
	return e.recv
}

func (e *End) Done() <-chan struct{} {
	return e.p.done
}

func (e *End) Err() error {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	return e.p.err
}

func (e *End) BufferedAmount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffered
}

func (e *End) SetBufferedAmountLowThreshold(th uint64) {
	e.mu.Lock()
	e.threshold = th
	e.mu.Unlock()
}

func (e *End) OnBufferedAmountLow(f func()) {
	e.mu.Lock()
	e.onLow = f
	e.mu.Unlock()
}

// Close closes both ends.
func (e *End) Close() error {
	return e.CloseWithError(nil)
}

// CloseWithError closes both ends and records err as the cause.
func (e *End) CloseWithError(err error) error {
	e.p.closeOnce.Do(func() {
		e.p.mu.Lock()
		e.p.err = err
		e.p.mu.Unlock()
		close(e.p.done)
	})
	return nil
}

// MaxBufferedAtSend is the largest buffered amount observed when Send was
// called.
func (e *End) MaxBufferedAtSend() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxAtSend
}

// Sent returns the number of messages and bytes sent from this end.
func (e *End) Sent() (count int, bytes int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sentCount, e.sentBytes
}
