package transfer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/webdrop/internal/webrtc"
)

const (
	// NegotiationTimeout bounds the time from Start until the channel opens.
	NegotiationTimeout = 10 * time.Second

	// HighWaterMark is the buffered amount above which the sender waits.
	HighWaterMark = 10 * webrtc.ChunkSize

	// bufferRecheck re-reads the buffered amount in case a low notification
	// was missed.
	bufferRecheck = 10 * time.Millisecond
)

type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// File is a completely received file.
type File struct {
	Metadata webrtc.FileMetadata
	Payload  []byte
}

// Callbacks observe a PeerTransfer. They run on the transfer's own
// goroutines and must not block for long. Any may be nil.
type Callbacks struct {
	OnOpen         func()
	OnFileStart    func(webrtc.FileMetadata)
	OnProgress     func(fileID string, percent float64, bytesPerSec float64)
	OnFileComplete func(File)

	// OnError fires at most once, when the transfer fails.
	OnError func(error)
}

type Options struct {
	Initiator bool
	Protocol  webrtc.ProtocolType

	// HighWaterMark overrides the default backpressure limit.
	HighWaterMark uint64

	// Timeout overrides NegotiationTimeout.
	Timeout time.Duration

	Log *slog.Logger
}

// PeerTransfer runs the file transfer protocol over one peer connection.
type PeerTransfer struct {
	dialer  Dialer
	sig     Signaler
	opts    Options
	cb      Callbacks
	framing webrtc.Framing
	log     *slog.Logger

	mu    sync.Mutex
	state State
	ch    Channel
	recv  *receiveBuffer
	err   error

	sendMu    sync.Mutex
	lowSignal chan struct{}
	opened    chan struct{}
	done      chan struct{}

	startOnce sync.Once
	doneOnce  sync.Once
}

func NewPeerTransfer(dialer Dialer, sig Signaler, opts Options, cb Callbacks) *PeerTransfer {
	if opts.HighWaterMark == 0 {
		opts.HighWaterMark = HighWaterMark
	}
	if opts.Timeout == 0 {
		opts.Timeout = NegotiationTimeout
	}
	if opts.Protocol == "" {
		opts.Protocol = webrtc.TaggedProtocol
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &PeerTransfer{
		dialer:    dialer,
		sig:       sig,
		opts:      opts,
		cb:        cb,
		framing:   webrtc.NewFraming(opts.Protocol),
		log:       log.With("initiator", opts.Initiator, "protocol", opts.Protocol),
		lowSignal: make(chan struct{}, 1),
		opened:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (p *PeerTransfer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins negotiation in the background. Open is reported through
// OnOpen; a failed or timed out negotiation through OnError.
func (p *PeerTransfer) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.mu.Lock()
		if p.state != StateIdle {
			p.mu.Unlock()
			return
		}
		p.state = StateNegotiating
		p.mu.Unlock()

		go p.negotiate(ctx)
	})
}

func (p *PeerTransfer) negotiate(ctx context.Context) {
	dctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	go func() {
		select {
		case <-p.done:
			cancel()
		case <-dctx.Done():
		}
	}()

	ch, err := p.dialer.Dial(dctx, p.sig, p.opts.Initiator)
	if err != nil {
		select {
		case <-p.done:
			return
		default:
		}
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			err = NewError("negotiate", ErrConnectionTimeout)
		} else {
			err = WrapError("negotiate", ErrChannelError, err.Error())
		}
		p.fail(err)
		return
	}

	p.mu.Lock()
	if p.state != StateNegotiating {
		p.mu.Unlock()
		ch.Close()
		return
	}
	p.ch = ch
	p.state = StateOpen
	p.mu.Unlock()

	ch.OnBufferedAmountLow(func() {
		select {
		case p.lowSignal <- struct{}{}:
		default:
		}
	})

	close(p.opened)
	p.log.Debug("data channel open")
	if p.cb.OnOpen != nil {
		p.cb.OnOpen()
	}

	go p.readLoop(ch)
}

// WaitOpen blocks until the channel is open, the transfer ends, or ctx is
// done.
func (p *PeerTransfer) WaitOpen(ctx context.Context) error {
	select {
	case <-p.opened:
		return nil
	default:
	}

	select {
	case <-p.opened:
		return nil
	case <-p.done:
		return p.terminalErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PeerTransfer) terminalErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	return ErrChannelClosed
}

func (p *PeerTransfer) readLoop(ch Channel) {
	for {
		select {
		case data, ok := <-ch.Recv():
			if !ok {
				p.channelEnded(ch)
				return
			}
			p.handleMessage(data)
		case <-p.done:
			return
		}
	}
}

func (p *PeerTransfer) channelEnded(ch Channel) {
	select {
	case <-p.done:
		return
	default:
	}

	details := "remote closed the channel"
	if err := ch.Err(); err != nil {
		details = err.Error()
	}
	p.fail(WrapError("receive", ErrPeerDisconnected, details))
}

// fail moves the transfer to Failed and reports err once.
func (p *PeerTransfer) fail(err error) {
	first := false
	p.doneOnce.Do(func() {
		first = true
		p.mu.Lock()
		p.state = StateFailed
		p.err = err
		p.recv = nil
		ch := p.ch
		p.mu.Unlock()

		close(p.done)
		if ch != nil {
			ch.Close()
		}
	})
	if !first {
		return
	}

	p.log.Warn("transfer failed", "err", err)
	if p.cb.OnError != nil {
		p.cb.OnError(err)
	}
}

// Destroy closes the channel and discards any partially received file. It
// is safe to call more than once and never reports an error.
func (p *PeerTransfer) Destroy() {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		p.state = StateClosed
		p.recv = nil
		ch := p.ch
		p.mu.Unlock()

		close(p.done)
		if ch != nil {
			ch.Close()
		}
		p.log.Debug("transfer destroyed")
	})
}

// Done is closed once the transfer is destroyed or has failed.
func (p *PeerTransfer) Done() <-chan struct{} {
	return p.done
}

func (p *PeerTransfer) channel() (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateOpen || p.ch == nil {
		if p.state == StateClosed || p.state == StateFailed {
			return nil, ErrChannelClosed
		}
		return nil, ErrChannelNotOpen
	}
	return p.ch, nil
}
