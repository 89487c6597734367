package transfertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/BioHazard786/webdrop/internal/transfer"
)

type offer struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// LoopbackDialer pairs dialers in the same process. Negotiation still runs
// through the Signaler: the initiator's offer carries a key naming an
// in-memory pipe, and the answer echoes it.
type LoopbackDialer struct {
	Options PipeOptions

	mu      sync.Mutex
	pending map[string]*End
	ends    []*End
}

func NewLoopbackDialer(opts PipeOptions) *LoopbackDialer {
	return &LoopbackDialer{Options: opts, pending: make(map[string]*End)}
}

func (d *LoopbackDialer) Dial(ctx context.Context, sig transfer.Signaler, initiator bool) (transfer.Channel, error) {
	if initiator {
		return d.offer(ctx, sig)
	}
	return d.answer(ctx, sig)
}

func (d *LoopbackDialer) offer(ctx context.Context, sig transfer.Signaler) (transfer.Channel, error) {
	key := uuid.NewString()
	local, remote := NewPipe(d.Options)

	d.mu.Lock()
	d.pending[key] = remote
	d.ends = append(d.ends, local)
	d.mu.Unlock()

	if err := send(ctx, sig, offer{Type: "offer", SDP: key}); err != nil {
		local.Close()
		return nil, err
	}

	if err := await(ctx, sig, "answer", func(sdp string) bool { return sdp == key }); err != nil {
		local.Close()
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		return nil, err
	}
	return local, nil
}

func (d *LoopbackDialer) answer(ctx context.Context, sig transfer.Signaler) (transfer.Channel, error) {
	var (
		end *End
		key string
	)
	err := await(ctx, sig, "offer", func(k string) bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		end = d.pending[k]
		delete(d.pending, k)
		key = k
		return end != nil
	})
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.ends = append(d.ends, end)
	d.mu.Unlock()

	if err := send(ctx, sig, offer{Type: "answer", SDP: key}); err != nil {
		end.Close()
		return nil, err
	}
	return end, nil
}

// Ends returns every channel end handed out so far, in dial order.
func (d *LoopbackDialer) Ends() []*End {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*End(nil), d.ends...)
}

func send(ctx context.Context, sig transfer.Signaler, o offer) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return sig.Send(ctx, b)
}

// await consumes signals until one of type typ whose sdp satisfies match.
func await(ctx context.Context, sig transfer.Signaler, typ string, match func(string) bool) error {
	for {
		select {
		case raw, ok := <-sig.Signals():
			if !ok {
				return fmt.Errorf("signals closed while waiting for %s", typ)
			}
			var o offer
			if err := json.Unmarshal(raw, &o); err != nil || o.Type != typ {
				continue
			}
			if match(o.SDP) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Fixed is a Dialer that hands out a prepared channel.
type Fixed struct {
	Channel transfer.Channel
}

func (f Fixed) Dial(ctx context.Context, _ transfer.Signaler, _ bool) (transfer.Channel, error) {
	return f.Channel, nil
}

// Signaler is an in-memory transfer.Signaler.
type Signaler struct {
	in   chan json.RawMessage
	peer *Signaler
}

// NewSignalerPair returns two Signalers that deliver to each other.
func NewSignalerPair() (*Signaler, *Signaler) {
	a := &Signaler{in: make(chan json.RawMessage, 32)}
	b := &Signaler{in: make(chan json.RawMessage, 32)}
	a.peer, b.peer = b, a
	return a, b
}

func (s *Signaler) Send(ctx context.Context, payload json.RawMessage) error {
	select {
	case s.peer.in <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Signaler) Signals() <-chan json.RawMessage {
	return s.in
}

// Hang is a Dialer whose negotiation never completes.
type Hang struct{}

func (Hang) Dial(ctx context.Context, _ transfer.Signaler, _ bool) (transfer.Channel, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
