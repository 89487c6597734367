package transfer

import (
	"context"
	"encoding/json"
)

// Channel is an ordered, reliable, message-oriented byte channel between two
// peers.
type Channel interface {
	Send(data []byte) error

	// Recv delivers inbound messages in order. It is closed when the
	// channel closes.
	Recv() <-chan []byte

	// Done is closed once the channel is closed or has failed.
	Done() <-chan struct{}

	// Err returns the error that ended the channel, if any.
	Err() error

	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(f func())

	Close() error
}

// Signaler carries opaque negotiation payloads to and from the other peer.
type Signaler interface {
	Send(ctx context.Context, payload json.RawMessage) error
	Signals() <-chan json.RawMessage
}

// Dialer negotiates a Channel with the remote peer through a Signaler. The
// initiator creates the channel and makes the first offer.
type Dialer interface {
	Dial(ctx context.Context, sig Signaler, initiator bool) (Channel, error)
}
