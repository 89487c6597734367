package transfer

import (
	"context"
	"encoding/json"
	"log/slog"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/webdrop/internal/config"
	"github.com/BioHazard786/webdrop/internal/utils"
)

const dataChannelLabel = "webdrop"

// signal is the negotiation payload exchanged through the relay.
type signal struct {
	Type      string                 `json:"type"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

// ICEDialer negotiates a WebRTC data channel with pion.
type ICEDialer struct {
	Config pion.Configuration
	Log    *slog.Logger
}

// NewICEDialer builds the ICE server list from cfg. The relay-only policy is
// used when forced or when the network looks like it needs TURN.
func NewICEDialer(cfg *config.Config, log *slog.Logger) *ICEDialer {
	iceServers := []pion.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	return &ICEDialer{
		Config: pion.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		},
		Log: log,
	}
}

func (d *ICEDialer) Dial(ctx context.Context, sig Signaler, initiator bool) (Channel, error) {
	pc, err := pion.NewPeerConnection(d.Config)
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	n := &negotiation{
		ctx:       ctx,
		pc:        pc,
		sig:       sig,
		log:       log,
		initiator: initiator,
		opened:    make(chan *dataChannel, 1),
		failed:    make(chan struct{}, 1),
	}

	ch, err := n.run()
	if err != nil {
		pc.Close()
		return nil, err
	}
	return ch, nil
}

type negotiation struct {
	ctx       context.Context
	pc        *pion.PeerConnection
	sig       Signaler
	log       *slog.Logger
	initiator bool

	opened chan *dataChannel
	failed chan struct{}

	remoteSet bool
	pending   []pion.ICECandidateInit
}

func (n *negotiation) run() (Channel, error) {
	n.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := n.send(signal{Type: "candidate", Candidate: &init}); err != nil {
			n.log.Debug("candidate not sent", "err", err)
		}
	})

	n.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		n.log.Debug("peer connection state", "state", state.String())
		if state == pion.PeerConnectionStateFailed {
			select {
			case n.failed <- struct{}{}:
			default:
			}
		}
	})

	if n.initiator {
		ordered := true
		dc, err := n.pc.CreateDataChannel(dataChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
		if err != nil {
			return nil, NewError("create data channel", err)
		}
		n.watch(dc)

		offer, err := n.pc.CreateOffer(nil)
		if err != nil {
			return nil, NewError("create offer", err)
		}
		if err := n.pc.SetLocalDescription(offer); err != nil {
			return nil, NewError("set local description", err)
		}
		if err := n.send(signal{Type: "offer", SDP: offer.SDP}); err != nil {
			return nil, NewError("send offer", err)
		}
	} else {
		n.pc.OnDataChannel(n.watch)
	}

	for {
		select {
		case raw, ok := <-n.sig.Signals():
			if !ok {
				return nil, NewError("negotiate", ErrSignalingError)
			}
			if err := n.handle(raw); err != nil {
				return nil, err
			}
		case ch := <-n.opened:
			go n.trickle(ch)
			return ch, nil
		case <-n.failed:
			return nil, NewError("negotiate", ErrChannelError)
		case <-n.ctx.Done():
			return nil, n.ctx.Err()
		}
	}
}

// trickle keeps applying candidates that arrive after the channel opened,
// until it closes.
func (n *negotiation) trickle(ch *dataChannel) {
	for {
		select {
		case raw, ok := <-n.sig.Signals():
			if !ok {
				return
			}
			if err := n.handle(raw); err != nil {
				n.log.Debug("late signal dropped", "err", err)
			}
		case <-ch.Done():
			return
		}
	}
}

// watch wraps dc immediately so no message is missed between open and the
// first read.
func (n *negotiation) watch(dc *pion.DataChannel) {
	ch := newDataChannel(n.pc, dc)
	go func() {
		select {
		case <-ch.opened:
			select {
			case n.opened <- ch:
			default:
			}
		case <-n.ctx.Done():
		}
	}()
}

func (n *negotiation) send(s signal) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return n.sig.Send(n.ctx, b)
}

func (n *negotiation) handle(raw json.RawMessage) error {
	var s signal
	if err := json.Unmarshal(raw, &s); err != nil {
		n.log.Debug("ignoring unparsable signal", "err", err)
		return nil
	}

	switch s.Type {
	case "offer":
		if n.initiator {
			return WrapError("handle signal", ErrUnexpectedSignal, s.Type)
		}
		if err := n.setRemote(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: s.SDP}); err != nil {
			return err
		}
		answer, err := n.pc.CreateAnswer(nil)
		if err != nil {
			return NewError("create answer", err)
		}
		if err := n.pc.SetLocalDescription(answer); err != nil {
			return NewError("set local description", err)
		}
		if err := n.send(signal{Type: "answer", SDP: answer.SDP}); err != nil {
			return NewError("send answer", err)
		}

	case "answer":
		if !n.initiator {
			return WrapError("handle signal", ErrUnexpectedSignal, s.Type)
		}
		return n.setRemote(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: s.SDP})

	case "candidate":
		if s.Candidate == nil || s.Candidate.Candidate == "" {
			return nil
		}
		if !n.remoteSet {
			n.pending = append(n.pending, *s.Candidate)
			return nil
		}
		if err := n.pc.AddICECandidate(*s.Candidate); err != nil {
			n.log.Debug("add ICE candidate failed", "err", err)
		}

	default:
		n.log.Debug("ignoring signal", "type", s.Type)
	}
	return nil
}

// setRemote applies the remote description and flushes candidates that
// arrived before it.
func (n *negotiation) setRemote(desc pion.SessionDescription) error {
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return NewError("set remote description", err)
	}
	n.remoteSet = true
	for _, c := range n.pending {
		if err := n.pc.AddICECandidate(c); err != nil {
			n.log.Debug("add ICE candidate failed", "err", err)
		}
	}
	n.pending = nil
	return nil
}
