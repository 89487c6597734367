package signaling

import (
	"encoding/json"

	"github.com/BioHazard786/webdrop/internal/relay"
	"github.com/BioHazard786/webdrop/internal/transfer"
)

// Event is a room notification from the relay.
type Event struct {
	Type   string
	RoomID string

	// Peer is set for room-joined and peer-joined.
	Peer relay.PeerInfo

	// Message is set for error events.
	Message string
}

func newEvent(msg *relay.Message) Event {
	ev := Event{Type: msg.Type, RoomID: msg.RoomID}

	switch msg.Type {
	case relay.TypeRoomJoined, relay.TypePeerJoined:
		if len(msg.Payload) > 0 {
			json.Unmarshal(msg.Payload, &ev.Peer)
		}
		if ev.Peer.ClientType == "" {
			ev.Peer.ClientType = relay.ClientTypeWeb
		}
	case relay.TypeError:
		var payload relay.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Error == "" {
			payload.Error = "unknown error from relay"
		}
		ev.Message = payload.Error
	}
	return ev
}

// Err maps terminal room events to their error, or nil.
func (e Event) Err() error {
	switch e.Type {
	case relay.TypeRoomNotFound:
		return transfer.NewError("join room "+e.RoomID, transfer.ErrRoomNotFound)
	case relay.TypeRoomFull:
		return transfer.NewError("join room "+e.RoomID, transfer.ErrRoomFull)
	case relay.TypeRoomTaken:
		return transfer.NewError("create room "+e.RoomID, transfer.ErrRoomTaken)
	case relay.TypeRoomClosed:
		return transfer.NewError("room "+e.RoomID, transfer.ErrRoomClosed)
	case relay.TypeRoomExpired:
		return transfer.NewError("room "+e.RoomID, transfer.ErrRoomExpired)
	case relay.TypeError:
		return transfer.WrapError("relay", transfer.ErrSignalingError, e.Message)
	}
	return nil
}
