package relay

import (
	"log/slog"
	"time"

	"github.com/BioHazard786/webdrop/internal/roomcode"
)

// DefaultRoomTTL is how long a room may live before the sweep removes it.
const DefaultRoomTTL = time.Hour

// Registry maps room codes to rooms. It is not safe for concurrent use; the
// Hub owns it and calls it from its Run goroutine only.
//
// Every mutating operation returns the notifications it produced so the
// caller can deliver them.
type Registry struct {
	rooms   map[string]*Room
	members map[string]string // connection ID -> room code
	ttl     time.Duration
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	return &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
		ttl:     ttl,
		log:     log,
	}
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	return len(r.rooms)
}

// Room returns a copy of the room registered under code.
func (r *Registry) Room(code string) (Room, bool) {
	room, ok := r.rooms[code]
	if !ok {
		return Room{}, false
	}
	return *room, true
}

// CreateRoom registers hostID as the host of code. A code held by another
// host is never overwritten.
func (r *Registry) CreateRoom(code, hostID, clientType string, now time.Time) ([]Envelope, error) {
	code = roomcode.Normalize(code)
	if !roomcode.Valid(code) {
		return []Envelope{{To: hostID, Msg: &Message{
			Type:    TypeError,
			Payload: errorPayload(roomcode.ErrInvalidCode.Error()),
		}}}, roomcode.ErrInvalidCode
	}

	if existing, ok := r.rooms[code]; ok {
		if existing.HostID != hostID {
			r.log.Info("room code collision", "room", code, "conn", hostID)
			return []Envelope{{To: hostID, Msg: &Message{Type: TypeRoomTaken, RoomID: code}}}, ErrRoomTaken
		}
		return []Envelope{{To: hostID, Msg: &Message{Type: TypeRoomCreated, RoomID: code}}}, nil
	}

	out := r.leave(hostID)

	r.rooms[code] = &Room{
		Code:      code,
		HostID:    hostID,
		HostType:  clientType,
		CreatedAt: now,
	}
	r.members[hostID] = code
	r.log.Info("room created", "room", code, "conn", hostID, "client_type", clientType)

	return append(out, Envelope{To: hostID, Msg: &Message{Type: TypeRoomCreated, RoomID: code}}), nil
}

// JoinRoom pairs joinerID with the host of code.
func (r *Registry) JoinRoom(code, joinerID, clientType string) ([]Envelope, error) {
	code = roomcode.Normalize(code)
	room, ok := r.rooms[code]
	if !ok {
		r.log.Info("join failed: room not found", "room", code, "conn", joinerID)
		return []Envelope{{To: joinerID, Msg: &Message{Type: TypeRoomNotFound, RoomID: code}}}, ErrRoomNotFound
	}
	if room.PeerID != "" || room.HostID == joinerID {
		r.log.Info("join failed: room full", "room", code, "conn", joinerID)
		return []Envelope{{To: joinerID, Msg: &Message{Type: TypeRoomFull, RoomID: code}}}, ErrRoomFull
	}

	// A connection belongs to one room at a time.
	out := r.leave(joinerID)

	room.PeerID = joinerID
	room.PeerType = clientType
	r.members[joinerID] = code
	r.log.Info("peer joined", "room", code, "conn", joinerID, "client_type", clientType)

	return append(out,
		Envelope{To: room.HostID, Msg: &Message{Type: TypePeerJoined, RoomID: code, Payload: peerInfoPayload(clientType)}},
		Envelope{To: joinerID, Msg: &Message{Type: TypeRoomJoined, RoomID: code, Payload: peerInfoPayload(room.HostType)}},
	), nil
}

// RelaySignal forwards signal from fromID to the other member of the room.
// Signals from non-members and signals with no one to receive them are dropped.
func (r *Registry) RelaySignal(fromID, code string, signal []byte) ([]Envelope, error) {
	if code == "" {
		code = r.members[fromID]
	}
	code = roomcode.Normalize(code)

	room, ok := r.rooms[code]
	if !ok {
		r.log.Debug("signal dropped: room not found", "room", code, "conn", fromID)
		return nil, ErrRoomNotFound
	}
	if !room.isMember(fromID) {
		r.log.Warn("signal dropped: sender not in room", "room", code, "conn", fromID)
		return nil, ErrNotInRoom
	}

	target := room.other(fromID)
	if target == "" {
		r.log.Debug("signal dropped: no other peer", "room", code, "conn", fromID)
		return nil, nil
	}
	return []Envelope{{To: target, Msg: &Message{Type: TypeSignal, RoomID: code, Signal: signal}}}, nil
}

// HandleDisconnect removes connID from its room. A departing host closes the
// room; a departing peer only frees the peer slot.
func (r *Registry) HandleDisconnect(connID string) []Envelope {
	return r.leave(connID)
}

func (r *Registry) leave(connID string) []Envelope {
	code, ok := r.members[connID]
	if !ok {
		return nil
	}
	delete(r.members, connID)

	room, ok := r.rooms[code]
	if !ok {
		return nil
	}

	switch connID {
	case room.HostID:
		delete(r.rooms, code)
		r.log.Info("room closed", "room", code, "conn", connID)
		if room.PeerID == "" {
			return nil
		}
		delete(r.members, room.PeerID)
		return []Envelope{{To: room.PeerID, Msg: &Message{Type: TypeRoomClosed, RoomID: code}}}
	case room.PeerID:
		room.PeerID = ""
		room.PeerType = ""
		r.log.Info("peer left", "room", code, "conn", connID)
		return []Envelope{{To: room.HostID, Msg: &Message{Type: TypePeerLeft, RoomID: code}}}
	}
	return nil
}

// SweepExpired removes every room older than the TTL and notifies its members.
func (r *Registry) SweepExpired(now time.Time) []Envelope {
	var out []Envelope
	for code, room := range r.rooms {
		if now.Sub(room.CreatedAt) <= r.ttl {
			continue
		}
		for _, id := range []string{room.HostID, room.PeerID} {
			if id == "" {
				continue
			}
			delete(r.members, id)
			out = append(out, Envelope{To: id, Msg: &Message{Type: TypeRoomExpired, RoomID: code}})
		}
		delete(r.rooms, code)
		r.log.Info("room expired", "room", code, "age", now.Sub(room.CreatedAt).Round(time.Second))
	}
	return out
}
