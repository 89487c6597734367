package relay

import "time"

// Room pairs a host with at most one peer.
type Room struct {
	// Code is the room code the host registered.
	Code string

	// HostID is the connection that created the room.
	HostID   string
	HostType string

	// PeerID is the connection that joined the room, empty while waiting.
	PeerID   string
	PeerType string

	CreatedAt time.Time
}

func (r *Room) isMember(connID string) bool {
	return connID != "" && (r.HostID == connID || r.PeerID == connID)
}

// other returns the member that is not connID, or "" when absent.
func (r *Room) other(connID string) string {
	if r.HostID == connID {
		return r.PeerID
	}
	return r.HostID
}
