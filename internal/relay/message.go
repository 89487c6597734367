package relay

import "encoding/json"

// Message types exchanged between clients and the relay.
const (
	TypeCreateRoom = "create-room"
	TypeJoinRoom   = "join-room"
	TypeSignal     = "signal"

	TypeRoomCreated  = "room-created"
	TypeRoomTaken    = "room-taken"
	TypeRoomNotFound = "room-not-found"
	TypeRoomFull     = "room-full"
	TypeRoomJoined   = "room-joined"
	TypePeerJoined   = "peer-joined"
	TypePeerLeft     = "peer-left"
	TypeRoomClosed   = "room-closed"
	TypeRoomExpired  = "room-expired"
	TypeError        = "error"
)

// Client types announced on create/join. They select the data channel framing.
const (
	ClientTypeCLI = "cli"
	ClientTypeWeb = "web"
)

// Message defines the structure for all client to relay and relay to client
// websocket messages.
type Message struct {
	Type       string          `json:"type"`
	RoomID     string          `json:"roomId,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
	ClientType string          `json:"clientType,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`

	// client is the connection that sent the message. Only set by the hub.
	client *Client `json:"-"`
}

// PeerInfo describes the other member of a room.
type PeerInfo struct {
	ClientType string `json:"clientType"`
}

// ErrorPayload is the payload of an "error" message.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Envelope is a message addressed to a single connection.
type Envelope struct {
	To  string
	Msg *Message
}

func peerInfoPayload(clientType string) json.RawMessage {
	if clientType == "" {
		clientType = ClientTypeWeb
	}
	b, _ := json.Marshal(PeerInfo{ClientType: clientType})
	return b
}

func errorPayload(text string) json.RawMessage {
	b, _ := json.Marshal(ErrorPayload{Error: text})
	return b
}
