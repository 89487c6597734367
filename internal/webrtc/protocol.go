package webrtc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

type ProtocolType string

const (
	// TaggedProtocol prefixes every message with a kind tag and a length.
	TaggedProtocol ProtocolType = "tagged"

	// LegacyProtocol sends control messages as JSON text and classifies by
	// sniffing (web-compatible).
	LegacyProtocol ProtocolType = "legacy"
)

// SelectProtocol picks the framing from the peer's announced client type.
func SelectProtocol(peerType string) ProtocolType {
	if peerType == "cli" {
		return TaggedProtocol
	}
	return LegacyProtocol
}

// Framing encodes and decodes data channel messages.
type Framing interface {
	Protocol() ProtocolType
	EncodeControl(Control) ([]byte, error)
	EncodeChunk([]byte) []byte
	Decode([]byte) (Frame, error)

	// MaxChunk is the largest payload that fits one message.
	MaxChunk() int
}

// NewFraming returns the Framing for p.
func NewFraming(p ProtocolType) Framing {
	if p == LegacyProtocol {
		return legacyFraming{}
	}
	return taggedFraming{}
}

// SniffThreshold is the length below which a legacy message is tried as a
// control message.
const SniffThreshold = 1024

type legacyFraming struct{}

func (legacyFraming) Protocol() ProtocolType { return LegacyProtocol }

func (legacyFraming) MaxChunk() int { return ChunkSize }

func (legacyFraming) EncodeControl(c Control) ([]byte, error) {
	return json.Marshal(c)
}

func (legacyFraming) EncodeChunk(b []byte) []byte {
	return b
}

// Decode classifies by length and content. A chunk shorter than
// SniffThreshold that happens to be a valid control message is
// misclassified; peers speaking this framing accept that.
func (legacyFraming) Decode(b []byte) (Frame, error) {
	if len(b) < SniffThreshold && utf8.Valid(b) {
		var c Control
		if err := json.Unmarshal(b, &c); err == nil && c.known() {
			return Frame{Control: &c}, nil
		}
	}
	return Frame{Chunk: b}, nil
}

const (
	tagControl byte = 0x01
	tagChunk   byte = 0x02

	headerLen = 5
)

type taggedFraming struct{}

func (taggedFraming) Protocol() ProtocolType { return TaggedProtocol }

func (taggedFraming) MaxChunk() int { return ChunkSize - headerLen }

func (taggedFraming) EncodeControl(c Control) ([]byte, error) {
	body, err := msgpack.Marshal(c)
	if err != nil {
		return nil, err
	}
	return frame(tagControl, body), nil
}

func (taggedFraming) EncodeChunk(b []byte) []byte {
	return frame(tagChunk, b)
}

func frame(tag byte, body []byte) []byte {
	out := make([]byte, headerLen+len(body))
	out[0] = tag
	binary.BigEndian.PutUint32(out[1:headerLen], uint32(len(body)))
	copy(out[headerLen:], body)
	return out
}

func (taggedFraming) Decode(b []byte) (Frame, error) {
	if len(b) < headerLen {
		return Frame{}, fmt.Errorf("%w: short header (%d bytes)", ErrMalformedFrame, len(b))
	}

	n := binary.BigEndian.Uint32(b[1:headerLen])
	body := b[headerLen:]
	if uint64(n) != uint64(len(body)) {
		return Frame{}, fmt.Errorf("%w: length %d, have %d", ErrMalformedFrame, n, len(body))
	}

	switch b[0] {
	case tagChunk:
		return Frame{Chunk: body}, nil
	case tagControl:
		var c Control
		if err := msgpack.Unmarshal(body, &c); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if !c.known() {
			return Frame{}, fmt.Errorf("%w: unknown control %q", ErrMalformedFrame, c.Type)
		}
		return Frame{Control: &c}, nil
	}
	return Frame{}, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformedFrame, b[0])
}
