package webrtc

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	// ChunkSize is the largest data channel message a sender produces.
	ChunkSize = 64 * 1024

	ControlFileStart = "file-start"
	ControlFileEnd   = "file-end"
)

// ErrMalformedFrame reports a data channel message that cannot be decoded.
var ErrMalformedFrame = errors.New("malformed data channel message")

var validate = validator.New()

// FileMetadata describes a file announced by file-start. It is immutable
// once sent.
type FileMetadata struct {
	ID   string `json:"id" msgpack:"id" validate:"required"`
	Name string `json:"name" msgpack:"name" validate:"required"`
	Size int64  `json:"size" msgpack:"size" validate:"gte=0"`
	Type string `json:"type" msgpack:"type"`
}

// Validate checks metadata received from a peer.
func (m FileMetadata) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: invalid file metadata: %v", ErrMalformedFrame, err)
	}
	return nil
}

// Control is a data channel control message.
type Control struct {
	Type     string        `json:"type" msgpack:"type"`
	Metadata *FileMetadata `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	FileID   string        `json:"fileId,omitempty" msgpack:"fileId,omitempty"`
}

func FileStart(meta FileMetadata) Control {
	return Control{Type: ControlFileStart, Metadata: &meta}
}

func FileEnd(fileID string) Control {
	return Control{Type: ControlFileEnd, FileID: fileID}
}

func (c Control) known() bool {
	switch c.Type {
	case ControlFileStart:
		return c.Metadata != nil
	case ControlFileEnd:
		return true
	}
	return false
}

// Frame is one decoded data channel message: either a control message or a
// chunk of file payload.
type Frame struct {
	Control *Control
	Chunk   []byte
}

func (f Frame) IsControl() bool {
	return f.Control != nil
}
