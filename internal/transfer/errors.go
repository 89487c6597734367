package transfer

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/webdrop/internal/ui"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrRoomTaken         = errors.New("room code already in use")
	ErrRoomClosed        = errors.New("room closed by host")
	ErrRoomExpired       = errors.New("room expired")
	ErrPeerDisconnected  = errors.New("peer disconnected")
	ErrSignalingError    = errors.New("signaling server error")
	ErrTimeout           = errors.New("timeout")
	ErrConnectionTimeout = errors.New("peer connection timed out")
	ErrChannelError      = errors.New("data channel error")
	ErrChannelClosed     = errors.New("channel closed")
	ErrChannelNotOpen    = errors.New("channel not open")
	ErrProtocolDecode    = errors.New("malformed data channel message")
	ErrSizeMismatch      = errors.New("received size does not match announced size")
	ErrInvalidFile       = errors.New("invalid file")
	ErrUnexpectedSignal  = errors.New("unexpected signal type")
	ErrFilesFailed       = errors.New("some files were not transferred")
)

type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Print() {
	ui.PrintError(e.Error())
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
