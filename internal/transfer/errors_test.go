package transfer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferErrorFormatting(t *testing.T) {
	assert.Equal(t, "send photo.png: channel closed", NewFileError("send", "photo.png", ErrChannelClosed).Error())
	assert.Equal(t, "decode: malformed data channel message (tag 0x07)", WrapError("decode", ErrProtocolDecode, "tag 0x07").Error())
	assert.Equal(t, "connect: timeout", NewError("connect", ErrTimeout).Error())
}

func TestTransferErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("session: %w", NewError("join", ErrRoomNotFound))
	assert.True(t, errors.Is(err, ErrRoomNotFound))

	var te *TransferError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, "join", te.Op)
}
