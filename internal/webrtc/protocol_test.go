package webrtc

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var meta = FileMetadata{ID: "f-1", Name: "notes.txt", Size: 12, Type: "text/plain"}

func TestSelectProtocol(t *testing.T) {
	assert.Equal(t, TaggedProtocol, SelectProtocol("cli"))
	assert.Equal(t, LegacyProtocol, SelectProtocol("web"))
	assert.Equal(t, LegacyProtocol, SelectProtocol(""))
}

func TestControlRoundTrip(t *testing.T) {
	for _, p := range []ProtocolType{TaggedProtocol, LegacyProtocol} {
		t.Run(string(p), func(t *testing.T) {
			f := NewFraming(p)

			b, err := f.EncodeControl(FileStart(meta))
			require.NoError(t, err)
			got, err := f.Decode(b)
			require.NoError(t, err)
			require.True(t, got.IsControl())
			assert.Equal(t, ControlFileStart, got.Control.Type)
			assert.Equal(t, meta, *got.Control.Metadata)

			b, err = f.EncodeControl(FileEnd("f-1"))
			require.NoError(t, err)
			got, err = f.Decode(b)
			require.NoError(t, err)
			require.True(t, got.IsControl())
			assert.Equal(t, ControlFileEnd, got.Control.Type)
			assert.Equal(t, "f-1", got.Control.FileID)
		})
	}
}

func TestLegacyControlIsJSON(t *testing.T) {
	b, err := NewFraming(LegacyProtocol).EncodeControl(FileStart(meta))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"file-start","metadata":{"id":"f-1","name":"notes.txt","size":12,"type":"text/plain"}}`, string(b))
}

func TestLegacyChunkClassification(t *testing.T) {
	f := NewFraming(LegacyProtocol)

	binary := []byte{0xff, 0x00, 0x10}
	got, err := f.Decode(binary)
	require.NoError(t, err)
	assert.False(t, got.IsControl())
	assert.Equal(t, binary, got.Chunk)

	text := []byte("plain text that is not json")
	got, err = f.Decode(text)
	require.NoError(t, err)
	assert.False(t, got.IsControl())

	unknown := []byte(`{"type":"hello"}`)
	got, err = f.Decode(unknown)
	require.NoError(t, err)
	assert.False(t, got.IsControl())

	// Anything at or above the threshold is a chunk even if it parses.
	big, err := json.Marshal(FileStart(FileMetadata{ID: "x", Name: string(bytes.Repeat([]byte("a"), SniffThreshold))}))
	require.NoError(t, err)
	got, err = f.Decode(big)
	require.NoError(t, err)
	assert.False(t, got.IsControl())
}

// A small chunk whose bytes are a control message is misread by the legacy
// framing and read correctly by the tagged one.
func TestSniffMisclassification(t *testing.T) {
	payload := []byte(`{"type":"file-end","fileId":"f-1"}`)

	got, err := NewFraming(LegacyProtocol).Decode(NewFraming(LegacyProtocol).EncodeChunk(payload))
	require.NoError(t, err)
	assert.True(t, got.IsControl())

	tagged := NewFraming(TaggedProtocol)
	got, err = tagged.Decode(tagged.EncodeChunk(payload))
	require.NoError(t, err)
	assert.False(t, got.IsControl())
	assert.Equal(t, payload, got.Chunk)
}

func TestTaggedRejectsCorruptFrames(t *testing.T) {
	f := NewFraming(TaggedProtocol)
	good := f.EncodeChunk([]byte("hello"))

	cases := map[string][]byte{
		"short header":    good[:3],
		"truncated body":  good[:len(good)-1],
		"trailing bytes":  append(append([]byte{}, good...), 0x00),
		"unknown tag":     append([]byte{0x09}, good[1:]...),
		"control garbage": frame(tagControl, []byte{0xc1}),
		"unknown control": mustFrameControl(t, Control{Type: "resume"}),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.Decode(b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFrame))
		})
	}
}

func mustFrameControl(t *testing.T, c Control) []byte {
	t.Helper()
	b, err := taggedFraming{}.EncodeControl(c)
	require.NoError(t, err)
	return b
}

func TestTaggedEmptyChunk(t *testing.T) {
	f := NewFraming(TaggedProtocol)
	got, err := f.Decode(f.EncodeChunk(nil))
	require.NoError(t, err)
	assert.False(t, got.IsControl())
	assert.Empty(t, got.Chunk)
}

func TestMaxChunkFitsOneMessage(t *testing.T) {
	for _, p := range []ProtocolType{TaggedProtocol, LegacyProtocol} {
		f := NewFraming(p)
		b := f.EncodeChunk(make([]byte, f.MaxChunk()))
		assert.LessOrEqual(t, len(b), ChunkSize, p)
	}
}

func TestFileMetadataValidate(t *testing.T) {
	require.NoError(t, meta.Validate())
	require.NoError(t, FileMetadata{ID: "e", Name: "empty", Size: 0}.Validate())

	for _, bad := range []FileMetadata{
		{Name: "x", Size: 1},
		{ID: "x", Size: 1},
		{ID: "x", Name: "x", Size: -1},
	} {
		err := bad.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedFrame))
	}
}
