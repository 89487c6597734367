package transfer

import (
	"fmt"
	"time"

	"github.com/BioHazard786/webdrop/internal/webrtc"
)

// receiveBuffer accumulates the chunks of the one file being received.
type receiveBuffer struct {
	meta     webrtc.FileMetadata
	chunks   [][]byte
	received int64
	started  time.Time
}

func (b *receiveBuffer) assemble() []byte {
	out := make([]byte, 0, b.received)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

func (p *PeerTransfer) handleMessage(data []byte) {
	frame, err := p.framing.Decode(data)
	if err != nil {
		p.fail(WrapError("decode", ErrProtocolDecode, err.Error()))
		return
	}

	if !frame.IsControl() {
		p.handleChunk(frame.Chunk)
		return
	}

	switch frame.Control.Type {
	case webrtc.ControlFileStart:
		p.handleFileStart(*frame.Control.Metadata)
	case webrtc.ControlFileEnd:
		p.handleFileEnd(frame.Control.FileID)
	}
}

func (p *PeerTransfer) handleFileStart(meta webrtc.FileMetadata) {
	if err := meta.Validate(); err != nil {
		p.fail(WrapError("file-start", ErrProtocolDecode, err.Error()))
		return
	}

	p.mu.Lock()
	// the open buffer is never replaced, not even by a repeat of its own start
	if p.recv != nil {
		current := p.recv.meta.Name
		p.mu.Unlock()
		p.log.Warn("file-start ignored while a file is in flight", "file", meta.Name, "current", current)
		return
	}
	p.recv = &receiveBuffer{meta: meta, started: time.Now()}
	p.mu.Unlock()

	p.log.Debug("receiving file", "file", meta.Name, "size", meta.Size)
	if p.cb.OnFileStart != nil {
		p.cb.OnFileStart(meta)
	}
	if meta.Size == 0 && p.cb.OnProgress != nil {
		p.cb.OnProgress(meta.ID, 100, 0)
	}
}

func (p *PeerTransfer) handleChunk(chunk []byte) {
	p.mu.Lock()
	buf := p.recv
	if buf == nil {
		p.mu.Unlock()
		p.log.Warn("chunk dropped: no file in flight", "bytes", len(chunk))
		return
	}
	if buf.received+int64(len(chunk)) > buf.meta.Size {
		meta, received := buf.meta, buf.received+int64(len(chunk))
		p.recv = nil
		p.mu.Unlock()
		p.fail(WrapError("chunk "+meta.Name, ErrSizeMismatch,
			fmt.Sprintf("announced %d bytes, received at least %d", meta.Size, received)))
		return
	}
	buf.chunks = append(buf.chunks, chunk)
	buf.received += int64(len(chunk))
	meta, received, started := buf.meta, buf.received, buf.started
	p.mu.Unlock()

	if p.cb.OnProgress != nil {
		p.cb.OnProgress(meta.ID, Percent(received, meta.Size), Speed(received, time.Since(started)))
	}
}

func (p *PeerTransfer) handleFileEnd(fileID string) {
	p.mu.Lock()
	buf := p.recv
	if buf == nil || buf.meta.ID != fileID {
		p.mu.Unlock()
		p.log.Warn("file-end ignored: no matching file in flight", "file_id", fileID)
		return
	}
	p.recv = nil
	p.mu.Unlock()

	if buf.received != buf.meta.Size {
		p.fail(WrapError("file-end "+buf.meta.Name, ErrSizeMismatch,
			fmt.Sprintf("announced %d bytes, received %d", buf.meta.Size, buf.received)))
		return
	}

	payload := buf.assemble()
	p.log.Debug("file received", "file", buf.meta.Name, "bytes", len(payload))
	if p.cb.OnFileComplete != nil {
		p.cb.OnFileComplete(File{Metadata: buf.meta, Payload: payload})
	}
}
