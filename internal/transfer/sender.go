package transfer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/BioHazard786/webdrop/internal/webrtc"
)

// SendFile streams one file: file-start, its chunks in order, then file-end
// once the channel's buffer has drained. Calls are serialized; a second
// call waits for the first to finish.
func (p *PeerTransfer) SendFile(ctx context.Context, meta webrtc.FileMetadata, r io.Reader) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return NewFileError("send", meta.Name, err)
	}

	if err := p.sendControl(ch, webrtc.FileStart(meta)); err != nil {
		return NewFileError("send file-start", meta.Name, err)
	}

	var (
		sent  int64
		start = time.Now()
		buf   = make([]byte, p.framing.MaxChunk())
	)
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if err := p.waitBelow(ctx, ch, p.opts.HighWaterMark); err != nil {
				return NewFileError("send", meta.Name, err)
			}
			if err := ch.Send(p.framing.EncodeChunk(buf[:n])); err != nil {
				return NewFileError("send", meta.Name, p.sendErr(err))
			}
			sent += int64(n)
			p.reportProgress(meta, sent, start)
		}

		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return NewFileError("read", meta.Name, rerr)
		}
	}

	if meta.Size == 0 {
		p.reportProgress(meta, 0, start)
	}

	if err := p.waitBelow(ctx, ch, 0); err != nil {
		return NewFileError("drain", meta.Name, err)
	}

	if err := p.sendControl(ch, webrtc.FileEnd(meta.ID)); err != nil {
		return NewFileError("send file-end", meta.Name, err)
	}

	p.log.Debug("file sent", "file", meta.Name, "bytes", sent, "elapsed", time.Since(start))
	return nil
}

func (p *PeerTransfer) sendControl(ch Channel, c webrtc.Control) error {
	b, err := p.framing.EncodeControl(c)
	if err != nil {
		return err
	}
	if err := ch.Send(b); err != nil {
		return p.sendErr(err)
	}
	return nil
}

func (p *PeerTransfer) sendErr(err error) error {
	select {
	case <-p.done:
		return ErrChannelClosed
	default:
	}
	return WrapError("send", ErrChannelError, err.Error())
}

// waitBelow blocks until the channel's buffered amount is at most limit.
// It wakes on the channel's low-buffer notification and rechecks
// periodically.
func (p *PeerTransfer) waitBelow(ctx context.Context, ch Channel, limit uint64) error {
	if ch.BufferedAmount() <= limit {
		return nil
	}

	ch.SetBufferedAmountLowThreshold(limit)
	timer := time.NewTimer(bufferRecheck)
	defer timer.Stop()

	for ch.BufferedAmount() > limit {
		select {
		case <-p.lowSignal:
		case <-timer.C:
			timer.Reset(bufferRecheck)
		case <-ch.Done():
			return ErrChannelClosed
		case <-p.done:
			return ErrChannelClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *PeerTransfer) reportProgress(meta webrtc.FileMetadata, n int64, start time.Time) {
	if p.cb.OnProgress == nil {
		return
	}
	p.cb.OnProgress(meta.ID, Percent(n, meta.Size), Speed(n, time.Since(start)))
}

// Percent returns n as a percentage of total; an empty file is 100% done.
func Percent(n, total int64) float64 {
	if total <= 0 {
		return 100
	}
	pct := float64(n) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Speed returns bytes per second over elapsed.
func Speed(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// Flush waits until everything sent so far has left the local buffer.
func (p *PeerTransfer) Flush(ctx context.Context) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}
	return p.waitBelow(ctx, ch, 0)
}
