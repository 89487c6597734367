package session

import (
	"context"
	"fmt"
	"io"

	"github.com/samber/lo"

	"github.com/BioHazard786/webdrop/internal/relay"
	"github.com/BioHazard786/webdrop/internal/roomcode"
	"github.com/BioHazard786/webdrop/internal/transfer"
)

// NewJoiner returns a session that joins the room named by input, a bare
// code or a room link, and sends files to its host.
func NewJoiner(input string, opts Options) (*Session, error) {
	code, err := roomcode.Parse(input)
	if err != nil {
		return nil, transfer.NewError("join room", err)
	}
	s := newSession(RoleJoiner, opts)
	s.snap.RoomCode = code
	return s, nil
}

func (s *Session) startJoiner(ctx context.Context) error {
	code := s.Snapshot().RoomCode
	if err := s.client.JoinRoom(ctx, code); err != nil {
		return err
	}

	ev, err := s.awaitEvent(ctx, relay.TypeRoomJoined)
	if err != nil {
		return err
	}

	s.log.Info("joined room", "room", code)
	s.connectPeer(ev.Peer, false)
	return nil
}

// SendFiles sends srcs to the host one after another. A file that cannot
// be opened is marked failed and the rest still go; any failure once a file
// has started ends the session. The session is completed once every file
// has been sent; if any could not be, it ends in error once the rest are
// delivered.
func (s *Session) SendFiles(ctx context.Context, srcs []Source) error {
	s.mu.Lock()
	peer := s.peer
	for _, src := range srcs {
		s.snap.Files = append(s.snap.Files, FileProgress{Metadata: src.Metadata, Status: FilePending})
	}
	s.publishLocked()
	s.mu.Unlock()

	if peer == nil {
		return s.fail(transfer.NewError("send files", transfer.ErrChannelNotOpen))
	}
	if err := peer.WaitOpen(ctx); err != nil {
		return s.fail(err)
	}

	for _, src := range srcs {
		r, err := src.Open()
		if err != nil {
			s.log.Error("file not sent", "file", src.Metadata.Name, "err", err)
			s.markFile(src.Metadata.ID, FileError, transfer.NewFileError("open", src.Metadata.Name, err))
			continue
		}
		err = s.sendOne(ctx, peer, src, r)
		r.Close()
		if err != nil {
			// the peer may hold a partial file; nothing after it can be sent
			s.markFile(src.Metadata.ID, FileError, err)
			return s.fail(err)
		}
	}

	if err := peer.Flush(ctx); err != nil {
		return s.fail(err)
	}

	files := s.Snapshot().Files
	if !allCompleted(files) {
		failed := lo.CountBy(files, func(f FileProgress) bool { return f.Status == FileError })
		return s.fail(transfer.WrapError("send files", transfer.ErrFilesFailed,
			fmt.Sprintf("%d of %d files failed", failed, len(files))))
	}

	s.update(func(snap *Snapshot) {
		if snap.Status != StatusError {
			snap.Status = StatusCompleted
		}
	})
	return nil
}

func (s *Session) sendOne(ctx context.Context, peer *transfer.PeerTransfer, src Source, r io.Reader) error {
	s.fileStarted(src.Metadata)
	if err := peer.SendFile(ctx, src.Metadata, r); err != nil {
		return err
	}

	s.markFile(src.Metadata.ID, FileCompleted, nil)
	s.log.Info("file sent", "file", src.Metadata.Name, "bytes", src.Metadata.Size)
	return nil
}
