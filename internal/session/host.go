package session

import (
	"context"
	"errors"

	"github.com/BioHazard786/webdrop/internal/relay"
	"github.com/BioHazard786/webdrop/internal/roomcode"
	"github.com/BioHazard786/webdrop/internal/transfer"
)

// NewHost returns a session that creates a room and receives files from
// whoever joins it.
func NewHost(opts Options) *Session {
	return newSession(RoleHost, opts)
}

func (s *Session) startHost(ctx context.Context) error {
	code := roomcode.Normalize(s.opts.Code)
	if !roomcode.Valid(code) {
		code = s.opts.GenerateCode()
	}

	for attempt := 1; ; attempt++ {
		if err := s.client.CreateRoom(ctx, code); err != nil {
			return err
		}

		_, err := s.awaitEvent(ctx, relay.TypeRoomCreated)
		if err == nil {
			break
		}
		if !errors.Is(err, transfer.ErrRoomTaken) || attempt == MaxCreateAttempts {
			return err
		}
		s.log.Warn("room code taken, retrying", "room", code, "attempt", attempt)
		code = s.opts.GenerateCode()
	}

	s.update(func(snap *Snapshot) { snap.RoomCode = code })
	s.log.Info("room created", "room", code)
	return nil
}
