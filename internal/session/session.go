// Package session drives one side of a transfer: it pairs with the other
// peer through the relay and runs the file protocol over the resulting
// peer connection.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/BioHazard786/webdrop/internal/relay"
	"github.com/BioHazard786/webdrop/internal/roomcode"
	"github.com/BioHazard786/webdrop/internal/signaling"
	"github.com/BioHazard786/webdrop/internal/transfer"
	"github.com/BioHazard786/webdrop/internal/webrtc"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusTransferring Status = "transferring"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

type Role string

const (
	RoleHost   Role = "host"
	RoleJoiner Role = "joiner"
)

type FileStatus string

const (
	FilePending      FileStatus = "pending"
	FileTransferring FileStatus = "transferring"
	FileCompleted    FileStatus = "completed"
	FileError        FileStatus = "error"
)

const (
	// MaxCreateAttempts bounds how many fresh codes a host tries when the
	// relay reports a collision.
	MaxCreateAttempts = 5

	// EventTimeout bounds the wait for the relay to acknowledge a create or
	// join.
	EventTimeout = 10 * time.Second
)

// FileProgress is the state of one file in a session.
type FileProgress struct {
	Metadata webrtc.FileMetadata
	Status   FileStatus
	Progress float64

	// SavedAs is where a received file was stored.
	SavedAs string
	Err     string
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	Role     Role
	Status   Status
	RoomCode string
	Peer     relay.PeerInfo

	// PeerConnected is true while the other member is in the room.
	PeerConnected bool
	Files         []FileProgress

	// Speed is the rate of the active file in bytes per second.
	Speed float64
	Err   error
}

// Saver stores a completely received file and returns where it went.
type Saver interface {
	Save(f transfer.File) (string, error)
}

// Source is a file offered for sending.
type Source struct {
	Metadata webrtc.FileMetadata
	Open     func() (io.ReadCloser, error)
}

type Options struct {
	ServerURL string

	// ClientType is announced to the other peer; it defaults to cli.
	ClientType string

	Dialer transfer.Dialer

	// Saver receives completed files on the host side.
	Saver Saver

	// Code is the host's first room code. Later attempts after a collision
	// use GenerateCode.
	Code         string
	GenerateCode func() string

	NegotiationTimeout time.Duration
	Log                *slog.Logger
}

// Session is one side of a transfer.
type Session struct {
	opts   Options
	log    *slog.Logger
	client *signaling.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	snap    Snapshot
	peer    *transfer.PeerTransfer
	gen     int
	updates chan Snapshot
	closed  bool

	closeOnce sync.Once
}

func newSession(role Role, opts Options) *Session {
	if opts.ClientType == "" {
		opts.ClientType = relay.ClientTypeCLI
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = roomcode.Generate
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("role", role)

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:    opts,
		log:     log,
		client:  signaling.NewClient(opts.ServerURL, opts.ClientType, log),
		ctx:     ctx,
		cancel:  cancel,
		snap:    Snapshot{Role: role, Status: StatusIdle},
		updates: make(chan Snapshot, 1),
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Updates delivers the latest snapshot after every change. Intermediate
// snapshots are dropped when the reader falls behind. It is closed by Close.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

func (s *Session) copyLocked() Snapshot {
	c := s.snap
	c.Files = append([]FileProgress(nil), s.snap.Files...)
	return c
}

// update applies f to the state under the lock and publishes the result.
func (s *Session) update(f func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.snap)
	s.publishLocked()
}

func (s *Session) publishLocked() {
	if s.closed {
		return
	}
	snap := s.copyLocked()
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}

func (s *Session) setStatus(st Status) {
	s.update(func(snap *Snapshot) {
		if snap.Status == StatusError {
			return
		}
		snap.Status = st
	})
}

// fail moves the session to error and tears down the peer connection. The
// first error wins.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.snap.Status == StatusError {
		first := s.snap.Err
		s.mu.Unlock()
		return first
	}
	s.snap.Status = StatusError
	s.snap.Err = err
	peer := s.peer
	s.peer = nil
	s.publishLocked()
	s.mu.Unlock()

	s.log.Error("session failed", "err", err)
	if peer != nil {
		peer.Destroy()
	}
	return err
}

// Start connects to the relay and creates or joins the room. It returns
// once the relay has acknowledged; pairing and transfer continue in the
// background.
func (s *Session) Start(ctx context.Context) error {
	s.setStatus(StatusConnecting)

	if err := s.client.Connect(ctx); err != nil {
		return s.fail(err)
	}

	var err error
	if s.snap.Role == RoleHost {
		err = s.startHost(ctx)
	} else {
		err = s.startJoiner(ctx)
	}
	if err != nil {
		return s.fail(err)
	}

	s.wg.Add(1)
	go s.loop()
	return nil
}

// awaitEvent waits for the next relay event of one of the given types. A
// terminal event is returned as its error.
func (s *Session) awaitEvent(ctx context.Context, types ...string) (signaling.Event, error) {
	timer := time.NewTimer(EventTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-s.client.Events():
			if !ok {
				return signaling.Event{}, transfer.WrapError("await relay", transfer.ErrSignalingError, "connection lost")
			}
			if lo.Contains(types, ev.Type) {
				return ev, nil
			}
			if err := ev.Err(); err != nil {
				return ev, err
			}
			s.log.Debug("ignoring relay event", "type", ev.Type)
		case <-timer.C:
			return signaling.Event{}, transfer.NewError("await relay", transfer.ErrTimeout)
		case <-ctx.Done():
			return signaling.Event{}, ctx.Err()
		}
	}
}

// connectPeer replaces the active peer connection with a new one to peer.
func (s *Session) connectPeer(peer relay.PeerInfo, initiator bool) *transfer.PeerTransfer {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	old := s.peer
	code := s.snap.RoomCode
	s.snap.Peer = peer
	s.snap.PeerConnected = true
	if s.snap.Status != StatusError {
		s.snap.Status = StatusConnecting
	}
	s.mu.Unlock()

	if old != nil {
		old.Destroy()
	}

	pt := transfer.NewPeerTransfer(s.opts.Dialer, s.client.Room(code), transfer.Options{
		Initiator: initiator,
		Protocol:  webrtc.SelectProtocol(peer.ClientType),
		Timeout:   s.opts.NegotiationTimeout,
		Log:       s.log.With("room", code),
	}, s.callbacks(gen))

	s.mu.Lock()
	s.peer = pt
	s.publishLocked()
	s.mu.Unlock()

	s.log.Info("peer joined", "room", code, "client_type", peer.ClientType, "initiator", initiator)
	pt.Start(s.ctx)
	return pt
}

// current reports whether gen is still the active peer connection.
func (s *Session) current(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.peer != nil
}

func (s *Session) callbacks(gen int) transfer.Callbacks {
	return transfer.Callbacks{
		OnOpen: func() {
			if s.current(gen) {
				s.setStatus(StatusConnected)
			}
		},
		OnFileStart: func(meta webrtc.FileMetadata) {
			if s.current(gen) {
				s.fileStarted(meta)
			}
		},
		OnProgress: func(id string, pct, speed float64) {
			if s.current(gen) {
				s.fileProgress(id, pct, speed)
			}
		},
		OnFileComplete: func(f transfer.File) {
			if s.current(gen) {
				s.fileReceived(f)
			}
		},
		OnError: func(err error) {
			if !s.current(gen) {
				return
			}
			if s.Snapshot().Status == StatusCompleted {
				s.log.Debug("error after completion ignored", "err", err)
				return
			}
			// a host outlives its peers
			if s.snap.Role == RoleHost && errors.Is(err, transfer.ErrPeerDisconnected) {
				s.dropPeer(gen, false)
				return
			}
			s.fail(err)
		},
	}
}

func (s *Session) fileStarted(meta webrtc.FileMetadata) {
	s.update(func(snap *Snapshot) {
		_, i, ok := lo.FindIndexOf(snap.Files, func(f FileProgress) bool { return f.Metadata.ID == meta.ID })
		if !ok {
			snap.Files = append(snap.Files, FileProgress{Metadata: meta})
			i = len(snap.Files) - 1
		}
		snap.Files[i].Status = FileTransferring
		snap.Files[i].Progress = 0
		if snap.Status != StatusError {
			snap.Status = StatusTransferring
		}
	})
}

func (s *Session) fileProgress(id string, pct, speed float64) {
	s.update(func(snap *Snapshot) {
		_, i, ok := lo.FindIndexOf(snap.Files, func(f FileProgress) bool { return f.Metadata.ID == id })
		if !ok {
			return
		}
		snap.Files[i].Progress = pct
		snap.Speed = speed
	})
}

// fileReceived hands a completed file to the Saver. The session completes
// once every known file has; a file that cannot be saved fails it.
func (s *Session) fileReceived(f transfer.File) {
	var (
		path string
		err  error
	)
	if s.opts.Saver != nil {
		path, err = s.opts.Saver.Save(f)
	}
	if err != nil {
		s.markFile(f.Metadata.ID, FileError, err)
		s.fail(transfer.NewFileError("save", f.Metadata.Name, err))
		return
	}
	s.log.Info("file received", "file", f.Metadata.Name, "bytes", len(f.Payload), "path", path)

	s.update(func(snap *Snapshot) {
		_, i, ok := lo.FindIndexOf(snap.Files, func(p FileProgress) bool { return p.Metadata.ID == f.Metadata.ID })
		if !ok {
			return
		}
		snap.Files[i].Status = FileCompleted
		snap.Files[i].Progress = 100
		snap.Files[i].SavedAs = path
		if snap.Status != StatusError && allCompleted(snap.Files) {
			snap.Status = StatusCompleted
		}
	})
}

func (s *Session) markFile(id string, st FileStatus, err error) {
	s.update(func(snap *Snapshot) {
		for i := range snap.Files {
			if snap.Files[i].Metadata.ID != id {
				continue
			}
			snap.Files[i].Status = st
			if st == FileCompleted {
				snap.Files[i].Progress = 100
			}
			if err != nil {
				snap.Files[i].Err = err.Error()
			}
		}
	})
}

func allCompleted(files []FileProgress) bool {
	return len(files) > 0 && lo.EveryBy(files, func(f FileProgress) bool {
		return f.Status == FileCompleted
	})
}

// loop handles relay notifications after the room is established.
func (s *Session) loop() {
	defer s.wg.Done()

	for {
		select {
		case ev, ok := <-s.client.Events():
			if !ok {
				s.relayLost()
				return
			}
			s.handleEvent(ev)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handleEvent(ev signaling.Event) {
	switch ev.Type {
	case relay.TypePeerJoined:
		s.connectPeer(ev.Peer, true)

	case relay.TypePeerLeft:
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()
		s.dropPeer(gen, true)
		s.log.Info("peer left", "room", ev.RoomID)

	case relay.TypeRoomClosed, relay.TypeRoomExpired, relay.TypeError:
		s.mu.Lock()
		s.snap.PeerConnected = false
		completed := s.snap.Status == StatusCompleted
		s.mu.Unlock()

		if completed {
			s.log.Info("room ended after completion", "type", ev.Type)
			s.update(func(*Snapshot) {})
			return
		}
		s.fail(ev.Err())

	default:
		s.log.Debug("ignoring relay event", "type", ev.Type)
	}
}

// dropPeer discards peer connection gen and waits for another peer. left
// records that the peer is gone from the room as well.
func (s *Session) dropPeer(gen int, left bool) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	peer := s.peer
	s.peer = nil
	if left {
		s.snap.PeerConnected = false
	}
	if s.snap.Status != StatusCompleted && s.snap.Status != StatusError {
		s.snap.Status = StatusConnecting
	}
	s.publishLocked()
	s.mu.Unlock()

	if peer != nil {
		peer.Destroy()
	}
}

func (s *Session) relayLost() {
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	if s.Snapshot().Status == StatusCompleted {
		return
	}
	s.fail(transfer.WrapError("relay", transfer.ErrSignalingError, "connection lost"))
}

// Close releases the peer connection, the relay connection and every
// goroutine the session started. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		peer := s.peer
		s.peer = nil
		s.mu.Unlock()

		if peer != nil {
			peer.Destroy()
		}
		s.client.Close()
		s.wg.Wait()

		s.mu.Lock()
		s.closed = true
		close(s.updates)
		s.mu.Unlock()
	})
}
