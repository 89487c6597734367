package session_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/webdrop/internal/relay"
	"github.com/BioHazard786/webdrop/internal/roomcode"
	"github.com/BioHazard786/webdrop/internal/server"
	"github.com/BioHazard786/webdrop/internal/session"
	"github.com/BioHazard786/webdrop/internal/transfer"
	"github.com/BioHazard786/webdrop/internal/transfer/transfertest"
	"github.com/BioHazard786/webdrop/internal/webrtc"
)

const waitFor = 5 * time.Second

type memSaver struct {
	mu    sync.Mutex
	files []transfer.File
}

func (m *memSaver) Save(f transfer.File) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, f)
	return "mem://" + f.Metadata.Name, nil
}

func (m *memSaver) Files() []transfer.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transfer.File(nil), m.files...)
}

type env struct {
	url    string
	dialer *transfertest.LoopbackDialer
	log    *slog.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(log, 0, 0)
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewRouter(hub, nil, log))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return &env{
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		dialer: transfertest.NewLoopbackDialer(transfertest.PipeOptions{}),
		log:    log,
	}
}

func (e *env) options() session.Options {
	return session.Options{
		ServerURL: e.url,
		Dialer:    e.dialer,
		Log:       e.log,
	}
}

func (e *env) host(t *testing.T, code string, saver session.Saver) *session.Session {
	t.Helper()
	opts := e.options()
	opts.Code = code
	opts.Saver = saver
	s := session.NewHost(opts)
	t.Cleanup(s.Close)
	require.NoError(t, s.Start(context.Background()))
	return s
}

func (e *env) joiner(t *testing.T, code string) *session.Session {
	t.Helper()
	s, err := session.NewJoiner(code, e.options())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func source(name string, data []byte) session.Source {
	return session.Source{
		Metadata: webrtc.FileMetadata{ID: name + "-id", Name: name, Size: int64(len(data)), Type: "application/octet-stream"},
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func waitStatus(t *testing.T, s *session.Session, want session.Status) session.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().Status == want
	}, waitFor, 10*time.Millisecond, "status never became %s (now %s)", want, s.Snapshot().Status)
	return s.Snapshot()
}

func TestEndToEnd(t *testing.T) {
	e := newEnv(t)
	saver := &memSaver{}

	host := e.host(t, "ABCD23", saver)
	assert.Equal(t, "ABCD23", host.Snapshot().RoomCode)

	joiner := e.joiner(t, "abcd23")
	require.NoError(t, joiner.Start(context.Background()))

	data := bytes.Repeat([]byte("webdrop!"), 200*1024/8)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, joiner.SendFiles(ctx, []session.Source{source("report.bin", data)}))

	js := joiner.Snapshot()
	assert.Equal(t, session.StatusCompleted, js.Status)
	require.Len(t, js.Files, 1)
	assert.Equal(t, session.FileCompleted, js.Files[0].Status)
	assert.Equal(t, 100.0, js.Files[0].Progress)

	hs := waitStatus(t, host, session.StatusCompleted)
	require.Len(t, hs.Files, 1)
	assert.Equal(t, session.FileCompleted, hs.Files[0].Status)
	assert.Equal(t, 100.0, hs.Files[0].Progress)
	assert.Equal(t, "mem://report.bin", hs.Files[0].SavedAs)
	assert.Equal(t, relay.ClientTypeCLI, hs.Peer.ClientType)

	got := saver.Files()
	require.Len(t, got, 1)
	assert.Equal(t, "report.bin", got[0].Metadata.Name)
	assert.True(t, bytes.Equal(data, got[0].Payload))
}

func TestSendManyFilesSequentially(t *testing.T) {
	e := newEnv(t)
	saver := &memSaver{}
	host := e.host(t, "MNPQ67", saver)

	joiner := e.joiner(t, "MNPQ67")
	require.NoError(t, joiner.Start(context.Background()))

	failing := session.Source{
		Metadata: webrtc.FileMetadata{ID: "gone-id", Name: "gone.txt", Size: 3},
		Open:     func() (io.ReadCloser, error) { return nil, errors.New("permission denied") },
	}
	srcs := []session.Source{
		source("empty.txt", nil),
		failing,
		source("small.txt", []byte("hello")),
		source("chunked.bin", bytes.Repeat([]byte{7}, 3*webrtc.ChunkSize)),
	}

	err := joiner.SendFiles(context.Background(), srcs)
	assert.True(t, errors.Is(err, transfer.ErrFilesFailed), err)

	js := joiner.Snapshot()
	assert.Equal(t, session.StatusError, js.Status)
	assert.Contains(t, js.Err.Error(), "1 of 4 files failed")
	require.Len(t, js.Files, 4)
	assert.Equal(t, session.FileCompleted, js.Files[3].Status)
	assert.Equal(t, session.FileError, js.Files[1].Status)
	assert.Contains(t, js.Files[1].Err, "permission denied")

	require.Eventually(t, func() bool { return len(saver.Files()) == 3 }, waitFor, 10*time.Millisecond)
	got := saver.Files()
	assert.Equal(t, "empty.txt", got[0].Metadata.Name)
	assert.Empty(t, got[0].Payload)
	assert.Equal(t, "small.txt", got[1].Metadata.Name)
	assert.Equal(t, "chunked.bin", got[2].Metadata.Name)
	assert.Len(t, got[2].Payload, 3*webrtc.ChunkSize)

	waitStatus(t, host, session.StatusCompleted)
}

type failingSaver struct{}

func (failingSaver) Save(transfer.File) (string, error) {
	return "", errors.New("disk full")
}

func TestSaveFailureFailsHost(t *testing.T) {
	e := newEnv(t)
	host := e.host(t, "RSTU34", failingSaver{})

	joiner := e.joiner(t, "RSTU34")
	require.NoError(t, joiner.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	// the joiner has no receipt from the host, so its own outcome is not checked
	joiner.SendFiles(ctx, []session.Source{source("a.txt", []byte("abc"))})

	hs := waitStatus(t, host, session.StatusError)
	assert.Contains(t, hs.Err.Error(), "disk full")
	require.Len(t, hs.Files, 1)
	assert.Equal(t, session.FileError, hs.Files[0].Status)
	assert.Equal(t, "disk full", hs.Files[0].Err)

	// later relay events do not turn the failure into a success
	joiner.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, session.StatusError, host.Snapshot().Status)
}

func TestJoinUnknownRoom(t *testing.T) {
	e := newEnv(t)
	joiner := e.joiner(t, "ZZZZZZ")

	err := joiner.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, transfer.ErrRoomNotFound), err)

	snap := joiner.Snapshot()
	assert.Equal(t, session.StatusError, snap.Status)
	assert.True(t, errors.Is(snap.Err, transfer.ErrRoomNotFound))
}

func TestJoinFullRoom(t *testing.T) {
	e := newEnv(t)
	e.host(t, "HJKL89", &memSaver{})

	first := e.joiner(t, "HJKL89")
	require.NoError(t, first.Start(context.Background()))

	second := e.joiner(t, "HJKL89")
	err := second.Start(context.Background())
	assert.True(t, errors.Is(err, transfer.ErrRoomFull), err)
}

func TestHostRetriesTakenCode(t *testing.T) {
	e := newEnv(t)
	e.host(t, "RSTU23", &memSaver{})

	opts := e.options()
	opts.Code = "RSTU23"
	opts.GenerateCode = func() string { return "VWXY45" }
	second := session.NewHost(opts)
	t.Cleanup(second.Close)

	require.NoError(t, second.Start(context.Background()))
	assert.Equal(t, "VWXY45", second.Snapshot().RoomCode)
}

func TestHostGivesUpAfterRepeatedCollisions(t *testing.T) {
	e := newEnv(t)
	e.host(t, "RSTU23", &memSaver{})

	opts := e.options()
	opts.Code = "RSTU23"
	opts.GenerateCode = func() string { return "RSTU23" }
	second := session.NewHost(opts)
	t.Cleanup(second.Close)

	err := second.Start(context.Background())
	assert.True(t, errors.Is(err, transfer.ErrRoomTaken), err)
	assert.Equal(t, session.StatusError, second.Snapshot().Status)
}

func TestGeneratedCodeIsValid(t *testing.T) {
	e := newEnv(t)
	host := e.host(t, "", &memSaver{})
	assert.True(t, roomcode.Valid(host.Snapshot().RoomCode))
}

func TestPeerLeftWaitsForNextPeer(t *testing.T) {
	e := newEnv(t)
	saver := &memSaver{}
	host := e.host(t, "CDEF67", saver)

	first := e.joiner(t, "CDEF67")
	require.NoError(t, first.Start(context.Background()))
	waitStatus(t, host, session.StatusConnected)

	first.Close()
	waitStatus(t, host, session.StatusConnecting)
	require.Eventually(t, func() bool { return !host.Snapshot().PeerConnected }, waitFor, 10*time.Millisecond)

	second := e.joiner(t, "CDEF67")
	require.NoError(t, second.Start(context.Background()))
	require.NoError(t, second.SendFiles(context.Background(), []session.Source{source("later.txt", []byte("after reconnect"))}))

	waitStatus(t, host, session.StatusCompleted)
	require.Len(t, saver.Files(), 1)
	assert.Equal(t, "after reconnect", string(saver.Files()[0].Payload))
}

func TestHostCloseEndsJoiner(t *testing.T) {
	e := newEnv(t)
	host := e.host(t, "GHJK89", &memSaver{})

	joiner := e.joiner(t, "GHJK89")
	require.NoError(t, joiner.Start(context.Background()))
	waitStatus(t, joiner, session.StatusConnected)

	host.Close()

	snap := waitStatus(t, joiner, session.StatusError)
	assert.True(t, errors.Is(snap.Err, transfer.ErrRoomClosed) || errors.Is(snap.Err, transfer.ErrPeerDisconnected), snap.Err)
}

func TestUpdatesClosedOnClose(t *testing.T) {
	e := newEnv(t)
	host := e.host(t, "LMNP23", &memSaver{})

	host.Close()
	host.Close()

	for range host.Updates() {
	}
}

func TestNewJoinerRejectsBadCode(t *testing.T) {
	_, err := session.NewJoiner("not a code", session.Options{})
	assert.True(t, errors.Is(err, roomcode.ErrInvalidCode), err)
}

func TestJoinerAcceptsRoomLink(t *testing.T) {
	s, err := session.NewJoiner("https://drop.example.com/room/abcd23", session.Options{})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "ABCD23", s.Snapshot().RoomCode)
}
