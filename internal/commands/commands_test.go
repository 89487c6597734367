package commands

import (
	"archive/zip"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/webdrop/internal/config"
	"github.com/BioHazard786/webdrop/internal/files"
	"github.com/BioHazard786/webdrop/internal/history"
	"github.com/BioHazard786/webdrop/internal/logging"
	"github.com/BioHazard786/webdrop/internal/relay"
	"github.com/BioHazard786/webdrop/internal/session"
	"github.com/BioHazard786/webdrop/internal/webrtc"
)

func TestToState(t *testing.T) {
	snap := session.Snapshot{
		Status: session.StatusTransferring,
		Peer:   relay.PeerInfo{ClientType: "web"},
		Speed:  2048,
		Files: []session.FileProgress{
			{Metadata: webrtc.FileMetadata{ID: "1", Name: "a.txt", Size: 10}, Status: session.FileCompleted, Progress: 100},
			{Metadata: webrtc.FileMetadata{ID: "2", Name: "b.bin", Size: 99}, Status: session.FileTransferring, Progress: 42.5},
		},
		Err: errors.New("boom"),
	}

	st := toState(snap)
	assert.Equal(t, "transferring", st.Status)
	assert.Equal(t, "web", st.Peer)
	assert.Equal(t, 2048.0, st.Speed)
	assert.Equal(t, "boom", st.Err)
	require.Len(t, st.Files, 2)
	assert.Equal(t, "b.bin", st.Files[1].Name)
	assert.Equal(t, int64(99), st.Files[1].Size)
	assert.Equal(t, 42.5, st.Files[1].Progress)
	assert.Equal(t, "transferring", st.Files[1].Status)
}

func TestToStateWithoutError(t *testing.T) {
	st := toState(session.Snapshot{Status: session.StatusConnecting})
	assert.Empty(t, st.Err)
	assert.Empty(t, st.Files)
}

func TestRecordWritesHistory(t *testing.T) {
	cfg := loadWithHistory(t, filepath.Join(t.TempDir(), "history.db"))
	snap := session.Snapshot{
		RoomCode: "ABCD23",
		Peer:     relay.PeerInfo{ClientType: "cli"},
		Files: []session.FileProgress{
			{Metadata: webrtc.FileMetadata{ID: "1", Name: "a.txt", Size: 10, Type: "text/plain"}, Status: session.FileCompleted, SavedAs: "/tmp/a.txt"},
			{Metadata: webrtc.FileMetadata{ID: "2", Name: "b.txt", Size: 5}, Status: session.FileError, Err: "open b.txt: denied"},
		},
	}

	record(cfg, history.DirectionReceived, snap, testLogger())

	store, err := history.Open(cfg.HistoryPath)
	require.NoError(t, err)
	defer store.Close()

	records, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byName := map[string]history.Record{}
	for _, r := range records {
		byName[r.FileName] = r
	}
	assert.Equal(t, "ABCD23", byName["a.txt"].RoomCode)
	assert.Equal(t, "cli", byName["a.txt"].PeerType)
	assert.Equal(t, "/tmp/a.txt", byName["a.txt"].SavedAs)
	assert.Equal(t, history.DirectionReceived, byName["a.txt"].Direction)
	assert.Equal(t, "error", byName["b.txt"].Status)
	assert.Equal(t, "open b.txt: denied", byName["b.txt"].Error)
}

func TestRecordSkippedWhenHistoryOff(t *testing.T) {
	cfg := loadWithHistory(t, "off")
	assert.Empty(t, cfg.HistoryPath)

	// must not panic or create anything
	record(cfg, history.DirectionSent, session.Snapshot{
		Files: []session.FileProgress{{Metadata: webrtc.FileMetadata{Name: "x"}}},
	}, testLogger())
}

func TestHistoryRows(t *testing.T) {
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := historyRows([]history.Record{
		{CreatedAt: when, Direction: history.DirectionSent, RoomCode: "ABCD23", FileName: "a.txt", Size: 7, Status: "completed"},
	})

	require.Len(t, rows, 1)
	assert.Equal(t, when, rows[0].When)
	assert.Equal(t, "sent", rows[0].Direction)
	assert.Equal(t, "ABCD23", rows[0].Room)
	assert.Equal(t, "a.txt", rows[0].File)
	assert.Equal(t, int64(7), rows[0].Size)
}

func TestSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	infos, err := files.ValidateFiles([]string{path})
	require.NoError(t, err)

	srcs := sources(infos)
	require.Len(t, srcs, 1)
	assert.Equal(t, "note.txt", srcs[0].Metadata.Name)
	assert.Equal(t, int64(5), srcs[0].Metadata.Size)
	assert.NotEmpty(t, srcs[0].Metadata.ID)

	r, err := srcs[0].Open()
	require.NoError(t, err)
	r.Close()
}

func TestPrepareOutputDir(t *testing.T) {
	dir, cleanup, err := prepareOutputDir(false, "")
	require.NoError(t, err)
	assert.Equal(t, ".", dir)
	assert.Nil(t, cleanup)

	dir, cleanup, err = prepareOutputDir(true, "ignored")
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	assert.DirExists(t, dir)
	cleanup()
	assert.NoDirExists(t, dir)
}

func TestFinalizeOutputZipsSavedFiles(t *testing.T) {
	src := t.TempDir()
	a := filepath.Join(src, "a.txt")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	out := filepath.Join(t.TempDir(), "out")

	snap := session.Snapshot{Files: []session.FileProgress{
		{Metadata: webrtc.FileMetadata{Name: "a.txt"}, Status: session.FileCompleted, SavedAs: a},
		{Metadata: webrtc.FileMetadata{Name: "b.txt"}, Status: session.FileError},
	}}
	paths := savedPaths(snap)
	assert.Equal(t, []string{a}, paths)

	require.NoError(t, finalizeOutput(true, out, paths))

	matches, err := filepath.Glob(filepath.Join(out, "webdrop-download-*.zip"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	zr, err := zip.OpenReader(matches[0])
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "a.txt", zr.File[0].Name)
}

func TestFinalizeOutputNoZip(t *testing.T) {
	assert.NoError(t, finalizeOutput(false, "", nil))
	assert.NoError(t, finalizeOutput(true, t.TempDir(), nil))
}

func TestForceRelayNeedsTURN(t *testing.T) {
	t.Setenv("TURN_SERVER", "")
	f := connFlags{relay: true, history: "off"}
	_, err := f.load()
	assert.Error(t, err)

	f.turn = "turn.example.com"
	cfg, err := f.load()
	require.NoError(t, err)
	assert.True(t, cfg.ForceRelay)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["send"])
	assert.True(t, names["receive"])
	assert.True(t, names["history"])

	for _, flag := range []string{"domain", "signaling-url", "stun", "turn", "relay", "history"} {
		assert.NotNil(t, sendCmd.Flags().Lookup(flag), flag)
		assert.NotNil(t, receiveCmd.Flags().Lookup(flag), flag)
	}
	assert.NotNil(t, receiveCmd.Flags().Lookup("zip"))
	assert.NotNil(t, receiveCmd.Flags().Lookup("dir"))
}

func TestSendNeedsCodeAndFile(t *testing.T) {
	assert.Error(t, sendCmd.Args(sendCmd, []string{"ABCD23"}))
	assert.NoError(t, sendCmd.Args(sendCmd, []string{"ABCD23", "a.txt"}))
}

func loadWithHistory(t *testing.T, path string) *config.Config {
	t.Helper()
	f := connFlags{history: path}
	cfg, err := f.load()
	require.NoError(t, err)
	return cfg
}

func testLogger() *slog.Logger {
	return logging.New(io.Discard, slog.LevelError)
}
