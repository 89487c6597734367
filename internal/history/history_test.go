package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndList(t *testing.T) {
	s := openMemory(t)
	now := time.Now()

	require.NoError(t, s.Add(
		Record{CreatedAt: now.Add(-2 * time.Hour), Direction: DirectionSent, RoomCode: "ABCD23", FileName: "old.txt", Size: 3, Status: "completed"},
		Record{CreatedAt: now, Direction: DirectionReceived, RoomCode: "EFGH45", FileName: "new.bin", Size: 4096, Status: "completed", SavedAs: "/tmp/new.bin"},
	))
	require.NoError(t, s.Add())

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new.bin", all[0].FileName)
	assert.Equal(t, DirectionReceived, all[0].Direction)
	assert.Equal(t, "/tmp/new.bin", all[0].SavedAs)
	assert.Equal(t, "old.txt", all[1].FileName)

	limited, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "new.bin", limited[0].FileName)
}

func TestPrune(t *testing.T) {
	s := openMemory(t)
	now := time.Now()

	require.NoError(t, s.Add(
		Record{CreatedAt: now.Add(-48 * time.Hour), Direction: DirectionSent, FileName: "a", Status: "completed"},
		Record{CreatedAt: now, Direction: DirectionSent, FileName: "b", Status: "error", Error: "peer disconnected"},
	))

	n, err := s.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "peer disconnected", left[0].Error)
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(Record{Direction: DirectionSent, FileName: "x", Status: "completed"}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.List(10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
