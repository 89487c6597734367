package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/webdrop/internal/relay"
	"github.com/BioHazard786/webdrop/internal/server"
	"github.com/BioHazard786/webdrop/internal/transfer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(testLogger(), 0, 0)
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewRouter(hub, nil, testLogger()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, url, clientType string) *Client {
	t.Helper()
	c := NewClient(url, clientType, testLogger())
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestClientRoomLifecycle(t *testing.T) {
	url := startRelay(t)
	ctx := context.Background()

	host := connect(t, url, relay.ClientTypeCLI)
	joiner := connect(t, url, relay.ClientTypeWeb)

	require.NoError(t, host.CreateRoom(ctx, "ABCD23"))
	ev := nextEvent(t, host)
	assert.Equal(t, relay.TypeRoomCreated, ev.Type)
	assert.NoError(t, ev.Err())

	require.NoError(t, joiner.JoinRoom(ctx, "ABCD23"))
	ev = nextEvent(t, joiner)
	assert.Equal(t, relay.TypeRoomJoined, ev.Type)
	assert.Equal(t, relay.ClientTypeCLI, ev.Peer.ClientType)

	ev = nextEvent(t, host)
	assert.Equal(t, relay.TypePeerJoined, ev.Type)
	assert.Equal(t, relay.ClientTypeWeb, ev.Peer.ClientType)

	payload := json.RawMessage(`{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 9 typ host","sdpMid":"0","sdpMLineIndex":0}}`)
	require.NoError(t, host.Room("ABCD23").Send(ctx, payload))

	select {
	case got := <-joiner.Room("ABCD23").Signals():
		assert.JSONEq(t, string(payload), string(got))
	case <-time.After(3 * time.Second):
		t.Fatal("signal not relayed")
	}

	joiner.Close()
	ev = nextEvent(t, host)
	assert.Equal(t, relay.TypePeerLeft, ev.Type)
}

func TestClientJoinUnknownRoom(t *testing.T) {
	url := startRelay(t)
	c := connect(t, url, relay.ClientTypeCLI)

	require.NoError(t, c.JoinRoom(context.Background(), "ZZZZZZ"))
	ev := nextEvent(t, c)
	assert.Equal(t, relay.TypeRoomNotFound, ev.Type)
	assert.True(t, errors.Is(ev.Err(), transfer.ErrRoomNotFound))
}

func TestClientCloseIsIdempotent(t *testing.T) {
	url := startRelay(t)
	c := connect(t, url, relay.ClientTypeCLI)

	c.Close()
	c.Close()

	select {
	case <-c.Disconnected():
	case <-time.After(3 * time.Second):
		t.Fatal("connection not torn down")
	}

	err := c.CreateRoom(context.Background(), "ABCD23")
	assert.True(t, errors.Is(err, transfer.ErrChannelClosed))
}

func TestClientConnectFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", relay.ClientTypeCLI, testLogger())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, transfer.ErrSignalingError))
	c.Close()
}

func TestClientSendBeforeConnect(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", relay.ClientTypeCLI, testLogger())
	err := c.JoinRoom(context.Background(), "ABCD23")
	assert.True(t, errors.Is(err, transfer.ErrChannelNotOpen))
}
