package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/BioHazard786/webdrop/internal/relay"
)

// HealthResponse is the body served by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

// NewRouter wires the websocket and health endpoints. An empty
// allowedOrigins accepts every origin.
func NewRouter(hub *relay.Hub, allowedOrigins []string, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ServeWs(hub, newUpgrader(allowedOrigins), log))
	mux.HandleFunc("/health", HealthHandler(hub))
	mux.HandleFunc("/{$}", HealthHandler(hub))
	return mux
}

func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return origin == "" || lo.Contains(allowedOrigins, origin)
		},
	}
}

// ServeWs returns an http.HandlerFunc that upgrades requests and hands the
// connection to the hub.
func ServeWs(hub *relay.Hub, upgrader *websocket.Upgrader, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("failed to upgrade connection", "addr", r.RemoteAddr, "err", err)
			return
		}
		hub.Serve(conn)
	}
}

// HealthHandler reports liveness and the number of open rooms.
func HealthHandler(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		rooms, err := hub.Rooms(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Rooms: rooms})
	}
}
