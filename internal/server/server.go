package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Leaderboard reads the top tallies
type Leaderboard interface {
	Leaderboard(ctx context.Context, limit int) ([]store.Tally, error)
}

const defaultLeaderboardSize = 10

type tallyJSON struct {
	PlayerID     string `json:"playerId"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Games        int    `json:"games"`
	GoalsFor     int    `json:"goalsFor"`
	GoalsAgainst int    `json:"goalsAgainst"`
	Points       int    `json:"points"`
}

// SetupRoutes configures the websocket endpoint, a health check and, when
// board is non-nil, the leaderboard.
func SetupRoutes(hub *Hub, board Leaderboard) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if board != nil {
		mux.HandleFunc("GET /leaderboard", func(w http.ResponseWriter, r *http.Request) {
			limit := defaultLeaderboardSize
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					http.Error(w, "bad limit", http.StatusBadRequest)
					return
				}
				limit = n
			}
			tallies, err := board.Leaderboard(r.Context(), limit)
			if err != nil {
				hub.logger.Error("leaderboard query failed", slog.Any("error", err))
				http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
				return
			}
			out := make([]tallyJSON, 0, len(tallies))
			for _, t := range tallies {
				out = append(out, tallyJSON(t))
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(out)
		})
	}

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.TrackConnect(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.TrackDisconnect(ip)
			hub.logger.Warn("upgrade error", slog.Any("error", err))
			return
		}

		client := NewClient(hub, conn, ip)
		hub.enqueue(hub.register, client)

		go client.WritePump()
		go client.ReadPump()
	})

	return mux
}
