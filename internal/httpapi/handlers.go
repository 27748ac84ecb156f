package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/headsup-poker-backend/internal/hub"
	"github.com/DoyleJ11/headsup-poker-backend/internal/lobby"
	"github.com/DoyleJ11/headsup-poker-backend/internal/stats"
)

const defaultTop = 10

// Leaderboard is the read side of the stats aggregator.
type Leaderboard interface {
	Top(ctx context.Context, n int) ([]stats.Entry, error)
}

type StatsResponse struct {
	Sessions     int `json:"sessions"`
	LobbyPlayers int `json:"lobbyPlayers"`
	Challenges   int `json:"challenges"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func GetLeaderboard(lb Leaderboard, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := defaultTop
		if q := r.URL.Query().Get("limit"); q != "" {
			v, err := strconv.Atoi(q)
			if err != nil || v <= 0 {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			n = v
		}
		top, err := lb.Top(r.Context(), n)
		if err != nil {
			log.Error("leaderboard read failed", zap.Error(err))
			http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Players []stats.Entry `json:"players"`
		}{Players: top})
	}
}

func GetStats(h *hub.Hub, l *lobby.Lobby) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		hs, err := h.Stats(ctx)
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		lv, err := l.Snapshot(ctx)
		if err != nil {
			http.Error(w, "lobby unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, StatsResponse{
			Sessions:     hs.Sessions,
			LobbyPlayers: len(lv.Players),
			Challenges:   lv.Challenges,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
