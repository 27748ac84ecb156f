package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/headsup-poker-backend/internal/hub"
	"github.com/DoyleJ11/headsup-poker-backend/internal/lobby"
	"github.com/DoyleJ11/headsup-poker-backend/internal/ws"
)

type Deps struct {
	Hub            *hub.Hub
	Lobby          *lobby.Lobby
	Leaderboard    Leaderboard
	AllowedOrigins []string
	Logger         *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	wsOpts := ws.Options{OriginPatterns: d.AllowedOrigins, Logger: d.Logger.Named("ws")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/ws/lobby", ws.LobbyHandler(d.Lobby, wsOpts))
	r.Get("/ws/game/{sessionID}", ws.GameHandler(d.Hub, wsOpts))

	r.Route("/api", func(r chi.Router) {
		r.Get("/leaderboard", GetLeaderboard(d.Leaderboard, d.Logger))
		r.Get("/stats", GetStats(d.Hub, d.Lobby))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(r)
}
