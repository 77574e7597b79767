package api

import (
	"net/http"

	"tetris/server/metrics"
)

// Lobby registers the game endpoints.
type Lobby interface {
	Register(mux *http.ServeMux)
}

// Guard wraps admin handlers.
type Guard interface {
	RequireAuth(next http.Handler) http.Handler
}

// NewRouter wires every endpoint of the server.
func NewRouter(h *Handlers, lobby Lobby, guard Guard) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /leaderboard", h.HandleLeaderboard)
	mux.HandleFunc("POST /highscore", h.HandleHighscore)
	mux.Handle("DELETE /admin/leaderboard", guard.RequireAuth(http.HandlerFunc(h.HandleRemove)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	mux.Handle("GET /metrics", metrics.Handler())
	lobby.Register(mux)
	return CORS(mux)
}
