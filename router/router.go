package router

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"voicethoughts/config"
	"voicethoughts/internal/identity"
	thoughtHandler "voicethoughts/internal/thought"
	"voicethoughts/internal/thought/repository"
	"voicethoughts/internal/thought/service"
	"voicethoughts/middleware"
	"voicethoughts/pkg/metrics"
	"voicethoughts/pkg/response"
	"voicethoughts/socket"
)

func Setup(cfg config.Config, db *sql.DB, hub *socket.Hub, verifier middleware.Verifier, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// REST API
	thoughtRepo := repository.NewThoughtRepository(db, cfg.DBRLSRole)
	thoughtService := service.NewThoughtService(thoughtRepo, hub, m)
	thoughtHandler := thoughtHandler.NewThoughtHandler(thoughtService)
	auth := middleware.RequireAuth(verifier, m)

	list := m.Instrument("list_thoughts", auth(http.HandlerFunc(thoughtHandler.ListThoughts)))
	create := m.Instrument("create_thought", auth(http.HandlerFunc(thoughtHandler.CreateThought)))
	mux.Handle("GET /records", list)
	mux.Handle("POST /records", create)
	// Path used by the existing web client.
	mux.Handle("GET /api/thoughts", list)
	mux.Handle("POST /api/thoughts", create)

	// Live feed
	hub.AllowOrigins(cfg.AllowedOrigins)
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := identity.FromContext(r.Context())
		socket.ServeWs(hub, w, r, id.UserID)
	})
	mux.Handle("GET /ws", m.Instrument("ws", middleware.RequireAuthWS(verifier, m)(wsHandler)))

	mux.Handle("GET /healthz", healthHandler(thoughtRepo))
	mux.Handle("GET /metrics", m.Handler())

	return middleware.CORSMiddleware(cfg.AllowedOrigins)(middleware.Recoverer(mux))
}

func healthHandler(repo *repository.ThoughtRepository) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repo.Ping(ctx); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
