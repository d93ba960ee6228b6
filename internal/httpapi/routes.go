package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/draftroom/draftroom/internal/hub"
	"github.com/draftroom/draftroom/internal/server"
)

// SetupRoutes builds the auxiliary HTTP surface: health, status, and the
// optional WebSocket transport endpoint.
func SetupRoutes(h *hub.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/status", Status(h))
	r.Get("/ws", server.WSHandler(h, log.Named("ws")))
	return r
}
