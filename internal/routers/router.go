package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"realtime/internal/api"
	"realtime/internal/events"
	"realtime/internal/metrics"
)

func New(log *zap.Logger, router *events.Router) http.Handler {
	h := api.NewHandlers(log, router)
	r := chi.NewRouter()

	r.Get("/api/v1/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/ws", h.CollabWS)

	r.Group(func(r chi.Router) {
		r.Use(api.AdminAuth)
		r.Get("/api/v1/stats", h.Stats)
		r.Post("/api/v1/notify/{userId}", h.NotifyUser)
		r.Post("/api/v1/rooms/{documentId}/broadcast", h.BroadcastRoom)
	})

	return r
}
