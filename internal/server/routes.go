package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/panoround/internal/engine"
)

func addRoutes(r chi.Router, logger *slog.Logger, svc *engine.Service, checks map[string]Checker) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Panoround API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, checks))

	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", handleCreateRoom(logger, svc))
		r.Get("/{roomID}", handleGetRoom(logger, svc))
		r.Get("/{roomID}/ws", handleSession(logger, svc))
	})
}
